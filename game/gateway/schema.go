package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	log "github.com/sirupsen/logrus"
)

const snapshotSchemaURL = "codequest://snapshot.schema.json"

const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["position"],
  "properties": {
    "position": {
      "type": "object",
      "required": ["x", "y"],
      "properties": {
        "x": {"type": "number"},
        "y": {"type": "number"}
      }
    },
    "experience": {"type": "integer", "minimum": 0},
    "level": {"type": "integer", "minimum": 0},
    "coins": {"type": "integer", "minimum": 0},
    "badges": {"$ref": "#/definitions/ids"},
    "gameStats": {
      "type": "object",
      "properties": {
        "monstersDefeated": {"type": "integer", "minimum": 0},
        "questsCompleted": {"type": "integer", "minimum": 0},
        "codeLinesWritten": {"type": "integer", "minimum": 0},
        "playTimeMinutes": {"type": "integer", "minimum": 0}
      }
    },
    "collectedRewards": {"$ref": "#/definitions/ids"},
    "activeQuests": {"$ref": "#/definitions/ids"},
    "completedQuests": {"$ref": "#/definitions/ids"},
    "interactedNPCs": {"$ref": "#/definitions/ids"},
    "questProgress": {
      "type": ["object", "null"],
      "additionalProperties": {
        "type": "object",
        "properties": {
          "lessonComplete": {"type": "boolean"},
          "quizComplete": {"type": "boolean"},
          "progressPercent": {"enum": [0, 50, 100]}
        }
      }
    },
    "direction": {"type": "string"},
    "animation": {"type": "string"},
    "timestamp": {"type": "string"}
  },
  "definitions": {
    "ids": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

var compiledSnapshotSchema = jsonschema.MustCompileString(snapshotSchemaURL, snapshotSchema)

// Decode parses a stored snapshot. Anything malformed yields nil.
func Decode(raw []byte) *Snapshot {
	snap, err := decode(raw)
	if err != nil {
		log.WithError(err).Warn("Discarding malformed snapshot")
		return nil
	}
	return snap
}

func decode(raw []byte) (*Snapshot, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty snapshot")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if err := compiledSnapshotSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if snap.Position == nil {
		return nil, fmt.Errorf("missing position")
	}
	return &snap, nil
}

// Encode serialises a snapshot for storage.
func Encode(snap Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}
