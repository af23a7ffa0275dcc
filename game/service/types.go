package service

import (
	"time"

	"github.com/wricardo/codequest/game/engine"
	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/sim"
)

// CreateSessionRequest names the world and player of a new session.
type CreateSessionRequest struct {
	ConfigID  string `json:"config_id,omitempty"`
	PlayerID  string `json:"player_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string    `json:"id"`
	PlayerID       string    `json:"player_id"`
	ConfigID       string    `json:"config_id"`
	WorldName      string    `json:"world_name"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	State          sim.View  `json:"state"`
}

// StepRequest runs the simulation for a stretch of time with one input.
type StepRequest struct {
	Input sim.Input `json:"input"`
	// DurationMs defaults to one tick and is capped at MaxStepDuration.
	DurationMs int `json:"duration_ms,omitempty"`
}

// MaxStepDuration bounds one Step call.
const MaxStepDuration = 20 * time.Second

// StepResult contains the result of a step
type StepResult struct {
	Ticks    int        `json:"ticks"`
	StartPos engine.Vec `json:"start_pos"`
	EndPos   engine.Vec `json:"end_pos"`
	Moved    float64    `json:"moved"`
	// BlockedBy lists the tiles in the way when movement was requested but
	// the player ended against an obstacle.
	BlockedBy []overrides.TileKey `json:"blocked_by,omitempty"`
	State     sim.View            `json:"state"`
}

// InteractResult is the dialogue an interaction opened.
type InteractResult struct {
	Dialogue *sim.Dialogue `json:"dialogue,omitempty"`
	State    sim.View      `json:"state"`
}

// ActionResult is the outcome of a quest action.
type ActionResult struct {
	QuestState quest.State         `json:"quest_state,omitempty"`
	Correct    *bool               `json:"correct,omitempty"`
	Submission *quest.SubmitResult `json:"submission,omitempty"`
	State      sim.View            `json:"state"`
}

// OverrideResult is the new effective collision of a toggled tile.
type OverrideResult struct {
	World    string            `json:"world"`
	Tile     overrides.TileKey `json:"tile"`
	Blocking bool              `json:"blocking"`
}
