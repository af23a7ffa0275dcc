package gateway

import (
	"time"

	"github.com/wricardo/codequest/game/ledger"
	"github.com/wricardo/codequest/game/quest"
)

// Position is a pixel position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Snapshot is the saved state of one player. The embedded ledger and quest
// records flatten into the top-level JSON object.
type Snapshot struct {
	Position *Position `json:"position"`
	ledger.State
	quest.Sets
	Direction string    `json:"direction"`
	Animation string    `json:"animation"`
	Timestamp time.Time `json:"timestamp"`
}

// Merge applies an incoming snapshot to the stored one. The ledger moves only
// when incoming.Level >= stored.Level; progress fields and the position always
// follow the incoming snapshot. Fields the incoming snapshot leaves out (nil
// slices and maps, empty strings, nil position) keep their stored values.
func Merge(stored *Snapshot, incoming Snapshot) Snapshot {
	if stored == nil {
		return incoming
	}
	out := *stored

	if incoming.Level >= stored.Level {
		out.Experience = incoming.Experience
		out.Level = incoming.Level
		out.Coins = incoming.Coins
		if incoming.Badges != nil {
			out.Badges = incoming.Badges
		}
		out.Stats = incoming.Stats
	}

	if incoming.CollectedRewards != nil {
		out.CollectedRewards = incoming.CollectedRewards
	}
	if incoming.ActiveQuests != nil {
		out.ActiveQuests = incoming.ActiveQuests
	}
	if incoming.CompletedQuests != nil {
		out.CompletedQuests = incoming.CompletedQuests
	}
	if incoming.InteractedNPCs != nil {
		out.InteractedNPCs = incoming.InteractedNPCs
	}
	if incoming.QuestProgress != nil {
		out.QuestProgress = incoming.QuestProgress
	}
	if incoming.Direction != "" {
		out.Direction = incoming.Direction
	}
	if incoming.Animation != "" {
		out.Animation = incoming.Animation
	}
	if incoming.Position != nil {
		p := *incoming.Position
		out.Position = &p
	}
	if !incoming.Timestamp.IsZero() {
		out.Timestamp = incoming.Timestamp
	}
	return out
}
