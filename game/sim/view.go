package sim

import (
	"github.com/wricardo/codequest/game/engine"
	"github.com/wricardo/codequest/game/ledger"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/tilemap"
)

// Player is the visible state of the player entity.
type Player struct {
	Position  engine.Vec `json:"position"`
	Facing    string     `json:"facing"`
	Animation string     `json:"animation"`
	Attacking bool       `json:"attacking"`
}

// Progression is the ledger as shown to the player.
type Progression struct {
	Experience uint64       `json:"experience"`
	Level      uint64       `json:"level"`
	XPProgress float64      `json:"xpProgress"`
	NextLevel  uint64       `json:"nextLevelXp"`
	Coins      uint64       `json:"coins"`
	Badges     []string     `json:"badges"`
	Stats      ledger.Stats `json:"gameStats"`
}

// CameraView is the visible world rectangle.
type CameraView struct {
	Origin engine.Vec `json:"origin"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Zoom   float64    `json:"zoom"`
}

// View is a serialisable picture of a context, used by the HTTP API and the
// websocket push.
type View struct {
	PlayerID    string            `json:"playerId"`
	World       string            `json:"world"`
	Admin       bool              `json:"admin"`
	Tick        uint64            `json:"tick"`
	Clock       float64           `json:"clockSeconds"`
	Player      Player            `json:"player"`
	Camera      CameraView        `json:"camera"`
	Progression Progression       `json:"progression"`
	Activity    *quest.Activity   `json:"activity,omitempty"`
	Dialogue    *Dialogue         `json:"dialogue,omitempty"`
	NearbyNPC   *tilemap.NPC      `json:"nearbyNpc,omitempty"`
	Quests      []quest.QuestView `json:"quests"`
	Rewards     []tilemap.Reward  `json:"rewards"`
	Notices     []string          `json:"notices,omitempty"`
	Reauth      bool              `json:"reauthenticate,omitempty"`
}

// View captures the current state. Rewards lists only uncollected pickups.
func (c *Context) View() View {
	v := View{
		PlayerID: c.opts.PlayerID,
		World:    c.opts.World,
		Admin:    c.opts.Admin,
		Tick:     c.ticks,
		Clock:    c.sched.Now().Seconds(),
		Player: Player{
			Position:  c.pos,
			Facing:    string(c.facing),
			Animation: c.animation,
			Attacking: c.attacking,
		},
		Progression: Progression{
			Experience: c.ledger.Experience(),
			Level:      c.ledger.Level(),
			XPProgress: c.ledger.XPProgress(),
			NextLevel:  ledger.XPForLevel(c.ledger.Level() + 1),
			Coins:      c.ledger.Coins(),
			Badges:     c.ledger.Badges(),
			Stats:      c.ledger.Stats(),
		},
		Quests:  c.quests.Overview(),
		Rewards: []tilemap.Reward{},
		Notices: append([]string(nil), c.notices...),
		Reauth:  c.NeedsReauth(),
	}

	w, h := c.camera.Viewport()
	v.Camera = CameraView{Origin: c.camera.Origin(), Width: w, Height: h, Zoom: c.camera.Zoom()}

	if a, ok := c.quests.Current(); ok {
		v.Activity = &a
	}
	if c.dialogue != nil {
		d := *c.dialogue
		v.Dialogue = &d
	}
	if c.nearby != nil {
		npc := *c.nearby
		v.NearbyNPC = &npc
	}
	for _, r := range c.deps.Grid.Rewards() {
		if !c.ledger.Collected(r.ID) {
			v.Rewards = append(v.Rewards, r)
		}
	}
	return v
}
