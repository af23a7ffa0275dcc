package sim

import (
	"time"

	"github.com/wricardo/codequest/game/engine"
	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/tilemap"
)

// Deps are the collaborators of a Context.
type Deps struct {
	Grid      *tilemap.Grid
	Overrides *overrides.Store
	Catalog   *quest.Catalog
	Evaluator quest.Evaluator
	Gateway   gateway.Gateway
	// Syncer is optional; a Context creates and owns one when nil.
	Syncer *gateway.Syncer
}

// Options tune a Context. Zero values take defaults.
type Options struct {
	PlayerID string
	World    string
	Admin    bool

	TickRate   int
	MaxCatchUp int
	Speed      float64
	HitBox     engine.HitBox

	InteractRadius float64
	ViewWidth      float64
	ViewHeight     float64
	CameraHz       int
	Zoom           float64

	// AutosaveEvery is the periodic save interval; negative disables it.
	AutosaveEvery    time.Duration
	GreetingDuration time.Duration
	AttackDuration   time.Duration

	Retry gateway.RetryPolicy
}

const (
	DefaultTickRate      = 30
	DefaultMaxCatchUp    = 5
	DefaultAutosaveEvery = 30 * time.Second
	DefaultGreeting      = 3 * time.Second
	DefaultAttack        = 400 * time.Millisecond
)

func (o Options) withDefaults(grid *tilemap.Grid) Options {
	tw, th := grid.TileSize()
	if o.TickRate <= 0 {
		o.TickRate = DefaultTickRate
	}
	if o.MaxCatchUp <= 0 {
		o.MaxCatchUp = DefaultMaxCatchUp
	}
	if o.Speed <= 0 {
		o.Speed = engine.DefaultSpeed
	}
	if o.HitBox.Width <= 0 || o.HitBox.Height <= 0 {
		o.HitBox = engine.HitBox{Width: float64(tw), Height: float64(th), Inset: engine.DefaultInset}
	}
	if o.InteractRadius <= 0 {
		o.InteractRadius = 1.5 * float64(max(tw, th))
	}
	if o.ViewWidth <= 0 {
		o.ViewWidth = 320
	}
	if o.ViewHeight <= 0 {
		o.ViewHeight = 240
	}
	if o.Zoom <= 0 {
		o.Zoom = 1
	}
	if o.AutosaveEvery == 0 {
		o.AutosaveEvery = DefaultAutosaveEvery
	}
	if o.GreetingDuration <= 0 {
		o.GreetingDuration = DefaultGreeting
	}
	if o.AttackDuration <= 0 {
		o.AttackDuration = DefaultAttack
	}
	return o
}

// Input is the player's input for one step. DX and DY are digital axes in
// -1..1. Interact and Attack are edge-triggered: Advance applies them to the
// first tick only.
type Input struct {
	DX       int  `json:"dx"`
	DY       int  `json:"dy"`
	Interact bool `json:"interact,omitempty"`
	Attack   bool `json:"attack,omitempty"`
}
