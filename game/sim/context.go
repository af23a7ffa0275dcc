package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/engine"
	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/ledger"
	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/tilemap"
)

var (
	ErrClosed       = errors.New("simulation closed")
	ErrNotStarted   = errors.New("simulation not started")
	ErrUnauthorized = errors.New("session must re-authenticate")
	ErrUnknownNPC   = errors.New("unknown npc")
)

// Timer owners on the scheduler.
const (
	timerDialogue = "dialogue"
	timerAttack   = "attack"
)

// Dialogue is an open NPC speech bubble.
type Dialogue struct {
	NPC  string `json:"npc"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Context is the simulation state of one player session.
type Context struct {
	deps Deps
	opts Options
	step time.Duration

	resolver *engine.Resolver
	camera   *engine.Camera
	sched    *engine.Scheduler
	ledger   *ledger.Ledger
	quests   *quest.Runtime
	syncer   *gateway.Syncer
	ownSync  bool

	pos       engine.Vec
	facing    engine.Direction
	animation string
	attacking bool
	dialogue  *Dialogue
	nearby    *tilemap.NPC

	accumulator time.Duration
	ticks       uint64
	sinceSave   time.Duration
	saveWanted  bool
	notices     []string

	started bool
	closed  bool
	reauth  atomic.Bool

	logger *log.Entry
}

// NewContext builds a context. Call Start before ticking it.
func NewContext(deps Deps, opts Options) (*Context, error) {
	if deps.Grid == nil || deps.Catalog == nil || deps.Gateway == nil {
		return nil, fmt.Errorf("grid, catalog and gateway are required")
	}
	if deps.Overrides == nil {
		grid := deps.Grid
		deps.Overrides = overrides.NewStore(nil, func(k overrides.TileKey) bool {
			return grid.DefaultBlocking(k.X, k.Y, k.Layer)
		})
	}
	opts = opts.withDefaults(deps.Grid)

	c := &Context{
		deps:   deps,
		opts:   opts,
		step:   time.Second / time.Duration(opts.TickRate),
		sched:  engine.NewScheduler(),
		ledger: ledger.New(),
		logger: log.WithFields(log.Fields{"player": opts.PlayerID, "world": opts.World}),
	}
	c.resolver = engine.NewResolver(deps.Grid, deps.Overrides, opts.HitBox)
	worldW, worldH := deps.Grid.Bounds()
	c.camera = engine.NewCamera(opts.ViewWidth, opts.ViewHeight, worldW, worldH, deps.Grid.Bounded(), opts.CameraHz)
	c.camera.ZoomTo(opts.Zoom, 0)
	c.quests = quest.NewRuntime(deps.Catalog, c.ledger, deps.Evaluator)

	c.syncer = deps.Syncer
	if c.syncer == nil {
		c.syncer = gateway.NewSyncer(deps.Gateway, opts.Retry, c.onAuthFailure)
		c.ownSync = true
	}

	c.placeAtSpawn()
	return c, nil
}

func (c *Context) onAuthFailure(err error) {
	if c.reauth.CompareAndSwap(false, true) {
		c.logger.WithError(err).Error("Session credentials rejected, re-authentication required")
	}
}

// IsAdmin reports whether the player may edit collision overrides.
func (c *Context) IsAdmin() bool { return c.opts.Admin }

// NeedsReauth reports whether the gateway rejected the session.
func (c *Context) NeedsReauth() bool {
	return c.reauth.Load() || c.syncer.Unauthorized()
}

// Start restores the saved state. A missing or malformed save starts a new
// game at the spawn point; an authorization failure is returned.
func (c *Context) Start(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	snap, err := c.deps.Gateway.LoadSnapshot(ctx, c.opts.PlayerID)
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		c.onAuthFailure(err)
		return ErrUnauthorized
	case err != nil:
		c.logger.WithError(err).Warn("Failed to load save, starting fresh")
		snap = nil
	}

	if snap != nil {
		c.restore(snap)
		c.logger.WithFields(log.Fields{"level": c.ledger.Level(), "completed": c.quests.CompletedCount()}).Info("Restored save")
	} else {
		c.logger.Info("Starting new game")
	}

	c.started = true
	c.camera.Update(c.sched.Now(), c.anchor(), c.opts.Zoom)
	return nil
}

func (c *Context) restore(snap *gateway.Snapshot) {
	c.ledger.Restore(snap.State)
	c.quests.Restore(snap.Sets)
	c.facing = engine.ParseDirection(snap.Direction)
	c.animation = engine.IdleAnimation(c.facing)

	pos := engine.Vec{X: snap.Position.X, Y: snap.Position.Y}
	if c.resolver.Valid(pos) {
		c.pos = pos
	} else {
		c.logger.WithField("position", pos).Warn("Saved position is blocked, using spawn")
	}
}

func (c *Context) placeAtSpawn() {
	spawn := c.deps.Grid.Spawn()
	c.pos = engine.Vec{X: spawn.X, Y: spawn.Y}
	c.facing = engine.Down
	c.animation = engine.IdleAnimation(c.facing)
}

// Snapshot captures the state to persist.
func (c *Context) Snapshot() gateway.Snapshot {
	return gateway.Snapshot{
		Position:  &gateway.Position{X: c.pos.X, Y: c.pos.Y},
		State:     c.ledger.State(),
		Sets:      c.quests.Sets(),
		Direction: string(c.facing),
		Animation: c.animation,
		Timestamp: time.Now().UTC(),
	}
}

// requestSave queues an autosave for the end of the current step.
func (c *Context) requestSave() { c.saveWanted = true }

func (c *Context) flushSave() {
	if !c.saveWanted {
		return
	}
	c.saveWanted = false
	c.sinceSave = 0
	if c.NeedsReauth() {
		return
	}
	c.syncer.SaveSnapshot(c.opts.PlayerID, c.Snapshot())
}

// Save writes the current state and waits for the gateway.
func (c *Context) Save(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.NeedsReauth() {
		return ErrUnauthorized
	}
	// Pending autosaves must not land on top of this one.
	c.syncer.Wait()
	err := c.deps.Gateway.SaveSnapshot(ctx, c.opts.PlayerID, c.Snapshot())
	if errors.Is(err, gateway.ErrUnauthorized) {
		c.onAuthFailure(err)
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	c.sinceSave = 0
	c.saveWanted = false
	return nil
}

// DeleteSave removes the stored save and resets the player to a new game.
func (c *Context) DeleteSave(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	c.syncer.Wait()
	err := c.deps.Gateway.DeleteSnapshot(ctx, c.opts.PlayerID)
	if errors.Is(err, gateway.ErrUnauthorized) {
		c.onAuthFailure(err)
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("failed to delete save: %w", err)
	}

	c.ledger.Reset()
	c.quests.Reset()
	c.sched.Reset()
	c.dialogue = nil
	c.attacking = false
	c.nearby = nil
	c.notices = nil
	c.saveWanted = false
	c.sinceSave = 0
	c.placeAtSpawn()
	c.logger.Info("Save deleted")
	return nil
}

// ToggleOverride flips the collision of one tile for the whole world and
// flushes the world's override map.
func (c *Context) ToggleOverride(key overrides.TileKey) (bool, error) {
	if c.closed {
		return false, ErrClosed
	}
	blocking, err := c.deps.Overrides.Toggle(c, key)
	if err != nil {
		c.notice("Only admins can edit collisions")
		return false, err
	}
	c.logger.WithFields(log.Fields{"tile": key.String(), "blocking": blocking}).Info("Collision override toggled")
	c.syncer.SaveOverrides(c.opts.World, c.deps.Overrides.Snapshot())
	return blocking, nil
}

// Close saves one last time and stops background writes.
func (c *Context) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	var err error
	if c.started && !c.NeedsReauth() {
		err = c.Save(ctx)
	}
	c.closed = true
	c.sched.Reset()
	if c.ownSync {
		c.syncer.Close()
	}
	return err
}

// Wait blocks until background writes have finished.
func (c *Context) Wait() { c.syncer.Wait() }

func (c *Context) notice(msg string) {
	const keep = 5
	c.notices = append(c.notices, msg)
	if len(c.notices) > keep {
		c.notices = c.notices[len(c.notices)-keep:]
	}
}

// Ledger exposes the player's ledger.
func (c *Context) Ledger() *ledger.Ledger { return c.ledger }

// Quests exposes the quest runtime.
func (c *Context) Quests() *quest.Runtime { return c.quests }

// Position returns the player's top-left pixel position.
func (c *Context) Position() engine.Vec { return c.pos }

// TickInterval returns the length of one fixed tick.
func (c *Context) TickInterval() time.Duration { return c.step }

// World returns the id of the world the context plays in.
func (c *Context) World() string { return c.opts.World }

// Clock returns the simulated time since the context was built.
func (c *Context) Clock() time.Duration { return c.sched.Now() }

func (c *Context) anchor() engine.Vec { return c.opts.HitBox.Center(c.pos) }

func (c *Context) recordCompletion(ev quest.Event) {
	rec := gateway.Completion{
		ID:          uuid.NewString(),
		QuestID:     ev.QuestID,
		CompletedAt: time.Now().UTC(),
	}
	if ev.Reward != nil {
		rec.XP, rec.Coins, rec.Badge = ev.Reward.XP, ev.Reward.Coins, ev.Reward.Badge
	}
	c.syncer.RecordQuestCompletion(c.opts.PlayerID, rec)
}
