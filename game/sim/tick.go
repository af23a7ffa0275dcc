package sim

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/engine"
	"github.com/wricardo/codequest/game/ledger"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/tilemap"
)

// Advance runs as many fixed ticks as elapsed covers, up to MaxCatchUp. It
// returns the number of ticks run.
func (c *Context) Advance(elapsed time.Duration, in Input) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if !c.started {
		return 0, ErrNotStarted
	}
	if elapsed < 0 {
		elapsed = 0
	}

	c.accumulator += elapsed
	if limit := time.Duration(c.opts.MaxCatchUp) * c.step; c.accumulator > limit {
		c.logger.WithField("dropped", c.accumulator-limit).Debug("Simulation fell behind, dropping time")
		c.accumulator = limit
	}

	n := 0
	for c.accumulator >= c.step {
		c.accumulator -= c.step
		c.tick(c.step, in)
		in.Interact, in.Attack = false, false
		n++
	}
	return n, nil
}

// Tick runs exactly one tick of length dt.
func (c *Context) Tick(dt time.Duration, in Input) error {
	if c.closed {
		return ErrClosed
	}
	if !c.started {
		return ErrNotStarted
	}
	c.tick(dt, in)
	return nil
}

func (c *Context) tick(dt time.Duration, in Input) {
	c.ticks++
	c.sched.Advance(dt)
	c.ledger.AddPlayTime(dt)

	c.move(dt, in)
	if in.Attack {
		c.startAttack()
	}

	c.pickUpRewards()
	c.nearby = c.nearestNPC()
	if in.Interact && c.nearby != nil {
		c.interact(*c.nearby)
	}

	c.processEvents()

	c.sinceSave += dt
	if c.opts.AutosaveEvery > 0 && c.sinceSave >= c.opts.AutosaveEvery {
		c.requestSave()
	}
	c.flushSave()

	c.camera.Update(c.sched.Now(), c.anchor(), c.camera.Step(dt))
}

// move integrates input. The player stands still while a quest stage is
// open.
func (c *Context) move(dt time.Duration, in Input) {
	if _, open := c.quests.Current(); open {
		in.DX, in.DY = 0, 0
	}

	dir := engine.NormalizeInput(in.DX, in.DY)
	if !dir.IsZero() {
		c.pos = c.resolver.Resolve(c.pos, dir.Scale(c.opts.Speed*dt.Seconds()))
	}
	c.facing = engine.FacingFor(in.DX, in.DY, c.facing)

	if c.attacking {
		return
	}
	if dir.IsZero() {
		c.animation = engine.IdleAnimation(c.facing)
	} else {
		c.animation = engine.WalkAnimation(c.facing)
	}
}

// startAttack plays the attack animation. Attacking again restarts it.
func (c *Context) startAttack() {
	c.attacking = true
	c.animation = engine.AttackAnimation(c.facing)
	c.sched.Schedule(timerAttack, c.opts.AttackDuration, func() {
		c.attacking = false
		c.animation = engine.IdleAnimation(c.facing)
	})
}

func (c *Context) pickUpRewards() {
	center := c.anchor()
	for _, r := range c.deps.Grid.Rewards() {
		if c.ledger.Collected(r.ID) {
			continue
		}
		if engine.Within(center, engine.Vec{X: r.X, Y: r.Y}, c.opts.InteractRadius) {
			c.ledger.CollectReward(r.ID, r.Coins, r.XP)
		}
	}
}

func (c *Context) nearestNPC() *tilemap.NPC {
	center := c.anchor()
	npcs := c.deps.Grid.NPCs()
	best := -1
	bestDist := c.opts.InteractRadius
	for i, npc := range npcs {
		if d := engine.Distance(center, engine.Vec{X: npc.X, Y: npc.Y}); d <= bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return nil
	}
	npc := npcs[best]
	return &npc
}

// interact greets an NPC and starts or resumes its quest.
func (c *Context) interact(npc tilemap.NPC) {
	first := c.quests.MarkInteracted(npc.ID)
	greeting := fmt.Sprintf("Hello, I'm %s.", npc.Name)

	var line string
	if npc.QuestID != "" {
		entry := c.logger.WithFields(log.Fields{"npc": npc.ID, "quest": npc.QuestID})
		state, err := c.quests.Interact(npc.QuestID)
		switch {
		case errors.Is(err, quest.ErrQuestLocked):
			line = "Come back once you have finished an earlier quest."
		case errors.Is(err, quest.ErrActivityInProgress):
			line = "Finish what you are working on first."
		case err != nil:
			entry.WithError(err).Warn("NPC quest interaction failed")
		case state == quest.StateCompleted:
			line = "Thanks again for your help!"
		default:
			line = fmt.Sprintf("Let's work on %s.", c.questName(npc.QuestID))
		}
		entry.WithField("state", state).Debug("NPC interaction")
	}

	text := line
	switch {
	case line == "":
		text = greeting
	case first:
		text = greeting + " " + line
	}
	c.openDialogue(Dialogue{NPC: npc.ID, Name: npc.Name, Text: text})
}

// openDialogue shows a greeting and schedules it to close. Reopening
// replaces the pending close.
func (c *Context) openDialogue(d Dialogue) {
	c.dialogue = &d
	c.sched.Schedule(timerDialogue, c.opts.GreetingDuration, func() {
		c.dialogue = nil
	})
}

// processEvents reacts to quest and ledger changes since the last call.
func (c *Context) processEvents() {
	for _, ev := range c.quests.TakeEvents() {
		switch ev.Kind {
		case quest.EventCompleted:
			c.recordCompletion(ev)
			c.notice(fmt.Sprintf("Quest complete: %s", c.questName(ev.QuestID)))
			c.requestSave()
			c.logger.WithField("quest", ev.QuestID).Info("Quest completed")
		case quest.EventStarted:
			c.logger.WithField("quest", ev.QuestID).Info("Quest started")
		}
	}
	for _, ev := range c.ledger.TakeEvents() {
		switch ev.Kind {
		case ledger.EventBadge:
			c.notice(fmt.Sprintf("Badge earned: %s", ev.Badge))
			c.requestSave()
		case ledger.EventReward:
			c.requestSave()
		case ledger.EventLevelUp:
			c.notice(fmt.Sprintf("Level up! You are now level %d", ev.Level))
			c.logger.WithField("level", ev.Level).Info("Level up")
		}
	}
}

func (c *Context) questName(id string) string {
	if q, ok := c.deps.Catalog.Lookup(id); ok && q.Name != "" {
		return q.Name
	}
	return id
}
