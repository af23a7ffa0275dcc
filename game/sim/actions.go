package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/wricardo/codequest/game/engine"
	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/sandbox"
)

// Quest actions run between ticks. Each one drains the events it caused and
// flushes any save they requested, so completions are persisted without
// waiting for the next tick.

func (c *Context) ready() error {
	switch {
	case c.closed:
		return ErrClosed
	case !c.started:
		return ErrNotStarted
	}
	return nil
}

func (c *Context) settle() {
	c.processEvents()
	c.flushSave()
}

// InteractWith talks to an NPC by id, regardless of distance.
func (c *Context) InteractWith(npcID string) (Dialogue, error) {
	if err := c.ready(); err != nil {
		return Dialogue{}, err
	}
	for _, npc := range c.deps.Grid.NPCs() {
		if npc.ID == npcID {
			c.interact(npc)
			c.settle()
			return *c.dialogue, nil
		}
	}
	return Dialogue{}, fmt.Errorf("%w: %s", ErrUnknownNPC, npcID)
}

// StartQuest starts or resumes a quest by id or name.
func (c *Context) StartQuest(idOrName string) (quest.State, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	defer c.settle()
	return c.quests.Interact(idOrName)
}

func (c *Context) AdvanceLesson() (quest.State, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	defer c.settle()
	return c.quests.AdvanceLesson()
}

func (c *Context) AnswerQuiz(choice int) (bool, quest.State, error) {
	if err := c.ready(); err != nil {
		return false, "", err
	}
	defer c.settle()
	return c.quests.AnswerQuiz(choice)
}

func (c *Context) RunChallenge(ctx context.Context, code string) (sandbox.Result, error) {
	if err := c.ready(); err != nil {
		return sandbox.Result{}, err
	}
	return c.quests.RunChallenge(ctx, code)
}

func (c *Context) SubmitChallenge(ctx context.Context, code string) (quest.SubmitResult, error) {
	if err := c.ready(); err != nil {
		return quest.SubmitResult{}, err
	}
	defer c.settle()
	return c.quests.SubmitChallenge(ctx, code)
}

func (c *Context) Hint() (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.quests.Hint()
}

// RunFromQuest leaves the open activity. The quest can be resumed later.
func (c *Context) RunFromQuest() error {
	if err := c.ready(); err != nil {
		return err
	}
	defer c.settle()
	return c.quests.RunFromQuest()
}

// ZoomTo eases the camera to a new zoom over d.
func (c *Context) ZoomTo(zoom float64, d time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.camera.ZoomTo(zoom, d)
	return nil
}

// BlockedAhead lists the tiles that would stop one tick of movement with in.
func (c *Context) BlockedAhead(in Input) []overrides.TileKey {
	dir := engine.NormalizeInput(in.DX, in.DY)
	if dir.IsZero() {
		return nil
	}
	return c.resolver.BlockedBy(c.pos.Add(dir.Scale(c.opts.Speed * c.step.Seconds())))
}
