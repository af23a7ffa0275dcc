package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/sandbox"
	"github.com/wricardo/codequest/game/session"
	"github.com/wricardo/codequest/game/sim"
)

var (
	ErrSessionNotFound  = session.ErrSessionNotFound
	ErrConfigNotFound   = config.ErrConfigNotFound
	ErrPermissionDenied = overrides.ErrPermissionDenied
	// ErrReauthenticate means the persistence gateway rejected the session.
	// The client must sign in again and start a new session.
	ErrReauthenticate = errors.New("session must re-authenticate")
	ErrInvalidRequest = errors.New("invalid request")
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager) GameService {
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
	}
}

// world resolves a config id, falling back to the default world.
func (s *gameServiceImpl) world(configID string) (*config.World, error) {
	if configID == "" {
		if w := s.configs.GetDefault(); w != nil {
			return w, nil
		}
		return nil, fmt.Errorf("%w: no worlds are configured", ErrConfigNotFound)
	}

	w, err := s.configs.LoadConfig(configID)
	if errors.Is(err, config.ErrConfigNotFound) {
		var ids []string
		if infos, listErr := s.configs.ListConfigs(); listErr == nil {
			for _, info := range infos {
				ids = append(ids, info.ConfigID)
			}
		}
		return nil, fmt.Errorf("%w: %q, available configs: %v", ErrConfigNotFound, configID, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configID, err)
	}
	return w, nil
}

// CreateSession starts a session. A player who already plays the world gets
// the existing session back.
func (s *gameServiceImpl) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error) {
	w, err := s.world(req.ConfigID)
	if err != nil {
		return nil, err
	}

	if req.PlayerID != "" {
		if existing, ok := s.sessions.FindByPlayer(req.PlayerID, w.ID); ok {
			return s.info(existing), nil
		}
	}

	sess, err := s.sessions.Create(ctx, req.SessionID, req.PlayerID, w)
	if err != nil {
		return nil, s.mapError(fmt.Errorf("failed to create session: %w", err))
	}
	return s.info(sess), nil
}

func (s *gameServiceImpl) info(sess *session.Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		PlayerID:       sess.PlayerID,
		ConfigID:       sess.World.ID,
		WorldName:      sess.World.Config.Name,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt(),
		State:          sess.View(),
	}
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.info(sess), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.info(sess))
	}
	return result, nil
}

// DeleteSession ends a session after a final save
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	return s.mapError(s.sessions.Delete(ctx, sessionID))
}

// with runs fn on a session's simulation and translates its errors.
func (s *gameServiceImpl) with(sessionID string, fn func(c *sim.Context) error) (*session.Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.NeedsReauth() {
		return nil, ErrReauthenticate
	}
	return sess, s.mapError(sess.Do(fn))
}

// stepped is with for explicit steps; see session.Session.Stepped.
func (s *gameServiceImpl) stepped(sessionID string, fn func(c *sim.Context) (time.Duration, error)) (*session.Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.NeedsReauth() {
		return nil, ErrReauthenticate
	}
	return sess, s.mapError(sess.Stepped(fn))
}

func (s *gameServiceImpl) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sim.ErrUnauthorized), errors.Is(err, gateway.ErrUnauthorized):
		return fmt.Errorf("%w: %v", ErrReauthenticate, err)
	}
	return err
}

// Step runs the simulation for the requested duration with one input.
// Interact and Attack apply to the first tick only.
func (s *gameServiceImpl) Step(ctx context.Context, sessionID string, req StepRequest) (*StepResult, error) {
	duration := time.Duration(req.DurationMs) * time.Millisecond
	if duration < 0 || duration > MaxStepDuration {
		return nil, fmt.Errorf("%w: duration_ms must be between 0 and %d", ErrInvalidRequest, MaxStepDuration.Milliseconds())
	}

	result := &StepResult{}
	sess, err := s.stepped(sessionID, func(c *sim.Context) (time.Duration, error) {
		interval := c.TickInterval()
		ticks := max(int((duration+interval/2)/interval), 1)

		result.StartPos = c.Position()
		in := req.Input
		for i := 0; i < ticks; i++ {
			if err := c.Tick(interval, in); err != nil {
				return time.Duration(i) * interval, err
			}
			in.Interact, in.Attack = false, false
		}
		result.Ticks = ticks
		result.EndPos = c.Position()
		result.Moved = result.EndPos.Sub(result.StartPos).Len()
		result.BlockedBy = c.BlockedAhead(req.Input)
		return time.Duration(ticks) * interval, nil
	})
	if err != nil {
		return nil, err
	}

	result.State = sess.View()
	log.WithFields(log.Fields{
		"session": sessionID,
		"ticks":   result.Ticks,
		"moved":   result.Moved,
		"blocked": len(result.BlockedBy),
	}).Debug("Step")
	return result, nil
}

// SetInput latches input for the background loop
func (s *gameServiceImpl) SetInput(ctx context.Context, sessionID string, in sim.Input) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if sess.NeedsReauth() {
		return ErrReauthenticate
	}
	sess.SetInput(in)
	return nil
}

// GetState returns the current view of a session
func (s *gameServiceImpl) GetState(ctx context.Context, sessionID string) (*sim.View, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	view := sess.View()
	return &view, nil
}

// Interact talks to an NPC by id. Without an id it presses the interact
// key for one tick, which talks to whoever is in reach.
func (s *gameServiceImpl) Interact(ctx context.Context, sessionID, npcID string) (*InteractResult, error) {
	result := &InteractResult{}
	sess, err := s.with(sessionID, func(c *sim.Context) error {
		if npcID == "" {
			if err := c.Tick(c.TickInterval(), sim.Input{Interact: true}); err != nil {
				return err
			}
			result.Dialogue = c.View().Dialogue
			return nil
		}
		d, err := c.InteractWith(npcID)
		if err != nil {
			return err
		}
		result.Dialogue = &d
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.State = sess.View()
	return result, nil
}

func (s *gameServiceImpl) action(sessionID string, fn func(c *sim.Context, r *ActionResult) error) (*ActionResult, error) {
	result := &ActionResult{}
	sess, err := s.with(sessionID, func(c *sim.Context) error { return fn(c, result) })
	if err != nil {
		return nil, err
	}
	result.State = sess.View()
	return result, nil
}

// StartQuest starts or resumes a quest by id or legacy name
func (s *gameServiceImpl) StartQuest(ctx context.Context, sessionID, questID string) (*ActionResult, error) {
	return s.action(sessionID, func(c *sim.Context, r *ActionResult) error {
		state, err := c.StartQuest(questID)
		r.QuestState = state
		return err
	})
}

// AdvanceLesson moves to the next lesson part
func (s *gameServiceImpl) AdvanceLesson(ctx context.Context, sessionID string) (*ActionResult, error) {
	return s.action(sessionID, func(c *sim.Context, r *ActionResult) error {
		state, err := c.AdvanceLesson()
		r.QuestState = state
		return err
	})
}

// AnswerQuiz answers the open quiz question
func (s *gameServiceImpl) AnswerQuiz(ctx context.Context, sessionID string, choice int) (*ActionResult, error) {
	return s.action(sessionID, func(c *sim.Context, r *ActionResult) error {
		correct, state, err := c.AnswerQuiz(choice)
		if err != nil {
			return err
		}
		r.QuestState = state
		r.Correct = &correct
		return nil
	})
}

// RunChallenge executes code without submitting it. When the script itself
// fails, the output printed before the failure is returned with the error.
func (s *gameServiceImpl) RunChallenge(ctx context.Context, sessionID, code string) (*sandbox.Result, error) {
	var result sandbox.Result
	_, err := s.with(sessionID, func(c *sim.Context) error {
		var err error
		result, err = c.RunChallenge(ctx, code)
		return err
	})
	if err != nil && !IsScriptFailure(err) {
		return nil, err
	}
	return &result, err
}

// IsScriptFailure reports whether err comes from the player's code rather
// than from the server.
func IsScriptFailure(err error) bool {
	var scriptErr *sandbox.ScriptError
	return errors.As(err, &scriptErr) ||
		errors.Is(err, sandbox.ErrBudgetExceeded) ||
		errors.Is(err, sandbox.ErrOutputLimit) ||
		errors.Is(err, sandbox.ErrMemoryLimit) ||
		errors.Is(err, context.DeadlineExceeded)
}

// SubmitChallenge runs and validates code for the open challenge
func (s *gameServiceImpl) SubmitChallenge(ctx context.Context, sessionID, code string) (*ActionResult, error) {
	return s.action(sessionID, func(c *sim.Context, r *ActionResult) error {
		sub, err := c.SubmitChallenge(ctx, code)
		if err != nil {
			return err
		}
		r.QuestState = sub.State
		r.Submission = &sub
		return nil
	})
}

// Hint returns the hint of the open challenge
func (s *gameServiceImpl) Hint(ctx context.Context, sessionID string) (string, error) {
	var hint string
	_, err := s.with(sessionID, func(c *sim.Context) error {
		var err error
		hint, err = c.Hint()
		return err
	})
	return hint, err
}

// RunFromQuest leaves the open activity
func (s *gameServiceImpl) RunFromQuest(ctx context.Context, sessionID string) (*ActionResult, error) {
	return s.action(sessionID, func(c *sim.Context, r *ActionResult) error {
		if err := c.RunFromQuest(); err != nil {
			return err
		}
		r.QuestState = quest.StateUnlocked
		return nil
	})
}

// ToggleOverride flips a tile's collision for the session's world
func (s *gameServiceImpl) ToggleOverride(ctx context.Context, sessionID string, key overrides.TileKey) (*OverrideResult, error) {
	result := &OverrideResult{Tile: key}
	_, err := s.with(sessionID, func(c *sim.Context) error {
		blocking, err := c.ToggleOverride(key)
		result.Blocking = blocking
		result.World = c.World()
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListOverrides returns the explicit overrides of a world
func (s *gameServiceImpl) ListOverrides(ctx context.Context, worldID string) ([]gateway.OverrideEntry, error) {
	w, err := s.world(worldID)
	if err != nil {
		return nil, err
	}
	store, err := s.sessions.Overrides(ctx, w)
	if err != nil {
		return nil, s.mapError(err)
	}
	return gateway.EntriesFromMap(store.Snapshot()), nil
}

// Save writes the session's state and waits for the gateway
func (s *gameServiceImpl) Save(ctx context.Context, sessionID string) error {
	_, err := s.with(sessionID, func(c *sim.Context) error { return c.Save(ctx) })
	return err
}

// DeleteSave removes the player's save and starts them over
func (s *gameServiceImpl) DeleteSave(ctx context.Context, sessionID string) (*sim.View, error) {
	sess, err := s.with(sessionID, func(c *sim.Context) error { return c.DeleteSave(ctx) })
	if err != nil {
		return nil, err
	}
	view := sess.View()
	return &view, nil
}

// ListConfigs lists the loadable worlds
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*config.ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig returns a world's configuration
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*config.WorldConfig, error) {
	w, err := s.world(configName)
	if err != nil {
		return nil, err
	}
	return w.Config, nil
}
