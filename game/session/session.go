package session

import (
	"sync"
	"time"

	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/sim"
)

// Session is one player's live simulation in one world.
type Session struct {
	ID        string
	PlayerID  string
	World     *config.World
	CreatedAt time.Time

	mu           sync.Mutex
	sim          *sim.Context
	lastAccessed time.Time
	lastAdvance  time.Time
	input        sim.Input
}

// Do runs fn with exclusive access to the simulation.
func (s *Session) Do(fn func(c *sim.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccessed = time.Now()
	return fn(s.sim)
}

// Stepped runs fn like Do for an explicit step. The simulated time fn
// reports is charged against the background clock, so the background loop
// resumes only once wall time has caught up with the step.
func (s *Session) Stepped(fn func(c *sim.Context) (time.Duration, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.lastAccessed = now
	simulated, err := fn(s.sim)
	if simulated > 0 {
		if s.lastAdvance.Before(now) {
			s.lastAdvance = now
		}
		s.lastAdvance = s.lastAdvance.Add(simulated)
	}
	return err
}

// View returns the current state of the simulation.
func (s *Session) View() sim.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.View()
}

// LastAccessedAt returns when the session was last used.
func (s *Session) LastAccessedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

// NeedsReauth reports whether the gateway rejected the session.
func (s *Session) NeedsReauth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.NeedsReauth()
}

// SetInput latches input for the background loop. Movement replaces the
// previous axes; Interact and Attack stay set until the next advance.
func (s *Session) SetInput(in sim.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccessed = time.Now()
	s.input.DX, s.input.DY = in.DX, in.DY
	s.input.Interact = s.input.Interact || in.Interact
	s.input.Attack = s.input.Attack || in.Attack
}

// advance runs the simulation up to now with the latched input.
func (s *Session) advance(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !now.After(s.lastAdvance) {
		return 0, nil
	}
	elapsed := now.Sub(s.lastAdvance)
	s.lastAdvance = now
	n, err := s.sim.Advance(elapsed, s.input)
	if n > 0 {
		s.input.Interact, s.input.Attack = false, false
	}
	return n, err
}
