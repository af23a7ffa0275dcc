package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/sim"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// Options configure the sessions a Manager creates.
type Options struct {
	// Sim is the template for every simulation; PlayerID, World and Admin
	// are filled in per session.
	Sim sim.Options
	// Admin decides who may edit a world's collisions. Nil falls back to
	// the world's admin list.
	Admin func(world *config.World, player string) bool
}

// Manager handles session lifecycle and the per-world state sessions share
type Manager struct {
	gateway   gateway.Gateway
	evaluator quest.Evaluator
	opts      Options

	sessions  map[string]*Session
	overrides map[string]*overrides.Store
	mu        sync.RWMutex
}

// NewManager creates a new session manager
func NewManager(gw gateway.Gateway, evaluator quest.Evaluator, opts Options) *Manager {
	if opts.Admin == nil {
		opts.Admin = func(w *config.World, player string) bool { return w.IsAdmin(player) }
	}
	return &Manager{
		gateway:   gw,
		evaluator: evaluator,
		opts:      opts,
		sessions:  make(map[string]*Session),
		overrides: make(map[string]*overrides.Store),
	}
}

// Create starts a session for player in world and restores the player's
// save. An empty id is generated; an empty player plays under the session id.
func (m *Manager) Create(ctx context.Context, id, player string, world *config.World) (*Session, error) {
	if id == "" {
		id = m.generateSessionID()
	}
	if strings.ContainsAny(id, "/\\ ") {
		return nil, ErrInvalidSessionID
	}
	if player == "" {
		player = id
	}

	if _, err := m.Get(id); err == nil {
		return nil, ErrSessionAlreadyExists
	}

	store, err := m.Overrides(ctx, world)
	if err != nil {
		return nil, err
	}

	opts := m.opts.Sim
	opts.PlayerID = player
	opts.World = world.ID
	opts.Admin = m.opts.Admin(world, player)
	if opts.ViewWidth == 0 {
		opts.ViewWidth, opts.ViewHeight = world.Config.View.Width, world.Config.View.Height
	}
	if opts.Zoom == 0 {
		opts.Zoom = world.Config.View.Zoom
	}

	c, err := sim.NewContext(sim.Deps{
		Grid:      world.Grid,
		Overrides: store,
		Catalog:   world.Catalog,
		Evaluator: m.evaluator,
		Gateway:   m.gateway,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:           id,
		PlayerID:     player,
		World:        world,
		CreatedAt:    now,
		sim:          c,
		lastAccessed: now,
		lastAdvance:  now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[strings.ToLower(id)]; exists {
		_ = c.Close(ctx)
		return nil, ErrSessionAlreadyExists
	}
	m.sessions[strings.ToLower(id)] = session

	log.WithFields(log.Fields{"session": id, "player": player, "world": world.ID, "admin": opts.Admin}).Info("Session created")
	return session, nil
}

// Overrides returns the collision overrides shared by every session of a
// world, loading them from the gateway on first use.
func (m *Manager) Overrides(ctx context.Context, world *config.World) (*overrides.Store, error) {
	m.mu.RLock()
	store, ok := m.overrides[world.ID]
	m.mu.RUnlock()
	if ok {
		return store, nil
	}

	grid := world.Grid
	store = overrides.NewStore(gateway.OverrideRemote(m.gateway, world.ID), func(k overrides.TileKey) bool {
		return grid.DefaultBlocking(k.X, k.Y, k.Layer)
	})
	if err := store.LoadAll(ctx); err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) {
			return nil, err
		}
		log.WithError(err).WithField("world", world.ID).Warn("Failed to load collision overrides, using map defaults")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.overrides[world.ID]; ok {
		return existing, nil
	}
	m.overrides[world.ID] = store
	return store, nil
}

// Get retrieves a session by ID (case-insensitive)
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, exists := m.sessions[strings.ToLower(id)]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// FindByPlayer returns the live session of a player in a world.
func (m *Manager) FindByPlayer(player, world string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.PlayerID == player && s.World.ID == world {
			return s, true
		}
	}
	return nil, false
}

// List returns all active sessions, oldest first
func (m *Manager) List() []*Session {
	m.mu.RLock()
	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete ends a session. Its simulation saves one last time.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	session, exists := m.sessions[strings.ToLower(id)]
	if exists {
		delete(m.sessions, strings.ToLower(id))
	}
	m.mu.Unlock()

	if !exists {
		return ErrSessionNotFound
	}
	return m.close(ctx, session)
}

func (m *Manager) close(ctx context.Context, session *Session) error {
	err := session.Do(func(c *sim.Context) error { return c.Close(ctx) })
	if err != nil && !errors.Is(err, sim.ErrUnauthorized) {
		log.WithError(err).WithField("session", session.ID).Warn("Final save failed")
		return fmt.Errorf("failed to close session %s: %w", session.ID, err)
	}
	log.WithField("session", session.ID).Info("Session closed")
	return nil
}

// CleanupExpiredSessions closes sessions that haven't been accessed in the given duration
func (m *Manager) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*Session
	for id, session := range m.sessions {
		if session.LastAccessedAt().Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, session)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		_ = m.close(ctx, session)
	}
	return len(expired)
}

// CloseAll ends every session, saving each one.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, session := range sessions {
		if err := m.close(ctx, session); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of active sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run advances every session on wall time until ctx is done. notify is
// called for each session that ran at least one tick.
func (m *Manager) Run(ctx context.Context, interval time.Duration, notify func(*Session)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for _, session := range m.List() {
				n, err := session.advance(now)
				if err != nil {
					log.WithError(err).WithField("session", session.ID).Debug("Skipping session")
					continue
				}
				if n > 0 && notify != nil {
					notify(session)
				}
			}
		}
	}
}

// generateSessionID generates a random 8-character session ID
func (m *Manager) generateSessionID() string {
	bytes := make([]byte, 4)
	for {
		rand.Read(bytes)
		id := hex.EncodeToString(bytes)
		if _, err := m.Get(id); err != nil {
			return id
		}
	}
}
