package overrides

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPermissionDenied is returned when a non-admin actor tries to toggle.
var ErrPermissionDenied = errors.New("permission denied: admin capability required")

// TileKey identifies one override slot.
type TileKey struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Layer string `json:"layer"`
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d,%d,%s", k.X, k.Y, k.Layer)
}

// Actor is whoever asks for a mutation.
type Actor interface {
	IsAdmin() bool
}

// Remote is the shared store behind the local copy.
type Remote interface {
	LoadOverrides(ctx context.Context) (map[TileKey]bool, error)
	SaveOverrides(ctx context.Context, entries map[TileKey]bool) error
}

// DefaultFunc reports whether a tile blocks when no override exists.
type DefaultFunc func(key TileKey) bool

// Store is the local, authoritative-for-this-process override map.
type Store struct {
	mu       sync.RWMutex
	entries  map[TileKey]bool
	remote   Remote
	defaults DefaultFunc
}

// NewStore creates an empty store. remote may be nil for purely local use.
func NewStore(remote Remote, defaults DefaultFunc) *Store {
	if defaults == nil {
		defaults = func(TileKey) bool { return false }
	}
	return &Store{
		entries:  make(map[TileKey]bool),
		remote:   remote,
		defaults: defaults,
	}
}

// Get returns the explicit override for a key, if any.
func (s *Store) Get(key TileKey) (blocking bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blocking, ok = s.entries[key]
	return blocking, ok
}

// Effective returns the override if present, else the map default.
func (s *Store) Effective(key TileKey) bool {
	if v, ok := s.Get(key); ok {
		return v
	}
	return s.defaults(key)
}

// Toggle flips the effective state of a tile and records the result
// explicitly, even when it matches the default. Non-admins get
// ErrPermissionDenied and nothing changes.
func (s *Store) Toggle(actor Actor, key TileKey) (bool, error) {
	if actor == nil || !actor.IsAdmin() {
		return false, ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[key]
	if !ok {
		current = s.defaults(key)
	}
	s.entries[key] = !current
	return !current, nil
}

// Snapshot copies the current entries.
func (s *Store) Snapshot() map[TileKey]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[TileKey]bool, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of explicit entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Replace swaps the local entries for a new set.
func (s *Store) Replace(entries map[TileKey]bool) {
	next := make(map[TileKey]bool, len(entries))
	for k, v := range entries {
		next[k] = v
	}
	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
}

// LoadAll replaces the local entries with the remote map.
func (s *Store) LoadAll(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	entries, err := s.remote.LoadOverrides(ctx)
	if err != nil {
		return fmt.Errorf("failed to load overrides: %w", err)
	}
	s.Replace(entries)
	return nil
}

// SaveAll writes the entire local map to the remote store.
func (s *Store) SaveAll(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	if err := s.remote.SaveOverrides(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("failed to save overrides: %w", err)
	}
	return nil
}
