package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wricardo/codequest/game/overrides"
)

var (
	// ErrUnauthorized means the store rejected the caller's credentials. It
	// is not retried.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidID    = errors.New("invalid id")
)

// Gateway is the persistence contract of a simulation.
type Gateway interface {
	// LoadSnapshot returns the stored snapshot, or nil when there is none or
	// it is malformed.
	LoadSnapshot(ctx context.Context, player string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, player string, snap Snapshot) error
	DeleteSnapshot(ctx context.Context, player string) error

	// LoadOverrides and SaveOverrides exchange the complete override map of
	// a world. Saving replaces everything stored for the world.
	LoadOverrides(ctx context.Context, world string) (map[overrides.TileKey]bool, error)
	SaveOverrides(ctx context.Context, world string, entries map[overrides.TileKey]bool) error

	RecordQuestCompletion(ctx context.Context, player string, rec Completion) error
}

// Backend is a Gateway that owns its data and can list completions.
type Backend interface {
	Gateway
	Completions(ctx context.Context, player string) ([]Completion, error)
	Players(ctx context.Context) ([]string, error)
	Close() error
}

// Completion records that a player finished a quest.
type Completion struct {
	ID          string    `json:"id"`
	QuestID     string    `json:"questId"`
	XP          uint64    `json:"xp"`
	Coins       uint64    `json:"coins"`
	Badge       string    `json:"badge,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// OverrideEntry is the wire form of one override.
type OverrideEntry struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Layer    string `json:"layer"`
	Blocking bool   `json:"blocking"`
}

// EntriesFromMap flattens an override map into a stable, sorted list.
func EntriesFromMap(m map[overrides.TileKey]bool) []OverrideEntry {
	out := make([]OverrideEntry, 0, len(m))
	for k, v := range m {
		out = append(out, OverrideEntry{X: k.X, Y: k.Y, Layer: k.Layer, Blocking: v})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return out
}

// MapFromEntries rebuilds an override map. Later entries win.
func MapFromEntries(entries []OverrideEntry) map[overrides.TileKey]bool {
	out := make(map[overrides.TileKey]bool, len(entries))
	for _, e := range entries {
		out[overrides.TileKey{X: e.X, Y: e.Y, Layer: e.Layer}] = e.Blocking
	}
	return out
}

// checkID rejects ids that cannot be used as a storage key.
func checkID(id string) error {
	if id == "" || len(id) > 128 || strings.ContainsAny(id, "/\\\x00") || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// mergeEncoded applies an incoming snapshot on top of stored bytes and
// returns the bytes to store. Malformed stored bytes count as absent.
func mergeEncoded(stored []byte, incoming Snapshot) ([]byte, Snapshot, error) {
	var current *Snapshot
	if len(stored) > 0 {
		current = Decode(stored)
	}
	merged := Merge(current, incoming)
	data, err := Encode(merged)
	return data, merged, err
}

// worldRemote binds a gateway to one world for the override store.
type worldRemote struct {
	gw    Gateway
	world string
}

// OverrideRemote adapts a gateway to the overrides.Remote of one world.
func OverrideRemote(gw Gateway, world string) overrides.Remote {
	return &worldRemote{gw: gw, world: world}
}

func (w *worldRemote) LoadOverrides(ctx context.Context) (map[overrides.TileKey]bool, error) {
	return w.gw.LoadOverrides(ctx, w.world)
}

func (w *worldRemote) SaveOverrides(ctx context.Context, entries map[overrides.TileKey]bool) error {
	return w.gw.SaveOverrides(ctx, w.world, entries)
}
