package gateway

import (
	"context"
	"sort"
	"sync"

	"github.com/wricardo/codequest/game/overrides"
)

// MemoryStore is an in-process Backend. Snapshots are kept encoded so loads
// go through the same validation as the durable stores.
type MemoryStore struct {
	mu          sync.Mutex
	snapshots   map[string][]byte
	overrides   map[string]map[overrides.TileKey]bool
	completions map[string][]Completion
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:   make(map[string][]byte),
		overrides:   make(map[string]map[overrides.TileKey]bool),
		completions: make(map[string][]Completion),
	}
}

func (m *MemoryStore) LoadSnapshot(_ context.Context, player string) (*Snapshot, error) {
	if err := checkID(player); err != nil {
		return nil, err
	}
	m.mu.Lock()
	raw, ok := m.snapshots[player]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return Decode(raw), nil
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, player string, snap Snapshot) error {
	if err := checkID(player); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _, err := mergeEncoded(m.snapshots[player], snap)
	if err != nil {
		return err
	}
	m.snapshots[player] = data
	return nil
}

func (m *MemoryStore) DeleteSnapshot(_ context.Context, player string) error {
	if err := checkID(player); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.snapshots, player)
	m.mu.Unlock()
	return nil
}

// PutRaw stores bytes for a player without merging.
func (m *MemoryStore) PutRaw(player string, raw []byte) {
	m.mu.Lock()
	m.snapshots[player] = raw
	m.mu.Unlock()
}

func (m *MemoryStore) LoadOverrides(_ context.Context, world string) (map[overrides.TileKey]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[overrides.TileKey]bool, len(m.overrides[world]))
	for k, v := range m.overrides[world] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SaveOverrides(_ context.Context, world string, entries map[overrides.TileKey]bool) error {
	next := make(map[overrides.TileKey]bool, len(entries))
	for k, v := range entries {
		next[k] = v
	}
	m.mu.Lock()
	m.overrides[world] = next
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RecordQuestCompletion(_ context.Context, player string, rec Completion) error {
	if err := checkID(player); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.completions[player] {
		if existing.QuestID == rec.QuestID {
			return nil
		}
	}
	m.completions[player] = append(m.completions[player], rec)
	return nil
}

func (m *MemoryStore) Completions(_ context.Context, player string) ([]Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Completion(nil), m.completions[player]...), nil
}

func (m *MemoryStore) Players(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
