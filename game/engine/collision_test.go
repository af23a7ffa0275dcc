package engine

import (
	"testing"

	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/tilemap"
)

type admin struct{}

func (admin) IsAdmin() bool { return true }

// createTestWorld builds an 8x6 map of 16px tiles with a fence at (4,2) and
// a wall column at x=6.
func createTestWorld(t *testing.T) (*tilemap.Grid, *overrides.Store) {
	t.Helper()
	grid, err := tilemap.New(tilemap.Definition{
		Width:      8,
		Height:     6,
		TileWidth:  16,
		TileHeight: 16,
		Bounded:    true,
		Layers: []tilemap.Layer{
			{Name: "Ground", Data: tilemap.RowsToData([]string{
				"gggggggg",
				"gggggggg",
				"gggggggg",
				"gggggggg",
				"gggggggg",
				"gggggggg",
			})},
			{Name: "Fences", Data: tilemap.RowsToData([]string{
				"........",
				"........",
				"....f...",
				"........",
				"........",
				"........",
			})},
			{Name: "Walls", Data: tilemap.RowsToData([]string{
				"......w.",
				"......w.",
				"......w.",
				"......w.",
				"......w.",
				"......w.",
			})},
		},
		NonCollidableLayers: []string{"Ground"},
	})
	if err != nil {
		t.Fatalf("Failed to build grid: %v", err)
	}
	store := overrides.NewStore(nil, func(k overrides.TileKey) bool {
		return grid.DefaultBlocking(k.X, k.Y, k.Layer)
	})
	return grid, store
}

var fullBox = HitBox{Width: 16, Height: 16}

func TestResolve_DefaultBlocking(t *testing.T) {
	grid, store := createTestWorld(t)
	r := NewResolver(grid, store, fullBox)

	start := Vec{X: 48, Y: 32}
	got := r.Resolve(start, Vec{X: 16, Y: 0})
	if got != start {
		t.Errorf("Expected move onto fence to be rejected, got %+v", got)
	}
}

func TestResolve_OverrideToggle(t *testing.T) {
	grid, store := createTestWorld(t)
	r := NewResolver(grid, store, fullBox)
	key := overrides.TileKey{X: 4, Y: 2, Layer: "Fences"}
	start := Vec{X: 48, Y: 32}
	dest := Vec{X: 64, Y: 32}

	if _, err := store.Toggle(admin{}, key); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if got := r.Resolve(start, Vec{X: 16}); got != dest {
		t.Errorf("Expected move to be accepted after toggle, got %+v", got)
	}

	if _, err := store.Toggle(admin{}, key); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if got := r.Resolve(start, Vec{X: 16}); got != start {
		t.Errorf("Expected move to be rejected after second toggle, got %+v", got)
	}
}

func TestResolve_ExcludedLayerNeverBlocks(t *testing.T) {
	grid, store := createTestWorld(t)
	r := NewResolver(grid, store, fullBox)

	start := Vec{X: 0, Y: 0}
	want := Vec{X: 16, Y: 16}
	if got := r.Resolve(start, Vec{X: 16, Y: 16}); got != want {
		t.Errorf("Ground layer should not block: got %+v want %+v", got, want)
	}
}

func TestResolve_Sliding(t *testing.T) {
	grid, store := createTestWorld(t)
	r := NewResolver(grid, store, fullBox)

	tests := []struct {
		name  string
		start Vec
		delta Vec
		want  Vec
	}{
		{"diagonal into wall slides vertically", Vec{X: 80, Y: 16}, Vec{X: 4, Y: 4}, Vec{X: 80, Y: 20}},
		{"diagonal into fence slides horizontally", Vec{X: 64, Y: 12}, Vec{X: 4, Y: 8}, Vec{X: 68, Y: 12}},
		{"blocked on both axes stays put", Vec{X: 80, Y: 16}, Vec{X: 4, Y: 0}, Vec{X: 80, Y: 16}},
		{"zero delta", Vec{X: 10, Y: 10}, Vec{}, Vec{X: 10, Y: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.start, tt.delta); got != tt.want {
				t.Errorf("Resolve(%+v, %+v) = %+v, want %+v", tt.start, tt.delta, got, tt.want)
			}
		})
	}
}

func TestResolve_InsetAllowsGrazing(t *testing.T) {
	grid, store := createTestWorld(t)
	strict := NewResolver(grid, store, fullBox)
	lenient := NewResolver(grid, store, HitBox{Width: 16, Height: 16, Inset: 3})

	// Overlaps the fence tile by 2px on the right edge.
	pos := Vec{X: 50, Y: 32}
	if strict.Valid(pos) {
		t.Error("Full hit-box should be blocked")
	}
	if !lenient.Valid(pos) {
		t.Error("Inset hit-box should pass")
	}
}

func TestResolve_WorldBounds(t *testing.T) {
	grid, store := createTestWorld(t)
	r := NewResolver(grid, store, fullBox)

	start := Vec{X: 0, Y: 0}
	if got := r.Resolve(start, Vec{X: -1, Y: 0}); got != start {
		t.Errorf("Bounded world should reject leaving the map, got %+v", got)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	grid, store := createTestWorld(t)
	r := NewResolver(grid, store, HitBox{Width: 14, Height: 14, Inset: 2})

	start := Vec{X: 33.5, Y: 17.25}
	delta := Vec{X: 3.3, Y: -2.7}
	first := r.Resolve(start, delta)
	for i := 0; i < 10; i++ {
		if got := r.Resolve(start, delta); got != first {
			t.Fatalf("Resolve is not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestBlockedBy(t *testing.T) {
	grid, store := createTestWorld(t)
	r := NewResolver(grid, store, fullBox)

	keys := r.BlockedBy(Vec{X: 64, Y: 32})
	if len(keys) != 1 || keys[0] != (overrides.TileKey{X: 4, Y: 2, Layer: "Fences"}) {
		t.Errorf("Expected the fence tile, got %+v", keys)
	}
	if keys := r.BlockedBy(Vec{X: 0, Y: 0}); len(keys) != 0 {
		t.Errorf("Expected no blockers, got %+v", keys)
	}
}
