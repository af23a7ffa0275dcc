package tilemap

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidMap   = errors.New("invalid map")
	ErrLayerMissing = errors.New("layer not found")
)

// Grid is an immutable view of a map.
type Grid struct {
	width, height         int
	tileWidth, tileHeight int
	bounded               bool

	layers   []Layer
	index    map[string]int
	excluded map[string]bool

	spawn   Point
	npcs    []NPC
	rewards []Reward
}

// New validates a definition and builds a grid from it. Layer data is copied.
func New(def Definition) (*Grid, error) {
	if def.Width <= 0 || def.Height <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %dx%d", ErrInvalidMap, def.Width, def.Height)
	}
	if def.TileWidth <= 0 || def.TileHeight <= 0 {
		return nil, fmt.Errorf("%w: tile size must be positive, got %dx%d", ErrInvalidMap, def.TileWidth, def.TileHeight)
	}

	g := &Grid{
		width:      def.Width,
		height:     def.Height,
		tileWidth:  def.TileWidth,
		tileHeight: def.TileHeight,
		bounded:    def.Bounded,
		index:      make(map[string]int, len(def.Layers)),
		excluded:   make(map[string]bool, len(def.NonCollidableLayers)),
		spawn:      def.Spawn,
		npcs:       append([]NPC(nil), def.NPCs...),
		rewards:    append([]Reward(nil), def.Rewards...),
	}

	for i, layer := range def.Layers {
		if layer.Name == "" {
			return nil, fmt.Errorf("%w: layer %d has no name", ErrInvalidMap, i)
		}
		if _, dup := g.index[layer.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate layer %q", ErrInvalidMap, layer.Name)
		}
		if len(layer.Data) != def.Width*def.Height {
			return nil, fmt.Errorf("%w: layer %q has %d tiles, want %d", ErrInvalidMap, layer.Name, len(layer.Data), def.Width*def.Height)
		}
		g.index[layer.Name] = len(g.layers)
		g.layers = append(g.layers, Layer{Name: layer.Name, Data: append([]int(nil), layer.Data...)})
	}
	for _, name := range def.NonCollidableLayers {
		g.excluded[name] = true
	}

	seen := make(map[string]bool)
	for _, npc := range g.npcs {
		if npc.ID == "" || seen[npc.ID] {
			return nil, fmt.Errorf("%w: npc id %q is empty or duplicated", ErrInvalidMap, npc.ID)
		}
		seen[npc.ID] = true
	}
	for _, r := range g.rewards {
		if r.ID == "" || seen[r.ID] {
			return nil, fmt.Errorf("%w: reward id %q is empty or duplicated", ErrInvalidMap, r.ID)
		}
		seen[r.ID] = true
	}

	return g, nil
}

// Width returns the map width in tiles.
func (g *Grid) Width() int { return g.width }

// Height returns the map height in tiles.
func (g *Grid) Height() int { return g.height }

// TileSize returns the tile dimensions in pixels.
func (g *Grid) TileSize() (int, int) { return g.tileWidth, g.tileHeight }

// Bounded reports whether movement is confined to the map rectangle.
func (g *Grid) Bounded() bool { return g.bounded }

// Bounds returns the world size in pixels.
func (g *Grid) Bounds() (float64, float64) {
	return float64(g.width * g.tileWidth), float64(g.height * g.tileHeight)
}

// Spawn returns the map-defined spawn point.
func (g *Grid) Spawn() Point { return g.spawn }

// NPCs returns the quest giver placements.
func (g *Grid) NPCs() []NPC { return g.npcs }

// Rewards returns the reward pickup placements.
func (g *Grid) Rewards() []Reward { return g.rewards }

// LayerNames returns every layer name in declaration order.
func (g *Grid) LayerNames() []string {
	names := make([]string, len(g.layers))
	for i, l := range g.layers {
		names[i] = l.Name
	}
	return names
}

// CollisionLayers returns the names of layers that take part in collision.
func (g *Grid) CollisionLayers() []string {
	var names []string
	for _, l := range g.layers {
		if !g.excluded[l.Name] {
			names = append(names, l.Name)
		}
	}
	return names
}

// IsExcluded reports whether a layer never blocks movement.
func (g *Grid) IsExcluded(layer string) bool {
	return g.excluded[layer]
}

// HasLayer reports whether the map declares a layer.
func (g *Grid) HasLayer(layer string) bool {
	_, ok := g.index[layer]
	return ok
}

// InBounds reports whether a tile coordinate lies inside the map.
func (g *Grid) InBounds(tx, ty int) bool {
	return tx >= 0 && ty >= 0 && tx < g.width && ty < g.height
}

// TileAt returns the tile id at a coordinate, or 0 for unknown layers and
// out-of-range cells.
func (g *Grid) TileAt(layer string, tx, ty int) int {
	i, ok := g.index[layer]
	if !ok || !g.InBounds(tx, ty) {
		return 0
	}
	return g.layers[i].Data[ty*g.width+tx]
}

// IsEmpty reports whether no tile is placed at a coordinate.
func (g *Grid) IsEmpty(layer string, tx, ty int) bool {
	return g.TileAt(layer, tx, ty) == 0
}

// DefaultBlocking is the collision value a tile has without an override: a
// non-empty tile on a collidable layer blocks.
func (g *Grid) DefaultBlocking(tx, ty int, layer string) bool {
	if g.excluded[layer] {
		return false
	}
	return !g.IsEmpty(layer, tx, ty)
}

// TileOf converts a pixel position into the tile containing it.
func (g *Grid) TileOf(px, py float64) (int, int) {
	return int(math.Floor(px / float64(g.tileWidth))), int(math.Floor(py / float64(g.tileHeight)))
}

// TileOrigin returns the pixel position of a tile's top-left corner.
func (g *Grid) TileOrigin(tx, ty int) Point {
	return Point{X: float64(tx * g.tileWidth), Y: float64(ty * g.tileHeight)}
}

// CountNonEmpty counts placed tiles on a layer.
func (g *Grid) CountNonEmpty(layer string) (int, error) {
	i, ok := g.index[layer]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrLayerMissing, layer)
	}
	count := 0
	for _, id := range g.layers[i].Data {
		if id != 0 {
			count++
		}
	}
	return count, nil
}
