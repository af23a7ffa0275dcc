package engine

import "github.com/wricardo/codequest/game/overrides"

// TileSource is the part of the tile grid collision needs.
type TileSource interface {
	CollisionLayers() []string
	TileAt(layer string, tx, ty int) int
	TileOf(px, py float64) (int, int)
	Bounded() bool
	Bounds() (float64, float64)
}

// OverrideLookup returns the explicit override of a tile, if any.
type OverrideLookup interface {
	Get(key overrides.TileKey) (blocking bool, ok bool)
}

// Resolver decides where a movement request may end.
type Resolver struct {
	tiles     TileSource
	overrides OverrideLookup
	box       HitBox
}

// NewResolver creates a resolver for a hit-box. overrides may be nil.
func NewResolver(tiles TileSource, lookup OverrideLookup, box HitBox) *Resolver {
	return &Resolver{tiles: tiles, overrides: lookup, box: box}
}

// HitBox returns the box the resolver tests.
func (r *Resolver) HitBox() HitBox { return r.box }

// Resolve returns the position reached from pos when asked to move by delta:
// the full destination if valid, else X-only, else Y-only, else pos.
func (r *Resolver) Resolve(pos, delta Vec) Vec {
	if delta.IsZero() {
		return pos
	}
	if dest := pos.Add(delta); r.Valid(dest) {
		return dest
	}
	if delta.X != 0 {
		if xOnly := (Vec{X: pos.X + delta.X, Y: pos.Y}); r.Valid(xOnly) {
			return xOnly
		}
	}
	if delta.Y != 0 {
		if yOnly := (Vec{X: pos.X, Y: pos.Y + delta.Y}); r.Valid(yOnly) {
			return yOnly
		}
	}
	return pos
}

// Valid reports whether the hit-box may occupy pos.
func (r *Resolver) Valid(pos Vec) bool {
	if !r.insideWorld(pos) {
		return false
	}
	for _, c := range r.box.corners(pos) {
		tx, ty := r.tiles.TileOf(c.X, c.Y)
		for _, layer := range r.tiles.CollisionLayers() {
			if r.blocks(tx, ty, layer) {
				return false
			}
		}
	}
	return true
}

// BlockedBy lists the tiles that stop the hit-box from occupying pos.
func (r *Resolver) BlockedBy(pos Vec) []overrides.TileKey {
	var keys []overrides.TileKey
	seen := make(map[overrides.TileKey]bool)
	for _, c := range r.box.corners(pos) {
		tx, ty := r.tiles.TileOf(c.X, c.Y)
		for _, layer := range r.tiles.CollisionLayers() {
			key := overrides.TileKey{X: tx, Y: ty, Layer: layer}
			if !seen[key] && r.blocks(tx, ty, layer) {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}

func (r *Resolver) blocks(tx, ty int, layer string) bool {
	if r.tiles.TileAt(layer, tx, ty) == 0 {
		return false
	}
	if r.overrides != nil {
		if blocking, ok := r.overrides.Get(overrides.TileKey{X: tx, Y: ty, Layer: layer}); ok {
			return blocking
		}
	}
	return true
}

func (r *Resolver) insideWorld(pos Vec) bool {
	if !r.tiles.Bounded() {
		return true
	}
	w, h := r.tiles.Bounds()
	return pos.X >= 0 && pos.Y >= 0 && pos.X+r.box.Width <= w && pos.Y+r.box.Height <= h
}
