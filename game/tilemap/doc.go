// Package tilemap provides the read-only tile grid a world is played on.
//
// A Grid is built once from a Definition (usually decoded from the "map"
// section of a world configuration) and never changes afterwards. It exposes:
//   - Named layers of tile ids, where 0 means "no tile"
//   - Tile dimensions in pixels and the world rectangle they span
//   - The set of layers that never take part in collision (ground, decoration)
//   - Placements of quest NPCs and reward pickups, and the spawn point
//
// Coordinates:
//
// Tile coordinates (tx, ty) index cells; pixel coordinates (px, py) are world
// positions. TileOf converts the latter into the former using floor division so
// negative pixels map to negative tiles in open worlds.
//
// Usage:
//
//	grid, err := tilemap.New(def)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if grid.DefaultBlocking(4, 2, "Fences") {
//		// a fence tile sits at (4,2)
//	}
package tilemap
