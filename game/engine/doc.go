// Package engine provides the per-frame mechanics of the tile world.
//
// The engine package implements:
//   - Collision resolution of a movement request against the tile grid and the
//     admin collision overrides, with wall sliding
//   - Input normalisation, facing direction and animation naming
//   - A camera that follows an anchor, clamps to finite worlds and eases zoom
//   - A scheduler for timed transitions on the simulation clock
//
// Core Types:
//
// Resolver turns (position, delta) into the allowed position. It is pure given
// its TileSource and OverrideLookup: the same inputs always give the same
// result. Camera and Scheduler are owned by a single simulation loop and are
// not safe for concurrent use.
//
// Usage:
//
//	resolver := engine.NewResolver(grid, store, engine.HitBox{Width: 16, Height: 16, Inset: 3})
//	dir := engine.NormalizeInput(1, 1)
//	next := resolver.Resolve(pos, dir.Scale(speed*dt))
//
// Collision Rules:
//
// The four corners of the inset hit-box are tested at the destination. On
// every collidable layer a corner over a non-empty tile is blocked unless an
// override for that tile says false. Blocked diagonals fall back to X-only
// and then Y-only movement.
package engine
