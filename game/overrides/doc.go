// Package overrides holds the admin-authored collision overrides of a world.
//
// An override forces a single tile on a single layer to block (true) or to be
// passable (false), regardless of the tile placed there. Tiles without an
// entry fall back to the map default. Entries only exist for tiles that were
// explicitly toggled.
//
// The store is shared by every session of a world and is safe for concurrent
// use. Persistence is all-or-nothing: SaveAll sends the complete map to the
// remote store, which replaces whatever it held, so concurrent authors race
// and the last full write wins.
package overrides
