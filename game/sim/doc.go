// Package sim runs one player's simulation of a world.
//
// A Context owns everything a session mutates: position, facing, ledger,
// quest runtime, camera and timers. It is built at session start from shared
// read-only pieces (grid, catalog) and the world's shared override store, and
// torn down with Close. Nothing in it is global.
//
// Tick Order:
//
// Each fixed-rate tick runs, in order:
//  1. due timers (greeting auto-close, attack animation end)
//  2. input: movement resolved against the grid and overrides, then facing and
//     animation
//  3. proximity: reward pickups and the NPC in reach, then interaction
//  4. quest and ledger events, which may trigger an autosave
//  5. the camera
//
// Advance converts wall time into whole ticks and runs at most MaxCatchUp of
// them per call; the rest of a long stall is dropped.
//
// Persistence:
//
// Start restores the player's snapshot (or places them at the spawn point).
// Autosaves go through a gateway.Syncer and never block a tick: after a quest
// completion, a badge, a reward pickup, and every AutosaveEvery of simulated
// time. If the gateway rejects the session's credentials the context stops
// saving and reports NeedsReauth.
//
// A Context is not safe for concurrent use. Callers serialise access.
package sim
