// Package gateway is the persistence boundary of the game: player snapshots,
// world collision overrides and quest-completion records.
//
// The gateway package implements:
//   - Gateway: the contract the simulation saves and loads through
//   - Snapshot: the unit of player state exchanged with a store
//   - Merge: the server-side rule applied to every incoming snapshot
//   - Decode: schema validation of stored snapshots
//   - SQLiteStore, FileStore and MemoryStore: backends that apply Merge
//   - HTTPGateway: a client of the backend REST routes
//   - Syncer: fire-and-forget submission with bounded retry
//
// Merge Rule:
//
// Ledger fields (experience, level, coins, badges, gameStats) are taken from
// the incoming snapshot only when its level is at least the stored level, so
// a stale save from an older session cannot roll the ledger back. Progress
// fields (collectedRewards, activeQuests, completedQuests, interactedNPCs,
// questProgress, direction, animation) and the position are always taken
// from the incoming snapshot.
//
// The two halves can disagree: a stale client may post a larger completed set
// while its ledger is discarded. Readers should not assume the completed set
// and the ledger were produced by the same session.
//
// Malformed State:
//
// A stored snapshot that fails the schema, cannot be decoded, or has no
// numeric position is treated as absent. LoadSnapshot then returns nil with
// no error and the caller falls back to the map spawn point.
//
// Completions:
//
// RecordQuestCompletion is deduplicated per player and quest. The first
// record wins; a duplicate returns nil and is dropped.
package gateway
