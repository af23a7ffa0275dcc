// Package ledger keeps a player's progression record: experience, level,
// coins, badges and play statistics.
//
// The ledger package implements:
//   - The level curve: reaching level L requires XPForLevel(L) = 75*(L-1)*L
//     cumulative experience
//   - Level-up side effects: milestone badges at levels 5, 10, 20 and 50 and a
//     bonus of 10*level coins per level gained
//   - Coin, quest-count and reward-count milestone badges, recomputed from the
//     current values on every relevant mutation
//   - One-time reward pickups keyed by reward id
//
// Badges are a set. Awarding a badge the player already holds changes nothing,
// so milestone checks can run as often as needed.
//
// Every mutation that matters to the surrounding loop (level up, badge, coins,
// reward pickup) is queued as an Event. The owner drains them with TakeEvents
// after each step, typically to schedule a save.
//
// A Ledger belongs to one simulation context and is not safe for concurrent
// use.
//
// Usage:
//
//	l := ledger.New()
//	l.AwardExperience(150) // level 1 -> 2, +20 bonus coins
//	for _, ev := range l.TakeEvents() {
//		fmt.Println(ev.Kind, ev.Level, ev.Badge)
//	}
package ledger
