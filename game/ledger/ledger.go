package ledger

import (
	"sort"
	"time"
)

const (
	xpCurveFactor   = 75
	levelBonusCoins = 10
)

// EventKind names a ledger change the loop may react to.
type EventKind string

const (
	EventLevelUp EventKind = "level_up"
	EventBadge   EventKind = "badge"
	EventCoins   EventKind = "coins"
	EventReward  EventKind = "reward"
)

// Event is one queued ledger change.
type Event struct {
	Kind   EventKind `json:"kind"`
	Level  uint64    `json:"level,omitempty"`
	Badge  string    `json:"badge,omitempty"`
	Amount uint64    `json:"amount,omitempty"`
	Reward string    `json:"reward,omitempty"`
}

// Stats are the cumulative play statistics.
type Stats struct {
	MonstersDefeated uint64 `json:"monstersDefeated"`
	QuestsCompleted  uint64 `json:"questsCompleted"`
	CodeLinesWritten uint64 `json:"codeLinesWritten"`
	PlayTimeMinutes  uint64 `json:"playTimeMinutes"`
}

// State is the serialisable content of a ledger.
type State struct {
	Experience       uint64   `json:"experience"`
	Level            uint64   `json:"level"`
	Coins            uint64   `json:"coins"`
	Badges           []string `json:"badges"`
	Stats            Stats    `json:"gameStats"`
	CollectedRewards []string `json:"collectedRewards"`
}

// Ledger is a player's progression record.
type Ledger struct {
	experience uint64
	level      uint64
	coins      uint64
	badges     map[string]struct{}
	collected  map[string]struct{}
	stats      Stats
	playTime   time.Duration

	events   []Event
	awarding bool
}

// XPForLevel returns the cumulative experience needed to reach level.
func XPForLevel(level uint64) uint64 {
	if level <= 1 {
		return 0
	}
	return xpCurveFactor * (level - 1) * level
}

// LevelFor returns the level a given amount of experience reaches.
func LevelFor(experience uint64) uint64 {
	level := uint64(1)
	for experience >= XPForLevel(level+1) {
		level++
	}
	return level
}

// New creates a level 1 ledger with nothing earned.
func New() *Ledger {
	l := &Ledger{}
	l.Reset()
	return l
}

// Reset returns the ledger to its defaults and drops queued events.
func (l *Ledger) Reset() {
	l.experience = 0
	l.level = 1
	l.coins = 0
	l.badges = make(map[string]struct{})
	l.collected = make(map[string]struct{})
	l.stats = Stats{}
	l.playTime = 0
	l.events = nil
}

// Experience returns the experience total.
func (l *Ledger) Experience() uint64 { return l.experience }

// Level returns the current level.
func (l *Ledger) Level() uint64 { return l.level }

// Coins returns the coin total.
func (l *Ledger) Coins() uint64 { return l.coins }

// Stats returns the play statistics.
func (l *Ledger) Stats() Stats { return l.stats }

// AwardExperience adds experience and applies every level gained, one level
// at a time.
func (l *Ledger) AwardExperience(amount uint64) {
	if l.awarding {
		// A level-up bonus only ever awards coins; re-entry here means the
		// level-up chain could recurse without bound.
		panic("ledger: re-entrant experience award")
	}
	l.awarding = true
	defer func() { l.awarding = false }()

	l.experience += amount
	for l.experience >= XPForLevel(l.level+1) {
		l.level++
		l.events = append(l.events, Event{Kind: EventLevelUp, Level: l.level})
		l.exact(levelMilestones, l.level)
		l.AwardCoins(levelBonusCoins * l.level)
	}
}

// DeductExperience removes experience, flooring at zero. The level follows
// the curve, so it drops if the total falls below the current threshold.
func (l *Ledger) DeductExperience(amount uint64) {
	if amount > l.experience {
		l.experience = 0
	} else {
		l.experience -= amount
	}
	l.level = LevelFor(l.experience)
}

// AwardCoins adds coins and checks the coin milestones.
func (l *Ledger) AwardCoins(amount uint64) {
	if amount == 0 {
		return
	}
	l.coins += amount
	l.events = append(l.events, Event{Kind: EventCoins, Amount: amount})
	l.reached(coinMilestones, l.coins)
}

// AwardBadge adds a badge. It returns false if the player already had it.
func (l *Ledger) AwardBadge(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := l.badges[id]; ok {
		return false
	}
	l.badges[id] = struct{}{}
	l.events = append(l.events, Event{Kind: EventBadge, Badge: id})
	return true
}

// HasBadge reports whether the player holds a badge.
func (l *Ledger) HasBadge(id string) bool {
	_, ok := l.badges[id]
	return ok
}

// Badges returns the held badges in sorted order.
func (l *Ledger) Badges() []string {
	return sortedKeys(l.badges)
}

// CollectReward picks up a world reward once. Later calls for the same id
// return false and award nothing.
func (l *Ledger) CollectReward(id string, coins, xp uint64) bool {
	if _, ok := l.collected[id]; ok {
		return false
	}
	l.collected[id] = struct{}{}
	l.events = append(l.events, Event{Kind: EventReward, Reward: id})
	l.AwardCoins(coins)
	if xp > 0 {
		l.AwardExperience(xp)
	}
	l.reached(rewardMilestones, uint64(len(l.collected)))
	return true
}

// Collected reports whether a reward was already picked up.
func (l *Ledger) Collected(id string) bool {
	_, ok := l.collected[id]
	return ok
}

// RecordQuestsCompleted updates the completed-quest count and its milestones.
func (l *Ledger) RecordQuestsCompleted(count int) {
	if count < 0 {
		count = 0
	}
	l.stats.QuestsCompleted = uint64(count)
	l.reached(questMilestones, l.stats.QuestsCompleted)
}

// AddCodeLines counts lines of code the player submitted.
func (l *Ledger) AddCodeLines(n int) {
	if n > 0 {
		l.stats.CodeLinesWritten += uint64(n)
	}
}

// AddPlayTime accumulates play time. Partial minutes carry over.
func (l *Ledger) AddPlayTime(d time.Duration) {
	if d <= 0 {
		return
	}
	l.playTime += d
	whole := l.playTime / time.Minute
	l.stats.PlayTimeMinutes += uint64(whole)
	l.playTime -= whole * time.Minute
}

// XPProgress returns the fraction of the way from the current level to the
// next, clamped to [0,1].
func (l *Ledger) XPProgress() float64 {
	lo, hi := XPForLevel(l.level), XPForLevel(l.level+1)
	if hi <= lo || l.experience <= lo {
		return 0
	}
	p := float64(l.experience-lo) / float64(hi-lo)
	if p > 1 {
		return 1
	}
	return p
}

// TakeEvents returns and clears the queued events.
func (l *Ledger) TakeEvents() []Event {
	events := l.events
	l.events = nil
	return events
}

// State returns a copy of the ledger for persistence.
func (l *Ledger) State() State {
	return State{
		Experience:       l.experience,
		Level:            l.level,
		Coins:            l.coins,
		Badges:           l.Badges(),
		Stats:            l.stats,
		CollectedRewards: sortedKeys(l.collected),
	}
}

// Restore replaces the ledger with a persisted state. The stored level is
// authoritative; a missing level is derived from experience.
func (l *Ledger) Restore(s State) {
	l.Reset()
	l.experience = s.Experience
	l.level = s.Level
	if l.level == 0 {
		l.level = LevelFor(s.Experience)
	}
	l.coins = s.Coins
	for _, b := range s.Badges {
		if b != "" {
			l.badges[b] = struct{}{}
		}
	}
	for _, r := range s.CollectedRewards {
		if r != "" {
			l.collected[r] = struct{}{}
		}
	}
	l.stats = s.Stats
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
