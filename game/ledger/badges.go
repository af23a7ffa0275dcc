package ledger

type milestone struct {
	at    uint64
	badge string
}

// Quest-count milestones.
var questMilestones = []milestone{
	{1, "first_quest"},
	{5, "quest_apprentice"},
	{10, "quest_adept"},
	{25, "quest_master"},
}

// Reward-pickup milestones.
var rewardMilestones = []milestone{
	{1, "treasure_finder"},
	{10, "treasure_hunter"},
	{25, "treasure_master"},
}

// Coin-total milestones.
var coinMilestones = []milestone{
	{100, "coin_collector"},
	{500, "coin_hoarder"},
	{1000, "coin_baron"},
	{5000, "coin_tycoon"},
}

// Level milestones. These match exactly on the level reached.
var levelMilestones = []milestone{
	{5, "level_5"},
	{10, "level_10"},
	{20, "level_20"},
	{50, "level_50"},
}

// reached awards every milestone whose threshold is at or below value.
func (l *Ledger) reached(milestones []milestone, value uint64) {
	for _, m := range milestones {
		if value >= m.at {
			l.AwardBadge(m.badge)
		}
	}
}

// exact awards the milestone whose threshold equals value, if any.
func (l *Ledger) exact(milestones []milestone, value uint64) {
	for _, m := range milestones {
		if value == m.at {
			l.AwardBadge(m.badge)
		}
	}
}
