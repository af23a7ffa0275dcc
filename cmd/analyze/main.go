// Command analyze prints quick, human-readable heuristics about the worlds in
// the configs directory: map size and collision density per layer, the quest
// unlock order, and how much experience and coin a perfect run can earn.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/ledger"
	"github.com/wricardo/codequest/game/quest"
)

// Analysis summarizes one world.
type Analysis struct {
	Name          string
	Width, Height int
	// Placed counts the non-empty tiles per layer.
	Placed map[string]int
	// OpenTiles is the number of tiles nothing collidable sits on.
	OpenTiles int
	// Tiers groups quest ids by how many prerequisite steps precede them.
	Tiers [][]string
	// Stuck lists quests caught in a prerequisite cycle.
	Stuck    []string
	MaxXP    uint64
	MaxCoins uint64
	MaxLevel uint64
}

func main() {
	cmd := &cli.Command{
		Name:  "analyze",
		Usage: "Print heuristics about CodeQuest worlds",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing world configurations", Sources: cli.EnvVars("CONFIG_DIR")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return analyzeDir(os.Stdout, cmd.String("config-dir"))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// analyzeDir prints an analysis of every loadable world in dir.
func analyzeDir(w io.Writer, dir string) error {
	configs, err := config.NewManager(dir)
	if err != nil {
		return err
	}
	infos, err := configs.ListConfigs()
	if err != nil {
		return err
	}

	for _, info := range infos {
		fmt.Fprintf(w, "\n=== Analyzing %s ===\n", info.Filename)
		world, err := configs.LoadConfig(info.ConfigID)
		if err != nil {
			fmt.Fprintf(w, "Error loading world: %v\n", err)
			continue
		}
		printAnalysis(w, analyzeWorld(world))
	}
	return nil
}

func analyzeWorld(world *config.World) Analysis {
	grid := world.Grid
	a := Analysis{
		Name:   world.Config.Name,
		Width:  grid.Width(),
		Height: grid.Height(),
		Placed: make(map[string]int),
	}

	for _, layer := range grid.LayerNames() {
		n, _ := grid.CountNonEmpty(layer)
		a.Placed[layer] = n
	}
	for y := 0; y < grid.Height(); y++ {
		for x := 0; x < grid.Width(); x++ {
			open := true
			for _, layer := range grid.CollisionLayers() {
				if grid.DefaultBlocking(x, y, layer) {
					open = false
					break
				}
			}
			if open {
				a.OpenTiles++
			}
		}
	}

	a.Tiers, a.Stuck = unlockTiers(world.Catalog)

	rules := world.Catalog.Rules()
	for _, q := range world.Catalog.Quests() {
		a.MaxXP += q.Reward.XP
		a.MaxCoins += q.Reward.Coins
		if q.HasLesson() {
			a.MaxXP += rules.LessonXP
		}
		if q.HasQuiz() {
			n := uint64(len(q.Quiz.Questions))
			a.MaxXP += n * rules.QuizCorrectXP
			a.MaxCoins += n * rules.QuizCorrectCoins
		}
		if q.HasChallenge() {
			a.MaxXP += q.Challenge.Reward.XP
			a.MaxCoins += q.Challenge.Reward.Coins
		}
	}
	for _, r := range grid.Rewards() {
		a.MaxXP += r.XP
		a.MaxCoins += r.Coins
	}
	a.MaxLevel = ledger.LevelFor(a.MaxXP)
	return a
}

// unlockTiers layers the quests by prerequisite depth. Prerequisites that
// name no quest are ignored, as at runtime.
func unlockTiers(catalog *quest.Catalog) ([][]string, []string) {
	deps := make(map[string][]string)
	remaining := make(map[string]bool)
	for _, q := range catalog.Quests() {
		remaining[q.ID] = true
		for _, alias := range q.Prerequisites {
			if id, ok := catalog.Resolve(alias); ok {
				deps[q.ID] = append(deps[q.ID], id)
			}
		}
	}

	var tiers [][]string
	unlocked := make(map[string]bool)
	for len(remaining) > 0 {
		var tier []string
		for id := range remaining {
			ready := true
			for _, dep := range deps[id] {
				if !unlocked[dep] {
					ready = false
					break
				}
			}
			if ready {
				tier = append(tier, id)
			}
		}
		if len(tier) == 0 {
			break
		}
		sort.Strings(tier)
		for _, id := range tier {
			unlocked[id] = true
			delete(remaining, id)
		}
		tiers = append(tiers, tier)
	}

	stuck := make([]string, 0, len(remaining))
	for id := range remaining {
		stuck = append(stuck, id)
	}
	sort.Strings(stuck)
	return tiers, stuck
}

func printAnalysis(w io.Writer, a Analysis) {
	total := a.Width * a.Height
	fmt.Fprintf(w, "Name: %s\n", a.Name)
	fmt.Fprintf(w, "Map Size: %d x %d (%d tiles)\n", a.Width, a.Height, total)

	layers := make([]string, 0, len(a.Placed))
	for layer := range a.Placed {
		layers = append(layers, layer)
	}
	sort.Strings(layers)
	for _, layer := range layers {
		fmt.Fprintf(w, "  Layer %-12s %5d placed tiles\n", layer, a.Placed[layer])
	}
	if total > 0 {
		fmt.Fprintf(w, "Open Tiles: %d (%.0f%%)\n", a.OpenTiles, 100*float64(a.OpenTiles)/float64(total))
	}

	for i, tier := range a.Tiers {
		fmt.Fprintf(w, "Tier %d: %v\n", i, tier)
	}
	if len(a.Stuck) > 0 {
		fmt.Fprintf(w, "⚠️  CRITICAL: %d quests can never unlock: %v\n", len(a.Stuck), a.Stuck)
	} else {
		fmt.Fprintf(w, "✅ Every quest can be unlocked\n")
	}

	fmt.Fprintf(w, "Perfect Run: %d XP, %d coins, level %d\n", a.MaxXP, a.MaxCoins, a.MaxLevel)
}
