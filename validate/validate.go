// Command validate checks the world configurations in a config directory.
// For every *.json world it checks:
//   - JSON structure, map dimensions and layer sizes
//   - that the curriculum loads and every NPC gives a known quest
//   - that the spawn tile is open
//   - connectivity: every NPC and reward can be reached from the spawn
//   - quest prerequisites: unknown names are reported as warnings and
//     cycles as errors
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/tilemap"
)

// ValidationResult captures the outcome of validating a single world.
// Infos are only filled in for valid worlds.
type ValidationResult struct {
	File     string
	Valid    bool
	Errors   []string
	Warnings []string
	Infos    []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// validateWorld loads and validates a single world file. The curriculum is
// resolved relative to the file's directory.
func validateWorld(filePath string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(filePath),
		Valid: true,
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	var cfg config.WorldConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		result.fail("Invalid JSON: %v", err)
		return result
	}
	if cfg.Name == "" {
		result.fail("name is required")
	}
	if cfg.View.Width <= 0 || cfg.View.Height <= 0 {
		result.warn("view size is not set; the default viewport is used")
	}

	grid, err := tilemap.New(cfg.Map)
	if err != nil {
		result.fail("Invalid map: %v", err)
		return result
	}

	var catalog *quest.Catalog
	if cfg.Curriculum == "" {
		result.fail("curriculum is required")
	} else {
		path := cfg.Curriculum
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(filePath), path)
		}
		if catalog, err = quest.LoadCatalog(path); err != nil {
			result.fail("Invalid curriculum: %v", err)
		}
	}

	if catalog != nil {
		validateQuests(&result, grid, catalog)
	}
	validateConnectivity(&result, grid)

	if result.Valid {
		result.Infos = append(result.Infos,
			fmt.Sprintf("✓ Name: %s", cfg.Name),
			fmt.Sprintf("✓ Map: %dx%d tiles, layers %s", grid.Width(), grid.Height(), strings.Join(grid.LayerNames(), ", ")),
			fmt.Sprintf("✓ NPCs: %d, rewards: %d", len(grid.NPCs()), len(grid.Rewards())),
			fmt.Sprintf("✓ Quests: %d", catalog.Len()),
		)
	}
	return result
}

// validateQuests checks the curriculum against the NPCs that hand it out.
func validateQuests(result *ValidationResult, grid *tilemap.Grid, catalog *quest.Catalog) {
	given := make(map[string]bool)
	for _, npc := range grid.NPCs() {
		if npc.QuestID == "" {
			continue
		}
		q, ok := catalog.Lookup(npc.QuestID)
		if !ok {
			result.fail("NPC %s gives unknown quest %q", npc.ID, npc.QuestID)
			continue
		}
		given[q.ID] = true
	}

	for _, q := range catalog.Quests() {
		if !given[q.ID] {
			result.warn("Quest %s is not given by any NPC", q.ID)
		}
		if q.HasChallenge() && q.Challenge.Validation.IsEmpty() {
			result.warn("Quest %s has a challenge without validation; any output passes", q.ID)
		}
		if !q.HasLesson() && !q.HasQuiz() && !q.HasChallenge() {
			result.warn("Quest %s has no content and completes on start", q.ID)
		}
	}

	unknown := catalog.UnknownPrerequisites()
	ids := make([]string, 0, len(unknown))
	for id := range unknown {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		result.warn("Quest %s has unknown prerequisites %q; they are treated as met", id, unknown[id])
	}

	if cycle := prerequisiteCycle(catalog); cycle != nil {
		result.fail("Prerequisite cycle: %s", strings.Join(cycle, " -> "))
	}
}

// prerequisiteCycle returns one cycle in the prerequisite graph, or nil.
func prerequisiteCycle(catalog *quest.Catalog) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)
		q, _ := catalog.Get(id)
		for _, alias := range q.Prerequisites {
			dep, ok := catalog.Resolve(alias)
			if !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				for i, s := range stack {
					if s == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, q := range catalog.Quests() {
		if state[q.ID] == unvisited {
			if cycle := visit(q.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

type cell struct{ x, y int }

// blocked reports whether a tile blocks movement on any collidable layer.
func blocked(grid *tilemap.Grid, x, y int) bool {
	if !grid.InBounds(x, y) {
		return true
	}
	for _, layer := range grid.CollisionLayers() {
		if grid.DefaultBlocking(x, y, layer) {
			return true
		}
	}
	return false
}

// validateConnectivity flood-fills open tiles from the spawn using
// 4-directional movement and reports NPCs and rewards that cannot be reached.
// An NPC standing on a blocked tile counts as reachable when a neighbour is.
func validateConnectivity(result *ValidationResult, grid *tilemap.Grid) {
	spawn := grid.Spawn()
	sx, sy := grid.TileOf(spawn.X, spawn.Y)
	if blocked(grid, sx, sy) {
		result.fail("Spawn tile (%d,%d) is blocked", sx, sy)
		return
	}

	visited := map[cell]bool{{sx, sy}: true}
	queue := []cell{{sx, sy}}
	directions := []cell{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, d := range directions {
			next := cell{current.x + d.x, current.y + d.y}
			if !visited[next] && !blocked(grid, next.x, next.y) {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	reachable := func(px, py float64, adjacent bool) bool {
		x, y := grid.TileOf(px, py)
		if visited[cell{x, y}] {
			return true
		}
		if adjacent {
			for _, d := range directions {
				if visited[cell{x + d.x, y + d.y}] {
					return true
				}
			}
		}
		return false
	}

	for _, npc := range grid.NPCs() {
		if !reachable(npc.X, npc.Y, true) {
			result.fail("Unreachable: NPC %s at (%.0f,%.0f)", npc.ID, npc.X, npc.Y)
		}
	}
	for _, r := range grid.Rewards() {
		if !reachable(r.X, r.Y, false) {
			result.fail("Unreachable: reward %s at (%.0f,%.0f)", r.ID, r.X, r.Y)
		}
	}
}

// report prints one result and reports whether it was valid.
func report(result ValidationResult) bool {
	fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)
	if result.Valid {
		fmt.Println("✅ VALID")
		for _, info := range result.Infos {
			fmt.Println("  " + info)
		}
	} else {
		fmt.Println("❌ INVALID")
		for _, err := range result.Errors {
			fmt.Println("  ❌ " + err)
		}
	}
	for _, w := range result.Warnings {
		fmt.Println("  ⚠ " + w)
	}
	return result.Valid
}

// main validates every world in the config directory, exiting with non-zero
// status if any are invalid.
func main() {
	cmd := &cli.Command{
		Name:  "validate",
		Usage: "Validate CodeQuest world configurations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing world configurations", Sources: cli.EnvVars("CONFIG_DIR")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, err := filepath.Glob(filepath.Join(cmd.String("config-dir"), "*.json"))
			if err != nil {
				return fmt.Errorf("finding config files: %w", err)
			}
			if len(files) == 0 {
				return fmt.Errorf("no worlds found in %s", cmd.String("config-dir"))
			}

			allValid := true
			for _, file := range files {
				if !report(validateWorld(file)) {
					allValid = false
				}
			}

			fmt.Printf("\n%s\n", strings.Repeat("=", 40))
			if !allValid {
				return cli.Exit("❌ Some configurations have errors", 1)
			}
			fmt.Println("✅ All configurations are valid!")
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
