package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/tilemap"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DefaultWorld is loaded as the default when present.
const DefaultWorld = "meadow"

// Manager handles world configuration loading and caching
type Manager struct {
	configDir    string
	defaultWorld *World
	worlds       map[string]*World
	mu           sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		worlds:    make(map[string]*World),
	}

	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	return m, nil
}

// Dir returns the configuration directory.
func (m *Manager) Dir() string { return m.configDir }

// LoadConfig loads a world by name, building its grid and catalog
func (m *Manager) LoadConfig(name string) (*World, error) {
	name = strings.TrimSuffix(name, ".json")
	if !validName(name) {
		return nil, ErrConfigNotFound
	}

	m.mu.RLock()
	if world, exists := m.worlds[name]; exists {
		m.mu.RUnlock()
		return world, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if world, exists := m.worlds[name]; exists {
		return world, nil
	}

	data, err := os.ReadFile(filepath.Join(m.configDir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg WorldConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, name, err)
	}

	world, err := m.build(name, &cfg)
	if err != nil {
		return nil, err
	}

	m.worlds[name] = world
	log.WithFields(log.Fields{"world": name, "quests": world.Catalog.Len()}).Debug("World loaded")
	return world, nil
}

// build validates a configuration and loads what it references.
func (m *Manager) build(name string, cfg *WorldConfig) (*World, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: %s has no name", ErrInvalidConfig, name)
	}
	if cfg.Curriculum == "" {
		return nil, fmt.Errorf("%w: %s names no curriculum", ErrInvalidConfig, name)
	}

	grid, err := tilemap.New(cfg.Map)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
	}
	catalog, err := quest.LoadCatalog(m.CurriculumPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
	}
	for _, npc := range grid.NPCs() {
		if npc.QuestID == "" {
			continue
		}
		if _, ok := catalog.Lookup(npc.QuestID); !ok {
			return nil, fmt.Errorf("%w: %s: npc %s gives unknown quest %q", ErrInvalidConfig, name, npc.ID, npc.QuestID)
		}
	}

	return &World{ID: name, Config: cfg, Grid: grid, Catalog: catalog}, nil
}

// CurriculumPath resolves a world's curriculum file.
func (m *Manager) CurriculumPath(cfg *WorldConfig) string {
	if filepath.IsAbs(cfg.Curriculum) {
		return cfg.Curriculum
	}
	return filepath.Join(m.configDir, cfg.Curriculum)
}

// ListConfigs returns information about all loadable worlds, sorted by id
func (m *Manager) ListConfigs() ([]*ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*ConfigInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".json")
		world, err := m.LoadConfig(name)
		if err != nil {
			log.WithError(err).WithField("world", name).Warn("Skipping invalid world")
			continue
		}

		configs = append(configs, &ConfigInfo{
			Filename:    entry.Name(),
			ConfigID:    name,
			Name:        world.Config.Name,
			Description: world.Config.Description,
			Width:       world.Grid.Width(),
			Height:      world.Grid.Height(),
			Quests:      world.Catalog.Len(),
			NPCs:        len(world.Grid.NPCs()),
		})
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ConfigID < configs[j].ConfigID })
	return configs, nil
}

// GetDefault returns the default world, or nil when the directory holds none
func (m *Manager) GetDefault() *World {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultWorld
}

// SetDefault sets the default world by name
func (m *Manager) SetDefault(name string) error {
	world, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultWorld = world
	return nil
}

// RefreshCache drops every cached world and reloads the default
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.worlds = make(map[string]*World)
	m.mu.Unlock()

	return m.loadDefaultConfig()
}

func (m *Manager) loadDefaultConfig() error {
	world, err := m.LoadConfig(DefaultWorld)
	if err != nil {
		configs, listErr := m.ListConfigs()
		if listErr != nil {
			return listErr
		}
		if len(configs) == 0 {
			log.WithField("dir", m.configDir).Warn("No loadable worlds found")
			world = nil
		} else if world, err = m.LoadConfig(configs[0].ConfigID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.defaultWorld = world
	m.mu.Unlock()
	return nil
}

// SaveConfig validates a world and writes it to disk
func (m *Manager) SaveConfig(name string, cfg *WorldConfig) error {
	name = strings.TrimSuffix(name, ".json")
	if !validName(name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidConfig, name)
	}

	world, err := m.build(name, cfg)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.configDir, name+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.worlds[name] = world
	m.mu.Unlock()
	return nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
