package config

import (
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/tilemap"
)

// WorldConfig is the JSON form of a world: its map, the curriculum it
// teaches and who may edit its collisions.
type WorldConfig struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Curriculum  string             `json:"curriculum"` // relative to the config directory
	Admins      []string           `json:"admins,omitempty"`
	View        ViewConfig         `json:"view"`
	Map         tilemap.Definition `json:"map"`
}

// ViewConfig sizes the camera viewport in pixels.
type ViewConfig struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Zoom   float64 `json:"zoom"`
}

// World is a loaded, validated world ready to host sessions.
type World struct {
	ID      string
	Config  *WorldConfig
	Grid    *tilemap.Grid
	Catalog *quest.Catalog
}

// IsAdmin reports whether player is listed as an admin of the world.
func (w *World) IsAdmin(player string) bool {
	for _, a := range w.Config.Admins {
		if a == player {
			return true
		}
	}
	return false
}

// ConfigInfo provides information about a world configuration
type ConfigInfo struct {
	Filename    string `json:"filename"`
	ConfigID    string `json:"config_id"` // The identifier to use for session creation
	Name        string `json:"name"`
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Quests      int    `json:"quests"`
	NPCs        int    `json:"npcs"`
}
