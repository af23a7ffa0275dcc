// Package config provides configuration management for codequest.
//
// The config package handles:
//   - Loading world configurations from JSON files
//   - Loading the curriculum each world names
//   - Default world management and discovery
//   - Process settings from the environment
//
// Configuration Format:
//
// Worlds are stored as JSON files in the configs directory. Each one defines:
//   - the tile map inline (layers, tile size, spawn, NPC and reward placements)
//   - the curriculum YAML file its NPCs teach from
//   - the players allowed to edit collisions
//   - the camera viewport
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Load a specific world
//	world, err := manager.LoadConfig("meadow")
//
//	// List available worlds
//	configs, err := manager.ListConfigs()
//
// Validation:
//
// A world loads only if its map layers match its dimensions, its curriculum
// parses and every NPC gives a quest the curriculum knows.
//
// Settings:
//
// Settings are read with LoadSettings from CODEQUEST_* variables (tick rate,
// autosave interval, persistence store, backend URL and token, sandbox
// limits).
package config
