// Package mcp exposes CodeQuest to AI agents over the Model Context Protocol.
//
// The Client is a thin proxy: every tool calls the REST API of a running
// server, so an agent sees exactly what a browser client sees and the game
// state lives in one place.
//
// MCP Tools:
//   - create_session, list_sessions, game_state
//   - step: hold movement keys for a duration and report where the player
//     ended and what blocked it
//   - interact: talk to an NPC
//   - start_quest, advance_lesson, answer_quiz, run_code, submit_code, hint,
//     run_from_quest
//   - toggle_override, list_overrides (admins)
//   - save_game, delete_save, list_configs, game_instructions
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: the /mcp endpoint of the game server feeds request bodies to
//     GetMCPServer().HandleMessage
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal(err)
//	}
package mcp
