// Package api provides the HTTP REST API for CodeQuest.
//
// Endpoints:
//
// Sessions:
//   - POST /api/sessions - Create a session {config_id, player_id, session_id}
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N&world=ID)
//   - GET /api/sessions/{id} - Get a session with its state
//   - DELETE /api/sessions/{id} - Save and close a session
//
// Simulation:
//   - GET /api/sessions/{id}/state - Current view
//   - POST /api/sessions/{id}/step - Run ticks {input:{dx,dy,interact,attack}, duration_ms}
//   - POST /api/sessions/{id}/input - Latch input for the server-driven loop
//   - POST /api/sessions/{id}/interact - Talk to {npc_id}, or to whoever is in reach
//
// Quests:
//   - POST /api/sessions/{id}/quests/{quest}/start
//   - POST /api/sessions/{id}/lesson/advance
//   - POST /api/sessions/{id}/quiz/answer {choice}
//   - POST /api/sessions/{id}/challenge/run {code}
//   - POST /api/sessions/{id}/challenge/submit {code}
//   - GET /api/sessions/{id}/challenge/hint
//   - DELETE /api/sessions/{id}/activity - Run from the open quest
//
// World and saves:
//   - POST /api/sessions/{id}/overrides - Toggle a tile's collision {x, y, layer} (admins)
//   - GET /api/worlds/{world}/overrides
//   - POST /api/sessions/{id}/save
//   - DELETE /api/sessions/{id}/save - Delete the save and start over
//   - GET /api/configs, GET /api/configs/{name}
//
// Backend (WithBackend, bearer token):
//   - GET /backend/players
//   - GET|PUT|DELETE /backend/players/{player}/snapshot - PUT merges with the stored save
//   - GET|POST /backend/players/{player}/completions
//   - GET|PUT /backend/worlds/{world}/overrides
//
// Other:
//   - GET /ws?session={id} - WebSocket state push
//   - GET /healthz
//
// Usage:
//
//	server := api.NewServer(gameService, hub,
//		api.WithBackend(store, settings.BackendToken),
//		api.WithStatic("static"))
//	http.ListenAndServe(":8080", server)
//
// Error Handling:
//
// Errors are returned as JSON with an HTTP status code:
//
//	{"error": "quest is locked", "code": 409}
//
// Unknown sessions, worlds, quests and NPCs are 404. Collision edits by
// non-admins are 403. Quest actions that do not fit the open activity are
// 409. A session the persistence backend rejected answers 401 with a
// "redirect" field naming the sign-in path.
package api
