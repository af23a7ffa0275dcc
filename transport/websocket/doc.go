// Package websocket pushes live simulation state to browsers and carries
// their keyboard input back.
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each client has a read pump and a write pump; only
// the hub's Run goroutine touches the client sets, so broadcasts from any
// goroutine go through a buffered channel.
//
// Message Protocol:
//
// Outgoing messages are JSON Message values:
//   - state_update: the session's sim.View after a tick or an action
//   - overrides_changed: a tile's collision changed for the whole world
//
// Incoming messages hold the keys the player is pressing:
//
//	{"type": "input", "input": {"dx": 1, "dy": 0, "interact": false, "attack": false}}
//
// They are passed to the hub's InputHandler, which latches them on the
// session for the server-driven loop.
//
// Usage:
//
//	hub := websocket.NewHub(func(sessionID string, in sim.Input) {
//		_ = svc.SetInput(ctx, sessionID, in)
//	})
//	go hub.Run(ctx)
//
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, sessionID, worldID)
//	})
package websocket
