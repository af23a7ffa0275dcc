// Package service provides the business logic layer for CodeQuest.
//
// The service package implements:
//   - Session creation with save restore
//   - World configuration lookup
//   - Fixed-step simulation driven by explicit Step calls
//   - Quest actions for lessons, quizzes and code challenges
//   - Collision override editing for admins
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager manages world loading and validation.
//
// Architecture:
//
// The service layer sits between the transports (HTTP, WebSocket, MCP) and
// the simulation. It resolves worlds, finds sessions and runs every action
// on the session's simulation under the session lock. Gateway
// authorization failures surface as ErrReauthenticate, which the transports
// turn into a sign-in prompt.
//
// Usage:
//
//	configs, _ := config.NewManager("configs")
//	sessions := session.NewManager(store, sandbox.NewRunner(limits), session.Options{})
//	svc := service.NewGameService(sessions, configs)
//
//	info, err := svc.CreateSession(ctx, service.CreateSessionRequest{PlayerID: "ada"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Walk right for half a second
//	res, err := svc.Step(ctx, info.ID, service.StepRequest{
//		Input:      sim.Input{DX: 1},
//		DurationMs: 500,
//	})
//
// A player has at most one session per world. Creating a session for a
// player who already plays that world returns the running session.
package service
