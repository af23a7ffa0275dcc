// Package session provides session management for codequest.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - One simulation context per session, restored from the player's save
//   - Collision overrides shared by every session of a world
//   - A background loop that advances sessions on wall time
//
// Core Types:
//
// Manager is the session registry. Session wraps one sim.Context behind a
// mutex; callers reach the simulation through Session.Do.
//
// Session Identifiers:
//
// Sessions use 8-character hexadecimal IDs unless the caller picks one.
// Lookups are case-insensitive.
//
// Shared World State:
//
// The first session of a world loads that world's collision overrides from
// the gateway into an overrides.Store. Later sessions of the same world reuse
// the store, so an admin's toggle is seen by every player at once.
//
// Usage:
//
//	manager := session.NewManager(store, sandbox.NewRunner(limits), session.Options{})
//
//	// Create a new session
//	sess, err := manager.Create(ctx, "", "ada", world)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Act on the simulation
//	err = sess.Do(func(c *sim.Context) error {
//		_, err := c.Advance(time.Second, sim.Input{DX: 1})
//		return err
//	})
//
// Cleanup:
//
// Deleting a session closes its simulation, which saves one last time.
// CleanupExpiredSessions does the same for idle sessions.
package session
