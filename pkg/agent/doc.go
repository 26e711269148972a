// Package agent is the conversational orchestration core: per-user
// sessions, the model-backend fallback ladder, the tool-calling loop, and
// the process-wide session registry.
//
// Invariants:
// - Exactly one live Session exists per user id; the Registry is the sole
//   owner and serializes first-use creation.
// - A session's transcript is append-only and process-lifetime only; it is
//   never persisted.
// - The active backend tier only moves toward weaker backends, and only on
//   a quota/overload classification. Exhausting the ladder yields the
//   fixed overload message, never an error to the transport layer.
//
// Usage:
//
//	registry, _ := agent.NewRegistry(1024, factory, logger, m)
//	session, _ := registry.GetOrCreate("user-1")
//	reply, err := session.Reply(ctx, "hello", nil)
package agent
