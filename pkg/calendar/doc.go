// Package calendar exposes the per-user calendar capability the agent
// depends on: authorization check, event creation, and rest-time blocking.
//
// Invariants:
// - IsAuthorized never returns an error; a failed refresh is simply "not
//   authorized".
// - A successful token refresh is persisted back to the credential store
//   before IsAuthorized returns true.
// - CreateEvent and BlockTime always return a structured Result; provider
//   failures are reported in the result, never raised.
package calendar
