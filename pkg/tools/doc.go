// Package tools holds the registry of agent-callable actions.
//
// Invariants:
// - Arguments are validated against the declared JSON schema before the
//   handler runs.
// - Dispatch never returns an error to the conversation loop: handler
//   failures, validation failures and unknown tools all become structured
//   result payloads the model can verbalize.
package tools
