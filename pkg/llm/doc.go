// Package llm abstracts the conversational model capability behind a small
// backend/conversation contract.
//
// Invariants:
// - A Conversation holds one multi-turn exchange bound to a system
//   instruction, a tool set, and a prior transcript.
// - Upstream failures are classified exactly once, via IsQuotaExceeded, so
//   callers decide fallback from the classification rather than from error
//   text of their own.
//
// Usage:
//
//	client, _ := llm.NewGeminiClient(ctx, apiKey)
//	backend := client.Backend("gemini-2.5-flash")
//	conv := backend.NewConversation(system, tools, history)
//	turn, err := conv.Send(ctx, "hello")
package llm
