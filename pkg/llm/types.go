package llm

import "context"

// Message roles used in session transcripts.
const (
	RoleUser  = "user"
	RoleModel = "model"
	RoleTool  = "tool"
)

// Message is a single transcript turn. Tool invocations are recorded with
// RoleTool and the tool name set, so a transcript can be replayed into a
// fresh conversation on another backend without losing context.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ToolName string `json:"tool_name,omitempty"`
}

// ToolDef declares a callable function the model may request. Parameters is
// a JSON-schema-shaped document (type/properties/required).
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a model-requested invocation of a declared tool.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult carries a tool's structured outcome back into the conversation.
type ToolResult struct {
	Name   string         `json:"name"`
	Result map[string]any `json:"result"`
}

// Turn is the model's reply to one send: text, plus any tool calls the
// model wants performed before it will produce a final answer.
type Turn struct {
	Text      string
	ToolCalls []ToolCall
}

// Conversation is a running multi-turn session against a single backend.
type Conversation interface {
	// Send submits a user message and returns the model's turn.
	Send(ctx context.Context, text string) (*Turn, error)

	// SendToolResults feeds tool outcomes back and returns the model's
	// follow-up turn.
	SendToolResults(ctx context.Context, results []ToolResult) (*Turn, error)
}

// Backend is one tier in the model ladder. NewConversation binds a fresh
// conversation to the given system instruction, tool set and prior history.
type Backend interface {
	Name() string
	NewConversation(system string, tools []ToolDef, history []Message) Conversation
}
