package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient wraps the Gemini API client. One client is shared by every
// backend tier; tiers differ only in model name.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a Gemini client authenticated with an API key.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client}, nil
}

// Close releases the underlying API client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Backend returns a conversation backend bound to a model name.
func (c *GeminiClient) Backend(model string) Backend {
	return &geminiBackend{client: c.client, model: model}
}

// GenerateText performs a single non-conversational text generation.
func (c *GeminiClient) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// GenerateVision performs a single image+prompt generation. The format is
// the image subtype ("jpeg", "png"), matching genai.ImageData.
func (c *GeminiClient) GenerateVision(ctx context.Context, model, format string, image []byte, prompt string) (string, error) {
	resp, err := c.client.GenerativeModel(model).GenerateContent(ctx,
		genai.ImageData(format, image),
		genai.Text(prompt),
	)
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// geminiBackend is one ladder tier.
type geminiBackend struct {
	client *genai.Client
	model  string
}

func (b *geminiBackend) Name() string {
	return b.model
}

// NewConversation starts a chat session carrying the system instruction,
// the declared tool set, and the prior transcript.
func (b *geminiBackend) NewConversation(system string, tools []ToolDef, history []Message) Conversation {
	model := b.client.GenerativeModel(b.model)

	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, tool := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGenaiSchema(tool.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	chat := model.StartChat()
	chat.History = toGenaiHistory(history)

	return &geminiConversation{chat: chat}
}

// geminiConversation adapts genai's ChatSession to the Conversation contract.
type geminiConversation struct {
	chat *genai.ChatSession
}

func (c *geminiConversation) Send(ctx context.Context, text string) (*Turn, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	return parseTurn(resp), nil
}

func (c *geminiConversation) SendToolResults(ctx context.Context, results []ToolResult) (*Turn, error) {
	parts := make([]genai.Part, 0, len(results))
	for _, result := range results {
		parts = append(parts, genai.FunctionResponse{
			Name:     result.Name,
			Response: result.Result,
		})
	}

	resp, err := c.chat.SendMessage(ctx, parts...)
	if err != nil {
		return nil, err
	}
	return parseTurn(resp), nil
}

// parseTurn extracts text and requested tool calls from a model response.
func parseTurn(resp *genai.GenerateContentResponse) *Turn {
	turn := &Turn{}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				turn.Text += string(p)
			case genai.FunctionCall:
				turn.ToolCalls = append(turn.ToolCalls, ToolCall{
					Name: p.Name,
					Args: p.Args,
				})
			}
		}
	}

	return turn
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}

// toGenaiHistory converts a transcript into Gemini chat history. Tool
// records are folded into user-role text, and consecutive same-role turns
// are merged since Gemini requires alternating user/model turns starting
// with user.
func toGenaiHistory(history []Message) []*genai.Content {
	var contents []*genai.Content
	var lastRole string

	for _, msg := range history {
		role := "user"
		text := msg.Content

		switch msg.Role {
		case RoleModel:
			role = "model"
		case RoleTool:
			text = fmt.Sprintf("[Tool result: %s]\n%s", msg.ToolName, msg.Content)
		}

		if text == "" {
			continue
		}

		if len(contents) == 0 && role != "user" {
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text("Continue.")},
			})
			lastRole = "user"
		}

		if role == lastRole && len(contents) > 0 {
			last := contents[len(contents)-1]
			last.Parts = append(last.Parts, genai.Text(text))
			continue
		}

		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(text)},
		})
		lastRole = role
	}

	return contents
}

// toGenaiSchema converts a JSON-schema-shaped map into a genai.Schema.
// Only the subset used by tool declarations is supported.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	out := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		out.Type = genaiType(t)
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				out.Properties[name] = toGenaiSchema(sub)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = toGenaiSchema(items)
	}
	if required, ok := schema["required"].([]string); ok {
		out.Required = required
	} else if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	if enum, ok := schema["enum"].([]string); ok {
		out.Enum = enum
	}

	return out
}

func genaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
