package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/biotwin/biotwin/internal/metrics"
	"github.com/biotwin/biotwin/pkg/calendar"
	"github.com/biotwin/biotwin/pkg/llm"
	"github.com/biotwin/biotwin/pkg/tools"
	"github.com/rs/zerolog"
)

const defaultMaxToolTurns = 10

// Calendar is the capability contract the session's tools depend on.
// Satisfied by calendar.Service.
type Calendar interface {
	IsAuthorized(ctx context.Context) bool
	CreateEvent(ctx context.Context, summary, description, startTime string, durationMinutes int, timezone string) *calendar.Result
	BlockTime(ctx context.Context, reason string, durationMinutes int, timezone string) *calendar.Result
}

// Session is the per-user conversational state: the ladder cursor, the
// live transcript, the owned calendar capability, and the user's timezone.
type Session struct {
	mu sync.Mutex

	userID   string
	timezone string
	calendar Calendar
	tools    *tools.Registry

	ladder     []llm.Backend
	tier       int
	conv       llm.Conversation
	transcript []llm.Message

	maxToolTurns int
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// SessionConfig wires a new session.
type SessionConfig struct {
	UserID       string
	Ladder       []llm.Backend
	Calendar     Calendar
	MaxToolTurns int
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// NewSession creates a session starting on the primary backend tier with
// an empty transcript and UTC as the timezone until context says otherwise.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if len(cfg.Ladder) == 0 {
		return nil, fmt.Errorf("at least one backend tier is required")
	}
	if cfg.Calendar == nil {
		return nil, fmt.Errorf("calendar capability is required")
	}
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = defaultMaxToolTurns
	}

	s := &Session{
		userID:       cfg.UserID,
		timezone:     "UTC",
		calendar:     cfg.Calendar,
		ladder:       cfg.Ladder,
		maxToolTurns: cfg.MaxToolTurns,
		logger:       cfg.Logger.With().Str("user_id", cfg.UserID).Logger(),
		metrics:      cfg.Metrics,
	}

	registry, err := s.buildToolset()
	if err != nil {
		return nil, err
	}
	s.tools = registry

	return s, nil
}

// UserID returns the registry key this session is stored under.
func (s *Session) UserID() string {
	return s.userID
}

// Timezone returns the session's current IANA timezone.
func (s *Session) Timezone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timezone
}

// ActiveTier returns the index of the current backend tier.
func (s *Session) ActiveTier() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Run performs the proactive path: analyze the supplied health context and
// act through tools where an actionable condition appears.
func (s *Session) Run(ctx context.Context, healthContext map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info().Msg("Running proactive health analysis")
	return s.send(ctx, buildRunPrompt(healthContext))
}

// Reply performs the reactive chat path. A timezone in the context becomes
// the session's timezone for the rest of its lifetime, and a
// currentDateTime is interpolated so relative dates resolve against the
// caller's wall-clock.
func (s *Session) Reply(ctx context.Context, message string, context map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tz, ok := context["timezone"].(string); ok && tz != "" {
		s.timezone = tz
	}

	return s.send(ctx, buildReplyMessage(message, context, s.timezone))
}

// send runs one exchange against the active tier, degrading down the
// ladder on quota/overload classification. Each tier gets exactly one
// retry of the failed message; the terminal tier's quota failure becomes
// the fixed overload message. Non-quota errors propagate without
// advancing the tier.
func (s *Session) send(ctx context.Context, text string) (string, error) {
	for {
		backend := s.ladder[s.tier]

		reply, err := s.exchange(ctx, text)
		if err == nil {
			s.metrics.RecordReply(backend.Name(), "ok")
			return reply, nil
		}

		if !llm.IsQuotaExceeded(err) {
			s.metrics.RecordReply(backend.Name(), "error")
			return "", err
		}

		if s.tier+1 >= len(s.ladder) {
			s.logger.Warn().Err(err).Str("tier", backend.Name()).Msg("Ladder exhausted, serving overload message")
			s.metrics.RecordReply(backend.Name(), "quota")
			s.metrics.RecordOverload()
			return OverloadMessage, nil
		}

		next := s.ladder[s.tier+1]
		s.logger.Warn().
			Err(err).
			Str("from", backend.Name()).
			Str("to", next.Name()).
			Msg("Quota exhausted, degrading to next tier")
		s.metrics.RecordReply(backend.Name(), "quota")
		s.metrics.RecordTierFallback(backend.Name(), next.Name())

		s.tier++
		s.conv = nil // next tier rebuilds the conversation from the transcript
	}
}

// exchange performs send -> dispatch tool calls -> resend until the model
// produces a final text, bounded by the tool-turn cap. Transcript records
// are buffered and committed only on success, so a mid-exchange failure
// leaves the transcript exactly as it was and a fallback tier replays a
// clean history.
func (s *Session) exchange(ctx context.Context, text string) (string, error) {
	conv := s.conversation()

	records := []llm.Message{{Role: llm.RoleUser, Content: text}}

	turn, err := conv.Send(ctx, text)
	if err != nil {
		return "", err
	}

	for toolTurn := 0; ; toolTurn++ {
		if len(turn.ToolCalls) == 0 {
			records = append(records, llm.Message{Role: llm.RoleModel, Content: turn.Text})
			s.transcript = append(s.transcript, records...)
			return turn.Text, nil
		}

		if toolTurn >= s.maxToolTurns {
			return "", fmt.Errorf("tool turn limit exceeded after %d rounds", s.maxToolTurns)
		}

		if turn.Text != "" {
			records = append(records, llm.Message{Role: llm.RoleModel, Content: turn.Text})
		}

		results := make([]llm.ToolResult, 0, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			s.logger.Info().Str("tool", call.Name).Msg("Dispatching tool call")

			payload := s.tools.Dispatch(ctx, call.Name, call.Args)
			s.metrics.RecordTool(call.Name, payloadStatus(payload))

			results = append(results, llm.ToolResult{Name: call.Name, Result: payload})
			records = append(records, llm.Message{
				Role:     llm.RoleTool,
				ToolName: call.Name,
				Content:  encodePayload(payload),
			})
		}

		turn, err = conv.SendToolResults(ctx, results)
		if err != nil {
			return "", err
		}
	}
}

// conversation returns the live conversation for the active tier,
// constructing one bound to the preserved transcript when the tier just
// changed or the session is fresh.
func (s *Session) conversation() llm.Conversation {
	if s.conv == nil {
		s.conv = s.ladder[s.tier].NewConversation(systemInstruction, s.tools.Definitions(), s.transcript)
	}
	return s.conv
}

func payloadStatus(payload map[string]any) string {
	if status, ok := payload["status"].(string); ok {
		return status
	}
	return "ok"
}

func encodePayload(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}
