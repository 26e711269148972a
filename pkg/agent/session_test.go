package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotwin/biotwin/pkg/calendar"
	"github.com/biotwin/biotwin/pkg/llm"
)

// fakeCalendar satisfies the Calendar interface without touching Google.
type fakeCalendar struct {
	authorized bool
	created    []string
	blocked    []string
	timezones  []string
	result     *calendar.Result
}

func (f *fakeCalendar) IsAuthorized(context.Context) bool { return f.authorized }

func (f *fakeCalendar) CreateEvent(_ context.Context, summary, _, startTime string, _ int, timezone string) *calendar.Result {
	f.created = append(f.created, summary+"@"+startTime)
	f.timezones = append(f.timezones, timezone)
	return f.calendarResult()
}

func (f *fakeCalendar) BlockTime(_ context.Context, reason string, _ int, timezone string) *calendar.Result {
	f.blocked = append(f.blocked, reason)
	f.timezones = append(f.timezones, timezone)
	return f.calendarResult()
}

func (f *fakeCalendar) calendarResult() *calendar.Result {
	if f.result != nil {
		return f.result
	}
	return &calendar.Result{Status: "success", EventID: "evt-1", Link: "https://calendar.google.com/evt-1"}
}

// scriptedBackend replays canned turns, failing with err while failures
// remain. Each NewConversation call records the history it was given.
type scriptedBackend struct {
	mu        sync.Mutex
	name      string
	err       error
	failures  int
	turns     []*llm.Turn
	histories [][]llm.Message
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) NewConversation(_ string, _ []llm.ToolDef, history []llm.Message) llm.Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := make([]llm.Message, len(history))
	copy(copied, history)
	b.histories = append(b.histories, copied)
	return &scriptedConversation{backend: b}
}

func (b *scriptedBackend) next() (*llm.Turn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return nil, b.err
	}
	if len(b.turns) == 0 {
		return &llm.Turn{Text: "ok"}, nil
	}
	turn := b.turns[0]
	b.turns = b.turns[1:]
	return turn, nil
}

type scriptedConversation struct {
	backend *scriptedBackend
}

func (c *scriptedConversation) Send(context.Context, string) (*llm.Turn, error) {
	return c.backend.next()
}

func (c *scriptedConversation) SendToolResults(context.Context, []llm.ToolResult) (*llm.Turn, error) {
	return c.backend.next()
}

func newTestSession(t *testing.T, ladder []llm.Backend, cal Calendar) *Session {
	t.Helper()
	if cal == nil {
		cal = &fakeCalendar{}
	}
	s, err := NewSession(SessionConfig{
		UserID:   "user-1",
		Ladder:   ladder,
		Calendar: cal,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return s
}

func TestNewSession(t *testing.T) {
	t.Run("should require a user id", func(t *testing.T) {
		_, err := NewSession(SessionConfig{
			Ladder:   []llm.Backend{&scriptedBackend{name: "a"}},
			Calendar: &fakeCalendar{},
		})
		assert.Error(t, err)
	})

	t.Run("should require a ladder", func(t *testing.T) {
		_, err := NewSession(SessionConfig{UserID: "u", Calendar: &fakeCalendar{}})
		assert.Error(t, err)
	})

	t.Run("should require a calendar", func(t *testing.T) {
		_, err := NewSession(SessionConfig{
			UserID: "u",
			Ladder: []llm.Backend{&scriptedBackend{name: "a"}},
		})
		assert.Error(t, err)
	})

	t.Run("should start on the primary tier in UTC", func(t *testing.T) {
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, nil)
		assert.Equal(t, 0, s.ActiveTier())
		assert.Equal(t, "UTC", s.Timezone())
	})
}

func TestReply(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the model reply and grow the transcript", func(t *testing.T) {
		backend := &scriptedBackend{name: "a", turns: []*llm.Turn{{Text: "you are doing fine"}}}
		s := newTestSession(t, []llm.Backend{backend}, nil)

		reply, err := s.Reply(ctx, "how am I doing?", nil)

		require.NoError(t, err)
		assert.Equal(t, "you are doing fine", reply)

		transcript := s.Transcript()
		require.Len(t, transcript, 2)
		assert.Equal(t, llm.RoleUser, transcript[0].Role)
		assert.Equal(t, llm.RoleModel, transcript[1].Role)
	})

	t.Run("should adopt the timezone from context", func(t *testing.T) {
		backend := &scriptedBackend{name: "a"}
		s := newTestSession(t, []llm.Backend{backend}, nil)

		_, err := s.Reply(ctx, "hi", map[string]any{"timezone": "America/New_York"})

		require.NoError(t, err)
		assert.Equal(t, "America/New_York", s.Timezone())
	})
}

func TestTierFallback(t *testing.T) {
	ctx := context.Background()
	quotaErr := errors.New("googleapi: Error 429: quota exceeded")

	t.Run("should degrade to the next tier on quota errors", func(t *testing.T) {
		primary := &scriptedBackend{name: "flash-preview", err: quotaErr, failures: 1}
		fallback := &scriptedBackend{name: "flash-2.5", turns: []*llm.Turn{{Text: "from fallback"}}}
		s := newTestSession(t, []llm.Backend{primary, fallback}, nil)

		reply, err := s.Reply(ctx, "hello", nil)

		require.NoError(t, err)
		assert.Equal(t, "from fallback", reply)
		assert.Equal(t, 1, s.ActiveTier())
	})

	t.Run("should replay a clean transcript at the fallback tier", func(t *testing.T) {
		primary := &scriptedBackend{name: "a", turns: []*llm.Turn{{Text: "first"}}}
		fallback := &scriptedBackend{name: "b", turns: []*llm.Turn{{Text: "second"}}}
		s := newTestSession(t, []llm.Backend{primary, fallback}, nil)

		_, err := s.Reply(ctx, "one", nil)
		require.NoError(t, err)

		// Primary now fails; the fallback conversation must be seeded
		// with the committed exchange only, not the failed attempt.
		primary.mu.Lock()
		primary.err = quotaErr
		primary.failures = 1
		primary.mu.Unlock()

		_, err = s.Reply(ctx, "two", nil)
		require.NoError(t, err)

		require.Len(t, fallback.histories, 1)
		seeded := fallback.histories[0]
		require.Len(t, seeded, 2)
		assert.Equal(t, "one", seeded[0].Content)
		assert.Equal(t, "first", seeded[1].Content)
	})

	t.Run("should never move back up the ladder", func(t *testing.T) {
		primary := &scriptedBackend{name: "a", err: quotaErr, failures: 1}
		fallback := &scriptedBackend{name: "b"}
		s := newTestSession(t, []llm.Backend{primary, fallback}, nil)

		_, err := s.Reply(ctx, "one", nil)
		require.NoError(t, err)
		require.Equal(t, 1, s.ActiveTier())

		_, err = s.Reply(ctx, "two", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, s.ActiveTier())
	})

	t.Run("should serve the overload message when the ladder is exhausted", func(t *testing.T) {
		primary := &scriptedBackend{name: "a", err: quotaErr, failures: 1}
		last := &scriptedBackend{name: "b", err: quotaErr, failures: 1}
		s := newTestSession(t, []llm.Backend{primary, last}, nil)

		reply, err := s.Reply(ctx, "hello", nil)

		require.NoError(t, err)
		assert.Equal(t, OverloadMessage, reply)
		assert.Empty(t, s.Transcript())
	})

	t.Run("should propagate non-quota errors without degrading", func(t *testing.T) {
		primary := &scriptedBackend{name: "a", err: errors.New("connection refused"), failures: 1}
		fallback := &scriptedBackend{name: "b"}
		s := newTestSession(t, []llm.Backend{primary, fallback}, nil)

		_, err := s.Reply(ctx, "hello", nil)

		require.Error(t, err)
		assert.Equal(t, 0, s.ActiveTier())
		assert.Empty(t, s.Transcript())
	})
}

func TestToolLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("should dispatch tool calls and return the final text", func(t *testing.T) {
		backend := &scriptedBackend{name: "a", turns: []*llm.Turn{
			{ToolCalls: []llm.ToolCall{{Name: "order_supplements", Args: map[string]any{"item_name": "Magnesium"}}}},
			{Text: "ordered your magnesium"},
		}}
		s := newTestSession(t, []llm.Backend{backend}, nil)

		reply, err := s.Reply(ctx, "order magnesium", nil)

		require.NoError(t, err)
		assert.Equal(t, "ordered your magnesium", reply)

		transcript := s.Transcript()
		require.Len(t, transcript, 3)
		assert.Equal(t, llm.RoleTool, transcript[1].Role)
		assert.Equal(t, "order_supplements", transcript[1].ToolName)
		assert.Contains(t, transcript[1].Content, "Magnesium")
	})

	t.Run("should pass the context timezone through to calendar blocks", func(t *testing.T) {
		backend := &scriptedBackend{name: "a", turns: []*llm.Turn{
			{ToolCalls: []llm.ToolCall{{Name: "block_calendar_for_nap", Args: map[string]any{"duration_mins": 20}}}},
			{Text: "nap booked"},
		}}
		cal := &fakeCalendar{authorized: true}
		s := newTestSession(t, []llm.Backend{backend}, cal)

		_, err := s.Reply(ctx, "block a nap", map[string]any{"timezone": "Asia/Kolkata"})

		require.NoError(t, err)
		require.Len(t, cal.blocked, 1)
		assert.Equal(t, []string{"Asia/Kolkata"}, cal.timezones)
	})

	t.Run("should stop a runaway tool loop", func(t *testing.T) {
		toolTurn := &llm.Turn{ToolCalls: []llm.ToolCall{{Name: "order_supplements", Args: map[string]any{"item_name": "X"}}}}
		var turns []*llm.Turn
		for i := 0; i < 20; i++ {
			turns = append(turns, toolTurn)
		}
		backend := &scriptedBackend{name: "a", turns: turns}

		s, err := NewSession(SessionConfig{
			UserID:       "user-1",
			Ladder:       []llm.Backend{backend},
			Calendar:     &fakeCalendar{},
			MaxToolTurns: 3,
			Logger:       zerolog.Nop(),
		})
		require.NoError(t, err)

		_, err = s.Reply(ctx, "go wild", nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "tool turn limit")
		assert.Empty(t, s.Transcript())
	})
}

func TestRun(t *testing.T) {
	t.Run("should feed the health context into the prompt", func(t *testing.T) {
		backend := &scriptedBackend{name: "a", turns: []*llm.Turn{{Text: "resting heart rate looks elevated"}}}
		s := newTestSession(t, []llm.Backend{backend}, nil)

		reply, err := s.Run(context.Background(), map[string]any{"heart_rate": 98})

		require.NoError(t, err)
		assert.Equal(t, "resting heart rate looks elevated", reply)

		transcript := s.Transcript()
		require.Len(t, transcript, 2)
		assert.Contains(t, transcript[0].Content, "heart_rate")
	})
}

func TestConcurrentReplies(t *testing.T) {
	backend := &scriptedBackend{name: "a"}
	s := newTestSession(t, []llm.Backend{backend}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Reply(context.Background(), fmt.Sprintf("msg %d", n), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Transcript(), 16)
}
