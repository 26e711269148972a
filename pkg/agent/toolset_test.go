package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biotwin/biotwin/pkg/calendar"
	"github.com/biotwin/biotwin/pkg/llm"
)

func TestBookAppointment(t *testing.T) {
	ctx := context.Background()

	t.Run("should simulate when the calendar is not connected", func(t *testing.T) {
		cal := &fakeCalendar{authorized: false}
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, cal)

		result := s.tools.Dispatch(ctx, "book_appointment", map[string]any{
			"reason": "Cardiology check-up",
			"date":   "2026-09-10T10:00:00",
		})

		assert.Equal(t, "simulated", result["status"])
		assert.Contains(t, result["message"], "NOT connected")
		assert.Contains(t, result["details"], "Cardiology check-up")
		assert.Contains(t, result["details"], "2026-09-10T10:00:00")
		assert.Empty(t, cal.created)
	})

	t.Run("should create the event when authorized", func(t *testing.T) {
		cal := &fakeCalendar{authorized: true}
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, cal)

		result := s.tools.Dispatch(ctx, "book_appointment", map[string]any{
			"reason": "Cardiology check-up",
			"date":   "2026-09-10T10:00:00",
		})

		assert.Equal(t, "success", result["status"])
		assert.Equal(t, "evt-1", result["event_id"])
		require.Len(t, cal.created, 1)
		assert.Equal(t, "Cardiology check-up@2026-09-10T10:00:00", cal.created[0])
	})

	t.Run("should never expose the event link to the model", func(t *testing.T) {
		cal := &fakeCalendar{authorized: true}
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, cal)

		result := s.tools.Dispatch(ctx, "book_appointment", map[string]any{
			"reason": "Check-up",
			"date":   "2026-09-10T10:00:00",
		})

		assert.NotContains(t, result, "link")
	})

	t.Run("should reject a call without a date", func(t *testing.T) {
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, &fakeCalendar{})

		result := s.tools.Dispatch(ctx, "book_appointment", map[string]any{"reason": "Check-up"})

		assert.Equal(t, "error", result["status"])
	})
}

func TestBlockCalendarForNap(t *testing.T) {
	ctx := context.Background()

	t.Run("should simulate when the calendar is not connected", func(t *testing.T) {
		cal := &fakeCalendar{authorized: false}
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, cal)

		result := s.tools.Dispatch(ctx, "block_calendar_for_nap", map[string]any{"duration_mins": 25})

		assert.Equal(t, "simulated", result["status"])
		assert.Equal(t, 25, result["duration"])
		assert.Empty(t, cal.blocked)
	})

	t.Run("should block a rest period when authorized", func(t *testing.T) {
		cal := &fakeCalendar{authorized: true}
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, cal)

		result := s.tools.Dispatch(ctx, "block_calendar_for_nap", map[string]any{"duration_mins": 25})

		assert.Equal(t, "success", result["status"])
		require.Len(t, cal.blocked, 1)
		assert.Equal(t, "Rest/Nap Period", cal.blocked[0])
	})

	t.Run("should coerce JSON numbers to minutes", func(t *testing.T) {
		cal := &fakeCalendar{authorized: false}
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, cal)

		result := s.tools.Dispatch(ctx, "block_calendar_for_nap", map[string]any{"duration_mins": float64(30)})

		assert.Equal(t, 30, result["duration"])
	})

	t.Run("should surface calendar failures as payloads", func(t *testing.T) {
		cal := &fakeCalendar{
			authorized: true,
			result:     &calendar.Result{Status: "error", Kind: calendar.KindUpstream, Message: "insert failed"},
		}
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, cal)

		result := s.tools.Dispatch(ctx, "block_calendar_for_nap", map[string]any{"duration_mins": 20})

		assert.Equal(t, "error", result["status"])
		assert.Equal(t, calendar.KindUpstream, result["kind"])
		assert.Equal(t, "insert failed", result["message"])
	})
}

func TestOrderSupplements(t *testing.T) {
	ctx := context.Background()

	t.Run("should confirm the order with an ETA", func(t *testing.T) {
		s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, &fakeCalendar{})

		result := s.tools.Dispatch(ctx, "order_supplements", map[string]any{"item_name": "Magnesium"})

		assert.Equal(t, "ordered", result["status"])
		assert.Equal(t, "Magnesium", result["item"])
		assert.Equal(t, "2 days", result["eta"])
	})
}

func TestToolsetDefinitions(t *testing.T) {
	s := newTestSession(t, []llm.Backend{&scriptedBackend{name: "a"}}, &fakeCalendar{})

	defs := s.tools.Definitions()

	require.Len(t, defs, 3)
	assert.Equal(t, "book_appointment", defs[0].Name)
	assert.Equal(t, "block_calendar_for_nap", defs[1].Name)
	assert.Equal(t, "order_supplements", defs[2].Name)
}

func TestIntArg(t *testing.T) {
	assert.Equal(t, 5, intArg(map[string]any{"n": 5}, "n", 0))
	assert.Equal(t, 5, intArg(map[string]any{"n": int64(5)}, "n", 0))
	assert.Equal(t, 5, intArg(map[string]any{"n": float64(5)}, "n", 0))
	assert.Equal(t, 7, intArg(map[string]any{}, "n", 7))
	assert.Equal(t, 7, intArg(map[string]any{"n": "five"}, "n", 7))
}
