package agent

import (
	"context"
	"fmt"

	"github.com/biotwin/biotwin/pkg/calendar"
	"github.com/biotwin/biotwin/pkg/tools"
)

// buildToolset registers the session's callable tools. Calendar-backed
// tools degrade to a simulated success when the user has not connected
// Google Calendar, so the conversation keeps flowing in demo setups.
func (s *Session) buildToolset() (*tools.Registry, error) {
	registry := tools.NewRegistry()

	defs := []tools.Definition{
		{
			Name:        "book_appointment",
			Description: "Books a medical appointment on the user's Google Calendar. Use when a specialist visit or check-up is needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "Why the appointment is needed, e.g. 'Cardiology check-up'.",
					},
					"date": map[string]any{
						"type":        "string",
						"description": "Appointment start in ISO format (YYYY-MM-DDTHH:MM:SS).",
					},
				},
				"required": []string{"reason", "date"},
			},
			Handler: s.bookAppointment,
		},
		{
			Name:        "block_calendar_for_nap",
			Description: "Blocks the next available quarter-hour slot on the user's calendar for rest or a nap.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"duration_mins": map[string]any{
						"type":        "integer",
						"description": "Length of the rest block in minutes.",
					},
				},
				"required": []string{"duration_mins"},
			},
			Handler: s.blockCalendarForNap,
		},
		{
			Name:        "order_supplements",
			Description: "Orders a health supplement for the user, e.g. 'Magnesium' or 'Vitamin D'.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item_name": map[string]any{
						"type":        "string",
						"description": "Name of the supplement to order.",
					},
				},
				"required": []string{"item_name"},
			},
			Handler: s.orderSupplements,
		},
	}

	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return nil, fmt.Errorf("failed to register tool: %w", err)
		}
	}

	return registry, nil
}

func (s *Session) bookAppointment(ctx context.Context, args map[string]any) (map[string]any, error) {
	reason, _ := args["reason"].(string)
	date, _ := args["date"].(string)

	if !s.calendar.IsAuthorized(ctx) {
		return map[string]any{
			"status":  "simulated",
			"message": "⚠️ [DEMO MODE] Google Calendar is NOT connected. The appointment was NOT actually booked.",
			"details": fmt.Sprintf("Intended: %s on %s", reason, date),
		}, nil
	}

	result := s.calendar.CreateEvent(ctx, reason, "Medical appointment booked by Bio-Twin", date, 60, s.timezone)
	return sanitizeCalendarResult(result), nil
}

func (s *Session) blockCalendarForNap(ctx context.Context, args map[string]any) (map[string]any, error) {
	mins := intArg(args, "duration_mins", 20)

	if !s.calendar.IsAuthorized(ctx) {
		return map[string]any{
			"status":   "simulated",
			"message":  "Google Calendar not connected. Simulated block success.",
			"duration": mins,
		}, nil
	}

	result := s.calendar.BlockTime(ctx, "Rest/Nap Period", mins, s.timezone)
	return sanitizeCalendarResult(result), nil
}

func (s *Session) orderSupplements(_ context.Context, args map[string]any) (map[string]any, error) {
	item, _ := args["item_name"].(string)
	s.logger.Info().Str("item", item).Msg("Supplement order placed")

	return map[string]any{
		"status": "ordered",
		"item":   item,
		"eta":    "2 days",
	}, nil
}

// sanitizeCalendarResult converts a calendar outcome into the payload the
// model sees. Event links are withheld so the model cannot echo URLs into
// the chat.
func sanitizeCalendarResult(r *calendar.Result) map[string]any {
	payload := map[string]any{"status": r.Status}
	if r.EventID != "" {
		payload["event_id"] = r.EventID
	}
	if r.Message != "" {
		payload["message"] = r.Message
	}
	if r.Kind != "" {
		payload["kind"] = r.Kind
	}
	return payload
}

// intArg reads an integer argument, tolerating the float64 that JSON
// decoding produces for numbers.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
