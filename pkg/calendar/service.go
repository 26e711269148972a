package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Result kinds, distinguishing the failure classes callers react to.
const (
	KindInvalidInput = "invalid_input"
	KindUnauthorized = "unauthorized"
	KindUpstream     = "upstream"
)

// Result is the structured outcome of a calendar operation.
type Result struct {
	Status  string `json:"status"` // "success" or "error"
	Kind    string `json:"kind,omitempty"`
	EventID string `json:"event_id,omitempty"`
	Link    string `json:"link,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the operation succeeded.
func (r *Result) OK() bool {
	return r.Status == "success"
}

// TokenStore is the narrow credential-store contract this capability needs.
type TokenStore interface {
	Token(ctx context.Context, userID string) (string, time.Time, error)
	SaveToken(ctx context.Context, userID, token string) error
}

// insertFunc performs the provider-side event insert. Replaceable in tests.
type insertFunc func(ctx context.Context, token *oauth2.Token, event *gcal.Event) (*gcal.Event, error)

// tokenSourceFunc builds the refreshing token source. Replaceable in tests.
type tokenSourceFunc func(ctx context.Context, token *oauth2.Token) oauth2.TokenSource

// Service is the calendar capability for one user.
type Service struct {
	userID string
	store  TokenStore
	oauth  *oauth2.Config
	logger zerolog.Logger

	insert      insertFunc
	tokenSource tokenSourceFunc
	now         func() time.Time
}

// New creates the capability for a user. oauthCfg carries the Google client
// credentials used for token refresh and API calls.
func New(userID string, store TokenStore, oauthCfg *oauth2.Config, logger zerolog.Logger) *Service {
	s := &Service{
		userID: userID,
		store:  store,
		oauth:  oauthCfg,
		logger: logger.With().Str("user_id", userID).Logger(),
		now:    time.Now,
	}
	s.insert = s.insertEvent
	s.tokenSource = oauthCfg.TokenSource
	return s
}

// IsAuthorized reports whether the user has a usable credential. An expired
// credential with a refresh token is refreshed and persisted; any refresh
// failure means "not authorized", not an error.
func (s *Service) IsAuthorized(ctx context.Context) bool {
	token := s.loadToken(ctx)
	if token == nil {
		return false
	}

	if token.Valid() {
		return true
	}

	if token.RefreshToken == "" {
		return false
	}

	fresh, err := s.tokenSource(ctx, token).Token()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Credential refresh failed")
		return false
	}

	if err := s.saveToken(ctx, fresh); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist refreshed credential")
		return false
	}

	return true
}

// CreateEvent inserts an event on the user's primary calendar. startTime is
// ISO 8601; a timezone offset is optional and the named zone applies when
// it is absent.
func (s *Service) CreateEvent(ctx context.Context, summary, description, startTime string, durationMinutes int, timezone string) *Result {
	if !s.IsAuthorized(ctx) {
		return &Result{Status: "error", Kind: KindUnauthorized, Message: "Not authorized"}
	}

	start, err := parseStart(startTime, timezone)
	if err != nil {
		return &Result{
			Status:  "error",
			Kind:    KindInvalidInput,
			Message: fmt.Sprintf("Invalid date format: %q. Expected ISO format (YYYY-MM-DDTHH:MM:SS)", startTime),
		}
	}

	if durationMinutes <= 0 {
		durationMinutes = 60
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	event := &gcal.Event{
		Summary:     summary,
		Description: description,
		Start: &gcal.EventDateTime{
			DateTime: start.Format("2006-01-02T15:04:05"),
			TimeZone: timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: end.Format("2006-01-02T15:04:05"),
			TimeZone: timezone,
		},
	}

	inserted, err := s.insert(ctx, s.loadToken(ctx), event)
	if err != nil {
		s.logger.Warn().Err(err).Str("summary", summary).Msg("Calendar insert failed")
		return &Result{Status: "error", Kind: KindUpstream, Message: err.Error()}
	}

	s.logger.Info().Str("event_id", inserted.Id).Str("summary", summary).Msg("Event created")

	return &Result{Status: "success", EventID: inserted.Id, Link: inserted.HtmlLink}
}

// BlockTime blocks the next free quarter-hour slot in the user's timezone.
// A start exactly on a boundary still advances a full 15 minutes, so the
// block is always strictly in the future.
func (s *Service) BlockTime(ctx context.Context, reason string, durationMinutes int, timezone string) *Result {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	now := s.now().In(loc).Truncate(time.Second)
	untilNextSlot := 15 - now.Minute()%15
	start := now.Add(time.Duration(untilNextSlot) * time.Minute)

	return s.CreateEvent(ctx,
		fmt.Sprintf("Bio-Twin: %s", reason),
		"Automated health block generated by your Bio-Twin agent.",
		start.Format("2006-01-02T15:04:05"),
		durationMinutes,
		timezone,
	)
}

// loadToken reads and deserializes the stored credential, or nil.
func (s *Service) loadToken(ctx context.Context) *oauth2.Token {
	raw, _, err := s.store.Token(ctx, s.userID)
	if err != nil {
		return nil
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		s.logger.Warn().Err(err).Msg("Stored credential is unreadable")
		return nil
	}

	return &token
}

func (s *Service) saveToken(ctx context.Context, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to serialize credential: %w", err)
	}
	return s.store.SaveToken(ctx, s.userID, string(raw))
}

// insertEvent is the production insert path against the Calendar API.
func (s *Service) insertEvent(ctx context.Context, token *oauth2.Token, event *gcal.Event) (*gcal.Event, error) {
	svc, err := gcal.NewService(ctx, option.WithTokenSource(s.tokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar client: %w", err)
	}
	return svc.Events.Insert("primary", event).Context(ctx).Do()
}

// parseStart accepts ISO 8601 with or without an offset. Offset-less values
// are interpreted in the named zone.
func parseStart(value, timezone string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable start time: %q", value)
}
