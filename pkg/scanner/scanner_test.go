package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
	"biomarkers": [
		{"name": "HbA1c", "value": "5.4", "unit": "%", "status": "Normal"},
		{"name": "Vitamin D", "value": "14", "unit": "ng/mL", "status": "Low"}
	],
	"overall_status": "Critical",
	"health_score": 62,
	"velocity": "Declining",
	"primary_risk": "Vitamin D deficiency",
	"hydration_level": "Medium",
	"summary": "Vitamin D is critically low.",
	"correlations": [
		{"title": "Fatigue Link", "description": "Low Vitamin D tracks with reported fatigue.", "type": "negative"}
	]
}`

// fakeVision replays scripted responses keyed by model name.
type fakeVision struct {
	responses map[string][]response
	calls     []string
}

type response struct {
	text string
	err  error
}

func (f *fakeVision) GenerateVision(_ context.Context, model, _ string, _ []byte, _ string) (string, error) {
	f.calls = append(f.calls, model)
	queue := f.responses[model]
	if len(queue) == 0 {
		return "", errors.New("no scripted response")
	}
	next := queue[0]
	f.responses[model] = queue[1:]
	return next.text, next.err
}

func newTestScanner(t *testing.T, vision Vision, models []string) *Scanner {
	t.Helper()
	s, err := New(vision, models, zerolog.Nop(), nil, WithRetry(2, time.Millisecond))
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Run("should require a vision capability", func(t *testing.T) {
		_, err := New(nil, []string{"models/a"}, zerolog.Nop(), nil)
		assert.Error(t, err)
	})

	t.Run("should require candidate models", func(t *testing.T) {
		_, err := New(&fakeVision{}, nil, zerolog.Nop(), nil)
		assert.Error(t, err)
	})

	t.Run("should treat zero retry attempts as a single attempt", func(t *testing.T) {
		vision := &fakeVision{responses: map[string][]response{
			"models/a": {{err: errors.New("connection reset")}},
		}}
		s, err := New(vision, []string{"models/a"}, zerolog.Nop(), nil, WithRetry(0, time.Millisecond))
		require.NoError(t, err)

		_, err = s.Scan(context.Background(), "jpeg", []byte{0xFF})

		require.Error(t, err)
		assert.Equal(t, []string{"models/a"}, vision.calls)
	})
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	image := []byte{0xFF, 0xD8, 0xFF}

	t.Run("should parse a clean response from the first model", func(t *testing.T) {
		vision := &fakeVision{responses: map[string][]response{
			"models/a": {{text: sampleResponse}},
		}}
		s := newTestScanner(t, vision, []string{"models/a", "models/b"})

		report, err := s.Scan(ctx, "jpeg", image)

		require.NoError(t, err)
		assert.Equal(t, "Critical", report.OverallStatus)
		assert.Equal(t, 62, report.HealthScore)
		require.Len(t, report.Biomarkers, 2)
		assert.Equal(t, "HbA1c", report.Biomarkers[0].Name)
		assert.Equal(t, []string{"models/a"}, vision.calls)
	})

	t.Run("should skip to the next model on quota errors without retrying", func(t *testing.T) {
		vision := &fakeVision{responses: map[string][]response{
			"models/a": {{err: errors.New("googleapi: Error 429: quota exceeded")}},
			"models/b": {{text: sampleResponse}},
		}}
		s := newTestScanner(t, vision, []string{"models/a", "models/b"})

		report, err := s.Scan(ctx, "jpeg", image)

		require.NoError(t, err)
		assert.Equal(t, 62, report.HealthScore)
		assert.Equal(t, []string{"models/a", "models/b"}, vision.calls)
	})

	t.Run("should retry the same model on transient errors", func(t *testing.T) {
		vision := &fakeVision{responses: map[string][]response{
			"models/a": {
				{err: errors.New("connection reset")},
				{text: sampleResponse},
			},
		}}
		s := newTestScanner(t, vision, []string{"models/a"})

		report, err := s.Scan(ctx, "jpeg", image)

		require.NoError(t, err)
		assert.Equal(t, 62, report.HealthScore)
		assert.Equal(t, []string{"models/a", "models/a"}, vision.calls)
	})

	t.Run("should fail when every candidate is exhausted", func(t *testing.T) {
		vision := &fakeVision{responses: map[string][]response{
			"models/a": {{err: errors.New("Quota exceeded")}},
			"models/b": {{err: errors.New("ResourceExhausted")}},
		}}
		s := newTestScanner(t, vision, []string{"models/a", "models/b"})

		_, err := s.Scan(ctx, "jpeg", image)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "all scan models exhausted")
	})

	t.Run("should reject an empty image", func(t *testing.T) {
		s := newTestScanner(t, &fakeVision{}, []string{"models/a"})
		_, err := s.Scan(ctx, "jpeg", nil)
		assert.Error(t, err)
	})
}

func TestParseReport(t *testing.T) {
	t.Run("should strip markdown code fences", func(t *testing.T) {
		report, err := ParseReport("```json\n" + sampleResponse + "\n```")
		require.NoError(t, err)
		assert.Equal(t, "Declining", report.Velocity)
	})

	t.Run("should accept bare JSON", func(t *testing.T) {
		report, err := ParseReport(sampleResponse)
		require.NoError(t, err)
		assert.Equal(t, "Vitamin D deficiency", report.PrimaryRisk)
	})

	t.Run("should reject prose", func(t *testing.T) {
		_, err := ParseReport("I could not read the document, sorry.")
		assert.Error(t, err)
	})
}
