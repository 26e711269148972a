package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/biotwin/biotwin/internal/metrics"
	"github.com/biotwin/biotwin/pkg/llm"
)

const extractionPrompt = `Extract all numerical health biomarkers (e.g., HbA1c, Lipid Profile, Vitamin D) from this image.
Analyze the data to calculate a 'Health Score' (0-100) and identify key correlations.

Return ONLY valid JSON in the following format:
{
    "biomarkers": [
        {"name": "Biomarker Name", "value": "Numeric Value", "unit": "Unit", "status": "Normal/High/Low"}
    ],
    "overall_status": "Healthy or Critical",
    "health_score": 85,
    "velocity": "Stable, Improving, or Declining",
    "primary_risk": "Main risk factor (e.g. High Cortisol)",
    "hydration_level": "High, Medium, or Low",
    "summary": "Brief summary of health status",
    "correlations": [
        {
            "title": "Insight Title (e.g. Hydration Alert)",
            "description": "Explanation of the correlation.",
            "type": "positive/negative/neutral"
        }
    ]
}`

// Biomarker is one extracted measurement.
type Biomarker struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Unit   string `json:"unit"`
	Status string `json:"status"`
}

// Correlation is one cross-biomarker insight.
type Correlation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// Report is the structured result of scanning one medical document.
type Report struct {
	Biomarkers     []Biomarker   `json:"biomarkers"`
	OverallStatus  string        `json:"overall_status"`
	HealthScore    int           `json:"health_score"`
	Velocity       string        `json:"velocity"`
	PrimaryRisk    string        `json:"primary_risk"`
	HydrationLevel string        `json:"hydration_level"`
	Summary        string        `json:"summary"`
	Correlations   []Correlation `json:"correlations"`
}

// Vision is the model capability the scanner needs. Satisfied by
// llm.GeminiClient.
type Vision interface {
	GenerateVision(ctx context.Context, model, format string, image []byte, prompt string) (string, error)
}

// Scanner extracts biomarkers from medical document images, walking a
// list of candidate models so a quota-starved model does not take the
// feature down.
type Scanner struct {
	vision      Vision
	models      []string
	maxAttempts uint64
	baseDelay   time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithRetry overrides the per-model retry policy for transient errors.
func WithRetry(maxAttempts uint64, baseDelay time.Duration) Option {
	return func(s *Scanner) {
		s.maxAttempts = maxAttempts
		s.baseDelay = baseDelay
	}
}

// New creates a scanner over the given candidate models, tried in order.
func New(vision Vision, models []string, logger zerolog.Logger, m *metrics.Metrics, opts ...Option) (*Scanner, error) {
	if vision == nil {
		return nil, fmt.Errorf("vision capability is required")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one candidate model is required")
	}

	s := &Scanner{
		vision:      vision,
		models:      models,
		maxAttempts: 3,
		baseDelay:   10 * time.Second,
		logger:      logger,
		metrics:     m,
	}
	for _, opt := range opts {
		opt(s)
	}
	// maxAttempts-1 feeds WithMaxRetries, which takes a uint64; zero
	// would wrap around into unbounded retries.
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}
	return s, nil
}

// Scan extracts a structured report from a document image. Transient
// errors retry the same model with exponential backoff and jitter; a
// quota error skips straight to the next candidate. The error returned
// when every candidate fails wraps the last failure.
func (s *Scanner) Scan(ctx context.Context, format string, image []byte) (*Report, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}

	var lastErr error
	for _, model := range s.models {
		s.logger.Info().Str("model", model).Msg("Scanning document")

		report, err := s.scanWith(ctx, model, format, image)
		if err == nil {
			s.metrics.RecordScanAttempt(model, "ok")
			s.logger.Info().Str("model", model).Int("biomarkers", len(report.Biomarkers)).Msg("Scan complete")
			return report, nil
		}

		lastErr = err
		if llm.IsQuotaExceeded(err) {
			s.metrics.RecordScanAttempt(model, "quota")
			s.logger.Warn().Str("model", model).Msg("Quota exhausted, trying next model")
			continue
		}

		s.metrics.RecordScanAttempt(model, "error")
		s.logger.Warn().Err(err).Str("model", model).Msg("Model failed, trying next model")
	}

	return nil, fmt.Errorf("all scan models exhausted: %w", lastErr)
}

// scanWith runs one model with the retry policy. Quota errors are not
// retryable here because the caller reacts by switching models.
func (s *Scanner) scanWith(ctx context.Context, model, format string, image []byte) (*Report, error) {
	backoff := retry.WithJitter(s.baseDelay/2, retry.NewExponential(s.baseDelay))
	backoff = retry.WithMaxRetries(s.maxAttempts-1, backoff)

	var report *Report
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		text, err := s.vision.GenerateVision(ctx, model, format, image, extractionPrompt)
		if err != nil {
			if llm.IsQuotaExceeded(err) {
				return err
			}
			return retry.RetryableError(err)
		}

		parsed, err := ParseReport(text)
		if err != nil {
			return retry.RetryableError(err)
		}

		report = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ParseReport decodes a model response into a report, tolerating the
// markdown code fences models wrap JSON in.
func ParseReport(text string) (*Report, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var report Report
	if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
		return nil, fmt.Errorf("scan response is not valid JSON: %w", err)
	}
	return &report, nil
}
