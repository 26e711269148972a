// Package history analyzes a user's accumulated scan reports for
// longitudinal trends, feeding the whole record set through a
// long-context model in one pass.
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/biotwin/biotwin/internal/store"
)

const defaultScanWindow = 50

const analysisPrompt = `Review this entire patient history context.
Identify patterns in the biomarkers over time, e.g. Vitamin D levels across seasons.
Are there seasonal trends or compliance issues?
Summarize the trajectory in plain language for the patient.`

// TextModel is the generation capability the analyzer needs. Satisfied
// by llm.GeminiClient.
type TextModel interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// ScanSource provides the stored reports to analyze. Satisfied by
// store.Store.
type ScanSource interface {
	ListScans(ctx context.Context, userID string, limit int) ([]store.Scan, error)
}

// Analyzer runs trend analysis over a user's stored scan history.
type Analyzer struct {
	model  TextModel
	scans  ScanSource
	name   string
	window int
	logger zerolog.Logger
}

// New creates an analyzer using the named long-context model.
func New(model TextModel, scans ScanSource, modelName string, logger zerolog.Logger) (*Analyzer, error) {
	if model == nil {
		return nil, fmt.Errorf("text model is required")
	}
	if scans == nil {
		return nil, fmt.Errorf("scan source is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	return &Analyzer{
		model:  model,
		scans:  scans,
		name:   modelName,
		window: defaultScanWindow,
		logger: logger,
	}, nil
}

// Analyze loads the user's scan history and asks the model for trends.
// A user with no stored scans gets an explanatory message, not an error.
func (a *Analyzer) Analyze(ctx context.Context, userID string) (string, error) {
	scans, err := a.scans.ListScans(ctx, userID, a.window)
	if err != nil {
		return "", fmt.Errorf("failed to load scan history: %w", err)
	}

	if len(scans) == 0 {
		return "No scan history on record yet. Upload a medical report to start building your history.", nil
	}

	a.logger.Info().Str("user_id", userID).Int("scans", len(scans)).Msg("Analyzing scan history")

	prompt := buildHistoryContext(scans) + "\n\n" + analysisPrompt
	return a.model.GenerateText(ctx, a.name, prompt)
}

// buildHistoryContext renders stored reports in the oldest-first order
// the store returns them, so the model reads the record chronologically.
func buildHistoryContext(scans []store.Scan) string {
	var b strings.Builder
	b.WriteString("PATIENT SCAN HISTORY (chronological):\n")
	for _, scan := range scans {
		fmt.Fprintf(&b, "\n--- Scan from %s ---\n%s\n", scan.CreatedAt.Format("2006-01-02"), scan.Report)
	}
	return b.String()
}
