// Package scanner extracts structured biomarker reports from medical
// document images using vision models, with per-model retries and a
// candidate-model fallback chain for quota resilience.
package scanner
