package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates the Gemini API key
func (v *Validator) ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("gemini API key cannot be empty")
	}
	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if !strings.HasPrefix(model, "models/") {
		return fmt.Errorf("model name %q must use the models/ prefix", model)
	}
	return nil
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	switch level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
		return nil
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
}

// ValidatePort validates a TCP port number
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateConfig validates the complete configuration
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateAPIKey(cfg.Gemini.APIKey); err != nil {
		errors = append(errors, err)
	}

	if len(cfg.Gemini.Models) == 0 {
		errors = append(errors, fmt.Errorf("gemini.models must list at least one model"))
	}
	for i, model := range cfg.Gemini.Models {
		if err := v.ValidateModel(model); err != nil {
			errors = append(errors, fmt.Errorf("gemini.models[%d]: %w", i, err))
		}
	}

	if len(cfg.Gemini.ScanModels) == 0 {
		errors = append(errors, fmt.Errorf("gemini.scan_models must list at least one model"))
	}
	for i, model := range cfg.Gemini.ScanModels {
		if err := v.ValidateModel(model); err != nil {
			errors = append(errors, fmt.Errorf("gemini.scan_models[%d]: %w", i, err))
		}
	}

	if cfg.Gemini.HistoryModel != "" {
		if err := v.ValidateModel(cfg.Gemini.HistoryModel); err != nil {
			errors = append(errors, fmt.Errorf("gemini.history_model: %w", err))
		}
	}

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}

	if cfg.Agent.MaxToolTurns < 1 {
		errors = append(errors, fmt.Errorf("agent.max_tool_turns must be >= 1"))
	}
	if cfg.Agent.SessionCacheSize < 1 {
		errors = append(errors, fmt.Errorf("agent.session_cache_size must be >= 1"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
