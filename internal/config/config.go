package config

import (
	"encoding/json"
)

// Config represents the main Bio-Twin configuration
type Config struct {
	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Gemini
	Gemini GeminiConfig `json:"gemini" mapstructure:"gemini"`

	// Google OAuth for calendar access
	Google GoogleConfig `json:"google" mapstructure:"google"`

	// Agent
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
	// RequestTimeoutSecs bounds each request, including everything a
	// handler spends inside model calls and their backoffs.
	RequestTimeoutSecs int `json:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey       string   `json:"api_key" mapstructure:"api_key"`
	Models       []string `json:"models" mapstructure:"models"`             // chat ladder, best first
	ScanModels   []string `json:"scan_models" mapstructure:"scan_models"`   // vision candidates, best first
	HistoryModel string   `json:"history_model" mapstructure:"history_model"`
}

// GoogleConfig holds Google OAuth client configuration
type GoogleConfig struct {
	ClientID     string `json:"client_id" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret" mapstructure:"client_secret"`
	RedirectURL  string `json:"redirect_url" mapstructure:"redirect_url"`
}

// AgentConfig holds conversational agent configuration
type AgentConfig struct {
	MaxToolTurns     int `json:"max_tool_turns" mapstructure:"max_tool_turns"`
	SessionCacheSize int `json:"session_cache_size" mapstructure:"session_cache_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			RequestTimeoutSecs: 120,
		},
		Gemini: GeminiConfig{
			Models: []string{
				"models/gemini-3-flash-preview",
				"models/gemini-2.5-flash",
				"models/gemini-1.5-flash",
			},
			ScanModels: []string{
				"models/gemini-3-flash-preview",
				"models/gemini-2.5-flash",
				"models/gemini-2.0-flash-exp",
			},
			HistoryModel: "models/gemini-1.5-pro",
		},
		Google: GoogleConfig{
			RedirectURL: "http://localhost:8000/auth/callback",
		},
		Agent: AgentConfig{
			MaxToolTurns:     10,
			SessionCacheSize: 1024,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
