package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create a console-only logger", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.NotNil(t, l.GetZerolog())
	})

	t.Run("should write to the configured file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "biotwin.log")

		l, err := New(Config{Level: "debug", File: path})
		require.NoError(t, err)

		l.Info().Str("component", "test").Msg("hello from test")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello from test")
	})

	t.Run("should redact secrets when enabled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "biotwin.log")

		l, err := New(Config{Level: "info", File: path, Redaction: true})
		require.NoError(t, err)

		l.Info().Msg("using key AIzaSyD1234567890abcdefghijklmnop")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "[REDACTED]")
		assert.NotContains(t, string(data), "AIzaSyD1234567890")
	})

	t.Run("should fall back to info for unknown levels", func(t *testing.T) {
		l, err := New(Config{Level: "shouting", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, "info", l.GetZerolog().GetLevel().String())
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
}
