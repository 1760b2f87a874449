package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 10, cfg.MaxSteps)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AGENT_MODEL", "gpt-4o")
	t.Setenv("AGENT_MAX_STEPS", "3")
	t.Setenv("AGENT_TOOL_TIMEOUT", "5s")
	t.Setenv("AGENT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 3, cfg.MaxSteps)
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("AGENT_MAX_STEPS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("AGENT_LOG_LEVEL", "verbose")
	_, err := Load()
	assert.Error(t, err)
}
