// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds everything the runtime reads from the environment.
type Config struct {
	// Provider credentials. Only the keys for providers actually in use
	// need to be set.
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// Model selects the chat model passed to the provider adapter.
	Model string `env:"AGENT_MODEL" envDefault:"gpt-4o-mini"`

	// MaxSteps bounds Deliberate->Act cycles per turn.
	MaxSteps int `env:"AGENT_MAX_STEPS" envDefault:"10" validate:"gte=1"`

	// ToolTimeout is the per-call deadline applied by the registry.
	ToolTimeout time.Duration `env:"AGENT_TOOL_TIMEOUT" envDefault:"30s" validate:"gt=0"`

	// MaxWindowMessages bounds the short-term buffer by message count.
	// 0 disables the bound.
	MaxWindowMessages int `env:"AGENT_MAX_WINDOW_MESSAGES" envDefault:"0" validate:"gte=0"`

	// MaxWindowTokens bounds the short-term buffer by estimated tokens.
	// 0 disables the bound.
	MaxWindowTokens int `env:"AGENT_MAX_WINDOW_TOKENS" envDefault:"0" validate:"gte=0"`

	// RetrieveTopK is the number of long-term memories injected per turn.
	RetrieveTopK int `env:"AGENT_RETRIEVE_TOP_K" envDefault:"0" validate:"gte=0"`

	// LogLevel selects the slog level for the default logger.
	LogLevel string `env:"AGENT_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
}

// Load reads a .env file when present, parses the environment and validates
// the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps the configured log level to its slog constant.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
