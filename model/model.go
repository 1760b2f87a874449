// Package model defines the unified model-provider contract and the
// augmented interface layered on top of it: structured-output decoding,
// token streaming and tool-call-request parsing. Provider adapters live in
// subpackages (openai, anthropic).
package model

import (
	"context"

	"github.com/hupe1980/agentloop/core"
)

// Mode selects the reply contract requested from the model.
type Mode string

const (
	// ModeText requests a plain text reply.
	ModeText Mode = "text"
	// ModeStructured requests a JSON object matching a target schema.
	ModeStructured Mode = "structured"
	// ModeStream requests a streamed text reply delivered as deltas.
	ModeStream Mode = "stream"
)

// Request captures the normalized model input. Each call is independent;
// callers supply the full conversation every time, nothing is cached.
type Request struct {
	Messages       []core.Message    `json:"messages"`
	Tools          []core.ToolSchema `json:"tools,omitempty"`
	Stream         bool              `json:"stream,omitempty"`
	ResponseSchema map[string]any    `json:"response_schema,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model provider.
// Partial chunks carry a text Delta; the terminal chunk carries the full
// accumulated assistant Message including any tool call requests.
type Response struct {
	Partial      bool         `json:"partial"`
	Delta        string       `json:"delta,omitempty"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason,omitempty"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface a provider adapter must satisfy. Generate
// returns channels that are closed when the call completes; cancelling ctx
// releases the underlying request.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}
