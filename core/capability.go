package core

import (
	"context"
	"encoding/json"
)

// CapabilityKind distinguishes the three catalog entry categories exposed by
// providers. Tools are invocable, resources are readable, prompts are
// templated instructions.
type CapabilityKind string

const (
	// KindTool is an invocable function capability.
	KindTool CapabilityKind = "tool"
	// KindResource is a readable data capability.
	KindResource CapabilityKind = "resource"
	// KindPrompt is a reusable prompt template capability.
	KindPrompt CapabilityKind = "prompt"
)

// ToolSchema declaratively describes one capability offered by a provider.
// Parameters is a JSON Schema object (minimal subset, draft agnostic).
// Name is unique within the registry namespace after collision resolution;
// a schema never outlives its provider's registration.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Kind        CapabilityKind `json:"kind"`
	Provider    string         `json:"provider,omitempty"` // registry alias, set on registration
}

// ToolCallRequest is a model-issued instruction to invoke a named capability.
// ID correlates the request with the ToolResult written back into the
// conversation; each request is consumed exactly once by the router.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ArgumentMap decodes the raw JSON arguments into a map. Empty arguments
// decode to an empty map rather than an error.
func (r ToolCallRequest) ArgumentMap() (map[string]any, error) {
	if len(r.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(r.Arguments, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ToolResult carries the outcome of one dispatched tool call. On failure
// Success is false and Error holds a description; Content is nil.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Content any    `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CapabilityProvider is any source of invocable capabilities, local or
// remote. Remote implementations own a connection with an explicit
// connect -> list -> invoke* -> close lifecycle; Close must be idempotent
// and safe even if the connection never succeeded.
type CapabilityProvider interface {
	// Name returns the provider alias used for collision resolution.
	Name() string

	// List returns the provider's capability catalog. For remote providers
	// this may establish the connection lazily.
	List(ctx context.Context) ([]ToolSchema, error)

	// Invoke executes the named capability with the given arguments.
	// Implementations return a provider-level error for transport or
	// execution failures; the registry normalizes it into a ToolResult.
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)

	// Close releases any held connection resources.
	Close() error
}

// ConcurrencySafeProvider is implemented by providers whose single
// connection supports multiplexed concurrent calls. Calls to providers
// without this marker are serialized by the registry.
type ConcurrencySafeProvider interface {
	ConcurrencySafe() bool
}

// Reconnecter is implemented by providers that can re-establish a lost
// connection. The registry attempts one reconnect before marking the
// provider unavailable for the remainder of the session.
type Reconnecter interface {
	Reconnect(ctx context.Context) error
}
