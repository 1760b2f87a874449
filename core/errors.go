package core

import (
	"errors"
	"fmt"
)

// Error codes used on ToolError. Tool-level failures are reported back to
// the model as failed ToolResults, never escalated into session failures.
const (
	CodeUnknownTool     = "UNKNOWN_TOOL"
	CodeToolTimeout     = "TOOL_TIMEOUT"
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvocationError = "INVOCATION_ERROR"
	CodeConnectionLost  = "CONNECTION_LOST"
)

// Sentinel errors for interface-level failure classification.
var (
	// ErrBudgetExceeded signals that the loop hit its step cap; the session
	// ends with a best-effort partial answer flagged incomplete.
	ErrBudgetExceeded = errors.New("step budget exceeded")

	// ErrSessionNotFound is returned by the session manager for unknown ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when sending to an ended session.
	ErrSessionClosed = errors.New("session closed")
)

// ToolError describes a recoverable tool-level failure with a categorized
// code. It is converted into ToolResult{Success: false} by the registry.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the given details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// ProviderError wraps a failed model call (transport, auth, rate limit).
// The augmented model retries these with backoff a bounded number of times
// before surfacing them as a session failure.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("model provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MalformedOutputError signals that structured decoding of model output
// failed after repair. The loop retries once with a corrective instruction,
// then surfaces the failure.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed structured output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }
