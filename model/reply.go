package model

import (
	"encoding/json"

	"github.com/hupe1980/agentloop/core"
)

// ReplyKind tags the variant carried by a Reply.
type ReplyKind string

const (
	// ReplyFinalText is a terminal plain-text answer.
	ReplyFinalText ReplyKind = "final_text"
	// ReplyStructured is a terminal JSON object matching the requested schema.
	ReplyStructured ReplyKind = "structured"
	// ReplyToolCalls is a request to invoke one or more capabilities.
	ReplyToolCalls ReplyKind = "tool_calls"
)

// Reply is the tagged result of one augmented model call. The presence of
// tool call requests always wins the tagging; on a ReplyToolCalls reply,
// Text holds any assistant commentary that accompanied the calls.
type Reply struct {
	Kind       ReplyKind              `json:"kind"`
	Text       string                 `json:"text,omitempty"`
	Structured json.RawMessage        `json:"structured,omitempty"`
	ToolCalls  []core.ToolCallRequest `json:"tool_calls,omitempty"`
	Usage      *TokenUsage            `json:"usage,omitempty"`
}

// Message converts the reply into the assistant message appended to the
// conversation.
func (r *Reply) Message() core.Message {
	switch r.Kind {
	case ReplyToolCalls:
		return core.Message{Role: core.RoleAssistant, Content: r.Text, ToolCalls: r.ToolCalls}
	case ReplyStructured:
		return core.NewAssistantMessage(string(r.Structured))
	default:
		return core.NewAssistantMessage(r.Text)
	}
}

// DecodeStructured unmarshals the structured payload into v. It is only
// valid for ReplyStructured replies.
func (r *Reply) DecodeStructured(v any) error {
	return json.Unmarshal(r.Structured, v)
}
