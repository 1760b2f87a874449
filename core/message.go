package core

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem marks the immutable instruction message seeded at session start.
	RoleSystem Role = "system"
	// RoleUser marks messages authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks model output, including tool call requests.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool results fed back into the conversation.
	RoleTool Role = "tool"
)

// Message is one entry in a conversation. The ordered message sequence is
// append-only; order carries the causal structure of the dialogue.
//
// Exactly one of the following shapes is expected per role:
//   - system/user: Content only
//   - assistant:   Content and/or ToolCalls
//   - tool:        Content plus ToolCallID referencing the originating call
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolName   string            `json:"tool_name,omitempty"`
}

// NewSystemMessage builds a system-role message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage builds a user-role message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage builds a plain-text assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolCallMessage builds an assistant message carrying tool call requests.
func NewToolCallMessage(calls []ToolCallRequest) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// NewToolResultMessage converts a ToolResult into the tool-role message that
// is appended to the conversation. Failed results are rendered as an error
// payload so the model can adapt instead of the session dying.
func NewToolResultMessage(res ToolResult) Message {
	content := res.Error
	if res.Success {
		switch v := res.Content.(type) {
		case string:
			content = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				content = fmt.Sprintf("%v", v)
			} else {
				content = string(b)
			}
		}
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: res.ID,
		ToolName:   res.Name,
	}
}
