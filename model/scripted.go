package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// ScriptedModel is a lightweight in-memory Model useful for tests and
// examples. Each Generate call consumes the next scripted step in order;
// once the script is exhausted it echoes the last user message.
type ScriptedModel struct {
	info  Info
	mu    sync.Mutex
	steps []scriptedStep
	calls int
}

type scriptedStep struct {
	message core.Message
	err     error
}

// NewScriptedModel constructs a ScriptedModel with tool support enabled.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{
		info: Info{Name: name, Provider: "scripted", SupportsTools: true},
	}
}

// AddText scripts a plain-text assistant reply.
func (m *ScriptedModel) AddText(text string) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, scriptedStep{message: core.NewAssistantMessage(text)})
	return m
}

// AddToolCalls scripts a reply requesting the given tool calls.
func (m *ScriptedModel) AddToolCalls(calls ...core.ToolCallRequest) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, scriptedStep{message: core.NewToolCallMessage(calls)})
	return m
}

// AddTextAndToolCalls scripts a reply carrying assistant commentary alongside
// tool call requests, as real providers commonly emit.
func (m *ScriptedModel) AddTextAndToolCalls(text string, calls ...core.ToolCallRequest) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, scriptedStep{message: core.Message{
		Role:      core.RoleAssistant,
		Content:   text,
		ToolCalls: calls,
	}})
	return m
}

// AddError scripts a provider-level failure for retry testing.
func (m *ScriptedModel) AddError(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, scriptedStep{err: err})
	return m
}

// Calls returns the number of Generate invocations so far.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements Model; emits optional streaming char chunks then the
// scripted terminal response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls++
	var step scriptedStep
	if len(m.steps) > 0 {
		step = m.steps[0]
		m.steps = m.steps[1:]
	} else {
		var lastUser string
		for _, msg := range req.Messages {
			if msg.Role == core.RoleUser {
				lastUser = msg.Content
			}
		}
		step = scriptedStep{message: core.NewAssistantMessage(fmt.Sprintf("Scripted response to: %s", lastUser))}
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if step.err != nil {
			errCh <- step.err
			return
		}

		if req.Stream && step.message.Content != "" {
			for _, r := range step.message.Content {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Delta: string(r)}:
				}
			}
		}

		finish := "stop"
		if len(step.message.ToolCalls) > 0 {
			finish = "tool_calls"
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Message: step.message, FinishReason: finish}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
