package agentloop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/provider"
)

func TestAgentLoop_EndToEnd(t *testing.T) {
	scripted := model.NewScriptedModel("test").
		AddToolCalls(core.ToolCallRequest{
			ID:        "c1",
			Name:      "add",
			Arguments: json.RawMessage(`{"a":2,"b":2}`),
		}).
		AddText("The answer is 4.")

	loop := New(scripted, func(o *Options) {
		o.MaxSteps = 3
	})
	defer loop.Close(context.Background())

	calc := provider.NewLocalProvider("calculator")
	calc.AddTool(provider.NewFunctionTool("add", "Add two numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	}))
	require.NoError(t, loop.RegisterProvider(context.Background(), calc))

	id, err := loop.StartSession(context.Background(), "You are a math assistant.")
	require.NoError(t, err)

	result, err := loop.Send(context.Background(), id, "What is 2 + 2?")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", result.Reply.Text)
	assert.Equal(t, 1, result.Steps)

	require.NoError(t, loop.EndSession(context.Background(), id))
}

func TestAgentLoop_StreamingSend(t *testing.T) {
	scripted := model.NewScriptedModel("test").AddText("hey")

	loop := New(scripted, func(o *Options) {
		o.Mode = model.ModeStream
	})
	defer loop.Close(context.Background())

	id, err := loop.StartSession(context.Background(), "")
	require.NoError(t, err)

	var streamed string
	result, err := loop.SendStream(context.Background(), id, "hello", func(d string) {
		streamed += d
	})
	require.NoError(t, err)
	assert.Equal(t, "hey", result.Reply.Text)
	assert.Equal(t, "hey", streamed)
}
