package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/memory"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestMemoryTools_RememberAndRecall(t *testing.T) {
	vs := memory.NewInMemoryVectorStore()
	store := memory.NewLongTermStore(fixedEmbedder{}, vs)

	p := NewLocalProvider("memory")
	p.AddTool(NewRememberTool(store))
	p.AddTool(NewRecallTool(store))

	out, err := p.Invoke(context.Background(), "remember", map[string]any{"text": "the deploy password is in vault"})
	require.NoError(t, err)
	stored, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, stored["stored"])
	assert.Equal(t, 1, vs.Len())

	out, err = p.Invoke(context.Background(), "recall", map[string]any{"query": "deploy password", "limit": float64(5)})
	require.NoError(t, err)
	hits, ok := out.([]map[string]any)
	require.True(t, ok)
	require.Len(t, hits, 1)
	assert.Equal(t, "the deploy password is in vault", hits[0]["content"])
}

func TestMemoryTools_RememberRejectsEmptyText(t *testing.T) {
	store := memory.NewLongTermStore(fixedEmbedder{}, memory.NewInMemoryVectorStore())

	p := NewLocalProvider("memory")
	p.AddTool(NewRememberTool(store))

	_, err := p.Invoke(context.Background(), "remember", map[string]any{"text": ""})
	assert.Error(t, err)
}
