package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapEmbedder returns canned vectors per text, defaulting to a unit vector.
type mapEmbedder struct {
	vectors map[string][]float32
}

func (e *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func TestLongTermStore_WriteAndRetrieve(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{
		"go is great":     {1, 0, 0},
		"cats are fluffy": {0, 1, 0},
		"language?":       {0.9, 0.1, 0},
	}}
	store := NewLongTermStore(embedder, NewInMemoryVectorStore())

	_, err := store.Write(context.Background(), "go is great", map[string]any{"topic": "code"})
	require.NoError(t, err)
	_, err = store.Write(context.Background(), "cats are fluffy", nil)
	require.NoError(t, err)

	records, err := store.Retrieve(context.Background(), "language?", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "go is great", records[0].Content)
	assert.Equal(t, "code", records[0].Metadata["topic"])
	assert.GreaterOrEqual(t, records[0].Score, records[1].Score)
}

func TestLongTermStore_TopKTruncation(t *testing.T) {
	store := NewLongTermStore(&mapEmbedder{}, NewInMemoryVectorStore())

	for _, text := range []string{"a", "b", "c", "d"} {
		_, err := store.Write(context.Background(), text, nil)
		require.NoError(t, err)
	}

	records, err := store.Retrieve(context.Background(), "anything", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLongTermStore_RecencyBreaksTies(t *testing.T) {
	store := NewLongTermStore(&mapEmbedder{}, NewInMemoryVectorStore())

	_, err := store.Write(context.Background(), "older fact", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = store.Write(context.Background(), "newer fact", nil)
	require.NoError(t, err)

	// Identical embeddings, so ordering falls back to recency.
	records, err := store.Retrieve(context.Background(), "fact", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "newer fact", records[0].Content)
}

func TestLongTermStore_WriteWithIDIsIdempotent(t *testing.T) {
	vs := NewInMemoryVectorStore()
	store := NewLongTermStore(&mapEmbedder{}, vs)

	_, err := store.WriteWithID(context.Background(), "fact-1", "first version", nil)
	require.NoError(t, err)
	_, err = store.WriteWithID(context.Background(), "fact-1", "second version", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, vs.Len())

	records, err := store.Retrieve(context.Background(), "version", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "second version", records[0].Content)
}

func TestLongTermStore_RetrieveZeroK(t *testing.T) {
	store := NewLongTermStore(&mapEmbedder{}, NewInMemoryVectorStore())

	records, err := store.Retrieve(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}
