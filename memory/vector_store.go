package memory

import (
	"context"
	"math"
	"sort"
	"sync"
)

// InMemoryVectorStore is a process-local VectorStore using cosine similarity
// over a linear scan. Suitable for tests, demos and small long-term stores;
// swap in a real vector database behind the VectorStore interface for
// production retrieval. Safe for concurrent use.
type InMemoryVectorStore struct {
	mu      sync.RWMutex
	records map[string]MemoryRecord
}

// NewInMemoryVectorStore creates an empty in-memory vector store.
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{records: make(map[string]MemoryRecord)}
}

// Upsert stores the record, replacing any existing record with the same id.
func (s *InMemoryVectorStore) Upsert(_ context.Context, rec MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Query returns up to k records ordered by descending cosine similarity,
// ties broken by recency (newest first).
func (s *InMemoryVectorStore) Query(_ context.Context, vector []float32, k int) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]ScoredRecord, 0, len(s.records))
	for _, rec := range s.records {
		scored = append(scored, ScoredRecord{
			MemoryRecord: rec,
			Score:        cosineSimilarity(vector, rec.Embedding),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// Len returns the number of stored records.
func (s *InMemoryVectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
