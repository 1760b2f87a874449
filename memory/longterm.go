package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
)

// MemoryRecord is one persisted long-term fact. Records are never mutated in
// place; an update is a new record superseding the old one by convention.
type MemoryRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ScoredRecord pairs a record with its similarity score for one query.
type ScoredRecord struct {
	MemoryRecord
	Score float64 `json:"score"`
}

// Embedder is the external embedding capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the external similarity-search capability. Query returns
// at most k records ordered by non-increasing score, ties broken by recency.
type VectorStore interface {
	Upsert(ctx context.Context, rec MemoryRecord) error
	Query(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error)
}

// LongTermOptions configure a LongTermStore.
type LongTermOptions struct {
	// Logger receives write/retrieve events.
	Logger logging.Logger
}

// LongTermStore is the persistent, similarity-searchable memory tier. It
// embeds text via the Embedder and delegates storage to the VectorStore.
// Writes are idempotent only when the caller supplies a stable id; the store
// never deduplicates by content.
type LongTermStore struct {
	embedder Embedder
	store    VectorStore
	logger   logging.Logger
}

// NewLongTermStore wires an embedder and a vector store together.
func NewLongTermStore(embedder Embedder, store VectorStore, optFns ...func(o *LongTermOptions)) *LongTermStore {
	opts := LongTermOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LongTermStore{embedder: embedder, store: store, logger: opts.Logger}
}

// Write embeds text and upserts a new record under a generated id.
func (s *LongTermStore) Write(ctx context.Context, text string, metadata map[string]any) (string, error) {
	return s.WriteWithID(ctx, util.NewID(), text, metadata)
}

// WriteWithID embeds text and upserts a record under the caller's stable id,
// making the write idempotent at the application level.
func (s *LongTermStore) WriteWithID(ctx context.Context, id, text string, metadata map[string]any) (string, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed memory text: %w", err)
	}

	rec := MemoryRecord{
		ID:        id,
		Embedding: vector,
		Content:   text,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return "", fmt.Errorf("upsert memory record: %w", err)
	}

	s.logger.Debug("memory.longterm.write", "id", id, "chars", len(text))

	return id, nil
}

// Retrieve embeds the query and returns the top-k records by descending
// similarity.
func (s *LongTermStore) Retrieve(ctx context.Context, query string, k int) ([]ScoredRecord, error) {
	if k <= 0 {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	records, err := s.store.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("query memory records: %w", err)
	}

	s.logger.Debug("memory.longterm.retrieve", "query_chars", len(query), "hits", len(records))

	return records, nil
}
