package provider

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/memory"
)

// NewRememberTool exposes explicit long-term writes to the model. Invoking it
// persists the given text so later sessions can retrieve it.
func NewRememberTool(store *memory.LongTermStore) *FunctionTool {
	return NewFunctionTool(
		"remember",
		"Save an important fact to long-term memory so it can be recalled in future conversations.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "The fact to remember, phrased as a standalone statement.",
				},
			},
			"required": []string{"text"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			text, _ := args["text"].(string)
			if text == "" {
				return nil, fmt.Errorf("text must be a non-empty string")
			}

			id, err := store.Write(ctx, text, map[string]any{"kind": "remember"})
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": id, "stored": true}, nil
		},
	)
}

// NewRecallTool exposes similarity search over long-term memory to the model.
func NewRecallTool(store *memory.LongTermStore) *FunctionTool {
	return NewFunctionTool(
		"recall",
		"Search long-term memory for facts relevant to a query.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results. Defaults to 3.",
				},
			},
			"required": []string{"query"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("query must be a non-empty string")
			}

			limit := 3
			if v, ok := args["limit"].(float64); ok && v > 0 {
				limit = int(v)
			}

			records, err := store.Retrieve(ctx, query, limit)
			if err != nil {
				return nil, err
			}

			out := make([]map[string]any, 0, len(records))
			for _, rec := range records {
				out = append(out, map[string]any{
					"content": rec.Content,
					"score":   rec.Score,
				})
			}
			return out, nil
		},
	)
}
