package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
)

// AugmentedOptions configure an AugmentedModel.
type AugmentedOptions struct {
	// MaxRetries bounds retry attempts for provider-level failures.
	MaxRetries int
	// RetryBackoff is the initial delay before a retry; it doubles per attempt.
	RetryBackoff time.Duration
	// Logger receives call lifecycle events.
	Logger logging.Logger
}

// AugmentedModel wraps a raw Model with the reply contract the loop engine
// consumes: tagged replies, stream accumulation, structured-output decoding
// and bounded retry of provider failures. It holds no per-call state and is
// safe for concurrent use.
type AugmentedModel struct {
	model        Model
	maxRetries   int
	retryBackoff time.Duration
	logger       logging.Logger
}

// NewAugmentedModel wraps the given model with optional overrides.
func NewAugmentedModel(m Model, optFns ...func(o *AugmentedOptions)) *AugmentedModel {
	opts := AugmentedOptions{
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &AugmentedModel{
		model:        m,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		logger:       opts.Logger,
	}
}

// Info returns the underlying model's metadata.
func (a *AugmentedModel) Info() Info { return a.model.Info() }

// GenerateInput bundles one augmented call. OnDelta is invoked for each
// partial text chunk when Mode is ModeStream; it must not block.
type GenerateInput struct {
	Messages       []core.Message
	Tools          []core.ToolSchema
	Mode           Mode
	ResponseSchema map[string]any
	OnDelta        func(delta string)
}

// Generate performs one model call and folds the provider's chunk stream
// into a tagged Reply. Provider failures are retried with exponential
// backoff up to MaxRetries before being surfaced as *core.ProviderError.
// In structured mode the final text is repaired, decoded and checked
// against the response schema; failures surface as *core.MalformedOutputError
// so the caller can retry once with a corrective instruction.
func (a *AugmentedModel) Generate(ctx context.Context, in GenerateInput) (*Reply, error) {
	req := Request{
		Messages: in.Messages,
		Tools:    in.Tools,
		Stream:   in.Mode == ModeStream,
	}
	if in.Mode == ModeStructured {
		req.ResponseSchema = in.ResponseSchema
	}

	var lastErr error
	backoff := a.retryBackoff

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Warn("model.call.retry", "attempt", attempt, "error", lastErr.Error())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		final, err := a.collect(ctx, req, in.OnDelta)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		return a.tag(final, in)
	}

	if pe, ok := lastErr.(*core.ProviderError); ok {
		return nil, pe
	}
	return nil, &core.ProviderError{Provider: a.model.Info().Provider, Err: lastErr}
}

// collect drains the provider channels, forwarding deltas and returning the
// terminal chunk.
func (a *AugmentedModel) collect(ctx context.Context, req Request, onDelta func(string)) (*Response, error) {
	start := time.Now()
	respCh, errCh := a.model.Generate(ctx, req)

	var final *Response
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if onDelta != nil && resp.Delta != "" {
					onDelta(resp.Delta)
				}
				continue
			}
			r := resp
			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if final == nil {
		return nil, fmt.Errorf("model returned no terminal response")
	}

	a.logger.Debug("model.call.complete",
		"model", a.model.Info().Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"finish_reason", final.FinishReason,
	)

	return final, nil
}

// tag converts the terminal chunk into a tagged Reply. Tool calls always win
// the tagging; accompanying assistant text is carried along in Text so the
// conversation (and budget-trip partial answers) keep it.
func (a *AugmentedModel) tag(final *Response, in GenerateInput) (*Reply, error) {
	if len(final.Message.ToolCalls) > 0 {
		return &Reply{
			Kind:      ReplyToolCalls,
			Text:      final.Message.Content,
			ToolCalls: final.Message.ToolCalls,
			Usage:     final.Usage,
		}, nil
	}

	if in.Mode == ModeStructured {
		obj, err := decodeStructured(final.Message.Content, in.ResponseSchema)
		if err != nil {
			return nil, err
		}
		return &Reply{Kind: ReplyStructured, Structured: obj, Usage: final.Usage}, nil
	}

	return &Reply{Kind: ReplyFinalText, Text: final.Message.Content, Usage: final.Usage}, nil
}

// decodeStructured repairs common JSON defects in raw model output (stray
// prose, trailing commas, fenced code blocks), decodes the object and
// validates it against the target schema.
func decodeStructured(raw string, schema map[string]any) (json.RawMessage, error) {
	candidate := strings.TrimSpace(raw)

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, &core.MalformedOutputError{Raw: raw, Err: err}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, &core.MalformedOutputError{Raw: raw, Err: err}
	}

	if err := util.ValidateArguments(obj, schema); err != nil {
		return nil, &core.MalformedOutputError{Raw: raw, Err: err}
	}

	return json.RawMessage(repaired), nil
}
