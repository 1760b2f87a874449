// Package agent implements the decision/execution loop: Deliberate with the
// augmented model, Act on requested tool calls through the registry, fold
// results back into short-term memory and repeat until a final reply or the
// step budget is exhausted.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/registry"
)

// PersistencePolicy controls what the engine writes to long-term memory
// when a run finalizes.
type PersistencePolicy string

const (
	// PersistNone writes nothing at finalization. The model can still write
	// explicitly through a remember tool.
	PersistNone PersistencePolicy = "none"
	// PersistFinalExchange writes a record pairing the user request with the
	// final answer.
	PersistFinalExchange PersistencePolicy = "final_exchange"
)

// Options configure an Engine.
type Options struct {
	// MaxSteps bounds Deliberate->Act cycles per run.
	MaxSteps int
	// Mode selects the final reply contract (text, structured, stream).
	Mode model.Mode
	// ResponseSchema is required for model.ModeStructured.
	ResponseSchema map[string]any
	// MaxParallelTools caps concurrent tool dispatches within one Act step.
	// 0 means no explicit limit.
	MaxParallelTools int
	// RetrieveTopK injects that many long-term memories before the first
	// deliberation. 0 disables retrieval.
	RetrieveTopK int
	// Persistence selects the finalization write policy.
	Persistence PersistencePolicy
	// Logger receives loop lifecycle events.
	Logger logging.Logger
}

// Engine drives one session's loop. It holds only configuration and
// dependencies, never per-run state, so a single Engine serves any number of
// concurrent sessions.
type Engine struct {
	model    *model.AugmentedModel
	registry *registry.Registry
	longTerm *memory.LongTermStore // optional

	maxSteps         int
	mode             model.Mode
	responseSchema   map[string]any
	maxParallelTools int
	retrieveTopK     int
	persistence      PersistencePolicy
	logger           logging.Logger
}

// Result is the outcome of one run. BudgetExceeded flags a best-effort
// partial answer produced because the step cap was hit.
type Result struct {
	Reply          *model.Reply
	Steps          int
	BudgetExceeded bool
}

// New constructs an Engine. The long-term store may be nil when neither
// retrieval nor persistence is wanted.
func New(am *model.AugmentedModel, reg *registry.Registry, longTerm *memory.LongTermStore, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxSteps:    10,
		Mode:        model.ModeText,
		Persistence: PersistNone,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		model:            am,
		registry:         reg,
		longTerm:         longTerm,
		maxSteps:         opts.MaxSteps,
		mode:             opts.Mode,
		responseSchema:   opts.ResponseSchema,
		maxParallelTools: opts.MaxParallelTools,
		retrieveTopK:     opts.RetrieveTopK,
		persistence:      opts.Persistence,
		logger:           opts.Logger,
	}
}

// Run executes the loop for one user turn against the given short-term
// buffer. onDelta receives streamed text deltas when the engine runs in
// model.ModeStream; it may be nil otherwise.
//
// Transition rules are deterministic given a reply's tag: ToolCalls moves
// to Act, anything terminal moves to Finalize. Tool-level failures are fed
// back to the model as failed ToolResults; only model-interface failures
// (provider exhausted retries, structured contract broken after one
// corrective retry) abort the run.
func (e *Engine) Run(ctx context.Context, buf *memory.ShortTermBuffer, userText string, onDelta func(string)) (*Result, error) {
	// Start: seed the window with the user request, optionally preceded by
	// retrieved long-term context.
	if err := e.injectRetrieval(ctx, buf, userText); err != nil {
		return nil, err
	}
	if err := buf.Append(ctx, core.NewUserMessage(userText)); err != nil {
		return nil, err
	}

	limiter := core.NewStepLimiter(e.maxSteps)
	catalog := e.registry.Catalog(core.KindTool)
	correctiveUsed := false
	var lastText string

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reply, err := e.deliberate(ctx, buf.Window(), catalog, onDelta, &correctiveUsed)
		if err != nil {
			return nil, err
		}
		if reply.Text != "" {
			lastText = reply.Text
		}

		if err := buf.Append(ctx, reply.Message()); err != nil {
			return nil, err
		}

		if reply.Kind != model.ReplyToolCalls {
			e.finalize(ctx, userText, reply)
			return &Result{Reply: reply, Steps: limiter.Count()}, nil
		}

		if err := limiter.Increment(); err != nil {
			return e.finalizeExceeded(ctx, buf, userText, lastText, reply.ToolCalls, limiter.Count()-1)
		}

		results, err := e.act(ctx, reply.ToolCalls)
		if err != nil {
			// Cancelled mid-act: partial results are discarded, never
			// appended or persisted.
			return nil, err
		}
		for _, res := range results {
			if err := buf.Append(ctx, core.NewToolResultMessage(res)); err != nil {
				return nil, err
			}
		}
	}
}

// finalizeExceeded forces Finalize when the step cap is hit: the dangling
// tool calls get synthesized failed results so the window never ends on an
// unanswered assistant tool-call message, and the best text produced so far
// becomes the partial answer.
func (e *Engine) finalizeExceeded(
	ctx context.Context,
	buf *memory.ShortTermBuffer,
	userText, lastText string,
	calls []core.ToolCallRequest,
	steps int,
) (*Result, error) {
	e.logger.Warn("agent.loop.budget_exceeded", "steps", steps)

	for _, call := range calls {
		res := core.ToolResult{
			ID:      call.ID,
			Name:    call.Name,
			Success: false,
			Error:   fmt.Sprintf("[%s] not executed: step budget exhausted", core.CodeInvocationError),
		}
		if err := buf.Append(ctx, core.NewToolResultMessage(res)); err != nil {
			return nil, err
		}
	}

	partial := &model.Reply{Kind: model.ReplyFinalText, Text: lastText}
	e.finalize(ctx, userText, partial)

	return &Result{Reply: partial, Steps: steps, BudgetExceeded: true}, nil
}

// injectRetrieval prepends relevant long-term memories as a synthetic
// system message. Retrieval augments the window; it never overwrites it.
func (e *Engine) injectRetrieval(ctx context.Context, buf *memory.ShortTermBuffer, userText string) error {
	if e.retrieveTopK <= 0 || e.longTerm == nil {
		return nil
	}

	records, err := e.longTerm.Retrieve(ctx, userText, e.retrieveTopK)
	if err != nil {
		// Retrieval is best effort; a degraded memory backend must not
		// block the session.
		e.logger.Warn("agent.retrieval.failed", "error", err.Error())
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Relevant information from long-term memory:")
	for _, rec := range records {
		sb.WriteString("\n- ")
		sb.WriteString(rec.Content)
	}

	return buf.Append(ctx, core.NewSystemMessage(sb.String()))
}

// deliberate performs one augmented model call, applying the single
// corrective retry for malformed structured output.
func (e *Engine) deliberate(
	ctx context.Context,
	window []core.Message,
	catalog []core.ToolSchema,
	onDelta func(string),
	correctiveUsed *bool,
) (*model.Reply, error) {
	in := model.GenerateInput{
		Messages:       window,
		Tools:          catalog,
		Mode:           e.mode,
		ResponseSchema: e.responseSchema,
		OnDelta:        onDelta,
	}

	reply, err := e.model.Generate(ctx, in)
	if err == nil {
		return reply, nil
	}

	var malformed *core.MalformedOutputError
	if errors.As(err, &malformed) && !*correctiveUsed {
		*correctiveUsed = true
		e.logger.Warn("agent.deliberate.malformed_output", "error", malformed.Error())

		corrective := core.NewSystemMessage(fmt.Sprintf(
			"Your previous reply was not a valid JSON object for the required schema (%v). Respond again with only the JSON object.",
			malformed.Err,
		))
		in.Messages = append(append([]core.Message{}, window...), corrective)
		return e.model.Generate(ctx, in)
	}

	return nil, err
}

// act dispatches the requested tool calls, concurrently across providers,
// and returns results in the original request order so the conversation
// stays causally readable for the model. Same-provider serialization is
// enforced inside the registry.
func (e *Engine) act(ctx context.Context, calls []core.ToolCallRequest) ([]core.ToolResult, error) {
	n := len(calls)
	if n == 1 {
		res := e.registry.Dispatch(ctx, calls[0])
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []core.ToolResult{res}, nil
	}

	maxPar := e.maxParallelTools
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.ToolResult, n)
	sem := make(chan struct{}, maxPar)
	var wg sync.WaitGroup

	for i := range calls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCallRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.registry.Dispatch(ctx, call)
		}(i, calls[i])
	}

	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return results, nil
}

// finalize applies the persistence policy. Failures are logged, not fatal;
// the final answer is already produced.
func (e *Engine) finalize(ctx context.Context, userText string, reply *model.Reply) {
	if e.persistence != PersistFinalExchange || e.longTerm == nil {
		return
	}

	answer := reply.Text
	if reply.Kind == model.ReplyStructured {
		answer = string(reply.Structured)
	}
	if answer == "" {
		return
	}

	record := fmt.Sprintf("User asked: %s\nAssistant answered: %s", userText, answer)
	if _, err := e.longTerm.Write(ctx, record, map[string]any{"kind": "final_exchange"}); err != nil {
		e.logger.Warn("agent.finalize.persist_failed", "error", err.Error())
	}
}
