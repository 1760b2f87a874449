// Package registry unifies capability providers, local and remote, into one
// addressable namespace and routes tool call requests to the owning
// provider. Discovery, collision resolution, per-call timeouts and error
// normalization all live here: a provider failure never escapes to the loop
// engine as anything but a failed ToolResult.
package registry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// Options configure a Registry.
type Options struct {
	// CallTimeout bounds each dispatched capability call.
	CallTimeout time.Duration
	// Logger receives dispatch lifecycle events.
	Logger logging.Logger
}

// Registry owns the merged capability catalog and the provider connections
// behind it. Connections are shared by all calls routed through one Registry
// and released together by Close. All methods are safe for concurrent use.
type Registry struct {
	callTimeout time.Duration
	logger      logging.Logger

	mu        sync.RWMutex
	entries   map[string]*entry
	providers []*providerState
	closed    bool
}

// providerState tracks one registered provider. callMu serializes calls to
// providers whose connection does not support multiplexing.
type providerState struct {
	provider    core.CapabilityProvider
	callMu      sync.Mutex
	serialize   bool
	unavailable bool
}

type entry struct {
	schema core.ToolSchema
	state  *providerState
}

// New constructs an empty Registry with optional overrides.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		CallTimeout: 30 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
		entries:     make(map[string]*entry),
	}
}

// Register lists the provider's catalog and merges it into the namespace.
//
// Collision resolution is deterministic and order-of-registration dependent:
// the first provider to claim a bare name keeps it; a later provider whose
// capability would collide is inserted under "<alias>.<name>" instead. A
// provider listing the same name twice is rejected and leaves nothing
// registered.
func (r *Registry) Register(ctx context.Context, provider core.CapabilityProvider) error {
	schemas, err := provider.List(ctx)
	if err != nil {
		return fmt.Errorf("register provider %s: %w", provider.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("register provider %s: registry closed", provider.Name())
	}

	serialize := true
	if cs, ok := provider.(core.ConcurrencySafeProvider); ok && cs.ConcurrencySafe() {
		serialize = false
	}
	state := &providerState{provider: provider, serialize: serialize}
	r.providers = append(r.providers, state)

	fail := func(err error) error {
		// Roll back the partial registration so a rejected provider leaves
		// no entries behind.
		for name, e := range r.entries {
			if e.state == state {
				delete(r.entries, name)
			}
		}
		r.providers = r.providers[:len(r.providers)-1]
		return err
	}

	for _, schema := range schemas {
		resolved := schema.Name
		if existing, collides := r.entries[resolved]; collides {
			if existing.state == state {
				return fail(fmt.Errorf("register provider %s: duplicate capability name %q", provider.Name(), schema.Name))
			}
			resolved = provider.Name() + "." + schema.Name
		}
		if existing, stillCollides := r.entries[resolved]; stillCollides {
			if existing.state == state {
				return fail(fmt.Errorf("register provider %s: duplicate capability name %q", provider.Name(), resolved))
			}
			return fail(fmt.Errorf("register provider %s: name %q already taken", provider.Name(), resolved))
		}

		schema.Name = resolved
		schema.Provider = provider.Name()
		r.entries[resolved] = &entry{schema: schema, state: state}

		r.logger.Debug("registry.capability.registered",
			"provider", provider.Name(),
			"name", resolved,
			"kind", string(schema.Kind),
		)
	}

	return nil
}

// Catalog returns the merged, de-duplicated capability view. With no kind
// arguments every entry is returned; otherwise entries are filtered to the
// given kinds. Entries from unavailable providers are omitted.
func (r *Registry) Catalog(kinds ...core.CapabilityKind) []core.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := func(k core.CapabilityKind) bool {
		if len(kinds) == 0 {
			return true
		}
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
		return false
	}

	// Deterministic order: provider registration order, then listing order.
	var out []core.ToolSchema
	for _, state := range r.providers {
		if state.unavailable {
			continue
		}
		for _, e := range r.entriesOf(state) {
			if wanted(e.Kind) {
				out = append(out, e)
			}
		}
	}
	return out
}

// entriesOf returns the schemas owned by state in stable name order as they
// were inserted. Caller holds at least the read lock.
func (r *Registry) entriesOf(state *providerState) []core.ToolSchema {
	var out []core.ToolSchema
	for _, e := range r.entries {
		if e.state == state {
			out = append(out, e.schema)
		}
	}
	// Map iteration order is random; sort by name for a stable catalog.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Name < out[j-1].Name; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Dispatch resolves a tool call request to exactly one provider and executes
// it. The returned ToolResult always carries the request's correlation id;
// provider errors, timeouts and unknown names are reported as failed results
// rather than Go errors so the model can adapt.
func (r *Registry) Dispatch(ctx context.Context, req core.ToolCallRequest) core.ToolResult {
	r.mu.RLock()
	e, ok := r.entries[req.Name]
	closed := r.closed
	unavailable := ok && e.state.unavailable
	r.mu.RUnlock()

	if closed {
		return failure(req, core.CodeUnknownTool, "registry closed")
	}
	if !ok {
		return failure(req, core.CodeUnknownTool, fmt.Sprintf("tool %q not found", req.Name))
	}
	if unavailable {
		// Provider lost its connection earlier; fail fast.
		return failure(req, core.CodeUnknownTool, fmt.Sprintf("provider %s unavailable", e.schema.Provider))
	}

	args, err := req.ArgumentMap()
	if err != nil {
		return failure(req, core.CodeValidationError, fmt.Sprintf("invalid arguments: %v", err))
	}

	start := time.Now()
	result := r.invoke(ctx, e, req, args)

	r.logger.Info("registry.dispatch.complete",
		"tool", req.Name,
		"provider", e.schema.Provider,
		"success", result.Success,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result
}

// invoke runs the provider call with timeout, serialization and one
// reconnect attempt for reconnectable providers.
func (r *Registry) invoke(ctx context.Context, e *entry, req core.ToolCallRequest, args map[string]any) core.ToolResult {
	// Resolve back to the provider-local name for aliased entries.
	localName := req.Name
	if prefix := e.schema.Provider + "."; len(localName) > len(prefix) && localName[:len(prefix)] == prefix {
		localName = localName[len(prefix):]
	}

	payload, err := r.callProvider(ctx, e.state, localName, args)
	if err == nil {
		return core.ToolResult{ID: req.ID, Name: req.Name, Success: true, Content: payload}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return failure(req, core.CodeToolTimeout, fmt.Sprintf("tool %q timed out after %s", req.Name, r.callTimeout))
	}
	if ctx.Err() != nil {
		return failure(req, core.CodeInvocationError, ctx.Err().Error())
	}

	var toolErr *core.ToolError
	if errors.As(err, &toolErr) {
		return failure(req, toolErr.Code, toolErr.Message)
	}

	// Possible lost connection: reconnectable providers get one retry.
	if rc, ok := e.state.provider.(core.Reconnecter); ok {
		r.logger.Warn("registry.provider.reconnecting", "provider", e.schema.Provider, "error", err.Error())
		if rcErr := rc.Reconnect(ctx); rcErr != nil {
			r.markUnavailable(e.state)
			r.logger.Error("registry.provider.unavailable", "provider", e.schema.Provider, "error", rcErr.Error())
			return failure(req, core.CodeInvocationError,
				fmt.Sprintf("provider %s disconnected and reconnect failed: %v", e.schema.Provider, rcErr))
		}
		payload, err = r.callProvider(ctx, e.state, localName, args)
		if err == nil {
			return core.ToolResult{ID: req.ID, Name: req.Name, Success: true, Content: payload}
		}
		var retryToolErr *core.ToolError
		if errors.As(err, &retryToolErr) {
			return failure(req, retryToolErr.Code, retryToolErr.Message)
		}
	}

	return failure(req, core.CodeInvocationError, err.Error())
}

// callProvider executes one provider call under the per-call timeout and,
// when required, the per-provider serialization lock. The call runs in its
// own goroutine so a stuck provider yields a timeout instead of a hang.
func (r *Registry) callProvider(ctx context.Context, state *providerState, name string, args map[string]any) (any, error) {
	if state.serialize {
		state.callMu.Lock()
		defer state.callMu.Unlock()
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("provider panic: %v\n%s", rec, debug.Stack())}
			}
		}()
		payload, err := state.provider.Invoke(callCtx, name, args)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case <-callCtx.Done():
		return nil, callCtx.Err()
	case out := <-done:
		return out.payload, out.err
	}
}

func (r *Registry) markUnavailable(state *providerState) {
	r.mu.Lock()
	state.unavailable = true
	r.mu.Unlock()
}

// failure builds a failed ToolResult preserving the correlation id.
func failure(req core.ToolCallRequest, code, message string) core.ToolResult {
	return core.ToolResult{
		ID:      req.ID,
		Name:    req.Name,
		Success: false,
		Error:   fmt.Sprintf("[%s] %s", code, message),
	}
}

// Close releases all provider connections. It is idempotent and safe to
// call even if some connections never succeeded.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	providers := r.providers
	r.mu.Unlock()

	var errs []error
	for _, state := range providers {
		if err := state.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider %s: %w", state.provider.Name(), err))
		}
	}
	return errors.Join(errs...)
}
