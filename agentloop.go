// Package agentloop provides a high-level façade over the loop engine and
// its services (capability registry, memory tiers, session management)
// enabling rapid construction of tool-using agent applications. Most
// applications interact with this package by:
//  1. Creating an AgentLoop via New() around a model adapter
//  2. Registering capability providers (local function tools, MCP servers)
//  3. Starting sessions and exchanging turns via Send / SendStream
//
// The façade delegates orchestration to agent.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a real vector store and a
// structured logger.
package agentloop

import (
	"context"
	"time"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/registry"
	"github.com/hupe1980/agentloop/session"
)

// Options configures the AgentLoop instance.
type Options struct {
	// MaxSteps bounds Deliberate->Act cycles per turn.
	MaxSteps int

	// CallTimeout bounds each dispatched capability call.
	CallTimeout time.Duration

	// Mode selects the final reply contract (text, structured, stream).
	Mode model.Mode

	// ResponseSchema is required when Mode is model.ModeStructured.
	ResponseSchema map[string]any

	// MaxParallelTools caps concurrent tool dispatches within one Act step.
	MaxParallelTools int

	// RetrieveTopK injects that many long-term memories before the first
	// deliberation of each turn. Requires LongTerm.
	RetrieveTopK int

	// Persistence selects the finalization write policy. Requires LongTerm.
	Persistence agent.PersistencePolicy

	// LongTerm is the persistent memory tier. Nil disables retrieval,
	// persistence and the end-of-session summary.
	LongTerm *memory.LongTermStore

	// SummarizeOnEnd persists a model-written summary of each session at
	// EndSession. Requires LongTerm.
	SummarizeOnEnd bool

	// BufferOptions are applied to every new session's short-term buffer.
	BufferOptions []func(o *memory.ShortTermOptions)

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// AgentLoop is the high-level façade aggregating the registry, engine and
// session manager.
type AgentLoop struct {
	registry *registry.Registry
	manager  *session.Manager
}

// New creates a new AgentLoop around the given model with optional overrides.
func New(m model.Model, optFns ...func(o *Options)) *AgentLoop {
	opts := Options{
		MaxSteps:    10,
		CallTimeout: 30 * time.Second,
		Mode:        model.ModeText,
		Persistence: agent.PersistNone,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	reg := registry.New(func(o *registry.Options) {
		o.CallTimeout = opts.CallTimeout
		o.Logger = opts.Logger
	})

	am := model.NewAugmentedModel(m, func(o *model.AugmentedOptions) {
		o.Logger = opts.Logger
	})

	engine := agent.New(am, reg, opts.LongTerm, func(o *agent.Options) {
		o.MaxSteps = opts.MaxSteps
		o.Mode = opts.Mode
		o.ResponseSchema = opts.ResponseSchema
		o.MaxParallelTools = opts.MaxParallelTools
		o.RetrieveTopK = opts.RetrieveTopK
		o.Persistence = opts.Persistence
		o.Logger = opts.Logger
	})

	manager := session.NewManager(engine, func(o *session.ManagerOptions) {
		o.Logger = opts.Logger
		o.BufferOptions = opts.BufferOptions
		if opts.SummarizeOnEnd && opts.LongTerm != nil {
			o.LongTerm = opts.LongTerm
			o.Summarizer = session.ModelSummarizer(am)
		}
	})

	return &AgentLoop{registry: reg, manager: manager}
}

// RegisterProvider merges a capability provider's catalog into the registry.
func (a *AgentLoop) RegisterProvider(ctx context.Context, p core.CapabilityProvider) error {
	return a.registry.Register(ctx, p)
}

// Registry exposes the underlying registry for catalog inspection and
// direct dispatch.
func (a *AgentLoop) Registry() *registry.Registry { return a.registry }

// StartSession creates a session seeded with the system prompt.
func (a *AgentLoop) StartSession(ctx context.Context, systemPrompt string) (string, error) {
	return a.manager.StartSession(ctx, systemPrompt)
}

// Send runs one turn and returns the final result.
func (a *AgentLoop) Send(ctx context.Context, sessionID, text string) (*agent.Result, error) {
	return a.manager.Send(ctx, sessionID, text)
}

// SendStream is Send with final-answer deltas forwarded to onDelta.
func (a *AgentLoop) SendStream(ctx context.Context, sessionID, text string, onDelta func(string)) (*agent.Result, error) {
	return a.manager.SendStream(ctx, sessionID, text, onDelta)
}

// Cancel aborts the session's in-flight turn, if any.
func (a *AgentLoop) Cancel(sessionID string) error {
	return a.manager.Cancel(sessionID)
}

// EndSession tears the session down, running the end-of-session summary
// when configured.
func (a *AgentLoop) EndSession(ctx context.Context, sessionID string) error {
	return a.manager.EndSession(ctx, sessionID)
}

// Close ends all sessions and releases provider connections.
func (a *AgentLoop) Close(ctx context.Context) error {
	if err := a.manager.Close(ctx); err != nil {
		return err
	}
	return a.registry.Close()
}
