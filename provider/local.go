// Package provider implements in-process capability providers: plain Go
// functions, static prompts and readable resources exposed through the
// core.CapabilityProvider contract. Remote providers live in subpackages.
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// LocalOptions configure a LocalProvider.
type LocalOptions struct {
	// Logger receives tool call lifecycle events.
	Logger logging.Logger
}

// LocalProvider hosts in-process capabilities. Registration order is
// preserved in the listed catalog. In-process calls have no shared
// connection, so concurrent invocation is always safe.
type LocalProvider struct {
	name   string
	logger logging.Logger

	mu        sync.RWMutex
	tools     map[string]*FunctionTool
	prompts   map[string]promptEntry
	resources map[string]resourceEntry
	order     []core.ToolSchema
}

type promptEntry struct {
	description string
	template    string
}

type resourceEntry struct {
	description string
	read        func(ctx context.Context) (any, error)
}

// NewLocalProvider constructs an empty local provider with the given alias.
func NewLocalProvider(name string, optFns ...func(o *LocalOptions)) *LocalProvider {
	opts := LocalOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LocalProvider{
		name:      name,
		logger:    opts.Logger,
		tools:     make(map[string]*FunctionTool),
		prompts:   make(map[string]promptEntry),
		resources: make(map[string]resourceEntry),
	}
}

// Name returns the provider alias used for collision resolution.
func (p *LocalProvider) Name() string { return p.name }

// AddTool registers a function tool. Re-adding an existing name replaces it
// in place but keeps its original catalog position.
func (p *LocalProvider) AddTool(t *FunctionTool) *LocalProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.tools[t.Name()]; !exists {
		p.order = append(p.order, core.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
			Kind:        core.KindTool,
		})
	}
	p.tools[t.Name()] = t
	return p
}

// AddPrompt registers a reusable prompt template, invocable by name.
func (p *LocalProvider) AddPrompt(name, description, template string) *LocalProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.prompts[name]; !exists {
		p.order = append(p.order, core.ToolSchema{
			Name:        name,
			Description: description,
			Kind:        core.KindPrompt,
		})
	}
	p.prompts[name] = promptEntry{description: description, template: template}
	return p
}

// AddResource registers a readable resource backed by the given reader.
func (p *LocalProvider) AddResource(name, description string, read func(ctx context.Context) (any, error)) *LocalProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.resources[name]; !exists {
		p.order = append(p.order, core.ToolSchema{
			Name:        name,
			Description: description,
			Kind:        core.KindResource,
		})
	}
	p.resources[name] = resourceEntry{description: description, read: read}
	return p
}

// List implements core.CapabilityProvider.
func (p *LocalProvider) List(_ context.Context) ([]core.ToolSchema, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.ToolSchema, len(p.order))
	copy(out, p.order)
	return out, nil
}

// Invoke implements core.CapabilityProvider, dispatching to the matching
// tool, prompt or resource.
func (p *LocalProvider) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	p.mu.RLock()
	tool, isTool := p.tools[name]
	prompt, isPrompt := p.prompts[name]
	resource, isResource := p.resources[name]
	p.mu.RUnlock()

	switch {
	case isTool:
		return tool.call(ctx, p.logger, args)
	case isPrompt:
		return prompt.template, nil
	case isResource:
		return resource.read(ctx)
	default:
		return nil, core.NewToolError(name, fmt.Sprintf("capability %q not registered", name), core.CodeUnknownTool)
	}
}

// ConcurrencySafe reports that in-process calls may run concurrently.
func (p *LocalProvider) ConcurrencySafe() bool { return true }

// Close implements core.CapabilityProvider; local providers hold no
// connection resources.
func (p *LocalProvider) Close() error { return nil }
