// Package mcp implements a remote capability provider backed by the Model
// Context Protocol. One Provider wraps one MCP server connection and exposes
// its tools, resources and prompts through the core.CapabilityProvider
// contract. Connections are established lazily on first use and can be
// re-established after transient failures via Reconnect.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// Options configure an MCP provider.
type Options struct {
	// Logger receives connection lifecycle events.
	Logger logging.Logger
	// ClientName identifies this client in the MCP handshake.
	ClientName string
	// ClientVersion identifies the client version in the MCP handshake.
	ClientVersion string
}

// Provider connects to one remote MCP server. It implements
// core.CapabilityProvider and core.Reconnecter.
//
// Transport specs:
//   - "stdio://<command and args>" launches a subprocess server
//   - "sse://<endpoint>" uses the SSE transport
//   - "http(s)://<endpoint>" uses the streamable HTTP transport
type Provider struct {
	name   string
	spec   string
	logger logging.Logger
	impl   *mcpsdk.Implementation

	mu      sync.Mutex
	session *mcpsdk.ClientSession

	// kind routing built during List; guarded by mu.
	kinds        map[string]core.CapabilityKind
	resourceURIs map[string]string
}

// New constructs a provider for the given alias and transport spec. No
// connection is made until the first List or Invoke.
func New(name, spec string, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		ClientName:    "agentloop",
		ClientVersion: "dev",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{
		name:         name,
		spec:         spec,
		logger:       opts.Logger,
		impl:         &mcpsdk.Implementation{Name: opts.ClientName, Version: opts.ClientVersion},
		kinds:        make(map[string]core.CapabilityKind),
		resourceURIs: make(map[string]string),
	}
}

// Name returns the provider alias used for collision resolution.
func (p *Provider) Name() string { return p.name }

// ensureConnectedLocked establishes the session if needed. Caller holds p.mu.
func (p *Provider) ensureConnectedLocked(ctx context.Context) error {
	if p.session != nil {
		return nil
	}

	transport, err := buildTransport(ctx, p.spec)
	if err != nil {
		return fmt.Errorf("mcp provider %s: %w", p.name, err)
	}

	client := mcpsdk.NewClient(p.impl, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp provider %s: connect: %w", p.name, err)
	}

	p.session = session
	p.logger.Info("mcp.provider.connected", "provider", p.name, "spec", p.spec)

	return nil
}

// List implements core.CapabilityProvider. The handshake and listing are
// re-runnable to support reconnection after transient failure.
func (p *Provider) List(ctx context.Context) ([]core.ToolSchema, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}

	var schemas []core.ToolSchema
	kinds := make(map[string]core.CapabilityKind)
	resourceURIs := make(map[string]string)

	for tool, err := range p.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp provider %s: list tools: %w", p.name, err)
		}
		schemas = append(schemas, core.ToolSchema{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toSchemaMap(tool.InputSchema),
			Kind:        core.KindTool,
		})
		kinds[tool.Name] = core.KindTool
	}

	for resource, err := range p.session.Resources(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp provider %s: list resources: %w", p.name, err)
		}
		schemas = append(schemas, core.ToolSchema{
			Name:        resource.Name,
			Description: resource.Description,
			Kind:        core.KindResource,
		})
		kinds[resource.Name] = core.KindResource
		resourceURIs[resource.Name] = resource.URI
	}

	for prompt, err := range p.session.Prompts(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp provider %s: list prompts: %w", p.name, err)
		}
		schemas = append(schemas, core.ToolSchema{
			Name:        prompt.Name,
			Description: prompt.Description,
			Kind:        core.KindPrompt,
		})
		kinds[prompt.Name] = core.KindPrompt
	}

	p.kinds = kinds
	p.resourceURIs = resourceURIs

	return schemas, nil
}

// Invoke implements core.CapabilityProvider, routing by the capability kind
// recorded during List.
func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	p.mu.Lock()
	if err := p.ensureConnectedLocked(ctx); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	session := p.session
	kind := p.kinds[name]
	uri := p.resourceURIs[name]
	p.mu.Unlock()

	switch kind {
	case core.KindResource:
		res, err := session.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: uri})
		if err != nil {
			return nil, fmt.Errorf("mcp provider %s: read resource %s: %w", p.name, name, err)
		}
		var parts []string
		for _, c := range res.Contents {
			parts = append(parts, c.Text)
		}
		return strings.Join(parts, "\n"), nil
	case core.KindPrompt:
		promptArgs := make(map[string]string, len(args))
		for k, v := range args {
			promptArgs[k] = fmt.Sprintf("%v", v)
		}
		res, err := session.GetPrompt(ctx, &mcpsdk.GetPromptParams{Name: name, Arguments: promptArgs})
		if err != nil {
			return nil, fmt.Errorf("mcp provider %s: get prompt %s: %w", p.name, name, err)
		}
		var parts []string
		for _, m := range res.Messages {
			if tc, ok := m.Content.(*mcpsdk.TextContent); ok {
				parts = append(parts, tc.Text)
			}
		}
		return strings.Join(parts, "\n"), nil
	default:
		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
		if err != nil {
			return nil, fmt.Errorf("mcp provider %s: call %s: %w", p.name, name, err)
		}
		text := contentText(result.Content)
		if result.IsError {
			return nil, core.NewToolError(name, text, core.CodeInvocationError)
		}
		return text, nil
	}
}

// Reconnect implements core.Reconnecter. It drops the current session and
// re-runs the handshake plus listing.
func (p *Provider) Reconnect(ctx context.Context) error {
	p.mu.Lock()
	if p.session != nil {
		_ = p.session.Close()
		p.session = nil
	}
	err := p.ensureConnectedLocked(ctx)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	// Listing must succeed again for routing to be usable.
	if _, err := p.List(ctx); err != nil {
		return err
	}

	p.logger.Info("mcp.provider.reconnected", "provider", p.name)

	return nil
}

// Close implements core.CapabilityProvider. It is idempotent and safe to
// call even if the connection never succeeded.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return err
}

// toSchemaMap converts the SDK's schema representation into the plain map
// form used across the runtime.
func toSchemaMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// contentText flattens tool result content blocks into one text payload.
// Non-text blocks are JSON encoded.
func contentText(blocks []mcpsdk.Content) string {
	var parts []string
	for _, block := range blocks {
		if tc, ok := block.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		if raw, err := json.Marshal(block); err == nil {
			parts = append(parts, string(raw))
		}
	}
	return strings.Join(parts, "\n")
}

const stdioSchemePrefix = "stdio://"

// buildTransport maps a transport spec to a concrete MCP transport.
func buildTransport(ctx context.Context, spec string) (mcpsdk.Transport, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("transport spec is empty")
	}

	lowered := strings.ToLower(spec)
	switch {
	case strings.HasPrefix(lowered, stdioSchemePrefix):
		parts := strings.Fields(spec[len(stdioSchemePrefix):])
		if len(parts) == 0 {
			return nil, fmt.Errorf("stdio command is empty")
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	case strings.HasPrefix(lowered, "sse://"):
		return &mcpsdk.SSEClientTransport{Endpoint: "https://" + spec[len("sse://"):]}, nil
	case strings.HasPrefix(lowered, "http://"), strings.HasPrefix(lowered, "https://"):
		return &mcpsdk.StreamableClientTransport{Endpoint: spec}, nil
	default:
		return nil, fmt.Errorf("unsupported transport spec %q", spec)
	}
}
