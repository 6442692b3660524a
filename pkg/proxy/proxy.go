package proxy

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Peer is one live connection to one upstream MCP server. The proxy only
// needs catalog discovery and delegation; connection lifecycle belongs to the
// implementation (see pkg/upstream).
type Peer interface {
	Name() string

	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	ListResources(ctx context.Context) ([]*mcp.Resource, error)
	ListResourceTemplates(ctx context.Context) ([]*mcp.ResourceTemplate, error)
	ListPrompts(ctx context.Context) ([]*mcp.Prompt, error)

	CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
}

// Proxy merges the capabilities of an ordered peer set and dispatches
// invocations to the owning peer. It holds one lazily built catalog per
// capability kind; list order in the configuration is the sole tie-break for
// duplicate names and URIs.
type Proxy struct {
	peers []Peer
	opts  Options

	tools     *catalog[*mcp.Tool]
	resources *catalog[*mcp.Resource]
	templates *catalog[*mcp.ResourceTemplate]
	prompts   *catalog[*mcp.Prompt]
}

// New builds a Proxy over peers. The slice order is the collision precedence
// order and is retained for the proxy's lifetime; peers that fail a catalog
// fetch stay in the set and are retried after an Invalidate.
func New(peers []Peer, opts *Options) *Proxy {
	options := opts.withDefaults()
	p := &Proxy{peers: peers, opts: options}
	log := options.Logger
	p.tools = newCatalog(KindTool, peers,
		func(ctx context.Context, peer Peer) ([]*mcp.Tool, error) { return peer.ListTools(ctx) },
		func(t *mcp.Tool) string { return t.Name },
		options.FetchTimeout, log)
	p.resources = newCatalog(KindResource, peers,
		func(ctx context.Context, peer Peer) ([]*mcp.Resource, error) { return peer.ListResources(ctx) },
		func(r *mcp.Resource) string { return r.URI },
		options.FetchTimeout, log)
	p.templates = newCatalog(KindResourceTemplate, peers,
		func(ctx context.Context, peer Peer) ([]*mcp.ResourceTemplate, error) {
			return peer.ListResourceTemplates(ctx)
		},
		func(t *mcp.ResourceTemplate) string { return t.URITemplate },
		options.FetchTimeout, log)
	p.prompts = newCatalog(KindPrompt, peers,
		func(ctx context.Context, peer Peer) ([]*mcp.Prompt, error) { return peer.ListPrompts(ctx) },
		func(pr *mcp.Prompt) string { return pr.Name },
		options.FetchTimeout, log)
	return p
}

// ListTools returns the aggregated tool catalog in precedence order, building
// it on first use. Partial or total upstream failure yields a shorter or
// empty list, never an error.
func (p *Proxy) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	entries, order, err := p.tools.get(ctx)
	if err != nil {
		return nil, err
	}
	return collect(entries, order), nil
}

// ListResources returns the aggregated static resource catalog.
func (p *Proxy) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	entries, order, err := p.resources.get(ctx)
	if err != nil {
		return nil, err
	}
	return collect(entries, order), nil
}

// ListResourceTemplates returns the aggregated resource template catalog.
func (p *Proxy) ListResourceTemplates(ctx context.Context) ([]*mcp.ResourceTemplate, error) {
	entries, order, err := p.templates.get(ctx)
	if err != nil {
		return nil, err
	}
	return collect(entries, order), nil
}

// ListPrompts returns the aggregated prompt catalog.
func (p *Proxy) ListPrompts(ctx context.Context) ([]*mcp.Prompt, error) {
	entries, order, err := p.prompts.get(ctx)
	if err != nil {
		return nil, err
	}
	return collect(entries, order), nil
}

// CallTool delegates a tool call to the peer that owns name. Arguments and
// the result pass through untouched; an error from the owning peer is
// returned as-is, while a missing name yields *UnknownCapabilityError.
func (p *Proxy) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	entries, _, err := p.tools.get(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := entries[name]
	if !ok {
		return nil, &UnknownCapabilityError{Kind: KindTool, Key: name}
	}
	p.opts.Logger.Debug("delegating tool call", "tool", name, "peer", e.peer.Name())
	return e.peer.CallTool(ctx, name, args)
}

// ReadResource delegates a resource read. Exact static matches always win;
// template matching runs only on a static miss, and the concrete URI is
// forwarded to the template's owner. A miss on both paths yields
// *UnknownCapabilityError.
func (p *Proxy) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	static, _, err := p.resources.get(ctx)
	if err != nil {
		return nil, err
	}
	if e, ok := static[uri]; ok {
		p.opts.Logger.Debug("delegating resource read", "uri", uri, "peer", e.peer.Name())
		return e.peer.ReadResource(ctx, uri)
	}

	templates, order, err := p.templates.get(ctx)
	if err != nil {
		return nil, err
	}
	if e, ok := matchTemplate(templates, order, uri, p.opts.Logger); ok {
		p.opts.Logger.Debug("delegating resource read via template",
			"uri", uri, "template", e.descriptor.URITemplate, "peer", e.peer.Name())
		return e.peer.ReadResource(ctx, uri)
	}
	return nil, &UnknownCapabilityError{Kind: KindResource, Key: uri}
}

// GetPrompt delegates a prompt render to the peer that owns name.
func (p *Proxy) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	entries, _, err := p.prompts.get(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := entries[name]
	if !ok {
		return nil, &UnknownCapabilityError{Kind: KindPrompt, Key: name}
	}
	p.opts.Logger.Debug("delegating prompt render", "prompt", name, "peer", e.peer.Name())
	return e.peer.GetPrompt(ctx, name, args)
}

// Invalidate resets the named capability catalogs (all of them when none are
// named) so the next use re-discovers upstream capabilities, for example
// after a peer was restored.
func (p *Proxy) Invalidate(kinds ...Kind) {
	if len(kinds) == 0 {
		kinds = []Kind{KindTool, KindResource, KindResourceTemplate, KindPrompt}
	}
	for _, kind := range kinds {
		switch kind {
		case KindTool:
			p.tools.invalidate()
		case KindResource:
			p.resources.invalidate()
		case KindResourceTemplate:
			p.templates.invalidate()
		case KindPrompt:
			p.prompts.invalidate()
		}
	}
}

func collect[D any](entries map[string]entry[D], order []string) []D {
	out := make([]D, 0, len(order))
	for _, key := range order {
		out = append(out, entries[key].descriptor)
	}
	return out
}
