package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakePeer struct {
	name      string
	tools     []*mcp.Tool
	resources []*mcp.Resource
	templates []*mcp.ResourceTemplate
	prompts   []*mcp.Prompt

	listErr    error
	beforeList func()

	toolFetches     atomic.Int32
	resourceFetches atomic.Int32
	templateFetches atomic.Int32
	promptFetches   atomic.Int32

	callErr error

	mu          sync.Mutex
	toolCalls   []string
	reads       []string
	promptCalls []string
}

func (f *fakePeer) Name() string { return f.name }

func (f *fakePeer) ListTools(context.Context) ([]*mcp.Tool, error) {
	f.toolFetches.Add(1)
	if f.beforeList != nil {
		f.beforeList()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakePeer) ListResources(context.Context) ([]*mcp.Resource, error) {
	f.resourceFetches.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.resources, nil
}

func (f *fakePeer) ListResourceTemplates(context.Context) ([]*mcp.ResourceTemplate, error) {
	f.templateFetches.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.templates, nil
}

func (f *fakePeer) ListPrompts(context.Context) ([]*mcp.Prompt, error) {
	f.promptFetches.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.prompts, nil
}

func (f *fakePeer) CallTool(_ context.Context, name string, _ any) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.toolCalls = append(f.toolCalls, name)
	f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s handled %s", f.name, name)}},
	}, nil
}

func (f *fakePeer) ReadResource(_ context.Context, uri string) (*mcp.ReadResourceResult, error) {
	f.mu.Lock()
	f.reads = append(f.reads, uri)
	f.mu.Unlock()
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "text/plain", Text: f.name}},
	}, nil
}

func (f *fakePeer) GetPrompt(_ context.Context, name string, _ map[string]string) (*mcp.GetPromptResult, error) {
	f.mu.Lock()
	f.promptCalls = append(f.promptCalls, name)
	f.mu.Unlock()
	return &mcp.GetPromptResult{
		Messages: []*mcp.PromptMessage{{Role: "user", Content: &mcp.TextContent{Text: f.name}}},
	}, nil
}

func tool(name string) *mcp.Tool { return &mcp.Tool{Name: name} }

func TestListToolsBuildsOnce(t *testing.T) {
	peer := &fakePeer{name: "alpha", tools: []*mcp.Tool{tool("greet"), tool("wave")}}
	p := New([]Peer{peer}, nil)
	ctx := context.Background()

	first, err := p.ListTools(ctx)
	if err != nil {
		t.Fatalf("first ListTools: %v", err)
	}
	second, err := p.ListTools(ctx)
	if err != nil {
		t.Fatalf("second ListTools: %v", err)
	}
	if got := peer.toolFetches.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("unexpected catalog sizes: %d, %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Name != second[i].Name {
			t.Fatalf("catalogs differ at %d: %s vs %s", i, first[i].Name, second[i].Name)
		}
	}
}

func TestConcurrentCallersShareOneBuild(t *testing.T) {
	peer := &fakePeer{name: "alpha", tools: []*mcp.Tool{tool("greet")}}
	p := New([]Peer{peer}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.ListTools(ctx); err != nil {
				t.Errorf("ListTools: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := peer.toolFetches.Load(); got != 1 {
		t.Fatalf("expected a single fetch across concurrent callers, got %d", got)
	}
}

func TestCollisionFollowsConfiguredOrder(t *testing.T) {
	// B answers before A to prove precedence is configuration order, not
	// fetch completion order.
	bDone := make(chan struct{})
	a := &fakePeer{name: "a", tools: []*mcp.Tool{tool("x")}, beforeList: func() { <-bDone }}
	b := &fakePeer{name: "b", tools: []*mcp.Tool{tool("x")}, beforeList: func() { close(bDone) }}
	p := New([]Peer{a, b}, nil)
	ctx := context.Background()

	tools, err := p.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected collision to collapse to one tool, got %d", len(tools))
	}
	if _, err := p.CallTool(ctx, "x", nil); err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(a.toolCalls) != 1 {
		t.Fatalf("expected first-configured peer to own the tool, a=%v b=%v", a.toolCalls, b.toolCalls)
	}
	if len(b.toolCalls) != 0 {
		t.Fatalf("later peer should not receive the call, got %v", b.toolCalls)
	}
}

func TestPeerFailureIsIsolated(t *testing.T) {
	a := &fakePeer{name: "a", tools: []*mcp.Tool{tool("greet")}}
	b := &fakePeer{name: "b", listErr: errors.New("connection refused")}
	p := New([]Peer{a, b}, nil)

	tools, err := p.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools should not fail on partial upstream failure: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "greet" {
		t.Fatalf("expected only the healthy peer's tools, got %+v", tools)
	}
}

func TestTotalFailureYieldsEmptyCatalog(t *testing.T) {
	a := &fakePeer{name: "a", listErr: errors.New("down")}
	b := &fakePeer{name: "b", listErr: errors.New("also down")}
	p := New([]Peer{a, b}, nil)
	ctx := context.Background()

	tools, err := p.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools should not fail on total upstream failure: %v", err)
	}
	if len(tools) != 0 {
		t.Fatalf("expected empty catalog, got %d tools", len(tools))
	}

	// The empty epoch is complete; another list must not trigger a rebuild.
	if _, err := p.ListTools(ctx); err != nil {
		t.Fatalf("second ListTools: %v", err)
	}
	if got := a.toolFetches.Load(); got != 1 {
		t.Fatalf("empty epoch was rebuilt, %d fetches", got)
	}

	_, err = p.CallTool(ctx, "greet", nil)
	var unknown *UnknownCapabilityError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownCapabilityError, got %v", err)
	}
	if unknown.Kind != KindTool || unknown.Key != "greet" {
		t.Fatalf("unexpected error detail: %+v", unknown)
	}
}

func TestReadResourceStaticBeforeTemplate(t *testing.T) {
	static := &fakePeer{name: "static", resources: []*mcp.Resource{{URI: "data://users"}}}
	templated := &fakePeer{name: "templated", templates: []*mcp.ResourceTemplate{{URITemplate: "data://user/{id}"}}}
	p := New([]Peer{static, templated}, nil)
	ctx := context.Background()

	if _, err := p.ReadResource(ctx, "data://users"); err != nil {
		t.Fatalf("static read: %v", err)
	}
	if len(static.reads) != 1 || static.reads[0] != "data://users" {
		t.Fatalf("static resource not served by its owner: %v", static.reads)
	}
	if len(templated.reads) != 0 {
		t.Fatalf("template peer should not have served a static read: %v", templated.reads)
	}

	if _, err := p.ReadResource(ctx, "data://user/42"); err != nil {
		t.Fatalf("template read: %v", err)
	}
	if len(templated.reads) != 1 || templated.reads[0] != "data://user/42" {
		t.Fatalf("template owner should receive the concrete URI, got %v", templated.reads)
	}

	_, err := p.ReadResource(ctx, "data://missing/thing/extra")
	var unknown *UnknownCapabilityError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownCapabilityError for unmatched URI, got %v", err)
	}
	if unknown.Kind != KindResource {
		t.Fatalf("unexpected kind %q", unknown.Kind)
	}
}

func TestDelegateErrorPassesThrough(t *testing.T) {
	upstreamErr := errors.New("tool exploded upstream")
	peer := &fakePeer{name: "a", tools: []*mcp.Tool{tool("greet")}, callErr: upstreamErr}
	p := New([]Peer{peer}, nil)

	_, err := p.CallTool(context.Background(), "greet", map[string]any{"name": "Ada"})
	if !errors.Is(err, upstreamErr) {
		t.Fatalf("expected upstream error to pass through, got %v", err)
	}
	var unknown *UnknownCapabilityError
	if errors.As(err, &unknown) {
		t.Fatalf("delegation failure must not be reported as a routing miss")
	}
}

func TestUnknownPromptAndKnownPromptRouting(t *testing.T) {
	peer := &fakePeer{name: "a", prompts: []*mcp.Prompt{{Name: "summarize-notes"}}}
	p := New([]Peer{peer}, nil)
	ctx := context.Background()

	if _, err := p.GetPrompt(ctx, "summarize-notes", map[string]string{"style": "brief"}); err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if len(peer.promptCalls) != 1 {
		t.Fatalf("prompt not delegated: %v", peer.promptCalls)
	}

	_, err := p.GetPrompt(ctx, "nonexistent", nil)
	var unknown *UnknownCapabilityError
	if !errors.As(err, &unknown) || unknown.Kind != KindPrompt {
		t.Fatalf("expected prompt routing miss, got %v", err)
	}
}

func TestThreePeerScenario(t *testing.T) {
	a := &fakePeer{name: "a", tools: []*mcp.Tool{tool("greet")}}
	b := &fakePeer{name: "b", tools: []*mcp.Tool{tool("search")}}
	c := &fakePeer{name: "c", tools: []*mcp.Tool{tool("greet"), tool("summarize")}}
	p := New([]Peer{a, b, c}, nil)
	ctx := context.Background()

	tools, err := p.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make([]string, len(tools))
	for i, tl := range tools {
		names[i] = tl.Name
	}
	want := []string{"greet", "search", "summarize"}
	if len(names) != len(want) {
		t.Fatalf("aggregated tools = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("aggregated tools = %v, want %v", names, want)
		}
	}

	if _, err := p.CallTool(ctx, "greet", nil); err != nil {
		t.Fatalf("CallTool greet: %v", err)
	}
	if len(a.toolCalls) != 1 || len(c.toolCalls) != 0 {
		t.Fatalf("greet should route to a, got a=%v c=%v", a.toolCalls, c.toolCalls)
	}
	if _, err := p.CallTool(ctx, "summarize", nil); err != nil {
		t.Fatalf("CallTool summarize: %v", err)
	}
	if len(c.toolCalls) != 1 {
		t.Fatalf("summarize should route to c, got %v", c.toolCalls)
	}
}

func TestInvalidateTriggersRebuild(t *testing.T) {
	peer := &fakePeer{name: "a", tools: []*mcp.Tool{tool("greet")}}
	p := New([]Peer{peer}, nil)
	ctx := context.Background()

	if _, err := p.ListTools(ctx); err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	p.Invalidate(KindTool)
	if _, err := p.ListTools(ctx); err != nil {
		t.Fatalf("ListTools after invalidate: %v", err)
	}
	if got := peer.toolFetches.Load(); got != 2 {
		t.Fatalf("expected rebuild after invalidate, got %d fetches", got)
	}

	// Other kinds keep their epochs.
	if _, err := p.ListPrompts(ctx); err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	p.Invalidate(KindTool)
	if _, err := p.ListPrompts(ctx); err != nil {
		t.Fatalf("ListPrompts after tool invalidate: %v", err)
	}
	if got := peer.promptFetches.Load(); got != 1 {
		t.Fatalf("prompt catalog should be untouched by tool invalidate, got %d fetches", got)
	}
}
