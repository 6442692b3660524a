package proxy

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestServerServesAggregatedCatalogOverHTTP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	greeter := &fakePeer{
		name: "greeter",
		tools: []*mcp.Tool{{
			Name:        "greet",
			Description: "Greet a user by name",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"name": {Type: "string"}},
			},
		}},
		resources: []*mcp.Resource{{URI: "data://users", Name: "users", MIMEType: "application/json"}},
		templates: []*mcp.ResourceTemplate{{URITemplate: "data://user/{id}", Name: "user"}},
	}
	notes := &fakePeer{
		name:    "notes",
		prompts: []*mcp.Prompt{{Name: "summarize-notes", Description: "Summarize stored notes"}},
	}

	opts := &Options{Path: "/mcp"}
	srv := NewServer(New([]Peer{greeter, notes}, opts), opts)
	if err := srv.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	transport := &mcp.StreamableClientTransport{
		Endpoint:   server.URL + "/mcp",
		HTTPClient: server.Client(),
		MaxRetries: 3,
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "proxy-test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		t.Fatalf("connect to proxy: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools via proxy: %v", err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "greet" {
		t.Fatalf("unexpected aggregated tools: %+v", tools.Tools)
	}

	prompts, err := session.ListPrompts(ctx, nil)
	if err != nil {
		t.Fatalf("ListPrompts via proxy: %v", err)
	}
	if len(prompts.Prompts) != 1 || prompts.Prompts[0].Name != "summarize-notes" {
		t.Fatalf("unexpected aggregated prompts: %+v", prompts.Prompts)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "greet",
		Arguments: map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("CallTool via proxy: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok || text.Text != "greeter handled greet" {
		t.Fatalf("unexpected tool result content: %+v", result.Content[0])
	}
	greeter.mu.Lock()
	calls := len(greeter.toolCalls)
	greeter.mu.Unlock()
	if calls != 1 {
		t.Fatalf("tool call not delegated to owning peer, calls=%d", calls)
	}

	static, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "data://users"})
	if err != nil {
		t.Fatalf("ReadResource static via proxy: %v", err)
	}
	if len(static.Contents) != 1 || static.Contents[0].URI != "data://users" {
		t.Fatalf("unexpected static read result: %+v", static.Contents)
	}

	expanded, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "data://user/7"})
	if err != nil {
		t.Fatalf("ReadResource template via proxy: %v", err)
	}
	if len(expanded.Contents) != 1 || expanded.Contents[0].URI != "data://user/7" {
		t.Fatalf("unexpected template read result: %+v", expanded.Contents)
	}
	greeter.mu.Lock()
	reads := append([]string(nil), greeter.reads...)
	greeter.mu.Unlock()
	if len(reads) != 2 || reads[1] != "data://user/7" {
		t.Fatalf("template expansion should hand the concrete URI to the owner, reads=%v", reads)
	}
}

func TestServerMountsConfiguredPath(t *testing.T) {
	opts := &Options{Path: "/bridge"}
	srv := NewServer(New(nil, opts), opts)

	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	resp, err := server.Client().Get(server.URL + "/nowhere")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("unmounted path should 404, got %d", resp.StatusCode)
	}
}
