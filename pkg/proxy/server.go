package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
)

// Server exposes a Proxy as a Streamable MCP server under a single HTTP
// endpoint. Sync registers the aggregated catalogs on the embedded
// mcp.Server; every registered handler dispatches back through the Proxy so
// routing, template fallback, and error semantics stay in one place.
type Server struct {
	proxy *Proxy
	opts  Options

	server        *mcp.Server
	streamHandler *mcp.StreamableHTTPHandler
	httpHandler   http.Handler

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// NewServer wraps proxy in a Streamable HTTP front end. Call Sync before
// serving so downstream clients see the aggregated catalogs.
func NewServer(proxy *Proxy, opts *Options) *Server {
	options := opts.withDefaults()
	s := &Server{proxy: proxy, opts: options}
	s.server = mcp.NewServer(options.Implementation, &mcp.ServerOptions{
		HasTools:     true,
		HasPrompts:   true,
		HasResources: true,
	})
	s.streamHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &options.Streamable)
	s.httpHandler = s.mountHandler()
	return s
}

// Proxy returns the aggregation core backing this server.
func (s *Server) Proxy() *Proxy { return s.proxy }

// Options returns the effective options after defaulting.
func (s *Server) Options() Options { return s.opts }

// Sync builds all four catalogs and registers every aggregated capability on
// the embedded MCP server. Peer failures during the builds are logged and
// skipped; Sync itself fails only when ctx is cancelled.
func (s *Server) Sync(ctx context.Context) error {
	tools, err := s.proxy.ListTools(ctx)
	if err != nil {
		return err
	}
	for _, tool := range tools {
		s.server.AddTool(normalizeTool(tool), s.makeToolHandler(tool.Name))
	}

	prompts, err := s.proxy.ListPrompts(ctx)
	if err != nil {
		return err
	}
	for _, prompt := range prompts {
		s.server.AddPrompt(prompt, s.makePromptHandler(prompt.Name))
	}

	resources, err := s.proxy.ListResources(ctx)
	if err != nil {
		return err
	}
	for _, resource := range resources {
		s.server.AddResource(resource, s.resourceHandler)
	}

	templates, err := s.proxy.ListResourceTemplates(ctx)
	if err != nil {
		return err
	}
	for _, template := range templates {
		s.server.AddResourceTemplate(template, s.resourceHandler)
	}
	return nil
}

// Handler exposes the HTTP handler that serves the Streamable endpoint.
func (s *Server) Handler() http.Handler {
	return s.httpHandler
}

// ListenAndServe runs an HTTP server until the provided context is cancelled
// or the server stops.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServerMu.Lock()
	if s.httpServer != nil {
		running := s.httpServer
		s.httpServerMu.Unlock()
		return fmt.Errorf("proxy: server already running on %s", running.Addr)
	}
	srv := &http.Server{Addr: s.opts.Addr, Handler: s.Handler()}
	s.httpServer = srv
	s.httpServerMu.Unlock()
	defer func() {
		s.httpServerMu.Lock()
		if s.httpServer == srv {
			s.httpServer = nil
		}
		s.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.FetchTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpServerMu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

func (s *Server) makeToolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := any(nil)
		if req.Params != nil {
			args = req.Params.Arguments
		}
		return s.proxy.CallTool(ctx, name, args)
	}
}

func (s *Server) makePromptHandler(name string) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var args map[string]string
		if req.Params != nil {
			args = req.Params.Arguments
		}
		return s.proxy.GetPrompt(ctx, name, args)
	}
}

// resourceHandler serves both static resources and template expansions: the
// request carries the concrete URI either way, and the proxy's static-first,
// template-fallback lookup picks the owner.
func (s *Server) resourceHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if req.Params == nil {
		return nil, fmt.Errorf("proxy: missing read resource params")
	}
	return s.proxy.ReadResource(ctx, req.Params.URI)
}

func (s *Server) mountHandler() http.Handler {
	handler := http.Handler(s.streamHandler)
	if s.opts.CORS != nil {
		handler = cors.New(*s.opts.CORS).Handler(handler)
	}
	path := s.opts.Path
	if path == "" {
		return handler
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	if !strings.HasSuffix(path, "/") {
		mux.Handle(path+"/", handler)
	}
	return mux
}

// normalizeTool guards against upstream tools that omit an input schema; the
// SDK requires one to validate downstream arguments against.
func normalizeTool(tool *mcp.Tool) *mcp.Tool {
	if tool.InputSchema != nil {
		return tool
	}
	clone := *tool
	clone.InputSchema = &jsonschema.Schema{Type: "object"}
	return &clone
}
