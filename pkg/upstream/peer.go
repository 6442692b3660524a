// Package upstream wraps a single live connection to one upstream MCP server
// behind lazy session establishment. A Peer exposes the catalog listings and
// the delegate operations (call tool, read resource, get prompt) the
// aggregating proxy needs, handling transport selection (stdio or HTTP with
// Streamable/SSE fallback), per-call timeouts, and reconnection after a
// session dies.
package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Options configure how peers identify themselves and how long they wait.
type Options struct {
	// ClientName is the client name advertised during initialization.
	// Defaults to the peer name.
	ClientName string
	// ClientVersion is the semantic version reported to servers.
	ClientVersion string
	// DefaultTimeout applies when the peer config omits an explicit timeout.
	DefaultTimeout time.Duration
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Peer owns exactly one upstream connection. The session is established on
// first use and redialed transparently if it closes; concurrent callers
// racing an in-flight dial wait for it instead of dialing again.
type Peer struct {
	name   string
	config Config
	opts   Options

	mu         sync.Mutex
	client     *mcp.Client
	session    *mcp.ClientSession
	connecting bool
	connectCh  chan struct{}
	timeout    time.Duration
}

// New builds a Peer for the given transport configuration.
func New(name string, cfg Config, opts *Options) (*Peer, error) {
	if name == "" {
		return nil, fmt.Errorf("upstream: peer name is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("upstream: missing configuration for %q", name)
	}
	return &Peer{name: name, config: cfg, opts: opts.withDefaults()}, nil
}

// Name returns the peer's stable identifier, used for logging and collision
// diagnostics.
func (p *Peer) Name() string { return p.name }

// Connect eagerly establishes the session. Using any other method connects
// lazily, so calling Connect is optional.
func (p *Peer) Connect(ctx context.Context) error {
	_, _, err := p.ensureSession(ctx)
	return err
}

// Close terminates the current session, if any. The peer remains usable; the
// next call redials.
func (p *Peer) Close(ctx context.Context) error {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	var closeErr error
	go func() {
		closeErr = session.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return closeErr
	}
}

// Ping sends a protocol-level ping, establishing a session if needed.
func (p *Peer) Ping(ctx context.Context) error {
	session, timeout, err := p.ensureSession(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return session.Ping(ctx, nil)
}

// ListTools fetches the peer's tool catalog. Servers that do not implement
// tools/list contribute an empty catalog instead of an error.
func (p *Peer) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	session, timeout, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	res, err := session.ListTools(ctx, nil)
	if err != nil {
		if isMethodUnavailableError(err, "tools/list") {
			return nil, nil
		}
		return nil, err
	}
	return res.Tools, nil
}

// ListResources fetches the peer's static resource catalog.
func (p *Peer) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	session, timeout, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	res, err := session.ListResources(ctx, nil)
	if err != nil {
		if isMethodUnavailableError(err, "resources/list") {
			return nil, nil
		}
		return nil, err
	}
	return res.Resources, nil
}

// ListResourceTemplates fetches the peer's resource template catalog.
func (p *Peer) ListResourceTemplates(ctx context.Context) ([]*mcp.ResourceTemplate, error) {
	session, timeout, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	res, err := session.ListResourceTemplates(ctx, nil)
	if err != nil {
		if isMethodUnavailableError(err, "resources/templates/list") {
			return nil, nil
		}
		return nil, err
	}
	return res.ResourceTemplates, nil
}

// ListPrompts fetches the peer's prompt catalog.
func (p *Peer) ListPrompts(ctx context.Context) ([]*mcp.Prompt, error) {
	session, timeout, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	res, err := session.ListPrompts(ctx, nil)
	if err != nil {
		if isMethodUnavailableError(err, "prompts/list") {
			return nil, nil
		}
		return nil, err
	}
	return res.Prompts, nil
}

// CallTool invokes a tool on the peer, forwarding args untouched.
func (p *Peer) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	if name == "" {
		return nil, fmt.Errorf("upstream: tool name is required for %q", p.name)
	}
	session, timeout, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

// ReadResource reads a concrete resource URI from the peer.
func (p *Peer) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	session, timeout, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
}

// GetPrompt renders a prompt on the peer.
func (p *Peer) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	session, timeout, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	params := &mcp.GetPromptParams{Name: name}
	if len(args) > 0 {
		params.Arguments = args
	}
	return session.GetPrompt(ctx, params)
}

func (p *Peer) ensureSession(ctx context.Context) (*mcp.ClientSession, time.Duration, error) {
	for {
		p.mu.Lock()
		if p.session != nil {
			session, timeout := p.session, p.timeout
			p.mu.Unlock()
			return session, timeout, nil
		}
		if p.connecting {
			ch := p.connectCh
			p.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-ch:
			}
			continue
		}
		p.connecting = true
		p.connectCh = make(chan struct{})
		timeout := p.config.base().Timeout
		if timeout <= 0 {
			timeout = p.opts.DefaultTimeout
		}
		p.timeout = timeout
		p.mu.Unlock()

		session, client, err := p.establishSession(ctx, timeout)

		p.mu.Lock()
		p.connecting = false
		close(p.connectCh)
		if err != nil {
			p.mu.Unlock()
			return nil, 0, err
		}
		p.session = session
		p.client = client
		p.mu.Unlock()
		return session, timeout, nil
	}
}

func (p *Peer) establishSession(ctx context.Context, timeout time.Duration) (*mcp.ClientSession, *mcp.Client, error) {
	impl := &mcp.Implementation{
		Name:    p.clientName(),
		Version: p.opts.ClientVersion,
	}

	attempt := func(ctx context.Context, transport mcp.Transport) (*mcp.ClientSession, *mcp.Client, error) {
		client := mcp.NewClient(impl, nil)
		wrapped := transport
		if p.config.base().LogJSONRPC {
			wrapped = &loggingTransport{peer: p.name, delegate: transport, logger: p.opts.Logger}
		}
		session, err := client.Connect(ctx, wrapped, nil)
		if err != nil {
			return nil, nil, err
		}
		return session, client, nil
	}

	connectCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	switch cfg := p.config.(type) {
	case *StdioConfig:
		transport, err := buildStdioTransport(p.name, cfg)
		if err != nil {
			return nil, nil, err
		}
		session, client, err := attempt(connectCtx, transport)
		if err != nil {
			return nil, nil, err
		}
		go p.monitorSession(session)
		return session, client, nil
	case *HTTPConfig:
		return p.establishHTTPSession(connectCtx, cfg, attempt)
	default:
		return nil, nil, fmt.Errorf("upstream: unsupported config for %q", p.name)
	}
}

func (p *Peer) establishHTTPSession(
	ctx context.Context,
	cfg *HTTPConfig,
	attempt func(context.Context, mcp.Transport) (*mcp.ClientSession, *mcp.Client, error),
) (*mcp.ClientSession, *mcp.Client, error) {
	if cfg.Endpoint == "" {
		return nil, nil, fmt.Errorf("upstream: endpoint missing for %q", p.name)
	}
	httpClient := decorateHTTPClient(cfg.HTTPClient, cfg.Headers)

	streamableTransport := &mcp.StreamableClientTransport{
		Endpoint:   cfg.Endpoint,
		HTTPClient: httpClient,
		MaxRetries: cfg.MaxRetries,
	}
	sseTransport := &mcp.SSEClientTransport{Endpoint: cfg.Endpoint, HTTPClient: httpClient}

	var streamErr error
	if !p.preferSSE(cfg) {
		session, client, err := attempt(ctx, streamableTransport)
		if err == nil {
			go p.monitorSession(session)
			return session, client, nil
		}
		streamErr = err
	}
	session, client, err := attempt(ctx, sseTransport)
	if err != nil {
		if streamErr != nil {
			return nil, nil, fmt.Errorf("streamable error: %v; sse error: %w", streamErr, err)
		}
		return nil, nil, err
	}
	go p.monitorSession(session)
	return session, client, nil
}

// monitorSession clears the cached session when it terminates so the next
// call redials instead of failing on a dead session.
func (p *Peer) monitorSession(session *mcp.ClientSession) {
	err := session.Wait()
	if err != nil {
		p.opts.Logger.Warn("upstream session terminated", "peer", p.name, "error", err)
		if onError := p.config.base().OnError; onError != nil {
			onError(err)
		}
	}
	p.mu.Lock()
	if p.session == session {
		p.session = nil
		p.client = nil
	}
	p.mu.Unlock()
}

func (p *Peer) preferSSE(cfg *HTTPConfig) bool {
	if cfg.PreferSSE != nil {
		return *cfg.PreferSSE
	}
	return strings.HasSuffix(strings.TrimSpace(cfg.Endpoint), "/sse")
}

func (p *Peer) clientName() string {
	if p.opts.ClientName != "" {
		return p.opts.ClientName
	}
	return p.name
}

func buildStdioTransport(name string, cfg *StdioConfig) (mcp.Transport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("upstream: command missing for %q", name)
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func isMethodUnavailableError(err error, method string) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	if !(strings.Contains(lower, "method not found") ||
		strings.Contains(lower, "not implemented") ||
		strings.Contains(lower, "unsupported") ||
		strings.Contains(lower, "does not support") ||
		strings.Contains(lower, "unimplemented")) {
		return false
	}
	method = strings.ToLower(method)
	if strings.Contains(lower, method) {
		return true
	}
	for _, part := range strings.FieldsFunc(method, func(r rune) bool {
		return r == '/' || r == ':' || r == '.' || r == '_' || r == '-'
	}) {
		if part != "" && strings.Contains(lower, part) {
			return true
		}
	}
	return true
}
