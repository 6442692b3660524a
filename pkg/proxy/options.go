package proxy

import (
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
)

// Options configure a Proxy and its serving surface.
type Options struct {
	// Implementation identifies the proxy's MCP server implementation metadata.
	Implementation *mcp.Implementation
	// Addr controls the listen address used by ListenAndServe. Defaults to ":9000".
	Addr string
	// Path mounts the Streamable handler under a specific HTTP path.
	// Defaults to "/mcp".
	Path string
	// FetchTimeout bounds each per-peer catalog fetch during a build and the
	// server shutdown grace period. Defaults to 30s.
	FetchTimeout time.Duration
	// Streamable tweaks the Streamable HTTP handler passed to
	// mcp.NewStreamableHTTPHandler.
	Streamable mcp.StreamableHTTPOptions
	// CORS, when set, wraps the HTTP mount with the given CORS policy.
	CORS *cors.Options
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    "bridge-ai",
			Title:   "Bridge AI Proxy",
			Version: "1.0.0",
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Addr == "" {
		opts.Addr = ":9000"
	}
	if opts.Path == "" {
		opts.Path = "/mcp"
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}
