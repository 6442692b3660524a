package upstream

import (
	"net/http"
	"time"
)

// BaseConfig captures settings shared by all transport types.
type BaseConfig struct {
	// Timeout bounds session establishment and every individual request to
	// the peer. Zero falls back to Options.DefaultTimeout.
	Timeout time.Duration
	// LogJSONRPC enables debug logging of raw JSON-RPC frames.
	LogJSONRPC bool
	// OnError observes session failures from the monitor goroutine.
	OnError func(error)
}

// HTTPConfig describes an MCP server reachable over HTTP transports. The
// Streamable transport is attempted first unless the endpoint looks like an
// SSE one; on failure the SSE transport is tried as a fallback.
type HTTPConfig struct {
	BaseConfig
	Endpoint   string
	HTTPClient *http.Client
	// Headers are set on every outbound request, e.g. for static bearer
	// tokens.
	Headers    http.Header
	MaxRetries int
	// PreferSSE forces the transport choice; nil selects by endpoint suffix.
	PreferSSE *bool
}

func (c *HTTPConfig) base() *BaseConfig { return &c.BaseConfig }

// StdioConfig describes an MCP server launched as a subprocess speaking
// stdio.
type StdioConfig struct {
	BaseConfig
	Command string
	Args    []string
	Env     map[string]string
}

func (c *StdioConfig) base() *BaseConfig { return &c.BaseConfig }

// Config is implemented by all transport-specific configurations.
type Config interface {
	base() *BaseConfig
}
