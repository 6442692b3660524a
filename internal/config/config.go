// Package config loads the proxy configuration file. Upstreams are declared
// as a YAML list because their order matters: when two upstreams expose the
// same tool name, resource URI, or prompt name, the one listed first wins.
package config

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zemskymax/bridge-ai/pkg/upstream"
)

// Duration wraps time.Duration so YAML values like "15s" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// File is the root of the configuration document.
type File struct {
	Proxy     ProxySettings `yaml:"proxy"`
	Upstreams []Upstream    `yaml:"upstreams"`
}

// ProxySettings control the client-facing endpoint.
type ProxySettings struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// Upstream declares one upstream server. Exactly one of Endpoint (HTTP) or
// Command (stdio subprocess) must be set.
type Upstream struct {
	Name       string            `yaml:"name"`
	Endpoint   string            `yaml:"endpoint,omitempty"`
	Command    string            `yaml:"command,omitempty"`
	Args       []string          `yaml:"args,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Timeout    Duration          `yaml:"timeout,omitempty"`
	LogJSONRPC bool              `yaml:"logJSONRPC,omitempty"`
}

// Load reads, expands, and validates a configuration file. ${VAR} references
// in endpoints, commands, args, env values, and headers are expanded from the
// process environment.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	f.expandEnv()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the configuration for basic validity.
func (f *File) Validate() error {
	if len(f.Upstreams) == 0 {
		return fmt.Errorf("config: no upstreams configured")
	}
	seen := make(map[string]struct{}, len(f.Upstreams))
	for i, u := range f.Upstreams {
		if u.Name == "" {
			return fmt.Errorf("config: upstream %d has no name", i)
		}
		if _, ok := seen[u.Name]; ok {
			return fmt.Errorf("config: duplicate upstream name %q", u.Name)
		}
		seen[u.Name] = struct{}{}
		if (u.Endpoint == "") == (u.Command == "") {
			return fmt.Errorf("config: upstream %q must set exactly one of endpoint or command", u.Name)
		}
	}
	return nil
}

// PeerConfig converts an upstream declaration into the transport config a
// Peer is built from.
func (u Upstream) PeerConfig() upstream.Config {
	base := upstream.BaseConfig{
		Timeout:    time.Duration(u.Timeout),
		LogJSONRPC: u.LogJSONRPC,
	}
	if u.Command != "" {
		return &upstream.StdioConfig{
			BaseConfig: base,
			Command:    u.Command,
			Args:       u.Args,
			Env:        u.Env,
		}
	}
	var headers http.Header
	if len(u.Headers) > 0 {
		headers = make(http.Header, len(u.Headers))
		for k, v := range u.Headers {
			headers.Set(k, v)
		}
	}
	return &upstream.HTTPConfig{
		BaseConfig: base,
		Endpoint:   u.Endpoint,
		Headers:    headers,
	}
}

func (f *File) expandEnv() {
	for i := range f.Upstreams {
		u := &f.Upstreams[i]
		u.Endpoint = os.ExpandEnv(u.Endpoint)
		u.Command = os.ExpandEnv(u.Command)
		for j, arg := range u.Args {
			u.Args[j] = os.ExpandEnv(arg)
		}
		for k, v := range u.Env {
			u.Env[k] = os.ExpandEnv(v)
		}
		for k, v := range u.Headers {
			u.Headers[k] = os.ExpandEnv(v)
		}
	}
}
