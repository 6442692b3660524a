package proxy

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"
)

// matchTemplate resolves a concrete resource URI against the aggregated
// template patterns, iterating in catalog order so that precedence between
// identically shaped templates follows configuration order, same as the
// exact-key collision rule. Patterns that fail to parse are skipped.
func matchTemplate(
	entries map[string]entry[*mcp.ResourceTemplate],
	order []string,
	uri string,
	logger *slog.Logger,
) (entry[*mcp.ResourceTemplate], bool) {
	for _, key := range order {
		e := entries[key]
		tpl, err := uritemplate.New(e.descriptor.URITemplate)
		if err != nil {
			logger.Warn("ignoring unparsable resource template",
				"template", e.descriptor.URITemplate, "peer", e.peer.Name(), "error", err)
			continue
		}
		if tpl.Match(uri) != nil {
			return e, true
		}
	}
	return entry[*mcp.ResourceTemplate]{}, false
}
