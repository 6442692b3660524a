// Package proxy aggregates the tools, resources, resource templates, and
// prompts of several upstream MCP servers into one namespace and routes every
// invocation to the upstream that owns it. Catalogs are built lazily on first
// use, one per capability kind, by querying all peers concurrently; name and
// URI collisions are resolved by configuration order, earlier peers winning.
// Downstream clients see a single server and never learn how many upstreams
// sit behind it.
package proxy
