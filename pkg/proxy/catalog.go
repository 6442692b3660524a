package proxy

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type catalogState int

const (
	catalogUnbuilt catalogState = iota
	catalogBuilding
	catalogBuilt
)

// entry pairs an aggregated descriptor with the peer that owns it.
type entry[D any] struct {
	peer       Peer
	descriptor D
}

// catalog is a build-once mapping from capability key to owning peer for one
// capability kind. The first caller per epoch fans out to every peer
// concurrently and publishes the merged result; callers racing that build
// wait for it instead of starting another. Built stays terminal until
// invalidate is called.
type catalog[D any] struct {
	kind         Kind
	peers        []Peer
	fetch        func(context.Context, Peer) ([]D, error)
	key          func(D) string
	fetchTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	state   catalogState
	done    chan struct{}
	entries map[string]entry[D]
	// order preserves insertion order (configuration order of the winning
	// peers), which doubles as the template matcher's iteration order.
	order []string
}

func newCatalog[D any](
	kind Kind,
	peers []Peer,
	fetch func(context.Context, Peer) ([]D, error),
	key func(D) string,
	fetchTimeout time.Duration,
	logger *slog.Logger,
) *catalog[D] {
	return &catalog[D]{
		kind:         kind,
		peers:        peers,
		fetch:        fetch,
		key:          key,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// get returns the catalog for this epoch, building it on first use. The only
// error it can return is ctx cancellation while waiting; peer failures during
// the build are logged and skipped, and a build in which every peer failed
// publishes an empty catalog rather than an error.
func (c *catalog[D]) get(ctx context.Context) (map[string]entry[D], []string, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case catalogBuilt:
			entries, order := c.entries, c.order
			c.mu.Unlock()
			return entries, order, nil
		case catalogBuilding:
			done := c.done
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-done:
			}
		default:
			c.state = catalogBuilding
			c.done = make(chan struct{})
			done := c.done
			c.mu.Unlock()

			entries, order := c.build(ctx)

			c.mu.Lock()
			c.entries, c.order = entries, order
			c.state = catalogBuilt
			c.mu.Unlock()
			close(done)
			return entries, order, nil
		}
	}
}

func (c *catalog[D]) build(ctx context.Context) (map[string]entry[D], []string) {
	// The published epoch outlives the caller that happened to trigger it, so
	// the fan-out must not be cancelled by that caller going away.
	ctx = context.WithoutCancel(ctx)

	results := make([][]D, len(c.peers))
	errs := make([]error, len(c.peers))
	var wg sync.WaitGroup
	for i, peer := range c.peers {
		wg.Add(1)
		go func(i int, peer Peer) {
			defer wg.Done()
			fetchCtx := ctx
			if c.fetchTimeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
				defer cancel()
			}
			results[i], errs[i] = c.fetch(fetchCtx, peer)
		}(i, peer)
	}
	wg.Wait()

	entries := make(map[string]entry[D])
	var order []string
	for i, peer := range c.peers {
		if errs[i] != nil {
			c.logger.Warn("catalog fetch failed, skipping peer for this epoch",
				"kind", c.kind, "peer", peer.Name(), "error", errs[i])
			continue
		}
		for _, descriptor := range results[i] {
			key := c.key(descriptor)
			if existing, ok := entries[key]; ok {
				c.logger.Warn("capability offered by multiple upstreams, keeping earlier peer",
					"kind", c.kind, "key", key, "winner", existing.peer.Name(), "loser", peer.Name())
				continue
			}
			entries[key] = entry[D]{peer: peer, descriptor: descriptor}
			order = append(order, key)
		}
	}
	c.logger.Info("catalog built", "kind", c.kind, "entries", len(entries))
	return entries, order
}

// invalidate transitions a Built catalog back to Unbuilt so the next read
// re-discovers upstream capabilities. An in-flight build is left alone; it
// will publish normally and can be invalidated afterwards.
func (c *catalog[D]) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != catalogBuilt {
		return
	}
	c.state = catalogUnbuilt
	c.entries = nil
	c.order = nil
	c.done = nil
}
