package propath

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"profcov/internal/logging"
)

type cached struct {
	path string
	ok   bool
}

// Cached memoizes another Resolver. Misses are cached too, since a failed
// search walks the whole root. Errors are never cached.
type Cached struct {
	next  Resolver
	cache *lru.Cache[string, cached]

	hits   int
	misses int
}

// NewCached wraps next with an LRU cache of size entries.
func NewCached(next Resolver, size int) (*Cached, error) {
	cache, err := lru.New[string, cached](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

// Resolve implements Resolver.
func (c *Cached) Resolve(ctx context.Context, name string) (string, bool, error) {
	if v, ok := c.cache.Get(name); ok {
		c.hits++
		return v.path, v.ok, nil
	}
	c.misses++

	path, ok, err := c.next.Resolve(ctx, name)
	if err != nil {
		return "", false, err
	}
	c.cache.Add(name, cached{path: path, ok: ok})
	return path, ok, nil
}

// Stats returns cache hits and misses.
func (c *Cached) Stats() (hits, misses int) {
	return c.hits, c.misses
}

// Purge drops every cached result.
func (c *Cached) Purge() {
	c.cache.Purge()
	logging.ResolveDebug("resolver cache purged")
}
