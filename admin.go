package assetcache

import (
	"context"
	"slices"
)

// Clear drops every cached entry and detaches every in-flight fetch.
//
// Detached fetches still deliver their outcome to the futures and bindings
// already waiting on them, but never write the cache; the next request for a
// cleared key starts a fresh fetch.
func (c *Cache) Clear(ctx context.Context) error {
	return c.clear(ctx, func(Key) bool { return true })
}

// ClearKind is Clear restricted to one kind. Other kinds are untouched.
func (c *Cache) ClearKind(ctx context.Context, kind Kind) error {
	return c.clear(ctx, func(k Key) bool { return k.Kind == kind })
}

// ClearKey is Clear restricted to one key. The generation is bumped even when
// the key is not cached here, so peers sharing the GenStore drop it too.
// Id 0 is a no-op.
func (c *Cache) ClearKey(ctx context.Context, kind Kind, id uint32) error {
	if id == 0 {
		return nil
	}
	key := Key{Kind: kind, ID: id}
	return c.clear(ctx, func(k Key) bool { return k == key }, key)
}

// clear detaches matching in-flight fetches and invalidates matching cached
// keys plus any of always not found locally.
func (c *Cache) clear(ctx context.Context, match func(Key) bool, always ...Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.store.keys(match)
	detached := 0
	for k, f := range c.inflight {
		if !match(k) {
			continue
		}
		f.stale = true
		delete(c.inflight, k)
		keys = append(keys, k)
		detached++
	}
	for _, k := range always {
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	err := c.store.invalidate(ctx, keys)
	c.log.Info("cache cleared", Fields{"cached": len(keys) - detached, "detached": detached})
	return err
}
