// Package asynchook moves hook delivery off the cache's hot path onto a
// bounded worker queue. Events that do not fit are dropped and counted.
//
// Usage:
//
//	import (
//		"log/slog"
//		"time"
//
//		"github.com/unkn0wn-root/assetcache"
//		"github.com/unkn0wn-root/assetcache/genstore"
//		asynchook "github.com/unkn0wn-root/assetcache/hooks/async"
//		"github.com/unkn0wn-root/assetcache/lcu"
//		"github.com/unkn0wn-root/assetcache/sloghooks"
//	)
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//		SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := assetcache.New(assetcache.Options{
//		Fetchers:  lcu.Fetchers(client, lcu.NewCatalog(client)),
//		Namespace: "client:na1",
//		GenStore:  genstore.NewRedisGenStoreWithTTL(rdb, "client:na1", 24*time.Hour),
//		Hooks:     hooks, // or raw to deliver synchronously
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/assetcache"
)

// Hooks forwards events to inner on worker goroutines so callers holding the
// cache lock never block on slow sinks. Events are dropped when the queue is full.
type Hooks struct {
	inner   assetcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ assetcache.Hooks = (*Hooks)(nil)

func New(inner assetcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	defer func() {
		// send on closed queue after Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchStarted(k assetcache.Key) { h.try(func() { h.inner.FetchStarted(k) }) }
func (h *Hooks) Coalesced(k assetcache.Key)    { h.try(func() { h.inner.Coalesced(k) }) }
func (h *Hooks) FetchFailed(k assetcache.Key, err error) {
	h.try(func() { h.inner.FetchFailed(k, err) })
}
func (h *Hooks) InvalidatedWhilePending(k assetcache.Key) {
	h.try(func() { h.inner.InvalidatedWhilePending(k) })
}
func (h *Hooks) StaleResolution(k assetcache.Key) { h.try(func() { h.inner.StaleResolution(k) }) }
func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)     { h.try(func() { h.inner.ProviderSetRejected(k) }) }
