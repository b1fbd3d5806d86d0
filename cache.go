package assetcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	c "github.com/unkn0wn-root/assetcache/codec"
	gen "github.com/unkn0wn-root/assetcache/genstore"
	"github.com/unkn0wn-root/assetcache/provider/memory"
	"golang.org/x/sync/errgroup"
)

const (
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// Cache resolves resource keys to locators, fetching each key at most once
// while a fetch is outstanding. All methods are safe for concurrent use.
//
// One mutex guards the store index, the in-flight table and settlement, so
// every state transition is atomic with respect to every other. Fetch
// functions run on their own goroutines outside the lock.
type Cache struct {
	registry *Registry
	log      Logger
	hooks    Hooks
	batch    int

	mu       sync.Mutex
	store    *store
	inflight map[Key]*Future
	closed   bool

	tokens atomic.Uint64 // binding generations

	ctx    context.Context // cancelled by Close; passed to every fetch
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates opts and returns a ready cache. Call Close to release the
// provider and the generation store.
func New(opts Options) (*Cache, error) {
	reg, err := NewRegistry(opts.Fetchers)
	if err != nil {
		return nil, err
	}
	if opts.BatchConcurrency < 0 {
		return nil, fmt.Errorf("assetcache: BatchConcurrency must be >= 0, got %d", opts.BatchConcurrency)
	}

	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})

	s := &store{
		ns:    coalesce(opts.Namespace, defaultNamespace),
		codec: coalesce[c.Codec[string]](opts.Codec, c.String{}),
		log:   log,
		hooks: hooks,
		index: make(map[Key]struct{}),
	}
	if opts.Provider != nil {
		s.provider = opts.Provider
	} else {
		s.provider = memory.New()
	}
	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		s.gen = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
	}
	if opts.ComputeSetCost != nil {
		s.cost = opts.ComputeSetCost
	} else {
		s.cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		registry: reg,
		log:      log,
		hooks:    hooks,
		batch:    coalesce(opts.BatchConcurrency, defaultBatchConcurrency),
		store:    s,
		inflight: make(map[Key]*Future),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Peek returns the cached locator for key without fetching.
func (c *Cache) Peek(kind Kind, id uint32) (string, bool) {
	if id == 0 || !kind.Valid() {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.get(c.ctx, Key{Kind: kind, ID: id})
}

// Acquire returns a future for key. A cached key yields an already-settled
// future; otherwise the caller joins the in-flight fetch or starts one.
// The sentinel id 0 yields a settled future with an empty locator.
func (c *Cache) Acquire(kind Kind, id uint32) *Future {
	key := Key{Kind: kind, ID: id}
	if id == 0 {
		return settledFuture(key, "", nil)
	}
	if !kind.Valid() {
		return settledFuture(key, "", fmt.Errorf("%w: %s", ErrUnknownKind, kind))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if loc, ok := c.store.get(c.ctx, key); ok {
		return settledFuture(key, loc, nil)
	}
	return c.acquireLocked(key)
}

// Resolve returns the locator for key, fetching it if needed. Cancelling ctx
// abandons the wait only. Id 0 resolves to "" without error.
func (c *Cache) Resolve(ctx context.Context, kind Kind, id uint32) (string, error) {
	return c.Acquire(kind, id).Wait(ctx)
}

// ResolveMany resolves ids of one kind with bounded parallelism. Failed ids
// are absent from the map and reported together in the joined error.
// Zero ids are skipped.
func (c *Cache) ResolveMany(ctx context.Context, kind Kind, ids []uint32) (map[uint32]string, error) {
	out := make(map[uint32]string, len(ids))
	var (
		mu   sync.Mutex
		errs []error
	)
	seen := make(map[uint32]struct{}, len(ids))

	// plain group: one failed id must not cancel its siblings
	var g errgroup.Group
	g.SetLimit(c.batch)
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		g.Go(func() error {
			loc, err := c.Resolve(ctx, kind, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			out[id] = loc
			return nil
		})
	}
	_ = g.Wait()
	return out, errors.Join(errs...)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Cached: c.store.len(), InFlight: len(c.inflight)}
}

// Close cancels outstanding fetches, waits for them to settle (bounded by
// ctx), then closes the generation store and the provider. Acquires after
// Close fail with ErrClosed.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Close gen store first (best effort)
	_ = c.store.gen.Close(ctx)
	return c.store.provider.Close(ctx)
}

// acquireLocked joins or starts the fetch for key. c.mu must be held and key
// must not be cached.
func (c *Cache) acquireLocked(key Key) *Future {
	if c.closed {
		return settledFuture(key, "", ErrClosed)
	}
	if f, ok := c.inflight[key]; ok {
		c.hooks.Coalesced(key)
		return f
	}

	f := newFuture(key, c.store.snapshotGen(c.ctx, key))
	c.inflight[key] = f
	c.hooks.FetchStarted(key)
	c.log.Debug("fetch started", Fields{"key": key.String()})

	c.wg.Add(1)
	go c.run(f)
	return f
}

func (c *Cache) run(f *Future) {
	defer c.wg.Done()
	loc, err := c.registry.Fetch(c.ctx, f.key.Kind, f.key.ID)
	c.settle(f, loc, err)
}

// settle records the outcome of f and wakes its awaiters. A fetch whose key
// was cleared meanwhile still delivers its outcome but never writes the store
// or touches the in-flight entry (which may belong to a newer fetch).
func (c *Cache) settle(f *Future, loc string, err error) {
	if err != nil {
		loc, err = "", &FetchError{Key: f.key, Err: err}
	}

	c.mu.Lock()
	switch {
	case f.stale:
		c.hooks.InvalidatedWhilePending(f.key)
		c.log.Debug("fetch settled after clear; result not cached", Fields{"key": f.key.String()})
	case err != nil:
		c.removeInflight(f)
		c.hooks.FetchFailed(f.key, err)
		c.log.Warn("fetch failed", Fields{"key": f.key.String(), "err": err})
	default:
		c.removeInflight(f)
		// CAS: a clear from another process sharing the GenStore moves the generation
		if g := c.store.snapshotGen(c.ctx, f.key); g != f.gen {
			c.hooks.InvalidatedWhilePending(f.key)
			c.log.Debug("generation moved during fetch; result not cached",
				Fields{"key": f.key.String(), "observed": f.gen, "current": g})
		} else {
			c.store.set(c.ctx, f.key, loc, f.gen)
		}
	}
	f.loc, f.err = loc, err
	c.mu.Unlock()

	close(f.done)
}

func (c *Cache) removeInflight(f *Future) {
	if cur, ok := c.inflight[f.key]; ok && cur == f {
		delete(c.inflight, f.key)
	}
}
