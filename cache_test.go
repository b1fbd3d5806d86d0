package assetcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	c "github.com/unkn0wn-root/assetcache/codec"
	gen "github.com/unkn0wn-root/assetcache/genstore"
	"github.com/unkn0wn-root/assetcache/internal/util"
	"github.com/unkn0wn-root/assetcache/provider/memory"
)

// ==============================
// Test doubles
// ==============================

// fetchSpy counts calls per key and can hold every fetch until released.
type fetchSpy struct {
	mu    sync.Mutex
	calls map[Key]int
	block chan struct{}
	errs  map[Key]error
}

func newFetchSpy() *fetchSpy {
	return &fetchSpy{calls: make(map[Key]int), errs: make(map[Key]error)}
}

func (s *fetchSpy) fetchers() Fetchers {
	return Fetchers{
		Profile:  s.fn(KindProfile),
		Champion: s.fn(KindChampion),
		Item:     s.fn(KindItem),
		Spell:    s.fn(KindSpell),
		Perk:     s.fn(KindPerk),
	}
}

func (s *fetchSpy) fn(kind Kind) FetchFunc {
	return func(ctx context.Context, id uint32) (string, error) {
		k := Key{Kind: kind, ID: id}
		s.mu.Lock()
		s.calls[k]++
		block, err := s.block, s.errs[k]
		s.mu.Unlock()

		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if err != nil {
			return "", err
		}
		return locFor(k), nil
	}
}

func locFor(k Key) string { return "data:image/png;base64," + k.String() }

// hold makes every fetch started from now on block until release is called.
func (s *fetchSpy) hold() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.block = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.block == ch {
				s.block = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *fetchSpy) fail(k Key, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, k)
		return
	}
	s.errs[k] = err
}

func (s *fetchSpy) count(k Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[k]
}

func (s *fetchSpy) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// recHooks records hook events as "name:detail" strings.
type recHooks struct {
	NopHooks
	mu     sync.Mutex
	events []string
}

func (h *recHooks) add(e string) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *recHooks) FetchStarted(k Key)            { h.add("started:" + k.String()) }
func (h *recHooks) Coalesced(k Key)               { h.add("coalesced:" + k.String()) }
func (h *recHooks) FetchFailed(k Key, _ error)    { h.add("failed:" + k.String()) }
func (h *recHooks) InvalidatedWhilePending(k Key) { h.add("invalidated:" + k.String()) }
func (h *recHooks) StaleResolution(k Key)         { h.add("stale:" + k.String()) }
func (h *recHooks) SelfHeal(_, reason string)     { h.add("selfheal:" + reason) }
func (h *recHooks) ProviderSetRejected(string)    { h.add("rejected") }

func (h *recHooks) count(e string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, got := range h.events {
		if got == e {
			n++
		}
	}
	return n
}

func newTestCache(t *testing.T, spy *fetchSpy, optsOpt func(*Options)) *Cache {
	t.Helper()
	opts := Options{Fetchers: spy.fetchers()}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	return cc
}

func waitFuture(t *testing.T, f *Future) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	loc, err := f.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		t.Fatalf("future for %s did not settle", f.Key())
	}
	return loc, err
}

func isSettled(f *Future) bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}

// ==============================
// Coalescing and caching
// ==============================

func TestConcurrentAcquiresShareOneFetch(t *testing.T) {
	spy := newFetchSpy()
	hooks := &recHooks{}
	cc := newTestCache(t, spy, func(o *Options) { o.Hooks = hooks })
	release := spy.hold()

	k := Key{Kind: KindChampion, ID: 103}
	const n = 50
	futures := make([]*Future, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			futures[i] = cc.Acquire(k.Kind, k.ID)
		}()
	}
	wg.Wait()

	if st := cc.Stats(); st.InFlight != 1 || st.Cached != 0 {
		t.Fatalf("while pending: got %+v want InFlight=1 Cached=0", st)
	}
	release()

	for i, f := range futures {
		loc, err := waitFuture(t, f)
		if err != nil || loc != locFor(k) {
			t.Fatalf("awaiter %d: loc=%q err=%v", i, loc, err)
		}
	}
	if got := spy.count(k); got != 1 {
		t.Fatalf("fetch calls: got %d want 1", got)
	}
	if got := hooks.count("coalesced:" + k.String()); got != n-1 {
		t.Fatalf("coalesced hooks: got %d want %d", got, n-1)
	}
	if st := cc.Stats(); st.InFlight != 0 || st.Cached != 1 {
		t.Fatalf("after settle: got %+v want InFlight=0 Cached=1", st)
	}
}

func TestCachedKeyServedWithoutFetch(t *testing.T) {
	ctx := context.Background()
	spy := newFetchSpy()
	cc := newTestCache(t, spy, nil)

	k := Key{Kind: KindItem, ID: 3031}
	if _, err := cc.Resolve(ctx, k.Kind, k.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	for i := 0; i < 3; i++ {
		f := cc.Acquire(k.Kind, k.ID)
		if !isSettled(f) {
			t.Fatalf("cached key should yield a settled future")
		}
		if loc, err := waitFuture(t, f); err != nil || loc != locFor(k) {
			t.Fatalf("cached read: loc=%q err=%v", loc, err)
		}
	}
	if loc, ok := cc.Peek(k.Kind, k.ID); !ok || loc != locFor(k) {
		t.Fatalf("Peek: loc=%q ok=%v", loc, ok)
	}
	if got := spy.count(k); got != 1 {
		t.Fatalf("fetch calls: got %d want 1", got)
	}
}

func TestFailedFetchIsNotCached(t *testing.T) {
	ctx := context.Background()
	spy := newFetchSpy()
	hooks := &recHooks{}
	cc := newTestCache(t, spy, func(o *Options) { o.Hooks = hooks })

	k := Key{Kind: KindSpell, ID: 4}
	boom := errors.New("503 from client")
	spy.fail(k, boom)

	_, err := cc.Resolve(ctx, k.Kind, k.ID)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Key != k || !errors.Is(err, boom) {
		t.Fatalf("FetchError should carry key and cause, got %+v", fe)
	}
	if st := cc.Stats(); st != (Stats{}) {
		t.Fatalf("failure must leave both tables empty, got %+v", st)
	}
	if _, ok := cc.Peek(k.Kind, k.ID); ok {
		t.Fatalf("failed key must not be cached")
	}
	if hooks.count("failed:"+k.String()) != 1 {
		t.Fatalf("expected FetchFailed hook")
	}

	// no retry on its own; the next request starts a fresh attempt
	spy.fail(k, nil)
	loc, err := cc.Resolve(ctx, k.Kind, k.ID)
	if err != nil || loc != locFor(k) {
		t.Fatalf("retry: loc=%q err=%v", loc, err)
	}
	if got := spy.count(k); got != 2 {
		t.Fatalf("fetch calls: got %d want 2", got)
	}
}

func TestSentinelIDNeverFetches(t *testing.T) {
	ctx := context.Background()
	spy := newFetchSpy()
	cc := newTestCache(t, spy, nil)

	for _, kind := range Kinds() {
		if loc, err := cc.Resolve(ctx, kind, 0); err != nil || loc != "" {
			t.Fatalf("%s: Resolve(0) = %q, %v", kind, loc, err)
		}
		if f := cc.Acquire(kind, 0); !isSettled(f) {
			t.Fatalf("%s: Acquire(0) should be settled", kind)
		}
		if _, ok := cc.Peek(kind, 0); ok {
			t.Fatalf("%s: Peek(0) should miss", kind)
		}
		b := cc.Bind(kind, 0, func(State) { t.Errorf("onChange must not fire for id 0") })
		if st := b.State(); st.Status != StatusReady || st.Locator != "" {
			t.Fatalf("%s: Bind(0) state = %+v", kind, st)
		}
		if err := cc.ClearKey(ctx, kind, 0); err != nil {
			t.Fatalf("%s: ClearKey(0): %v", kind, err)
		}
	}
	if got := spy.total(); got != 0 {
		t.Fatalf("fetch calls: got %d want 0", got)
	}
	if st := cc.Stats(); st != (Stats{}) {
		t.Fatalf("sentinel must not touch tables, got %+v", st)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	spy := newFetchSpy()
	cc := newTestCache(t, spy, nil)

	if _, err := cc.Resolve(context.Background(), Kind(42), 1); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if st := cc.Stats(); st != (Stats{}) {
		t.Fatalf("unknown kind must not touch tables, got %+v", st)
	}
}

func TestAbandonedWaitDoesNotCancelFetch(t *testing.T) {
	spy := newFetchSpy()
	cc := newTestCache(t, spy, nil)
	release := spy.hold()

	k := Key{Kind: KindPerk, ID: 8005}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cc.Resolve(ctx, k.Kind, k.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	other := cc.Acquire(k.Kind, k.ID)
	release()
	if loc, err := waitFuture(t, other); err != nil || loc != locFor(k) {
		t.Fatalf("remaining awaiter: loc=%q err=%v", loc, err)
	}
	if got := spy.count(k); got != 1 {
		t.Fatalf("fetch calls: got %d want 1", got)
	}
	if _, ok := cc.Peek(k.Kind, k.ID); !ok {
		t.Fatalf("abandoned wait should still populate the cache")
	}
}

// ==============================
// Close
// ==============================

func TestCloseCancelsInflightAndRejectsNewWork(t *testing.T) {
	spy := newFetchSpy()
	cc := newTestCache(t, spy, nil)
	spy.hold() // never released: only Close unblocks the fetch

	f := cc.Acquire(KindChampion, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := waitFuture(t, f)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("in-flight fetch should fail with context.Canceled, got %v", err)
	}
	if _, err := cc.Resolve(context.Background(), KindChampion, 2); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ==============================
// Self-heal tests (corruption/gen mismatch/eviction)
// ==============================

func TestSelfHealOnCorruptFrame(t *testing.T) {
	ctx := context.Background()
	spy := newFetchSpy()
	hooks := &recHooks{}
	mp := memory.New()
	cc := newTestCache(t, spy, func(o *Options) {
		o.Provider = mp
		o.Hooks = hooks
	})

	k := Key{Kind: KindChampion, ID: 1}
	if _, err := cc.Resolve(ctx, k.Kind, k.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	sk := util.StorageKey(defaultNamespace, "champion", 1)
	if ok, err := mp.Set(ctx, sk, []byte("not-wire-format"), 1); err != nil || !ok {
		t.Fatalf("inject corrupt: ok=%v err=%v", ok, err)
	}

	if _, ok := cc.Peek(k.Kind, k.ID); ok {
		t.Fatalf("Peek on corrupt frame should miss")
	}
	if _, ok, _ := mp.Get(ctx, sk); ok {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}
	if hooks.count("selfheal:corrupt") != 1 {
		t.Fatalf("expected SelfHeal(corrupt), events=%v", hooks.events)
	}
	if st := cc.Stats(); st.Cached != 0 {
		t.Fatalf("self-heal must drop the index entry, got %+v", st)
	}

	if _, err := cc.Resolve(ctx, k.Kind, k.ID); err != nil {
		t.Fatalf("Resolve after heal: %v", err)
	}
	if got := spy.count(k); got != 2 {
		t.Fatalf("fetch calls: got %d want 2", got)
	}
}

func TestSelfHealOnProviderEviction(t *testing.T) {
	ctx := context.Background()
	spy := newFetchSpy()
	hooks := &recHooks{}
	mp := memory.New()
	cc := newTestCache(t, spy, func(o *Options) {
		o.Provider = mp
		o.Hooks = hooks
		o.Namespace = "client"
	})

	k := Key{Kind: KindProfile, ID: 29}
	if _, err := cc.Resolve(ctx, k.Kind, k.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	_ = mp.Del(ctx, util.StorageKey("client", "profile", 29))

	if _, ok := cc.Peek(k.Kind, k.ID); ok {
		t.Fatalf("Peek after eviction should miss")
	}
	if hooks.count("selfheal:provider_miss") != 1 {
		t.Fatalf("expected SelfHeal(provider_miss), events=%v", hooks.events)
	}
}

func TestSharedGenStoreRejectsEntriesClearedElsewhere(t *testing.T) {
	ctx := context.Background()
	gs := gen.NewLocalGenStore(time.Hour, time.Hour)
	mp := memory.New()
	share := func(h Hooks) func(*Options) {
		return func(o *Options) {
			o.Provider = mp
			o.GenStore = gs
			o.Hooks = h
		}
	}

	spyA, hooksA := newFetchSpy(), &recHooks{}
	a := newTestCache(t, spyA, share(hooksA))
	b := newTestCache(t, newFetchSpy(), share(NopHooks{}))

	k := Key{Kind: KindItem, ID: 1001}
	if _, err := a.Resolve(ctx, k.Kind, k.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// b never cached k but its clear still bumps the shared generation
	if err := b.ClearKey(ctx, k.Kind, k.ID); err != nil {
		t.Fatalf("ClearKey: %v", err)
	}
	if _, ok := a.Peek(k.Kind, k.ID); ok {
		t.Fatalf("entry cleared by a peer should miss")
	}
	if hooksA.count("selfheal:gen_mismatch") != 1 {
		t.Fatalf("expected SelfHeal(gen_mismatch), events=%v", hooksA.events)
	}

	// a fetch that started before a peer's clear is delivered but not cached
	release := spyA.hold()
	f := a.Acquire(k.Kind, k.ID)
	if err := b.ClearKey(ctx, k.Kind, k.ID); err != nil {
		t.Fatalf("ClearKey during fetch: %v", err)
	}
	release()
	if loc, err := waitFuture(t, f); err != nil || loc != locFor(k) {
		t.Fatalf("awaiter: loc=%q err=%v", loc, err)
	}
	if _, ok := a.Peek(k.Kind, k.ID); ok {
		t.Fatalf("result observed under an old generation must not be cached")
	}
	if hooksA.count("invalidated:"+k.String()) != 1 {
		t.Fatalf("expected InvalidatedWhilePending, events=%v", hooksA.events)
	}

	// fresh fetch under the current generation sticks
	if _, err := a.Resolve(ctx, k.Kind, k.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := a.Peek(k.Kind, k.ID); !ok {
		t.Fatalf("fresh result should be cached")
	}
}

type rejectingProvider struct {
	*memory.Provider
}

func (rejectingProvider) Set(context.Context, string, []byte, int64) (bool, error) {
	return false, nil
}

func TestProviderRejectedSetLeavesKeyUncached(t *testing.T) {
	ctx := context.Background()
	spy := newFetchSpy()
	hooks := &recHooks{}
	cc := newTestCache(t, spy, func(o *Options) {
		o.Provider = rejectingProvider{memory.New()}
		o.Hooks = hooks
	})

	k := Key{Kind: KindChampion, ID: 7}
	for i := 0; i < 2; i++ {
		loc, err := cc.Resolve(ctx, k.Kind, k.ID)
		if err != nil || loc != locFor(k) {
			t.Fatalf("Resolve #%d: loc=%q err=%v", i, loc, err)
		}
	}
	if st := cc.Stats(); st != (Stats{}) {
		t.Fatalf("rejected write must not be indexed, got %+v", st)
	}
	if got := hooks.count("rejected"); got != 2 {
		t.Fatalf("ProviderSetRejected hooks: got %d want 2", got)
	}
	if got := spy.count(k); got != 2 {
		t.Fatalf("fetch calls: got %d want 2", got)
	}
}

func TestOversizedLocatorIsNeverIndexed(t *testing.T) {
	ctx := context.Background()
	spy := newFetchSpy()
	hooks := &recHooks{}
	cc := newTestCache(t, spy, func(o *Options) {
		o.Codec = c.LimitCodec[string]{Inner: c.String{}, MaxDecode: 40}
		o.Hooks = hooks
	})

	small := Key{Kind: KindChampion, ID: 1}          // 32-byte locator
	big := Key{Kind: KindChampion, ID: 4294967295} // 41-byte locator
	resolveAll(t, cc, small, big)

	if st := cc.Stats(); st != (Stats{Cached: 1}) {
		t.Fatalf("only the locator within the limit may be cached, got %+v", st)
	}

	// a key reported as cached must be served synchronously
	cs := newChangeSpy()
	if st := cc.Bind(small.Kind, small.ID, cs.onChange).State(); st.Status != StatusReady || st.Locator != locFor(small) {
		t.Fatalf("bind %s: got %+v", small, st)
	}

	// the oversized one is fetched again, never decoded from the store
	if loc, err := cc.Resolve(ctx, big.Kind, big.ID); err != nil || loc != locFor(big) {
		t.Fatalf("Resolve %s: loc=%q err=%v", big, loc, err)
	}
	if got := spy.count(big); got != 2 {
		t.Fatalf("fetch calls for %s: got %d want 2", big, got)
	}
	if got := spy.count(small); got != 1 {
		t.Fatalf("fetch calls for %s: got %d want 1", small, got)
	}
	if n := hooks.count("selfheal:value_decode"); n != 0 {
		t.Fatalf("oversized locator reached the store: %d value_decode self-heals", n)
	}
}

func TestSetCostDefaultsToFrameLength(t *testing.T) {
	ctx := context.Background()
	var gotCost atomic.Int64
	cp := &costProvider{Provider: memory.New(), cost: &gotCost}
	cc := newTestCache(t, newFetchSpy(), func(o *Options) { o.Provider = cp })

	if _, err := cc.Resolve(ctx, KindItem, 1); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	raw, ok, _ := cp.Get(ctx, util.StorageKey(defaultNamespace, "item", 1))
	if !ok {
		t.Fatalf("frame not stored")
	}
	if gotCost.Load() != int64(len(raw)) {
		t.Fatalf("cost: got %d want %d", gotCost.Load(), len(raw))
	}
}

type costProvider struct {
	*memory.Provider
	cost *atomic.Int64
}

func (p *costProvider) Set(ctx context.Context, key string, value []byte, cost int64) (bool, error) {
	p.cost.Store(cost)
	return p.Provider.Set(ctx, key, value, cost)
}

// ==============================
// ResolveMany
// ==============================

func TestResolveManyCollectsPartialFailures(t *testing.T) {
	ctx := context.Background()
	spy := newFetchSpy()
	cc := newTestCache(t, spy, nil)

	bad := errors.New("not found")
	spy.fail(Key{Kind: KindItem, ID: 3}, bad)

	got, err := cc.ResolveMany(ctx, KindItem, []uint32{1, 2, 0, 3, 2})
	if !errors.Is(err, bad) {
		t.Fatalf("expected joined error to wrap cause, got %v", err)
	}
	if len(got) != 2 || got[1] != locFor(Key{KindItem, 1}) || got[2] != locFor(Key{KindItem, 2}) {
		t.Fatalf("unexpected results: %v", got)
	}
	if _, ok := got[0]; ok {
		t.Fatalf("sentinel id must be skipped")
	}
	if n := spy.count(Key{Kind: KindItem, ID: 2}); n != 1 {
		t.Fatalf("duplicate id fetched %d times", n)
	}
}

func TestResolveManyBoundsParallelism(t *testing.T) {
	var cur, peak atomic.Int32
	fn := func(ctx context.Context, id uint32) (string, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return "x", nil
	}
	cc, err := New(Options{
		Fetchers:         Fetchers{Profile: fn, Champion: fn, Item: fn, Spell: fn, Perk: fn},
		BatchConcurrency: 2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cc.Close(context.Background())

	ids := make([]uint32, 20)
	for i := range ids {
		ids[i] = uint32(i + 1)
	}
	got, err := cc.ResolveMany(context.Background(), KindChampion, ids)
	if err != nil || len(got) != len(ids) {
		t.Fatalf("ResolveMany: n=%d err=%v", len(got), err)
	}
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds limit 2", p)
	}
}

func TestNewRejectsNegativeBatchConcurrency(t *testing.T) {
	_, err := New(Options{Fetchers: newFetchSpy().fetchers(), BatchConcurrency: -1})
	if err == nil {
		t.Fatalf("expected error for negative BatchConcurrency")
	}
}
