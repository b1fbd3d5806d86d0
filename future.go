package assetcache

import "context"

// Future is the shared handle to one fetch. Every caller that joined the
// fetch observes the same outcome.
type Future struct {
	key Key
	gen uint64 // generation observed when the fetch started
	done chan struct{}

	// set once before done is closed
	loc string
	err error

	// guarded by Cache.mu: the key was cleared while this fetch was in flight
	stale bool
}

func newFuture(key Key, gen uint64) *Future {
	return &Future{key: key, gen: gen, done: make(chan struct{})}
}

// settledFuture returns a future that is already complete.
func settledFuture(key Key, loc string, err error) *Future {
	f := &Future{key: key, done: make(chan struct{}), loc: loc, err: err}
	close(f.done)
	return f
}

func (f *Future) Key() Key { return f.key }

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the fetch settles or ctx ends. Abandoning a wait does not
// cancel the fetch: other awaiters and the cache still receive its result.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.loc, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// result must only be called after done is closed.
func (f *Future) result() (string, error) { return f.loc, f.err }
