package assetcache

import (
	"fmt"
	"sync"
)

// Status is the lifecycle stage of a Binding.
type Status uint8

const (
	StatusPending Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// State is what a consumer renders: a locator once Ready, the failure once
// Error. Ready with an empty Locator means "no resource" (id 0).
type State struct {
	Status  Status
	Locator string
	Err     error
}

// Binding ties one consumer to the key it currently displays. Each
// activation mints a fresh generation; a fetch outcome is delivered only if
// the binding still holds the generation it was issued under, so results for
// a key the consumer has moved away from are discarded.
type Binding struct {
	c        *Cache
	onChange func(State)

	deliver sync.Mutex // held across the generation check and onChange

	mu     sync.Mutex
	key    Key
	active bool   // false after Unbind
	token  uint64 // 0 when no delivery is expected
	state  State
}

// Bind resolves kind/id for a consumer. A cached key or id 0 is Ready on
// return and onChange is not called for it. Otherwise the binding starts
// Pending and onChange is called once, from another goroutine, when the fetch
// settles, unless Unbind or Rebind happened first.
//
// onChange may call State but must not call Unbind or Rebind on the same
// binding.
func (c *Cache) Bind(kind Kind, id uint32, onChange func(State)) *Binding {
	b := &Binding{c: c, onChange: onChange}
	b.mu.Lock()
	b.activate(Key{Kind: kind, ID: id})
	b.mu.Unlock()
	return b
}

// State returns the binding's current state.
func (b *Binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Binding) Key() Key {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key
}

// Unbind stops delivery to onChange. After it returns onChange is never
// called again for this activation. The fetch itself keeps running and still
// populates the cache. Unbind is idempotent.
func (b *Binding) Unbind() {
	b.mu.Lock()
	b.invalidateLocked()
	b.active = false
	b.mu.Unlock()
	b.waitDelivery()
}

// Rebind switches the binding to kind/id, discarding any pending outcome for
// the previous key. Rebinding an active binding to its current key is a
// no-op; Rebind after Unbind reactivates it.
func (b *Binding) Rebind(kind Kind, id uint32) {
	key := Key{Kind: kind, ID: id}
	b.mu.Lock()
	if b.active && key == b.key {
		b.mu.Unlock()
		return
	}
	b.invalidateLocked()
	b.activate(key)
	b.mu.Unlock()
	b.waitDelivery()
}

func (b *Binding) invalidateLocked() {
	if b.token != 0 {
		b.c.hooks.StaleResolution(b.key)
	}
	b.token = 0
}

// waitDelivery blocks until an onChange already past its generation check
// has returned.
func (b *Binding) waitDelivery() {
	b.deliver.Lock()
	b.deliver.Unlock() //nolint:staticcheck // empty critical section is the barrier
}

// activate points the binding at key. b.mu must be held.
func (b *Binding) activate(key Key) {
	b.key = key
	b.active = true
	b.token = 0
	if key.ID == 0 {
		b.state = State{Status: StatusReady}
		return
	}
	if !key.Kind.Valid() {
		b.state = State{Status: StatusError, Err: fmt.Errorf("%w: %s", ErrUnknownKind, key.Kind)}
		return
	}

	c := b.c
	c.mu.Lock()
	if loc, ok := c.store.get(c.ctx, key); ok {
		c.mu.Unlock()
		b.state = State{Status: StatusReady, Locator: loc}
		return
	}
	f := c.acquireLocked(key)
	c.mu.Unlock()

	b.token = c.tokens.Add(1)
	b.state = State{Status: StatusPending}
	go b.await(f, b.token)
}

func (b *Binding) await(f *Future, token uint64) {
	<-f.Done()

	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	if b.token != token {
		b.mu.Unlock()
		return
	}
	b.token = 0
	loc, err := f.result()
	if err != nil {
		b.state = State{Status: StatusError, Err: err}
	} else {
		b.state = State{Status: StatusReady, Locator: loc}
	}
	st := b.state
	b.mu.Unlock()

	if b.onChange != nil {
		b.onChange(st)
	}
}
