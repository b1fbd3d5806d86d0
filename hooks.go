package assetcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: most of them are called
// while the cache lock is held.
type Hooks interface {
	// A fetch was started for key (cache miss, nothing in flight).
	FetchStarted(key Key)

	// A caller joined a fetch already in flight for key.
	Coalesced(key Key)

	// The fetch for key failed; nothing was cached.
	FetchFailed(key Key, err error)

	// A fetch settled after its key was cleared; its cache write was dropped.
	InvalidatedWhilePending(key Key)

	// A binding was unbound or rebound before its fetch settled; the result was discarded.
	StaleResolution(key Key)

	// A stored entry was dropped on read.
	// reason ∈ {"provider_error", "provider_miss", "corrupt", "key_mismatch", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/admission).
	ProviderSetRejected(storageKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchStarted(Key)            {}
func (NopHooks) Coalesced(Key)               {}
func (NopHooks) FetchFailed(Key, error)      {}
func (NopHooks) InvalidatedWhilePending(Key) {}
func (NopHooks) StaleResolution(Key)         {}
func (NopHooks) SelfHeal(string, string)     {}
func (NopHooks) ProviderSetRejected(string)  {}
