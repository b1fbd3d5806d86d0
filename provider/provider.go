// Package provider defines the byte store behind assetcache's Cache Store.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// Important: the keyspace "asset:<ns>:" is owned by assetcache. External code
// MUST NOT write values under this prefix. Foreign writes fail frame validation
// and are deleted on read.
package provider

import "context"

// Provider is a minimal byte store. Entries never expire on their own as far as
// assetcache is concerned; a store that evicts anyway (Ristretto, a Redis with
// maxmemory) is tolerated: the cache sees a provider miss and drops the entry.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64) (ok bool, err error)

	// Del removes a key (best-effort). Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
