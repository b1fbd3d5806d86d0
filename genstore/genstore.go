// Package genstore holds per-key generation counters. A cached frame records
// the generation observed when its fetch started; bumping the counter makes
// every older frame unreadable.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live. LocalGenStore serves one
// process; RedisGenStore shares invalidations between processes reading the
// same provider.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump increments the generation of every key given.
	Bump(ctx context.Context, storageKeys ...string) error
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
