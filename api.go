package assetcache

import (
	"time"

	c "github.com/unkn0wn-root/assetcache/codec"
	gen "github.com/unkn0wn-root/assetcache/genstore"
	pr "github.com/unkn0wn-root/assetcache/provider"
)

// SetCostFunc reports the cost of one stored frame to cost-aware providers.
type SetCostFunc func(storageKey string, raw []byte) int64

// Options tune the cache. Only Fetchers is required; others have sensible defaults.
type Options struct {
	// Required: one fetch function per Kind.
	Fetchers Fetchers

	Namespace        string          // provider keyspace "asset:<ns>:"; "" => "assets"
	Provider         pr.Provider     // nil => in-process map (provider/memory)
	Codec            c.Codec[string] // nil => codec.String
	GenStore         gen.GenStore    // nil => LocalGenStore (in-process)
	Logger           Logger          // nil => NopLogger
	Hooks            Hooks           // nil => NopHooks
	ComputeSetCost   SetCostFunc     // nil => len(raw)
	CleanupInterval  time.Duration   // local GenStore sweep; 0 => 1h
	GenRetention     time.Duration   // local GenStore retention; 0 => 30d
	BatchConcurrency int             // ResolveMany parallelism; 0 => 8
}

// Stats is a point-in-time view of the two shared tables.
type Stats struct {
	Cached   int // keys resolved and not cleared since
	InFlight int // keys with a fetch outstanding
}
