package assetcache

import (
	"context"

	c "github.com/unkn0wn-root/assetcache/codec"
	gen "github.com/unkn0wn-root/assetcache/genstore"
	"github.com/unkn0wn-root/assetcache/internal/util"
	"github.com/unkn0wn-root/assetcache/internal/wire"
	pr "github.com/unkn0wn-root/assetcache/provider"
)

// store maps keys to resolved locators. The index is authoritative for
// presence; the provider only holds the framed bytes. Not safe for concurrent
// use: the owning Cache serializes access under its mutex.
type store struct {
	ns       string
	provider pr.Provider
	codec    c.Codec[string]
	gen      gen.GenStore
	cost     SetCostFunc
	log      Logger
	hooks    Hooks

	index map[Key]struct{}
}

func (s *store) storageKey(k Key) string {
	return util.StorageKey(s.ns, k.Kind.String(), k.ID)
}

func (s *store) len() int { return len(s.index) }

// get returns the locator for k. Any entry that cannot be served is dropped
// from the index, so a miss here always leaves k absent.
func (s *store) get(ctx context.Context, k Key) (string, bool) {
	if _, ok := s.index[k]; !ok {
		return "", false
	}
	sk := s.storageKey(k)
	raw, ok, err := s.provider.Get(ctx, sk)
	if err != nil {
		s.log.Error("provider get failed", Fields{"key": k.String(), "err": err})
		s.drop(ctx, k, sk, "provider_error", false)
		return "", false
	}
	if !ok {
		// evicted by the provider (ristretto, redis maxmemory) or deleted by another process
		s.drop(ctx, k, sk, "provider_miss", false)
		return "", false
	}
	e, err := wire.DecodeEntry(raw)
	if err != nil {
		s.drop(ctx, k, sk, "corrupt", true)
		return "", false
	}
	if e.Kind != byte(k.Kind) || e.ID != k.ID {
		s.drop(ctx, k, sk, "key_mismatch", true)
		return "", false
	}
	if e.Gen != s.snapshotGen(ctx, k) {
		s.drop(ctx, k, sk, "gen_mismatch", true)
		return "", false
	}
	loc, err := s.codec.Decode(e.Payload)
	if err != nil {
		s.drop(ctx, k, sk, "value_decode", true)
		return "", false
	}
	return loc, true
}

func (s *store) drop(ctx context.Context, k Key, sk, reason string, del bool) {
	delete(s.index, k)
	if del {
		_ = s.provider.Del(ctx, sk) // self-heal
	}
	s.hooks.SelfHeal(sk, reason)
	s.log.Debug("dropped cache entry", Fields{"key": k.String(), "reason": reason})
}

// set writes loc for k framed with the generation observed when the fetch
// started. It reports whether k is now cached.
func (s *store) set(ctx context.Context, k Key, loc string, observedGen uint64) bool {
	payload, err := s.codec.Encode(loc)
	if err != nil {
		s.log.Error("locator encode failed", Fields{"key": k.String(), "err": err})
		return false
	}
	sk := s.storageKey(k)
	raw := wire.EncodeEntry(byte(k.Kind), k.ID, observedGen, payload)
	ok, err := s.provider.Set(ctx, sk, raw, s.cost(sk, raw))
	if err != nil {
		s.log.Error("provider set failed", Fields{"key": k.String(), "err": err})
		return false
	}
	if !ok {
		s.hooks.ProviderSetRejected(sk)
		s.log.Debug("provider rejected set (pressure)", Fields{"key": k.String()})
		return false
	}
	s.index[k] = struct{}{}
	return true
}

func (s *store) keys(match func(Key) bool) []Key {
	var out []Key
	for k := range s.index {
		if match(k) {
			out = append(out, k)
		}
	}
	return out
}

// invalidate bumps the generation of every key and removes the indexed ones
// from the index and the provider. Keys not in the index (in flight) only get
// the bump.
func (s *store) invalidate(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}
	storageKeys := make([]string, len(keys))
	for i, k := range keys {
		storageKeys[i] = s.storageKey(k)
	}

	var ie InvalidateError
	if err := s.gen.Bump(ctx, storageKeys...); err != nil {
		s.log.Error("gen bump failed", Fields{"count": len(keys), "err": err})
		ie.BumpErr = err
	}
	for i, k := range keys {
		if _, ok := s.index[k]; !ok {
			continue
		}
		delete(s.index, k)
		ie.Count++
		if err := s.provider.Del(ctx, storageKeys[i]); err != nil {
			ie.DelErrs = append(ie.DelErrs, err)
		}
	}
	switch {
	case ie.BumpErr != nil && len(ie.DelErrs) > 0:
		// stale bytes remain readable by anyone sharing the provider
		return &ie
	case len(ie.DelErrs) > 0:
		s.log.Warn("provider delete failed; stale frames rejected by generation",
			Fields{"failed": len(ie.DelErrs), "err": ie.DelErrs[0]})
	}
	return nil
}

func (s *store) snapshotGen(ctx context.Context, k Key) uint64 {
	g, err := s.gen.Snapshot(ctx, s.storageKey(k))
	if err != nil {
		// Conservative: treat as 0 so reads of bumped entries self-heal
		s.log.Warn("gen snapshot error", Fields{"key": k.String(), "err": err})
		return 0
	}
	return g
}
