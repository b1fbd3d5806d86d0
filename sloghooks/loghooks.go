// Package sloghooks logs cache events to a *slog.Logger with optional sampling.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/assetcache"
	"github.com/unkn0wn-root/assetcache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	CoalescedEvery uint64
	// Log fetch starts at debug level. Off by default: one line per miss.
	LogFetchStarted bool
	// Optional storage key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	coalescedCtr atomic.Uint64
}

var _ assetcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchStarted(key assetcache.Key) {
	if h.l == nil || !h.opts.LogFetchStarted {
		return
	}
	h.l.Debug("assetcache.fetch_started", "key", key.String())
}

func (h *Hooks) Coalesced(key assetcache.Key) {
	if h.l == nil || !sample(h.opts.CoalescedEvery, &h.coalescedCtr) {
		return
	}
	h.l.Debug("assetcache.coalesced", "key", key.String())
}

func (h *Hooks) FetchFailed(key assetcache.Key, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("assetcache.fetch_failed",
		"key", key.String(),
		"err", err)
}

func (h *Hooks) InvalidatedWhilePending(key assetcache.Key) {
	if h.l == nil {
		return
	}
	h.l.Info("assetcache.invalidated_while_pending", "key", key.String())
}

func (h *Hooks) StaleResolution(key assetcache.Key) {
	if h.l == nil {
		return
	}
	h.l.Debug("assetcache.stale_resolution", "key", key.String())
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("assetcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("assetcache.provider_set_rejected", "key", h.redact(storageKey))
}
