package main

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/ristretto"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/assetcache"
	"github.com/unkn0wn-root/assetcache/codec"
	"github.com/unkn0wn-root/assetcache/genstore"
	asynchook "github.com/unkn0wn-root/assetcache/hooks/async"
	"github.com/unkn0wn-root/assetcache/internal/config"
	"github.com/unkn0wn-root/assetcache/lcu"
	zaplog "github.com/unkn0wn-root/assetcache/log/zap"
	pr "github.com/unkn0wn-root/assetcache/provider"
	bcprov "github.com/unkn0wn-root/assetcache/provider/bigcache"
	"github.com/unkn0wn-root/assetcache/provider/memory"
	redisprov "github.com/unkn0wn-root/assetcache/provider/redis"
	rprov "github.com/unkn0wn-root/assetcache/provider/ristretto"
	"github.com/unkn0wn-root/assetcache/sloghooks"
)

func newLogger(cfg config.Log) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// newLCUClient builds the client with its image cap derived from the cache's
// locator limit, so every image it returns can be stored.
func newLCUClient(all *config.Config) (*lcu.Client, error) {
	cfg := all.LCU
	opts := []lcu.Option{
		lcu.WithTimeout(cfg.Timeout),
		lcu.WithMaxLocatorBytes(all.Cache.MaxLocatorBytes),
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("lcu ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("lcu ca file %s: no certificates found", cfg.CAFile)
		}
		opts = append(opts, lcu.WithRootCAs(pool))
	}
	return lcu.NewClient(cfg.BaseURL, cfg.Token, opts...)
}

func newCodec(cfg config.Cache) (codec.Codec[string], error) {
	inner, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if cfg.MaxLocatorBytes > 0 {
		return codec.LimitCodec[string]{Inner: inner, MaxDecode: cfg.MaxLocatorBytes}, nil
	}
	return inner, nil
}

func newProvider(ctx context.Context, cfg *config.Config, rdb goredis.UniversalClient) (pr.Provider, error) {
	switch cfg.Cache.Provider {
	case "memory":
		return memory.New(), nil
	case "bigcache":
		return bcprov.New(ctx, bcprov.Config{
			Shards:             cfg.BigCache.Shards,
			MaxEntrySize:       cfg.BigCache.MaxEntrySize,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSizeMB,
		})
	case "ristretto":
		return rprov.New(rprov.Config{
			NumCounters: cfg.Ristretto.NumCounters,
			MaxCost:     cfg.Ristretto.MaxCost,
			BufferItems: cfg.Ristretto.BufferItems,
			Metrics:     cfg.Log.Level == "debug",
		})
	case "redis":
		return redisprov.New(redisprov.Config{Client: rdb})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Cache.Provider)
	}
}

// stack is one fully wired cache plus everything it owns.
type stack struct {
	cache   *assetcache.Cache
	hooks   *asynchook.Hooks
	rdb     goredis.UniversalClient
	log     *zap.Logger
	metrics *ristretto.Metrics
}

func (s *stack) Close() {
	if m := s.metrics; m != nil {
		s.log.Debug("ristretto stats",
			zap.Uint64("hits", m.Hits()),
			zap.Uint64("misses", m.Misses()),
			zap.Uint64("rejected", m.SetsRejected()),
			zap.Float64("ratio", m.Ratio()))
	}
	_ = s.cache.Close(context.Background())
	s.hooks.Close()
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
}

func buildStack(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stack, error) {
	client, err := newLCUClient(cfg)
	if err != nil {
		return nil, err
	}
	return buildStackWith(ctx, cfg, log, lcu.Fetchers(client, lcu.NewCatalog(client)))
}

func buildStackWith(ctx context.Context, cfg *config.Config, log *zap.Logger, fetchers assetcache.Fetchers) (*stack, error) {
	s := &stack{log: log}
	if cfg.Cache.Provider == "redis" || cfg.Redis.SharedGenerations {
		s.rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	fail := func(err error) (*stack, error) {
		if s.rdb != nil {
			_ = s.rdb.Close()
		}
		return nil, err
	}

	prov, err := newProvider(ctx, cfg, s.rdb)
	if err != nil {
		return fail(fmt.Errorf("provider: %w", err))
	}
	if rp, ok := prov.(*rprov.Provider); ok {
		s.metrics = rp.Metrics()
	}
	cdc, err := newCodec(cfg.Cache)
	if err != nil {
		return fail(fmt.Errorf("codec: %w", err))
	}
	var gens genstore.GenStore
	if cfg.Redis.SharedGenerations {
		gens = genstore.NewRedisGenStoreWithTTL(s.rdb, cfg.Cache.Namespace, cfg.Redis.GenTTL)
	}

	level := slog.LevelInfo
	if cfg.Log.Level == "debug" {
		level = slog.LevelDebug
	}
	s.hooks = asynchook.New(sloghooks.New(
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		sloghooks.Options{SelfHealEvery: 10},
	), 1, 256)

	s.cache, err = assetcache.New(assetcache.Options{
		Fetchers:         fetchers,
		Namespace:        cfg.Cache.Namespace,
		Provider:         prov,
		Codec:            cdc,
		GenStore:         gens,
		Logger:           zaplog.ZapLogger{L: log.Named("assetcache")},
		Hooks:            s.hooks,
		BatchConcurrency: cfg.Cache.BatchConcurrency,
	})
	if err != nil {
		s.hooks.Close()
		_ = prov.Close(ctx)
		return fail(err)
	}
	return s, nil
}
