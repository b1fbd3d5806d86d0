// Package config loads assetctl settings from a YAML file with ASSETCTL_*
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/assetcache/codec"
)

const EnvPrefix = "ASSETCTL_"

type Config struct {
	LCU       LCU       `yaml:"lcu" envPrefix:"LCU_"`
	Cache     Cache     `yaml:"cache" envPrefix:"CACHE_"`
	BigCache  BigCache  `yaml:"bigcache" envPrefix:"BIGCACHE_"`
	Ristretto Ristretto `yaml:"ristretto" envPrefix:"RISTRETTO_"`
	Redis     Redis     `yaml:"redis" envPrefix:"REDIS_"`
	Log       Log       `yaml:"log" envPrefix:"LOG_"`
}

// LCU locates the running League client. The client picks a new port and
// token on every start and writes both to its lockfile
// ("LeagueClient:<pid>:<port>:<token>:https"); BaseURL is
// https://127.0.0.1:<port> from that file and has no default.
type LCU struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Token   string        `yaml:"token" env:"TOKEN"`
	CAFile  string        `yaml:"ca_file" env:"CA_FILE"` // PEM; empty => accept the self-signed cert
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type Cache struct {
	Namespace        string `yaml:"namespace" env:"NAMESPACE"`
	Provider         string `yaml:"provider" env:"PROVIDER"` // memory | bigcache | ristretto | redis
	Codec            string `yaml:"codec" env:"CODEC"`       // string | json | msgpack | cbor | proto
	MaxLocatorBytes  int    `yaml:"max_locator_bytes" env:"MAX_LOCATOR_BYTES"`
	BatchConcurrency int    `yaml:"batch_concurrency" env:"BATCH_CONCURRENCY"`
}

type BigCache struct {
	Shards             int `yaml:"shards" env:"SHARDS"`
	MaxEntrySize       int `yaml:"max_entry_size" env:"MAX_ENTRY_SIZE"`
	HardMaxCacheSizeMB int `yaml:"hard_max_cache_size_mb" env:"HARD_MAX_CACHE_SIZE_MB"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"num_counters" env:"NUM_COUNTERS"`
	MaxCost     int64 `yaml:"max_cost" env:"MAX_COST"`
	BufferItems int64 `yaml:"buffer_items" env:"BUFFER_ITEMS"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	// Keep generations in Redis too, so peers sharing Addr see each other's clears.
	SharedGenerations bool          `yaml:"shared_generations" env:"SHARED_GENERATIONS"`
	GenTTL            time.Duration `yaml:"gen_ttl" env:"GEN_TTL"`
}

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"FORMAT"` // console | json
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		LCU: LCU{
			Timeout: 10 * time.Second,
		},
		Cache: Cache{
			Namespace:        "assets",
			Provider:         "memory",
			Codec:            "string",
			MaxLocatorBytes:  4 << 20,
			BatchConcurrency: 8,
		},
		BigCache: BigCache{
			Shards:             64,
			MaxEntrySize:       64 << 10,
			HardMaxCacheSizeMB: 256,
		},
		Ristretto: Ristretto{
			NumCounters: 100_000,
			MaxCost:     256 << 20,
			BufferItems: 64,
		},
		Redis: Redis{
			Addr:   "127.0.0.1:6379",
			GenTTL: 24 * time.Hour,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path (optional: "" or a missing file yields
// defaults), then applies ASSETCTL_* environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// Empty and comment-only files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields whose ASSETCTL_* variable is set, e.g.
// ASSETCTL_LCU_TOKEN or ASSETCTL_CACHE_PROVIDER.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.LCU.BaseURL == "" {
		return errors.New("config: lcu.base_url is required (https://127.0.0.1:<port> from the client lockfile)")
	}
	if c.LCU.Timeout <= 0 {
		return fmt.Errorf("config: lcu.timeout must be positive, got %v", c.LCU.Timeout)
	}
	if c.Cache.Namespace == "" {
		return errors.New("config: cache.namespace cannot be empty")
	}
	switch c.Cache.Provider {
	case "memory", "bigcache", "ristretto":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("config: redis.addr is required for the redis provider")
		}
	default:
		return fmt.Errorf("config: cache.provider must be one of memory|bigcache|ristretto|redis, got %q", c.Cache.Provider)
	}
	if !slices.Contains(codec.Names(), c.Cache.Codec) {
		return fmt.Errorf("config: cache.codec must be one of %s, got %q", strings.Join(codec.Names(), "|"), c.Cache.Codec)
	}
	if c.Cache.MaxLocatorBytes < 0 {
		return fmt.Errorf("config: cache.max_locator_bytes must be non-negative, got %d", c.Cache.MaxLocatorBytes)
	}
	if c.Cache.BatchConcurrency < 0 {
		return fmt.Errorf("config: cache.batch_concurrency must be non-negative, got %d", c.Cache.BatchConcurrency)
	}
	if c.Cache.Provider == "ristretto" && (c.Ristretto.NumCounters <= 0 || c.Ristretto.MaxCost <= 0 || c.Ristretto.BufferItems <= 0) {
		return errors.New("config: ristretto num_counters, max_cost and buffer_items must be positive")
	}
	if c.Redis.SharedGenerations && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required for shared generations")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level must be debug|info|warn|error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: log.format must be console|json, got %q", c.Log.Format)
	}
	return nil
}
