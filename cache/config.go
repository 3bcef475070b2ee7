package cache

import (
	"time"

	"github.com/goliatone/go-repository-redis/internal/cacheinfra"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`
	Sliding            bool          `yaml:"sliding"`
}

// Option customises the store built by New.
type Option = cacheinfra.Option

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return cacheinfra.WithClock(now)
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// New constructs the default Store implementation using the provided configuration.
func New(cfg Config, opts ...Option) (Store, error) {
	return cacheinfra.NewStore(cfg.toInternal(), opts...)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
		Sliding:            c.Sliding,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
		Sliding:            cfg.Sliding,
	}
}
