package cacheinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc backed entry store.
type Config struct {
	// Capacity is a safety ceiling on the number of entries per namespace.
	// Entries normally leave the cache through expiry, not through eviction.
	Capacity int

	// NumShards determines the number of sturdyc shards per namespace.
	// Default: 256
	NumShards int

	// TTL applies to namespaces that were never registered with their own
	// expiration.
	TTL time.Duration

	// EvictionPercentage is what sturdyc drops when Capacity is reached.
	// Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration

	// Sliding re-arms the TTL of a positive entry every time it is read.
	// Absence markers always expire on an absolute schedule.
	Sliding bool
}

// DefaultConfig mirrors the behaviour of the original document cache:
// a thirty minute sliding window.
func DefaultConfig() Config {
	return Config{
		Capacity:           100000,
		NumShards:          256,
		TTL:                30 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0,
		Sliding:            true,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
}

// ToSturdycOptions converts the optional parts of Config to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}
