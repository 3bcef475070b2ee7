package repository

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-repository-redis/connection"
	"github.com/goliatone/go-repository-redis/document"
)

const (
	// DefaultRecordExpiration applies to saved records without an explicit
	// expiration.
	DefaultRecordExpiration = 15 * 24 * time.Hour
	// DefaultMaxAttempts bounds backend read retries.
	DefaultMaxAttempts = 5
	// DefaultRetryUnit is the backoff unit; attempt n waits n*5 units.
	DefaultRetryUnit = time.Millisecond
	// DefaultScanLimit caps Scan when the caller passes no limit.
	DefaultScanLimit = 10000
)

// SubscriptionMode selects how change notifications are received.
type SubscriptionMode int

const (
	// Keyspace listens to the backend keyspace notifications. Payloads only
	// name the operation and the document is fetched again.
	Keyspace SubscriptionMode = iota
	// PubSub listens on channels named by the pattern. Payloads carry the
	// serialized document.
	PubSub
)

func (m SubscriptionMode) String() string {
	switch m {
	case Keyspace:
		return "keyspace"
	case PubSub:
		return "pubsub"
	default:
		return fmt.Sprintf("SubscriptionMode(%d)", int(m))
	}
}

func (m SubscriptionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *SubscriptionMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "keyspace":
		*m = Keyspace
	case "pubsub", "pub_sub":
		*m = PubSub
	default:
		return fmt.Errorf("repository: unknown subscription mode %q", text)
	}
	return nil
}

// Options configures one document type.
type Options struct {
	ConnectionString   string              `yaml:"connection_string"`
	ConnectionMode     connection.Mode     `yaml:"connection_mode"`
	PoolSize           int                 `yaml:"pool_size"`
	PoolVotingStrategy connection.Strategy `yaml:"voting_strategy"`
	Scorer             connection.Scorer   `yaml:"-"`

	EnableCaching bool `yaml:"enable_caching"`
	// CacheExpiration is the local cache TTL of the type. Zero uses the
	// cache default. The first repository of a type fixes it.
	CacheExpiration time.Duration `yaml:"cache_expiration"`
	// DefaultRecordExpiration is the backend TTL used by Save. A negative
	// value stores records without expiry.
	DefaultRecordExpiration        time.Duration    `yaml:"record_expiration"`
	SuppressDuplicateNotifications bool             `yaml:"suppress_duplicates"`
	SubscriptionMode               SubscriptionMode `yaml:"subscription_mode"`
	DisableAutoSubscription        bool             `yaml:"disable_auto_subscription"`

	RetryUnit   time.Duration `yaml:"retry_unit"`
	MaxAttempts int           `yaml:"max_attempts"`
	ScanLimit   int           `yaml:"scan_limit"`
	Codec       string        `yaml:"codec"`
}

// DefaultOptions returns options with caching and duplicate suppression on.
func DefaultOptions() Options {
	return Options{
		ConnectionMode:                 connection.Shared,
		PoolVotingStrategy:             connection.LeastLoaded,
		EnableCaching:                  true,
		DefaultRecordExpiration:        DefaultRecordExpiration,
		SuppressDuplicateNotifications: true,
		SubscriptionMode:               Keyspace,
		RetryUnit:                      DefaultRetryUnit,
		MaxAttempts:                    DefaultMaxAttempts,
		ScanLimit:                      DefaultScanLimit,
		Codec:                          document.JSON.Name(),
	}
}

// withDefaults fills zero numeric fields.
func (o Options) withDefaults() Options {
	if o.DefaultRecordExpiration == 0 {
		o.DefaultRecordExpiration = DefaultRecordExpiration
	}
	if o.RetryUnit == 0 {
		o.RetryUnit = DefaultRetryUnit
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.ScanLimit == 0 {
		o.ScanLimit = DefaultScanLimit
	}
	if o.ConnectionMode == connection.Pooled && o.PoolSize == 0 {
		o.PoolSize = 1
	}
	return o
}

// Validate checks the options after zero fields were given their defaults.
func (o Options) Validate() error {
	o = o.withDefaults()
	return validation.ValidateStruct(&o,
		validation.Field(&o.ConnectionString, validation.Required),
		validation.Field(&o.ConnectionMode, validation.In(connection.Shared, connection.LazyPerInstance, connection.Pooled)),
		validation.Field(&o.PoolSize,
			validation.Min(0),
			validation.When(o.ConnectionMode == connection.Pooled, validation.Required, validation.Min(1)),
		),
		validation.Field(&o.PoolVotingStrategy,
			validation.In(connection.LeastLoaded, connection.Random, connection.Custom),
			validation.By(func(any) error {
				if o.ConnectionMode == connection.Pooled && o.PoolVotingStrategy == connection.Custom && o.Scorer == nil {
					return validation.NewError("validation_scorer_required", "custom voting strategy requires a scorer")
				}
				return nil
			}),
		),
		validation.Field(&o.CacheExpiration, validation.Min(time.Duration(0))),
		validation.Field(&o.SubscriptionMode, validation.In(Keyspace, PubSub)),
		validation.Field(&o.RetryUnit, validation.Min(time.Duration(0))),
		validation.Field(&o.MaxAttempts, validation.Min(1)),
		validation.Field(&o.ScanLimit, validation.Min(1)),
		validation.Field(&o.Codec, validation.In("", document.JSON.Name(), document.Msgpack.Name())),
	)
}

func (o Options) connectionSpec() connection.Spec {
	return connection.Spec{
		DSN:      o.ConnectionString,
		Mode:     o.ConnectionMode,
		PoolSize: o.PoolSize,
		Strategy: o.PoolVotingStrategy,
		Scorer:   o.Scorer,
	}
}
