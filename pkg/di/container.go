package di

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-repository-redis/backend"
	"github.com/goliatone/go-repository-redis/cache"
	"github.com/goliatone/go-repository-redis/connection"
	"github.com/goliatone/go-repository-redis/document"
	"github.com/goliatone/go-repository-redis/internal/metrics"
	"github.com/goliatone/go-repository-redis/repository"
)

// Container builds the process wide state once: the local cache, the
// connection registry, the invalidation owners and the metrics. Create one
// per process and hand it to every repository constructor.
type Container struct {
	config   cache.Config
	cache    cache.Store
	registry *connection.Registry
	runtime  *repository.Runtime
	metrics  *metrics.Metrics
}

type settings struct {
	logger     *slog.Logger
	onError    func(error)
	registerer prometheus.Registerer
	now        func() time.Time
}

// Option customises a Container.
type Option func(*settings)

// WithLogger sets the logger shared by the runtime and the default dialer.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithErrorHandler receives errors that have no caller to return to:
// fire-and-forget writes and failed notifications.
func WithErrorHandler(fn func(error)) Option {
	return func(s *settings) { s.onError = fn }
}

// WithRegisterer registers the module metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

// WithClock replaces time.Now for cache expiry and document timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// NewContainer creates a container around cfg. A nil dial selects Dialer,
// which routes connection strings by scheme.
func NewContainer(cfg cache.Config, dial backend.Dialer, opts ...Option) (*Container, error) {
	s := settings{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}

	m, err := metrics.New(s.registerer)
	if err != nil {
		return nil, err
	}

	store, err := cache.New(cfg, cache.WithClock(s.now))
	if err != nil {
		return nil, err
	}

	if dial == nil {
		dial = Dialer(s.logger, s.onError)
	}
	registry := connection.NewRegistry(dial, connection.WithMetrics(m))

	rt := repository.NewRuntime(store, registry,
		repository.WithLogger(s.logger),
		repository.WithErrorHandler(s.onError),
		repository.WithMetrics(m),
		repository.WithClock(s.now),
	)

	return &Container{
		config:   cfg,
		cache:    store,
		registry: registry,
		runtime:  rt,
		metrics:  m,
	}, nil
}

// NewContainerWithDefaults creates a container with cache.DefaultConfig.
func NewContainerWithDefaults(dial backend.Dialer, opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), dial, opts...)
}

// Runtime returns the state repositories are built from.
func (c *Container) Runtime() *repository.Runtime {
	return c.runtime
}

// Cache returns the process wide local cache.
func (c *Container) Cache() cache.Store {
	return c.cache
}

// Registry returns the connection registry.
func (c *Container) Registry() *connection.Registry {
	return c.registry
}

// Config returns a copy of the cache configuration.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close stops the invalidation owners and closes every connection.
func (c *Container) Close(ctx context.Context) error {
	return c.runtime.Close(ctx)
}

// NewRepository creates a repository of T on the container runtime.
//
//	members, err := di.NewRepository[Member](container, opts)
func NewRepository[T any, PT document.Pointer[T]](c *Container, opts repository.Options) (*repository.Repository[T, PT], error) {
	return repository.New[T, PT](c.runtime, opts)
}

// RegisterInvalidationOwner declares the invalidation owner of T, built
// with opts when the first repository of T is created.
func RegisterInvalidationOwner[T any, PT document.Pointer[T]](c *Container, opts repository.Options) {
	repository.RegisterInvalidationOwner(c.runtime.Owners, func(rt *repository.Runtime) (*repository.Repository[T, PT], error) {
		return repository.New[T, PT](rt, opts)
	})
}

// Owner returns the running invalidation owner of T.
func Owner[T any, PT document.Pointer[T]](c *Container) (*repository.Repository[T, PT], bool) {
	return repository.Owner[T, PT](c.runtime.Owners)
}
