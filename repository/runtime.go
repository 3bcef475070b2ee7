package repository

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-repository-redis/cache"
	"github.com/goliatone/go-repository-redis/connection"
	"github.com/goliatone/go-repository-redis/internal/metrics"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Runtime is the process wide state every repository shares: the local
// cache, the connection registry, the invalidation owners and the error
// hook. Build it once at startup.
type Runtime struct {
	Cache       cache.Store
	Connections *connection.Registry
	Owners      *OwnerRegistry
	Flight      *singleflight.Group
	Logger      *slog.Logger
	OnError     func(error)
	Metrics     *metrics.Metrics
	Now         func() time.Time
	Sleep       Sleeper
}

// RuntimeOption customises a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		if l != nil {
			rt.Logger = l
		}
	}
}

// WithErrorHandler receives errors that have no caller to return to, such
// as failed notifications.
func WithErrorHandler(fn func(error)) RuntimeOption {
	return func(rt *Runtime) { rt.OnError = fn }
}

// WithMetrics records cache, fetch and notification metrics on m.
func WithMetrics(m *metrics.Metrics) RuntimeOption {
	return func(rt *Runtime) { rt.Metrics = m }
}

// WithClock replaces time.Now for CreateDate and ModifyDate stamps.
func WithClock(now func() time.Time) RuntimeOption {
	return func(rt *Runtime) {
		if now != nil {
			rt.Now = now
		}
	}
}

// WithSleeper replaces the retry backoff sleep.
func WithSleeper(s Sleeper) RuntimeOption {
	return func(rt *Runtime) {
		if s != nil {
			rt.Sleep = s
		}
	}
}

// NewRuntime assembles a runtime around a cache and a registry.
func NewRuntime(store cache.Store, conns *connection.Registry, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		Cache:       store,
		Connections: conns,
		Owners:      NewOwnerRegistry(),
		Flight:      &singleflight.Group{},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         time.Now,
		Sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// report forwards err to the error hook, or logs it when there is none.
func (rt *Runtime) report(err error) {
	if err == nil {
		return
	}
	if rt.OnError != nil {
		rt.OnError(err)
		return
	}
	rt.Logger.Error("repository error", "error", err)
}

// Close closes the invalidation owners and then the registry.
func (rt *Runtime) Close(ctx context.Context) error {
	ownersErr := rt.Owners.Close(ctx)
	if rt.Connections == nil {
		return ownersErr
	}
	if err := rt.Connections.Close(); err != nil {
		return err
	}
	return ownersErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
