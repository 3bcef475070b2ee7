// Package connection hands out backend connections to repositories. A
// Registry is built once per process and keyed by connection string, so
// every repository using the same string shares the same connection, pool
// or subscriber connection.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-repository-redis/backend"
	"github.com/goliatone/go-repository-redis/internal/metrics"
)

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithMetrics records pool selections on m.
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// Registry maps connection strings to live connections.
type Registry struct {
	dial        backend.Dialer
	metrics     *metrics.Metrics
	shared      *xsync.MapOf[string, backend.Conn]
	subscribers *xsync.MapOf[string, backend.Conn]
	pools       *xsync.MapOf[string, *Pool]
	closed      atomic.Bool
}

// NewRegistry creates a registry that opens connections with dial.
func NewRegistry(dial backend.Dialer, opts ...RegistryOption) *Registry {
	r := &Registry{
		dial:        dial,
		shared:      xsync.NewMapOf[string, backend.Conn](),
		subscribers: xsync.NewMapOf[string, backend.Conn](),
		pools:       xsync.NewMapOf[string, *Pool](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns a connection for spec. In LazyPerInstance mode the caller
// owns the returned connection and must close it; in the other modes the
// registry does.
func (r *Registry) Get(ctx context.Context, spec Spec) (backend.Conn, error) {
	if r.closed.Load() {
		return nil, backend.ErrClosed
	}

	switch spec.Mode {
	case Shared:
		return r.sharedConn(ctx, r.shared, spec.DSN)
	case LazyPerInstance:
		conn, err := r.dial(ctx, spec.DSN)
		if err != nil {
			return nil, fmt.Errorf("connection: dial: %w", err)
		}
		return conn, nil
	case Pooled:
		pool, err := r.Pool(spec)
		if err != nil {
			return nil, err
		}
		return pool.Get(ctx)
	default:
		return nil, fmt.Errorf("connection: unknown mode %s", spec.Mode)
	}
}

// Subscriber returns the connection dedicated to publish/subscribe traffic
// for dsn. It is never handed out for regular requests.
func (r *Registry) Subscriber(ctx context.Context, dsn string) (backend.Conn, error) {
	if r.closed.Load() {
		return nil, backend.ErrClosed
	}
	return r.sharedConn(ctx, r.subscribers, dsn)
}

// sharedConn dials at most once per dsn at a time. Concurrent first callers
// wait inside Compute for the single dial. A connection that reports itself
// disconnected is replaced.
func (r *Registry) sharedConn(ctx context.Context, m *xsync.MapOf[string, backend.Conn], dsn string) (backend.Conn, error) {
	if conn, ok := m.Load(dsn); ok && conn.Connected() {
		return conn, nil
	}

	var dialErr error
	conn, ok := m.Compute(dsn, func(old backend.Conn, loaded bool) (backend.Conn, bool) {
		if loaded && old.Connected() {
			return old, false
		}
		if loaded {
			_ = old.Close()
		}
		conn, err := r.dial(ctx, dsn)
		if err != nil {
			dialErr = err
			return nil, true
		}
		return conn, false
	})
	if dialErr != nil {
		return nil, fmt.Errorf("connection: dial: %w", dialErr)
	}
	if !ok {
		return nil, fmt.Errorf("connection: no connection for %q", dsn)
	}
	return conn, nil
}

// Pool returns the pool for spec.DSN, creating it on first use. The size
// and strategy of the first caller win.
func (r *Registry) Pool(spec Spec) (*Pool, error) {
	if pool, ok := r.pools.Load(spec.DSN); ok {
		return pool, nil
	}

	pool, err := NewPool(spec.DSN, spec.PoolSize, spec.Strategy, spec.Scorer, r.dial, r.metrics)
	if err != nil {
		return nil, err
	}
	actual, _ := r.pools.LoadOrStore(spec.DSN, pool)
	return actual, nil
}

// Close closes every connection the registry owns.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	closeAll := func(m *xsync.MapOf[string, backend.Conn]) {
		m.Range(func(dsn string, conn backend.Conn) bool {
			if err := conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("connection: close %q: %w", dsn, err))
			}
			m.Delete(dsn)
			return true
		})
	}
	closeAll(r.shared)
	closeAll(r.subscribers)

	r.pools.Range(func(dsn string, pool *Pool) bool {
		if err := pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connection: close pool %q: %w", dsn, err))
		}
		r.pools.Delete(dsn)
		return true
	})
	return errors.Join(errs...)
}
