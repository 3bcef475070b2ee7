// Package redisconn adapts a go-redis client to backend.Conn.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/goliatone/go-repository-redis/backend"
	"github.com/goliatone/go-repository-redis/cache"
)

// DefaultScanCount is the COUNT hint passed to SCAN.
const DefaultScanCount = 500

// closeDrainTimeout bounds how long Close waits for queued writes.
const closeDrainTimeout = 5 * time.Second

var _ backend.Conn = (*Conn)(nil)

// Option customises a connection.
type Option func(*Conn)

// WithErrorHandler receives failures of fire-and-forget writes.
func WithErrorHandler(h backend.ErrorHandler) Option {
	return func(c *Conn) { c.onError = h }
}

// WithWriteQueueSize sets how many writes are buffered before Set and
// Delete block.
func WithWriteQueueSize(n int) Option {
	return func(c *Conn) { c.queueSize = n }
}

// WithLogger sets the logger used for subscription diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.logger = l
		}
	}
}

// Conn wraps one go-redis client.
type Conn struct {
	client    *redis.Client
	opts      *redis.Options
	onError   backend.ErrorHandler
	logger    *slog.Logger
	queue     *backend.WriteQueue
	queueSize int
	inflight  atomic.Int64
	connected atomic.Bool
	closed    atomic.Bool
}

// Dialer returns a backend.Dialer that parses the DSN and pings the server
// before handing the connection out.
func Dialer(opts ...Option) backend.Dialer {
	return func(ctx context.Context, dsn string) (backend.Conn, error) {
		return Dial(ctx, dsn, opts...)
	}
}

// Dial connects to the server described by dsn.
func Dial(ctx context.Context, dsn string, opts ...Option) (*Conn, error) {
	ro, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	c := New(redis.NewClient(ro), opts...)
	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("redisconn: ping %s: %w", ro.Addr, err)
	}
	return c, nil
}

// New wraps an existing client. The connection is assumed live.
func New(client *redis.Client, opts ...Option) *Conn {
	c := &Conn{
		client: client,
		opts:   client.Options(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = backend.NewWriteQueue(c.queueSize)
	c.connected.Store(true)
	return c
}

// Client exposes the underlying go-redis client.
func (c *Conn) Client() *redis.Client { return c.client }

func (c *Conn) track() func() {
	c.inflight.Add(1)
	return func() { c.inflight.Add(-1) }
}

// observe updates the liveness flag from a command result.
func (c *Conn) observe(err error) error {
	switch {
	case err == nil, errors.Is(err, redis.Nil):
		c.connected.Store(true)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		var rerr redis.Error
		if !errors.As(err, &rerr) {
			c.connected.Store(false)
		}
	}
	return err
}

func (c *Conn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.closed.Load() {
		return nil, false, backend.ErrClosed
	}
	defer c.track()()

	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(c.observe(err), redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *Conn) Set(ctx context.Context, key string, value []byte, ttl time.Duration, mode backend.WriteMode) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.write(ctx, mode, func(ctx context.Context) error {
		return c.client.Set(ctx, key, value, ttl).Err()
	})
}

func (c *Conn) Delete(ctx context.Context, key string, mode backend.WriteMode) error {
	return c.write(ctx, mode, func(ctx context.Context) error {
		return c.client.Del(ctx, key).Err()
	})
}

// write runs fn on the connection write queue so writes keep their call
// order. Fire-and-forget writes return once queued.
func (c *Conn) write(ctx context.Context, mode backend.WriteMode, fn func(context.Context) error) error {
	if c.closed.Load() {
		return backend.ErrClosed
	}

	if mode == backend.FireAndForget {
		ctx = context.WithoutCancel(ctx)
		return c.queue.Enqueue(func() {
			if err := c.observe(fn(ctx)); err != nil && c.onError != nil {
				c.onError(err)
			}
		})
	}

	return c.queue.Do(ctx, func(ctx context.Context) error {
		return c.observe(fn(ctx))
	})
}

// ScanKeys iterates with SCAN. Keys of another database are read through a
// short lived client bound to that database.
func (c *Conn) ScanKeys(ctx context.Context, db int, pattern string, limit int, fn func(key string) bool) error {
	if c.closed.Load() {
		return backend.ErrClosed
	}
	defer c.track()()

	client := c.client
	if db != c.opts.DB {
		opts := *c.opts
		opts.DB = db
		client = redis.NewClient(&opts)
		defer client.Close()
	}

	seen := 0
	iter := client.Scan(ctx, 0, pattern, DefaultScanCount).Iterator()
	for iter.Next(ctx) {
		if limit > 0 && seen >= limit {
			break
		}
		seen++
		if !fn(iter.Val()) {
			break
		}
	}
	return c.observe(iter.Err())
}

func (c *Conn) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	if c.closed.Load() {
		return 0, backend.ErrClosed
	}
	defer c.track()()

	n, err := c.client.Publish(ctx, channel, payload).Result()
	return n, c.observe(err)
}

// Subscribe opens a dedicated pub/sub connection. Glob channels use
// PSUBSCRIBE. Messages are delivered on one goroutine per subscription.
func (c *Conn) Subscribe(ctx context.Context, channel string, h backend.Handler) (backend.Subscription, error) {
	if c.closed.Load() {
		return nil, backend.ErrClosed
	}

	var ps *redis.PubSub
	if cache.IsPattern(channel) {
		ps = c.client.PSubscribe(ctx, channel)
	} else {
		ps = c.client.Subscribe(ctx, channel)
	}

	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redisconn: subscribe %s: %w", channel, c.observe(err))
	}

	sub := &subscription{channel: channel, ps: ps, done: make(chan struct{})}
	go sub.run(h, c.logger)
	return sub, nil
}

// Outstanding counts running reads and queued writes.
func (c *Conn) Outstanding() int { return int(c.inflight.Load()) + c.queue.Pending() }

func (c *Conn) Connected() bool { return c.connected.Load() && !c.closed.Load() }

func (c *Conn) DB() int { return c.opts.DB }

// Close flushes queued writes, waiting at most a few seconds, then closes
// the client.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeDrainTimeout)
	defer cancel()
	if err := c.queue.Close(ctx); err != nil {
		c.logger.Warn("closing with unflushed writes", "pending", c.queue.Pending())
	}
	return c.client.Close()
}

type subscription struct {
	channel string
	ps      *redis.PubSub
	done    chan struct{}
	closed  atomic.Bool
}

func (s *subscription) run(h backend.Handler, logger *slog.Logger) {
	defer close(s.done)
	for msg := range s.ps.Channel() {
		h(context.Background(), msg.Channel, []byte(msg.Payload))
	}
	logger.Debug("redis subscription stopped", "channel", s.channel)
}

func (s *subscription) Channel() string { return s.channel }

func (s *subscription) Unsubscribe(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.ps.Close(); err != nil {
		return err
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
