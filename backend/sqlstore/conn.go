package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-repository-redis/backend"
)

var _ backend.Conn = (*Conn)(nil)

// Conn is a view of a Store bound to one logical database.
type Conn struct {
	store     *Store
	db        int
	queue     *backend.WriteQueue
	connected atomic.Bool
	closed    atomic.Bool
}

func (c *Conn) observe(err error) error {
	c.connected.Store(err == nil || ctxErr(err))
	return err
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Conn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.closed.Load() {
		return nil, false, backend.ErrClosed
	}
	value, ok, err := c.store.get(ctx, c.db, key)
	return value, ok, c.observe(err)
}

func (c *Conn) Set(ctx context.Context, key string, value []byte, ttl time.Duration, mode backend.WriteMode) error {
	return c.write(ctx, mode, func(ctx context.Context) error {
		if err := c.store.set(ctx, c.db, key, value, ttl); err != nil {
			return fmt.Errorf("sqlstore: set %s: %w", key, err)
		}
		return nil
	})
}

func (c *Conn) Delete(ctx context.Context, key string, mode backend.WriteMode) error {
	return c.write(ctx, mode, func(ctx context.Context) error {
		if err := c.store.delete(ctx, c.db, key); err != nil {
			return fmt.Errorf("sqlstore: delete %s: %w", key, err)
		}
		return nil
	})
}

// write keeps the writes of c in call order through its write queue.
func (c *Conn) write(ctx context.Context, mode backend.WriteMode, fn func(context.Context) error) error {
	if c.closed.Load() {
		return backend.ErrClosed
	}
	if mode == backend.FireAndForget {
		ctx = context.WithoutCancel(ctx)
		return c.queue.Enqueue(func() {
			c.store.report(c.observe(fn(ctx)))
		})
	}
	return c.queue.Do(ctx, func(ctx context.Context) error {
		return c.observe(fn(ctx))
	})
}

// ScanKeys loads the matching keys before calling fn so fn may use the
// connection.
func (c *Conn) ScanKeys(ctx context.Context, db int, pattern string, limit int, fn func(key string) bool) error {
	if c.closed.Load() {
		return backend.ErrClosed
	}
	keys, err := c.store.keys(ctx, db, pattern, limit)
	if c.observe(err) != nil {
		return err
	}
	for _, key := range keys {
		if !fn(key) {
			return nil
		}
	}
	return nil
}

func (c *Conn) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	if c.closed.Load() {
		return 0, backend.ErrClosed
	}
	return c.store.broker.Publish(ctx, channel, payload), nil
}

func (c *Conn) Subscribe(ctx context.Context, channel string, h backend.Handler) (backend.Subscription, error) {
	if c.closed.Load() {
		return nil, backend.ErrClosed
	}
	return c.store.broker.Subscribe(channel, h), nil
}

// Outstanding reports the pooled SQL connections in use plus the writes
// still queued on c.
func (c *Conn) Outstanding() int {
	return c.store.db.DB.Stats().InUse + c.queue.Pending()
}

func (c *Conn) Connected() bool { return c.connected.Load() && !c.closed.Load() }

func (c *Conn) DB() int { return c.db }

// Close flushes the queued writes and detaches the connection. The Store
// stays open for other connections.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.queue.Close(context.Background())
}
