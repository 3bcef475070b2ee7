package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-repository-redis/backend"
)

var _ backend.Conn = (*Conn)(nil)

// Conn is one connection to a Server.
type Conn struct {
	server      *Server
	db          int
	outstanding atomic.Int64
	inflight    atomic.Int64
	connected   atomic.Bool
	closed      atomic.Bool
}

// SetOutstanding overrides the load the connection reports, for pool tests.
func (c *Conn) SetOutstanding(n int) {
	c.outstanding.Store(int64(n))
}

// SetConnected flips the liveness flag.
func (c *Conn) SetConnected(v bool) {
	c.connected.Store(v)
}

func (c *Conn) begin(op string) (func(), error) {
	if c.closed.Load() {
		return func() {}, backend.ErrClosed
	}
	c.inflight.Add(1)
	done := func() { c.inflight.Add(-1) }
	if err := c.server.hit(op); err != nil {
		done()
		return func() {}, err
	}
	return done, nil
}

func (c *Conn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	done, err := c.begin(OpGet)
	if err != nil {
		return nil, false, err
	}
	defer done()

	value, ok := c.server.read(ctx, c.db, key)
	return value, ok, nil
}

func (c *Conn) Set(ctx context.Context, key string, value []byte, ttl time.Duration, mode backend.WriteMode) error {
	if c.closed.Load() {
		return backend.ErrClosed
	}
	done, err := c.begin(OpSet)
	if err != nil {
		return c.settle(mode, fmt.Errorf("memory: set %s: %w", key, err))
	}
	defer done()

	c.server.write(ctx, c.db, key, value, ttl)
	return nil
}

func (c *Conn) Delete(ctx context.Context, key string, mode backend.WriteMode) error {
	if c.closed.Load() {
		return backend.ErrClosed
	}
	done, err := c.begin(OpDelete)
	if err != nil {
		return c.settle(mode, fmt.Errorf("memory: delete %s: %w", key, err))
	}
	defer done()

	c.server.remove(ctx, c.db, key)
	return nil
}

// settle routes a write failure to the caller or, for fire-and-forget
// writes, to the server error hook. A closed connection fails every write
// synchronously.
func (c *Conn) settle(mode backend.WriteMode, err error) error {
	if mode == backend.FireAndForget {
		c.server.report(err)
		return nil
	}
	return err
}

func (c *Conn) ScanKeys(ctx context.Context, db int, pattern string, limit int, fn func(key string) bool) error {
	done, err := c.begin(OpScan)
	if err != nil {
		return err
	}
	defer done()

	for i, key := range c.server.keys(db, pattern) {
		if limit > 0 && i >= limit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(key) {
			return nil
		}
	}
	return nil
}

func (c *Conn) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	done, err := c.begin(OpPublish)
	if err != nil {
		return 0, err
	}
	defer done()

	return c.server.broker.Publish(ctx, channel, payload), nil
}

func (c *Conn) Subscribe(ctx context.Context, channel string, h backend.Handler) (backend.Subscription, error) {
	done, err := c.begin(OpSubscribe)
	if err != nil {
		return nil, err
	}
	defer done()

	return c.server.broker.Subscribe(channel, h), nil
}

// Outstanding returns the value set by SetOutstanding plus the requests
// currently executing.
func (c *Conn) Outstanding() int {
	return int(c.outstanding.Load() + c.inflight.Load())
}

func (c *Conn) Connected() bool {
	return c.connected.Load() && !c.closed.Load()
}

func (c *Conn) DB() int { return c.db }

func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}
