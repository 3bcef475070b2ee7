// Package backend defines the key-value and publish/subscribe primitives
// repositories need from a store. Implementations live in sub packages:
// redisconn (Redis), memory (in process) and sqlstore (SQL tables).
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("backend: connection closed")

// WriteMode selects whether a write waits for the backend acknowledgement.
// Either way the writes of one connection reach the backend in call order.
type WriteMode int

const (
	// Acknowledged waits for the backend and returns its error.
	Acknowledged WriteMode = iota
	// FireAndForget returns immediately. Failures are reported to the
	// connection error hook only; delivery is not guaranteed.
	FireAndForget
)

// Handler receives one message. channel is the concrete channel the message
// was published on, even for pattern subscriptions.
type Handler func(ctx context.Context, channel string, payload []byte)

// Subscription is an active channel subscription.
type Subscription interface {
	Channel() string
	Unsubscribe(ctx context.Context) error
}

// Conn is one logical backend connection.
type Conn interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A non positive ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, mode WriteMode) error
	// Delete removes key.
	Delete(ctx context.Context, key string, mode WriteMode) error
	// ScanKeys walks keys of database db matching the glob pattern and
	// calls fn for each until fn returns false or limit keys were seen.
	ScanKeys(ctx context.Context, db int, pattern string, limit int, fn func(key string) bool) error
	// Publish sends payload on channel and returns the receiver count.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	// Subscribe delivers messages of channel to h. Channels containing glob
	// metacharacters are pattern subscriptions.
	Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error)

	// Outstanding is the number of requests currently in flight.
	Outstanding() int
	// Connected reports whether the connection is believed usable.
	Connected() bool
	// DB is the logical database the connection is bound to.
	DB() int
	Close() error
}

// Dialer opens a connection for a connection string.
type Dialer func(ctx context.Context, dsn string) (Conn, error)

// ErrorHandler receives failures that have no caller to return to, such as
// fire-and-forget writes.
type ErrorHandler func(err error)

// CollectKeys gathers up to limit keys matching pattern.
func CollectKeys(ctx context.Context, conn Conn, db int, pattern string, limit int) ([]string, error) {
	var keys []string
	err := conn.ScanKeys(ctx, db, pattern, limit, func(key string) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
