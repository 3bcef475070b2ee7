// Package memory is an in-process backend. A Server plays the role of one
// key-value server: every Conn dialed from it sees the same keys, receives
// the same keyspace notifications and shares publish/subscribe channels.
//
// The server counts every primitive call and can be told to fail the next
// calls of an operation, which makes it the fake behind most repository
// tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-repository-redis/backend"
	"github.com/goliatone/go-repository-redis/cache"
	"github.com/goliatone/go-repository-redis/internal/broker"
)

// Operation names used by Calls and FailNext.
const (
	OpDial      = "dial"
	OpGet       = "get"
	OpSet       = "set"
	OpDelete    = "delete"
	OpScan      = "scan"
	OpPublish   = "publish"
	OpSubscribe = "subscribe"
)

// ErrInjected is the default error returned by FailNext.
var ErrInjected = errors.New("memory: injected failure")

type record struct {
	value     []byte
	expiresAt time.Time
}

type failure struct {
	remaining int
	err       error
}

// Option customises a Server.
type Option func(*Server)

// WithClock replaces time.Now for key expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithoutKeyspaceEvents stops the server from emitting keyspace
// notifications, like a Redis server without notify-keyspace-events.
func WithoutKeyspaceEvents() Option {
	return func(s *Server) { s.keyspace = false }
}

// WithErrorHandler receives failures of fire-and-forget writes.
func WithErrorHandler(h backend.ErrorHandler) Option {
	return func(s *Server) { s.onError = h }
}

// Server holds the shared state of every connection dialed from it.
type Server struct {
	mu       sync.Mutex
	data     map[int]map[string]record
	calls    map[string]int
	failures map[string]*failure
	broker   *broker.Broker
	now      func() time.Time
	keyspace bool
	onError  backend.ErrorHandler
}

// NewServer creates an empty server.
func NewServer(opts ...Option) *Server {
	s := &Server{
		data:     make(map[int]map[string]record),
		calls:    make(map[string]int),
		failures: make(map[string]*failure),
		broker:   broker.New(),
		now:      time.Now,
		keyspace: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialer returns a backend.Dialer producing connections to this server.
// The database index is read from the DSN path, as in "memory://local/2".
func (s *Server) Dialer() backend.Dialer {
	return func(ctx context.Context, dsn string) (backend.Conn, error) {
		if err := s.hit(OpDial); err != nil {
			return nil, err
		}
		db, err := parseDB(dsn)
		if err != nil {
			return nil, err
		}
		return s.Conn(db), nil
	}
}

// Conn returns a new connection bound to database db.
func (s *Server) Conn(db int) *Conn {
	c := &Conn{server: s, db: db}
	c.connected.Store(true)
	return c
}

// Calls returns how many times op was invoked, failed calls included.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// ResetCalls zeroes every counter.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

// FailNext makes the next n calls of op fail with err, or ErrInjected when
// err is nil. A negative n fails every call until FailNext(op, 0, nil).
func (s *Server) FailNext(op string, n int, err error) {
	if err == nil {
		err = ErrInjected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n == 0 {
		delete(s.failures, op)
		return
	}
	s.failures[op] = &failure{remaining: n, err: err}
}

// hit counts a call and returns the injected failure, if any.
func (s *Server) hit(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	f, ok := s.failures[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.failures, op)
		}
	}
	return f.err
}

// Put stores a value directly, bypassing counters, and emits the keyspace
// notification a real write would. Useful to simulate another process.
func (s *Server) Put(ctx context.Context, db int, key string, value []byte) {
	s.write(ctx, db, key, value, 0)
}

// Value returns the stored value of key without counting a call.
func (s *Server) Value(db int, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(db, key)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), rec.value...), true
}

// TTL returns the remaining lifetime of key; zero when it has no expiry.
func (s *Server) TTL(db int, key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(db, key)
	if !ok || rec.expiresAt.IsZero() {
		return 0
	}
	return rec.expiresAt.Sub(s.now())
}

// Subscribers returns the number of active subscriptions.
func (s *Server) Subscribers() int {
	return s.broker.Len()
}

// lookup returns a live record. Caller holds s.mu.
func (s *Server) lookup(db int, key string) (record, bool) {
	rec, ok := s.data[db][key]
	if !ok {
		return record{}, false
	}
	if !rec.expiresAt.IsZero() && !s.now().Before(rec.expiresAt) {
		return record{}, false
	}
	return rec, true
}

func (s *Server) read(ctx context.Context, db int, key string) ([]byte, bool) {
	s.mu.Lock()
	rec, ok := s.data[db][key]
	expired := ok && !rec.expiresAt.IsZero() && !s.now().Before(rec.expiresAt)
	if expired {
		delete(s.data[db], key)
	}
	s.mu.Unlock()

	if expired {
		s.notify(ctx, db, key, "expired")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return append([]byte(nil), rec.value...), true
}

func (s *Server) write(ctx context.Context, db int, key string, value []byte, ttl time.Duration) {
	rec := record{value: append([]byte(nil), value...)}
	if ttl > 0 {
		rec.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	if s.data[db] == nil {
		s.data[db] = make(map[string]record)
	}
	s.data[db][key] = rec
	s.mu.Unlock()

	s.notify(ctx, db, key, "set")
}

func (s *Server) remove(ctx context.Context, db int, key string) {
	s.mu.Lock()
	_, existed := s.data[db][key]
	delete(s.data[db], key)
	s.mu.Unlock()

	if existed {
		s.notify(ctx, db, key, "del")
	}
}

func (s *Server) keys(db int, pattern string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key := range s.data[db] {
		if _, ok := s.lookup(db, key); !ok {
			continue
		}
		if broker.Match(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) notify(ctx context.Context, db int, key, event string) {
	if !s.keyspace {
		return
	}
	s.broker.Publish(ctx, cache.KeyspaceChannel(db, key), []byte(event))
}

func (s *Server) report(err error) {
	if s.onError != nil && err != nil {
		s.onError(err)
	}
}

func parseDB(dsn string) (int, error) {
	if dsn == "" {
		return 0, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return 0, fmt.Errorf("memory: invalid dsn %q: %w", dsn, err)
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return 0, nil
	}
	db, err := strconv.Atoi(path)
	if err != nil {
		return 0, fmt.Errorf("memory: invalid database %q in dsn", path)
	}
	return db, nil
}
