package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-redis/backend/memory"
	"github.com/goliatone/go-repository-redis/cache"
	"github.com/goliatone/go-repository-redis/connection"
	"github.com/goliatone/go-repository-redis/document"
	"github.com/goliatone/go-repository-redis/pkg/testsupport"
)

type Member = testsupport.Member

const testDSN = "memory://test/0"

var epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type errSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errSink) add(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

type fixture struct {
	srv    *memory.Server
	store  cache.Store
	rt     *Runtime
	clock  *testsupport.ManualClock
	sleeps *testsupport.SleepRecorder
	errs   *errSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := testsupport.NewManualClock(epoch)
	srv := memory.NewServer(memory.WithClock(clock.Now))
	store, err := cache.New(cache.DefaultConfig(), cache.WithClock(clock.Now))
	require.NoError(t, err)

	f := &fixture{
		srv:    srv,
		store:  store,
		clock:  clock,
		sleeps: &testsupport.SleepRecorder{},
		errs:   &errSink{},
	}
	f.rt = NewRuntime(store, connection.NewRegistry(srv.Dialer()),
		WithClock(clock.Now),
		WithSleeper(f.sleeps.Sleep),
		WithErrorHandler(f.errs.add),
	)
	t.Cleanup(func() { _ = f.rt.Close(context.Background()) })
	return f
}

func memberOptions() Options {
	opts := DefaultOptions()
	opts.ConnectionString = testDSN
	return opts
}

func (f *fixture) members(t *testing.T, opts ...func(*Options)) *Repository[Member, *Member] {
	t.Helper()
	o := memberOptions()
	for _, fn := range opts {
		fn(&o)
	}
	r, err := New[Member](f.rt, o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

// put stores a member directly in the backend, as another process would.
func (f *fixture) put(t *testing.T, m *Member) []byte {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	f.srv.Put(context.Background(), 0, m.ID, data)
	return data
}

func stampedMember(id, title string, modified time.Time) *Member {
	return &Member{
		Model: modelAt(id, modified),
		Title: title,
	}
}

type listener struct {
	mu   sync.Mutex
	docs []*Member
}

func (l *listener) fn(_ context.Context, m *Member) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = append(l.docs, m)
}

func (l *listener) titles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.docs))
	for _, d := range l.docs {
		out = append(out, d.Title)
	}
	return out
}

func modelAt(id string, modified time.Time) document.Model {
	return document.Model{ID: id, CreateDate: epoch, ModifyDate: &modified}
}
