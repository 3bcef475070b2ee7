package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-redis/backend"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(context.Background(), "sqlite://file:"+name+"?mode=memory&cache=shared", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type events struct {
	mu  sync.Mutex
	got []string
}

func (e *events) handle(_ context.Context, channel string, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, channel+"="+string(payload))
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.got...)
}

func TestConn_RoundTrip(t *testing.T) {
	ctx := context.Background()
	conn := openTestStore(t).Conn()

	_, ok, err := conn.Get(ctx, "member:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, conn.Set(ctx, "member:1", []byte(`{"Id":"member:1"}`), 0, backend.Acknowledged))
	value, ok, err := conn.Get(ctx, "member:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"Id":"member:1"}`, string(value))

	require.NoError(t, conn.Set(ctx, "member:1", []byte("v2"), 0, backend.Acknowledged))
	value, _, err = conn.Get(ctx, "member:1")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(value))

	require.NoError(t, conn.Delete(ctx, "member:1", backend.Acknowledged))
	_, ok, err = conn.Get(ctx, "member:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, conn.Connected())
}

func TestConn_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, WithClock(func() time.Time { return now }))
	conn := s.Conn()

	ev := &events{}
	_, err := conn.Subscribe(ctx, "__keyspace@0__:*", ev.handle)
	require.NoError(t, err)

	require.NoError(t, conn.Set(ctx, "member:1", []byte("a"), time.Minute, backend.Acknowledged))
	require.NoError(t, conn.Set(ctx, "member:2", []byte("b"), 0, backend.Acknowledged))

	now = now.Add(2 * time.Minute)

	keys, err := backend.CollectKeys(ctx, conn, 0, "member:*", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"member:2"}, keys)

	_, ok, err := conn.Get(ctx, "member:1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{
		"__keyspace@0__:member:1=set",
		"__keyspace@0__:member:2=set",
		"__keyspace@0__:member:1=expired",
	}, ev.list())
}

func TestConn_ScanKeys(t *testing.T) {
	ctx := context.Background()
	conn := openTestStore(t).Conn()

	for _, key := range []string{"member:b", "member:a", "member_x:1", "order:1", "member:eu:1"} {
		require.NoError(t, conn.Set(ctx, key, []byte("x"), 0, backend.Acknowledged))
	}

	keys, err := backend.CollectKeys(ctx, conn, 0, "member:*", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"member:a", "member:b", "member:eu:1"}, keys)

	keys, err = backend.CollectKeys(ctx, conn, 0, "member:?", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"member:a", "member:b"}, keys)

	keys, err = backend.CollectKeys(ctx, conn, 0, "member:*", 1)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	keys, err = backend.CollectKeys(ctx, conn, 0, "order:1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"order:1"}, keys)
}

func TestConn_ScanCallbackMayUseConnection(t *testing.T) {
	ctx := context.Background()
	conn := openTestStore(t).Conn()
	require.NoError(t, conn.Set(ctx, "member:1", []byte("x"), 0, backend.Acknowledged))

	var values []string
	err := conn.ScanKeys(ctx, 0, "member:*", 0, func(key string) bool {
		value, _, err := conn.Get(ctx, key)
		require.NoError(t, err)
		values = append(values, string(value))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, values)
}

func TestConn_Notifications(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	writer, reader := s.Conn(), s.Conn()

	ev := &events{}
	sub, err := reader.Subscribe(ctx, "__keyspace@0__:member:1", ev.handle)
	require.NoError(t, err)

	require.NoError(t, writer.Set(ctx, "member:1", []byte("x"), 0, backend.Acknowledged))
	require.NoError(t, writer.Delete(ctx, "member:1", backend.Acknowledged))
	require.NoError(t, writer.Delete(ctx, "member:1", backend.Acknowledged))

	n, err := writer.Publish(ctx, "__keyspace@0__:member:1", []byte("custom"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, sub.Unsubscribe(ctx))
	require.NoError(t, writer.Set(ctx, "member:1", []byte("y"), 0, backend.Acknowledged))

	assert.Equal(t, []string{
		"__keyspace@0__:member:1=set",
		"__keyspace@0__:member:1=del",
		"__keyspace@0__:member:1=custom",
	}, ev.list())
}

func TestConn_Closed(t *testing.T) {
	ctx := context.Background()
	conn := openTestStore(t).Conn()
	require.NoError(t, conn.Close())

	assert.False(t, conn.Connected())
	_, _, err := conn.Get(ctx, "k")
	assert.ErrorIs(t, err, backend.ErrClosed)
	assert.ErrorIs(t, conn.Set(ctx, "k", nil, 0, backend.Acknowledged), backend.ErrClosed)
}

func TestConn_FireAndForgetKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	conn := s.Conn()

	for i := range 50 {
		key := fmt.Sprintf("member:%d", i)
		require.NoError(t, conn.Set(ctx, key, []byte("v1"), 0, backend.FireAndForget))
		require.NoError(t, conn.Set(ctx, key, []byte("v2"), 0, backend.FireAndForget))
		if i%2 == 0 {
			require.NoError(t, conn.Delete(ctx, key, backend.FireAndForget))
		}
	}
	require.NoError(t, conn.Close(), "close flushes queued writes")
	assert.Equal(t, 0, conn.Outstanding())

	reader := s.Conn()
	for i := range 50 {
		value, ok, err := reader.Get(ctx, fmt.Sprintf("member:%d", i))
		require.NoError(t, err)
		if i%2 == 0 {
			assert.False(t, ok, "member:%d was deleted last", i)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, "v2", string(value))
	}
}

func TestDialer_SharesStorePerDSN(t *testing.T) {
	ctx := context.Background()
	dial := Dialer()
	dsn := "sqlite://file:dialer_shared?mode=memory&cache=shared#db=4"

	a, err := dial(ctx, dsn)
	require.NoError(t, err)
	b, err := dial(ctx, dsn)
	require.NoError(t, err)
	assert.Equal(t, 4, a.DB())

	require.NoError(t, a.Set(ctx, "k", []byte("v"), 0, backend.Acknowledged))
	value, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(value))
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	for _, dsn := range []string{
		"mysql://nope",
		"sqlite://file:x?mode=memory#db=abc",
		"sqlite://file:x?mode=memory#table=t",
	} {
		_, err := Open(ctx, dsn)
		assert.Error(t, err, dsn)
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `member\_x\%\\`, escapeLike(`member_x%\`))
}
