package di

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-redis/backend/memory"
	"github.com/goliatone/go-repository-redis/connection"
	"github.com/goliatone/go-repository-redis/pkg/testsupport"
	"github.com/goliatone/go-repository-redis/repository"
)

type Member = testsupport.Member

// process is one application instance sharing the backend with others.
type process struct {
	container *Container
	errs      []error
	mu        sync.Mutex
}

func newProcess(t *testing.T, srv *memory.Server, withOwner bool) *process {
	t.Helper()
	p := &process{}
	container, err := NewContainerWithDefaults(srv.Dialer(), WithErrorHandler(func(err error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.errs = append(p.errs, err)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	if withOwner {
		RegisterInvalidationOwner[Member](container, memberOptions("memory://shared/0"))
	}
	p.container = container
	return p
}

func (p *process) members(t *testing.T, opts ...func(*repository.Options)) *repository.Repository[Member, *Member] {
	t.Helper()
	o := memberOptions("memory://shared/0")
	for _, fn := range opts {
		fn(&o)
	}
	r, err := NewRepository[Member](p.container, o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestIntegration_ChangesPropagateBetweenProcesses(t *testing.T) {
	ctx := context.Background()
	srv := memory.NewServer()
	reader := newProcess(t, srv, true)
	writer := newProcess(t, srv, false)

	readerRepo := reader.members(t)
	owner, ok := Owner[Member](reader.container)
	require.True(t, ok)

	var changed []string
	owner.OnCacheChanged(func(_ context.Context, m *Member) { changed = append(changed, m.Title) })

	w := writer.members(t)
	m := w.CreateNew()
	m.ID = "abc"
	m.Title = "Ada"
	require.NoError(t, w.Save(ctx))

	assert.Equal(t, []string{"Ada"}, changed)
	gets := srv.Calls(memory.OpGet)

	got, err := readerRepo.GetByID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Title)
	assert.Equal(t, gets, srv.Calls(memory.OpGet), "the owner already cached the document")

	require.NoError(t, w.Delete(ctx, "abc"))
	_, err = readerRepo.GetByID(ctx, "abc")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Empty(t, reader.errs)
	assert.Empty(t, writer.errs)
}

func TestIntegration_StaleWriteDoesNotRegressCache(t *testing.T) {
	ctx := context.Background()
	srv := memory.NewServer()
	reader := newProcess(t, srv, true)
	reader.members(t)

	first := newProcess(t, srv, false).members(t)
	m := first.CreateNew()
	m.ID = "abc"
	m.Title = "v1"
	require.NoError(t, first.Save(ctx))

	second := newProcess(t, srv, false).members(t)
	loaded, err := second.GetByID(ctx, "abc")
	require.NoError(t, err)
	loaded.Title = "v2"
	require.NoError(t, second.Save(ctx))

	entry, _ := reader.container.Cache().Get("member:abc")
	require.NotNil(t, entry.Modified)
	assert.False(t, entry.Modified.Before(*loaded.ModifyDate))

	stale := &Member{Title: "v0"}
	stale.ID = "member:abc"
	older := loaded.ModifyDate.Add(-time.Hour)
	stale.ModifyDate = &older
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	srv.Put(ctx, 0, "member:abc", data)

	entry, _ = reader.container.Cache().Get("member:abc")
	var cached Member
	require.NoError(t, json.Unmarshal(entry.Payload, &cached))
	assert.NotEqual(t, "v0", cached.Title)
	assert.False(t, entry.Modified.Before(*loaded.ModifyDate))
}

func TestIntegration_PooledConcurrentReads(t *testing.T) {
	ctx := context.Background()
	srv := memory.NewServer()
	p := newProcess(t, srv, false)

	seed := p.members(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		m := seed.CreateNew()
		m.ID = id
		m.Title = "title-" + id
	}
	require.NoError(t, seed.Save(ctx))

	pooled := func(o *repository.Options) {
		o.ConnectionMode = connection.Pooled
		o.PoolSize = 3
		o.EnableCaching = false
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := NewRepository[Member](p.container, func() repository.Options {
				o := memberOptions("memory://shared/0")
				pooled(&o)
				return o
			}())
			if err != nil {
				errs <- err
				return
			}
			defer r.Close(ctx)
			id := []string{"a", "b", "c", "d"}[i%4]
			m, err := r.GetByID(ctx, id)
			if err != nil {
				errs <- err
				return
			}
			if m.Title != "title-"+id {
				errs <- assert.AnError
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	pool, err := p.container.Registry().Pool(connection.Spec{DSN: "memory://shared/0", Mode: connection.Pooled, PoolSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Size())
}
