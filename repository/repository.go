package repository

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/goliatone/go-repository-redis/backend"
	"github.com/goliatone/go-repository-redis/cache"
	"github.com/goliatone/go-repository-redis/connection"
	"github.com/goliatone/go-repository-redis/document"
)

// Repository is a unit of work over documents of type T. It tracks the
// documents it loaded or was given, remembers their last persisted form and
// writes back only what changed.
//
// One instance is meant for one caller at a time; the process wide state it
// relies on lives in the Runtime.
type Repository[T any, PT document.Pointer[T]] struct {
	rt      *Runtime
	opts    Options
	codec   document.Codec
	baseKey string
	logger  *slog.Logger

	mu        sync.Mutex
	items     []PT
	snapshots map[string][]byte
	deleted   map[string]struct{}
	closed    bool

	connMu sync.Mutex
	lazy   backend.Conn

	subMu sync.Mutex
	subs  map[subscriptionKey]backend.Subscription

	triggered observers[PT]
	changed   observers[PT]
}

// New creates a repository for T. The first repository of a type registers
// the cache namespace TTL and, unless disabled, starts the invalidation
// owner registered for T.
func New[T any, PT document.Pointer[T]](rt *Runtime, opts Options) (*Repository[T, PT], error) {
	if rt == nil {
		return nil, fmt.Errorf("repository: nil runtime")
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("repository: invalid options: %w", err)
	}
	codec, err := document.CodecByName(opts.Codec)
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}

	var zero T
	baseKey := PT(&zero).BaseKey()
	if baseKey == "" {
		return nil, fmt.Errorf("repository: %T has an empty base key", zero)
	}

	r := &Repository[T, PT]{
		rt:        rt,
		opts:      opts,
		codec:     codec,
		baseKey:   baseKey,
		logger:    rt.Logger.With("document", baseKey),
		snapshots: make(map[string][]byte),
		deleted:   make(map[string]struct{}),
		subs:      make(map[subscriptionKey]backend.Subscription),
	}

	if opts.EnableCaching && rt.Cache != nil {
		if ttl := rt.Cache.RegisterNamespace(baseKey, opts.CacheExpiration); opts.CacheExpiration > 0 && ttl != opts.CacheExpiration {
			r.logger.Warn("cache expiration already registered for type", "requested", opts.CacheExpiration, "effective", ttl)
		}
	}

	if !opts.DisableAutoSubscription && rt.Owners != nil {
		rt.Owners.ensure(reflect.TypeFor[T](), rt, r.logger)
	}
	return r, nil
}

// BaseKey returns the namespace of T.
func (r *Repository[T, PT]) BaseKey() string { return r.baseKey }

// Options returns the effective options.
func (r *Repository[T, PT]) Options() Options { return r.opts }

// Key qualifies a natural key with the base key.
func (r *Repository[T, PT]) Key(id string) string {
	return cache.QualifyID(r.baseKey, id)
}

func (r *Repository[T, PT]) caching() bool {
	return r.opts.EnableCaching && r.rt.Cache != nil
}

// conn returns the connection for the next backend call.
func (r *Repository[T, PT]) conn(ctx context.Context) (backend.Conn, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if r.opts.ConnectionMode != connection.LazyPerInstance {
		return r.rt.Connections.Get(ctx, r.opts.connectionSpec())
	}

	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.lazy == nil {
		conn, err := r.rt.Connections.Get(ctx, r.opts.connectionSpec())
		if err != nil {
			return nil, err
		}
		r.lazy = conn
	}
	return r.lazy, nil
}

// CreateNew allocates a tracked document stamped with the current time as
// CreateDate. It stays dirty until saved.
func (r *Repository[T, PT]) CreateNew() PT {
	doc := PT(new(T))
	doc.Base().CreateDate = r.rt.Now()
	doc.Base().ModifyDate = nil
	r.Add(doc)
	return doc
}

// Add tracks doc without a snapshot, so the next Save writes it. A tracked
// document with the same id is replaced.
func (r *Repository[T, PT]) Add(doc PT) {
	if doc == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(doc)
}

// AddAll tracks every document of docs.
func (r *Repository[T, PT]) AddAll(docs []PT) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range docs {
		if doc != nil {
			r.put(doc)
		}
	}
}

// put appends doc, dropping a previous entry with the same id or pointer.
// Tracking a deleted id again makes it writable. Caller holds r.mu.
func (r *Repository[T, PT]) put(doc PT) {
	if id := doc.Base().ID; id != "" {
		doc.Base().ID = r.Key(id)
	}
	id := doc.Base().ID
	delete(r.deleted, id)
	r.items = slices.DeleteFunc(r.items, func(item PT) bool {
		return item == doc || (id != "" && item.Base().ID == id)
	})
	r.items = append(r.items, doc)
}

// track records doc as loaded: tracked with snapshot as its persisted form.
func (r *Repository[T, PT]) track(doc PT, snapshot []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(doc)
	r.snapshots[doc.Base().ID] = snapshot
}

// Remove stops tracking doc. Nothing is written or deleted.
func (r *Repository[T, PT]) Remove(doc PT) {
	if doc == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := doc.Base().ID
	r.items = slices.DeleteFunc(r.items, func(item PT) bool { return item == doc })
	if id != "" && !slices.ContainsFunc(r.items, func(item PT) bool { return item.Base().ID == id }) {
		delete(r.snapshots, id)
	}
}

// Items returns the tracked documents in tracking order.
func (r *Repository[T, PT]) Items() []PT {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

// IsNew reports whether doc was never saved.
func (r *Repository[T, PT]) IsNew(doc PT) bool {
	return document.IsNew(doc)
}

// HasChanges reports whether doc differs from its last persisted form. A
// document never loaded or saved through this repository has changes.
func (r *Repository[T, PT]) HasChanges(doc PT) bool {
	r.mu.Lock()
	snapshot, ok := r.snapshots[doc.Base().ID]
	r.mu.Unlock()
	if !ok {
		return true
	}

	current, err := r.codec.Marshal(doc)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, snapshot)
}

// decode turns a stored payload into a fresh document and the snapshot it
// should be tracked with.
func (r *Repository[T, PT]) decode(data []byte) (PT, []byte, error) {
	doc := PT(new(T))
	if err := r.codec.Unmarshal(data, doc); err != nil {
		return nil, nil, fmt.Errorf("repository: decode %s: %w", r.baseKey, err)
	}
	snapshot, err := r.codec.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: encode %s: %w", r.baseKey, err)
	}
	return doc, snapshot, nil
}

func (r *Repository[T, PT]) entry(doc PT, payload []byte) cache.Entry {
	return cache.Entry{
		ID:       doc.Base().ID,
		Modified: doc.Base().ModifyDate,
		Payload:  payload,
	}
}

// InvalidateCache drops id from the local cache.
func (r *Repository[T, PT]) InvalidateCache(id string) {
	if r.caching() {
		r.rt.Cache.Remove(r.Key(id))
	}
}

// Close forgets every tracked document, cancels the repository
// subscriptions and releases a per instance connection. Unsubscribe errors
// are logged only.
func (r *Repository[T, PT]) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.items = nil
	r.snapshots = make(map[string][]byte)
	r.deleted = make(map[string]struct{})
	r.mu.Unlock()

	r.subMu.Lock()
	subs := r.subs
	r.subs = make(map[subscriptionKey]backend.Subscription)
	r.subMu.Unlock()

	for key, sub := range subs {
		if err := sub.Unsubscribe(ctx); err != nil {
			r.logger.Warn("unsubscribe failed during close", "pattern", key.pattern, "error", err)
		}
	}
	r.triggered.clear()
	r.changed.clear()

	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.lazy != nil {
		err := r.lazy.Close()
		r.lazy = nil
		return err
	}
	return nil
}
