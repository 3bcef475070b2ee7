package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/goliatone/go-repository-redis/backend"
)

type saveConfig struct {
	force      bool
	expiration time.Duration
	publish    bool
}

// SaveOption customises one Save call.
type SaveOption func(*saveConfig)

// WithForceUpdate writes every tracked document, changed or not.
func WithForceUpdate() SaveOption {
	return func(c *saveConfig) { c.force = true }
}

// WithExpiration overrides Options.DefaultRecordExpiration for this call.
// A negative d stores without expiry.
func WithExpiration(d time.Duration) SaveOption {
	return func(c *saveConfig) { c.expiration = d }
}

// WithPublish also publishes each written document on the channel named by
// its id.
func WithPublish() SaveOption {
	return func(c *saveConfig) { c.publish = true }
}

// Save writes every tracked document that changed since it was loaded or
// last saved. Each written document gets ModifyDate set to now. Documents
// deleted through this repository are skipped until tracked again with Add
// or a read. Writes are fire-and-forget: backend failures reach the error
// hook, not the caller.
func (r *Repository[T, PT]) Save(ctx context.Context, opts ...SaveOption) error {
	cfg := saveConfig{expiration: r.opts.DefaultRecordExpiration}
	for _, opt := range opts {
		opt(&cfg)
	}
	ttl := cfg.expiration
	if ttl < 0 {
		ttl = 0
	}

	r.mu.Lock()
	items := slices.Clone(r.items)
	r.mu.Unlock()

	var conn backend.Conn
	for _, doc := range items {
		if r.isDeleted(doc) {
			continue
		}
		if !cfg.force && !r.HasChanges(doc) {
			continue
		}

		base := doc.Base()
		if base.ID == "" {
			return fmt.Errorf("repository: cannot save %s document without id", r.baseKey)
		}
		base.ID = r.Key(base.ID)

		if conn == nil {
			var err error
			if conn, err = r.conn(ctx); err != nil {
				return err
			}
		}

		now := r.rt.Now()
		base.ModifyDate = &now

		data, err := r.codec.Marshal(doc)
		if err != nil {
			return fmt.Errorf("repository: encode %s: %w", base.ID, err)
		}

		if err := conn.Set(ctx, base.ID, data, ttl, backend.FireAndForget); err != nil {
			return fmt.Errorf("repository: save %s: %w", base.ID, err)
		}

		if r.caching() {
			r.rt.Cache.Refresh(r.entry(doc, data))
		}

		if cfg.publish {
			if _, err := conn.Publish(ctx, base.ID, data); err != nil {
				r.rt.report(fmt.Errorf("repository: publish %s: %w", base.ID, err))
			}
		}

		r.mu.Lock()
		r.snapshots[base.ID] = data
		r.mu.Unlock()
	}
	return nil
}

// Delete removes id from the backend, fire-and-forget, and from the local
// cache. Tracked documents stay tracked but later saves leave them out.
func (r *Repository[T, PT]) Delete(ctx context.Context, id string) error {
	key := r.Key(id)

	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if err := conn.Delete(ctx, key, backend.FireAndForget); err != nil {
		return fmt.Errorf("repository: delete %s: %w", key, err)
	}
	if r.caching() {
		r.rt.Cache.Remove(key)
	}

	r.mu.Lock()
	r.deleted[key] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *Repository[T, PT]) isDeleted(doc PT) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.deleted[r.Key(doc.Base().ID)]
	return ok
}

// DeleteDocument deletes doc by its id.
func (r *Repository[T, PT]) DeleteDocument(ctx context.Context, doc PT) error {
	if doc == nil || doc.Base().ID == "" {
		return fmt.Errorf("repository: cannot delete %s document without id", r.baseKey)
	}
	return r.Delete(ctx, doc.Base().ID)
}

// Publish sends payload on channel and returns how many subscribers got it.
func (r *Repository[T, PT]) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.Publish(ctx, channel, payload)
	if err != nil {
		return 0, fmt.Errorf("repository: publish %s: %w", channel, err)
	}
	return n, nil
}

// PublishDocument publishes the serialized doc on the channel named by its
// id, independently of Save.
func (r *Repository[T, PT]) PublishDocument(ctx context.Context, doc PT) (int64, error) {
	if doc == nil || doc.Base().ID == "" {
		return 0, fmt.Errorf("repository: cannot publish %s document without id", r.baseKey)
	}
	data, err := r.codec.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("repository: encode %s: %w", doc.Base().ID, err)
	}
	return r.Publish(ctx, r.Key(doc.Base().ID), data)
}
