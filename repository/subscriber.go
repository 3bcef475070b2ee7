package repository

import (
	"context"
	"fmt"

	"github.com/goliatone/go-repository-redis/backend"
	"github.com/goliatone/go-repository-redis/cache"
)

// Keyspace operations the subscriber reacts to.
const (
	opSet     = "set"
	opDel     = "del"
	opExpired = "expired"
	opEvicted = "evicted"
)

type subscriptionKey struct {
	mode    SubscriptionMode
	pattern string
}

// OnSubscriptionTriggered registers fn for documents received through a
// subscription of this repository. Listeners run synchronously on the
// notification goroutine, in registration order. Call cancel to remove fn.
func (r *Repository[T, PT]) OnSubscriptionTriggered(fn Listener[PT]) (cancel func()) {
	return r.triggered.add(fn)
}

// OnCacheChanged registers fn for notifications that changed the local
// cache.
func (r *Repository[T, PT]) OnCacheChanged(fn Listener[PT]) (cancel func()) {
	return r.changed.add(fn)
}

// Subscribe starts listening for changes of keys matching pattern, which is
// qualified with the base key. Subscribing twice to the same pattern and
// mode is a no-op. Subscriptions use the registry subscriber connection.
func (r *Repository[T, PT]) Subscribe(ctx context.Context, pattern string, mode SubscriptionMode) error {
	pattern = cache.QualifyPattern(r.baseKey, pattern)
	key := subscriptionKey{mode: mode, pattern: pattern}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	r.subMu.Lock()
	defer r.subMu.Unlock()
	if _, ok := r.subs[key]; ok {
		return nil
	}

	conn, err := r.rt.Connections.Subscriber(ctx, r.opts.ConnectionString)
	if err != nil {
		return fmt.Errorf("repository: subscriber connection: %w", err)
	}

	var sub backend.Subscription
	switch mode {
	case Keyspace:
		db := conn.DB()
		sub, err = conn.Subscribe(ctx, cache.KeyspaceChannel(db, pattern), func(ctx context.Context, channel string, payload []byte) {
			r.onKeyspace(ctx, db, channel, payload)
		})
	case PubSub:
		sub, err = conn.Subscribe(ctx, pattern, r.onPublish)
	default:
		return fmt.Errorf("repository: unknown subscription mode %s", mode)
	}
	if err != nil {
		return fmt.Errorf("repository: subscribe %s: %w", pattern, err)
	}

	r.subs[key] = sub
	r.logger.Debug("subscribed", "pattern", pattern, "mode", mode.String(), "channel", sub.Channel())
	return nil
}

// Unsubscribe stops a subscription made with Subscribe. Notifications
// already being handled may still complete.
func (r *Repository[T, PT]) Unsubscribe(ctx context.Context, pattern string, mode SubscriptionMode) error {
	key := subscriptionKey{mode: mode, pattern: cache.QualifyPattern(r.baseKey, pattern)}

	r.subMu.Lock()
	sub, ok := r.subs[key]
	delete(r.subs, key)
	r.subMu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("repository: unsubscribe %s: %w", key.pattern, err)
	}
	return nil
}

// Subscriptions returns the patterns currently subscribed, per mode.
func (r *Repository[T, PT]) Subscriptions() map[SubscriptionMode][]string {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	out := make(map[SubscriptionMode][]string)
	for key := range r.subs {
		out[key.mode] = append(out[key.mode], key.pattern)
	}
	return out
}

func (r *Repository[T, PT]) onKeyspace(ctx context.Context, db int, channel string, payload []byte) {
	key, ok := cache.KeyFromKeyspaceChannel(db, channel)
	if !ok {
		return
	}

	switch op := string(payload); op {
	case opSet:
		value, found, err := r.fetch(ctx, key)
		if err != nil {
			r.notificationFailed(channel, key, opSet, err)
			return
		}
		if !found {
			r.purge(key, opSet)
			return
		}
		r.apply(ctx, channel, key, opSet, value)
	case opDel, opExpired, opEvicted:
		r.purge(key, op)
	}
}

func (r *Repository[T, PT]) onPublish(ctx context.Context, channel string, payload []byte) {
	r.apply(ctx, channel, channel, "publish", payload)
}

// purge drops key from the cache for a deletion style notification.
func (r *Repository[T, PT]) purge(key, kind string) {
	if r.caching() {
		r.rt.Cache.Remove(key)
	}
	r.rt.Metrics.Notification(r.baseKey, kind, "removed")
}

// apply runs the cache update step for a document received through a
// notification: a monotonic Set, then the events.
func (r *Repository[T, PT]) apply(ctx context.Context, channel, key, kind string, value []byte) {
	doc, _, err := r.decode(value)
	if err != nil {
		r.notificationFailed(channel, key, kind, err)
		return
	}
	if doc.Base().ID == "" {
		doc.Base().ID = key
	}
	doc.Base().ID = r.Key(doc.Base().ID)

	if !r.caching() {
		r.rt.Metrics.Notification(r.baseKey, kind, "uncached")
		r.triggered.emit(ctx, doc)
		return
	}

	if r.rt.Cache.Set(r.entry(doc, value)) {
		r.rt.Metrics.Notification(r.baseKey, kind, "changed")
		r.changed.emit(ctx, doc)
	} else {
		r.rt.Metrics.Notification(r.baseKey, kind, "unchanged")
		if r.opts.SuppressDuplicateNotifications {
			return
		}
	}
	r.triggered.emit(ctx, doc)
}

// notificationFailed purges key so the next read goes to the backend and
// reports the failure. The subscription stays open.
func (r *Repository[T, PT]) notificationFailed(channel, key, kind string, err error) {
	if r.caching() && key != "" && !cache.IsPattern(key) {
		r.rt.Cache.Remove(key)
	}
	r.rt.Metrics.Notification(r.baseKey, kind, "error")
	r.rt.report(&NotificationError{Channel: channel, Key: key, Err: err})
}
