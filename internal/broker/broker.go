// Package broker fans messages out to channel and pattern subscribers for
// backends without a native publish/subscribe facility.
package broker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/goliatone/go-repository-redis/backend"
)

var unslash = strings.NewReplacer("/", "\x1f")

type subscriber struct {
	id      uint64
	channel string
	pattern bool
	handler backend.Handler
}

// Broker delivers messages synchronously, in subscription order, on the
// publisher's goroutine. Handlers may call back into the backend: no lock is
// held while they run.
type Broker struct {
	mu     sync.RWMutex
	nextID atomic.Uint64
	subs   []*subscriber
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{}
}

// Match reports whether channel matches the glob pattern. A ':' is an
// ordinary character, so "member:*" matches "member:eu:42".
func Match(pattern, channel string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return pattern == channel
	}
	// doublestar treats '/' as a path separator; keys have no such notion.
	ok, err := doublestar.Match(unslash.Replace(pattern), unslash.Replace(channel))
	return err == nil && ok
}

// Subscribe registers h for channel.
func (b *Broker) Subscribe(channel string, h backend.Handler) backend.Subscription {
	s := &subscriber{
		id:      b.nextID.Add(1),
		channel: channel,
		pattern: strings.ContainsAny(channel, "*?["),
		handler: h,
	}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return &subscription{broker: b, sub: s}
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every matching subscriber and returns how
// many received it.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) int64 {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.channel == channel || (s.pattern && Match(s.channel, channel)) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.handler(ctx, channel, append([]byte(nil), payload...))
	}
	return int64(len(targets))
}

// Len returns the number of active subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

type subscription struct {
	broker *Broker
	sub    *subscriber
	once   sync.Once
}

func (s *subscription) Channel() string { return s.sub.channel }

func (s *subscription) Unsubscribe(context.Context) error {
	s.once.Do(func() { s.broker.remove(s.sub.id) })
	return nil
}
