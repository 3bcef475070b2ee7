package cache

import (
	"time"

	"github.com/goliatone/go-repository-redis/internal/cacheinfra"
)

// Entry is a cached document payload or an absence marker.
type Entry = cacheinfra.Entry

// State is the outcome of a lookup.
type State = cacheinfra.State

const (
	Miss   = cacheinfra.Miss
	Hit    = cacheinfra.Hit
	Absent = cacheinfra.Absent
)

// Store is the process wide local cache shared by every document type and
// every repository instance.
type Store interface {
	// Get returns the entry for a fully qualified id.
	Get(id string) (Entry, State)
	// Set applies the monotonic-write guard and reports whether it wrote.
	Set(entry Entry) bool
	// Refresh is Set restricted to ids that already hold a document.
	Refresh(entry Entry) bool
	// SetAbsent records a negative lookup result.
	SetAbsent(id string)
	// Remove drops the entry for id.
	Remove(id string)
	// RemovePrefix drops every entry under prefix.
	RemovePrefix(prefix string) int
	// RegisterNamespace assigns a TTL to every id under namespace and
	// returns the TTL in effect.
	RegisterNamespace(namespace string, ttl time.Duration) time.Duration
	// Len returns the number of stored entries.
	Len() int
}

var _ Store = (*cacheinfra.Store)(nil)
