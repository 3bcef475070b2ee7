package cacheinfra

import (
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

const lockStripes = 64

// item is the value stored in sturdyc. storedAt backs the age check so an
// expired entry is never served even if sturdyc has not swept it yet.
type item struct {
	entry    Entry
	storedAt time.Time
}

// region holds every entry of one namespace. All entries in a region share
// a TTL, which is how per document type expiration is expressed.
type region struct {
	ttl    time.Duration
	client *sturdyc.Client[item]
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now for age checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is a process wide, time expiring map from document id to the last
// known payload or an absence marker.
//
// Writes for one id are serialized through a striped lock so the
// compare-and-set of the monotonic guard is atomic.
type Store struct {
	cfg      Config
	now      func() time.Time
	regions  *xsync.MapOf[string, *region]
	fallback *region
	locks    [lockStripes]sync.Mutex
}

// NewStore validates cfg and creates an empty store.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:     cfg,
		now:     time.Now,
		regions: xsync.NewMapOf[string, *region](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.fallback = s.newRegion(cfg.TTL)
	return s, nil
}

func (s *Store) newRegion(ttl time.Duration) *region {
	return &region{
		ttl: ttl,
		client: sturdyc.New[item](
			s.cfg.Capacity,
			s.cfg.NumShards,
			ttl,
			s.cfg.EvictionPercentage,
			s.cfg.ToSturdycOptions()...,
		),
	}
}

// RegisterNamespace gives every id under namespace the provided TTL and
// returns the TTL in effect. The first registration wins; a non positive
// ttl selects the store default.
func (s *Store) RegisterNamespace(namespace string, ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = s.cfg.TTL
	}
	r, _ := s.regions.LoadOrCompute(namespace, func() *region {
		return s.newRegion(ttl)
	})
	return r.ttl
}

func (s *Store) regionFor(id string) *region {
	ns := id
	if i := strings.IndexByte(id, ':'); i >= 0 {
		ns = id[:i]
	}
	if r, ok := s.regions.Load(ns); ok {
		return r
	}
	return s.fallback
}

func (s *Store) lockFor(id string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(id)%lockStripes]
}

// load returns the live item for id. Caller holds the id lock.
func (s *Store) load(r *region, id string) (item, bool) {
	it, ok := r.client.Get(id)
	if !ok {
		return item{}, false
	}
	if s.now().Sub(it.storedAt) >= r.ttl {
		r.client.Delete(id)
		return item{}, false
	}
	return it, true
}

func (s *Store) store(r *region, e Entry) {
	r.client.Set(e.ID, item{entry: e.clone(), storedAt: s.now()})
}

// Get returns the cached entry and whether it is a hit, an absence marker
// or a miss.
func (s *Store) Get(id string) (Entry, State) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r := s.regionFor(id)
	it, ok := s.load(r, id)
	if !ok {
		return Entry{}, Miss
	}
	if it.entry.Absent {
		return it.entry, Absent
	}
	if s.cfg.Sliding {
		it.storedAt = s.now()
		r.client.Set(id, it)
	}
	return it.entry, Hit
}

// Set stores e when nothing is cached for its id, when only an absence
// marker is cached, or when e is strictly newer than the cached document.
// It reports whether the write took effect.
func (s *Store) Set(e Entry) bool {
	if e.Absent {
		s.SetAbsent(e.ID)
		return true
	}

	mu := s.lockFor(e.ID)
	mu.Lock()
	defer mu.Unlock()

	r := s.regionFor(e.ID)
	if it, ok := s.load(r, e.ID); ok && !it.entry.Absent {
		if !newerThan(e.Modified, it.entry.Modified) {
			return false
		}
	}
	s.store(r, e)
	return true
}

// Refresh behaves like Set but never creates an entry: it only advances a
// document that is already cached.
func (s *Store) Refresh(e Entry) bool {
	mu := s.lockFor(e.ID)
	mu.Lock()
	defer mu.Unlock()

	r := s.regionFor(e.ID)
	it, ok := s.load(r, e.ID)
	if !ok || it.entry.Absent || !newerThan(e.Modified, it.entry.Modified) {
		return false
	}
	s.store(r, e)
	return true
}

// SetAbsent records that id does not exist in the backend.
func (s *Store) SetAbsent(id string) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	s.store(s.regionFor(id), Entry{ID: id, Absent: true})
}

// Remove drops whatever is cached for id.
func (s *Store) Remove(id string) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	s.regionFor(id).client.Delete(id)
}

// RemovePrefix drops every entry whose id starts with prefix and returns
// how many were removed.
func (s *Store) RemovePrefix(prefix string) int {
	removed := 0
	sweep := func(r *region) {
		for _, key := range r.client.ScanKeys() {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			mu := s.lockFor(key)
			mu.Lock()
			r.client.Delete(key)
			mu.Unlock()
			removed++
		}
	}

	sweep(s.fallback)
	s.regions.Range(func(_ string, r *region) bool {
		sweep(r)
		return true
	})
	return removed
}

// Len returns the number of stored entries, expired ones not yet swept
// included.
func (s *Store) Len() int {
	total := s.fallback.client.Size()
	s.regions.Range(func(_ string, r *region) bool {
		total += r.client.Size()
		return true
	})
	return total
}
