package repository

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-repository-redis/cache"
)

// fetchConcurrency bounds the parallel backend reads of GetAll.
const fetchConcurrency = 8

// Result carries the outcome of GetByIDAsync.
type Result[PT any] struct {
	Doc PT
	Err error
}

// GetByID returns the document with id, qualifying id with the base key if
// needed. A cached document or a cached absence answers without touching
// the backend; otherwise the backend is read with retries. A missing
// document returns ErrNotFound and is not remembered as absent.
func (r *Repository[T, PT]) GetByID(ctx context.Context, id string) (PT, error) {
	key := r.Key(id)

	if doc, state, err := r.fromCache(ctx, key); state != cache.Miss || err != nil {
		return doc, err
	}

	value, found, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return r.accept(key, value)
}

// GetByIDAsync runs GetByID on its own goroutine. The channel receives
// exactly one result and is then closed.
func (r *Repository[T, PT]) GetByIDAsync(ctx context.Context, id string) <-chan Result[PT] {
	out := make(chan Result[PT], 1)
	go func() {
		defer close(out)
		doc, err := r.GetByID(ctx, id)
		out <- Result[PT]{Doc: doc, Err: err}
	}()
	return out
}

// fromCache consults the local cache. A Miss state means the caller must go
// to the backend.
func (r *Repository[T, PT]) fromCache(ctx context.Context, key string) (PT, cache.State, error) {
	if !r.caching() || cacheBypassFromContext(ctx) {
		return nil, cache.Miss, nil
	}

	e, state := r.rt.Cache.Get(key)
	r.rt.Metrics.CacheLookup(r.baseKey, state.String())

	switch state {
	case cache.Absent:
		return nil, cache.Absent, ErrNotFound
	case cache.Hit:
		doc, snapshot, err := r.decode(e.Payload)
		if err != nil {
			r.rt.Cache.Remove(key)
			r.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
			return nil, cache.Miss, nil
		}
		r.track(doc, snapshot)
		return doc, cache.Hit, nil
	default:
		return nil, cache.Miss, nil
	}
}

// accept decodes a backend value, tracks it as loaded and caches it.
func (r *Repository[T, PT]) accept(key string, value []byte) (PT, error) {
	doc, snapshot, err := r.decode(value)
	if err != nil {
		return nil, err
	}
	if doc.Base().ID == "" {
		doc.Base().ID = key
	}
	r.track(doc, snapshot)
	if r.caching() {
		r.rt.Cache.Set(r.entry(doc, value))
	}
	return doc, nil
}

// GetAll returns the documents for ids in request order, skipping the
// missing ones. Cache misses are read in parallel; ids the backend does not
// know are cached as absent.
func (r *Repository[T, PT]) GetAll(ctx context.Context, ids []string) ([]PT, error) {
	keys := make([]string, len(ids))
	docs := make([]PT, len(ids))
	var misses []int

	for i, id := range ids {
		keys[i] = r.Key(id)
		doc, state, err := r.fromCache(ctx, keys[i])
		switch {
		case state == cache.Hit:
			docs[i] = doc
		case state == cache.Absent:
		case err != nil:
			return nil, err
		default:
			misses = append(misses, i)
		}
	}

	values := make([]fetched, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, i := range misses {
		g.Go(func() error {
			value, found, err := r.load(gctx, keys[i])
			if err != nil {
				return err
			}
			values[i] = fetched{value: value, found: found}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, i := range misses {
		if !values[i].found {
			if r.caching() {
				r.rt.Cache.SetAbsent(keys[i])
			}
			continue
		}
		doc, err := r.accept(keys[i], values[i].value)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}

	out := make([]PT, 0, len(docs))
	for _, doc := range docs {
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Scan lists the keys matching pattern under the base key, up to limit
// (Options.ScanLimit when limit <= 0). The listing is best effort.
func (r *Repository[T, PT]) Scan(ctx context.Context, pattern string, limit int) ([]string, error) {
	var keys []string
	err := r.ScanEach(ctx, pattern, limit, func(key string) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// ScanEach streams the keys Scan would return to fn until fn returns false.
func (r *Repository[T, PT]) ScanEach(ctx context.Context, pattern string, limit int, fn func(key string) bool) error {
	if limit <= 0 {
		limit = r.opts.ScanLimit
	}
	pattern = cache.QualifyPattern(r.baseKey, pattern)

	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if err := conn.ScanKeys(ctx, conn.DB(), pattern, limit, fn); err != nil {
		return fmt.Errorf("repository: scan %s: %w", pattern, err)
	}
	return nil
}

// GetAllMatching scans pattern and loads every key found.
func (r *Repository[T, PT]) GetAllMatching(ctx context.Context, pattern string, limit int) ([]PT, error) {
	keys, err := r.Scan(ctx, pattern, limit)
	if err != nil {
		return nil, err
	}
	return r.GetAll(ctx, keys)
}

