package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// backoff is the wait before attempt+1: attempt × 5 units.
func backoff(attempt int, unit time.Duration) time.Duration {
	return time.Duration(attempt) * 5 * unit
}

// fetch reads key with retries. It returns the raw value and whether the
// key exists. A read that fails MaxAttempts times becomes a *BackendError.
func (r *Repository[T, PT]) fetch(ctx context.Context, key string) ([]byte, bool, error) {
	start := r.rt.Now()
	defer func() { r.rt.Metrics.FetchDuration(r.baseKey, r.rt.Now().Sub(start)) }()

	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		value, found, err := r.fetchOnce(ctx, key)
		if err == nil {
			if found {
				r.rt.Metrics.FetchAttempt(r.baseKey, "found")
			} else {
				r.rt.Metrics.FetchAttempt(r.baseKey, "missing")
			}
			return value, found, nil
		}

		if errors.Is(err, ErrClosed) {
			return nil, false, err
		}
		r.rt.Metrics.FetchAttempt(r.baseKey, "error")
		lastErr = err
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("repository: get %s: %w", key, ctx.Err())
		}
		if attempt == r.opts.MaxAttempts {
			break
		}

		r.logger.Debug("backend read failed, retrying", "key", key, "attempt", attempt, "error", err)
		if err := r.rt.Sleep(ctx, backoff(attempt, r.opts.RetryUnit)); err != nil {
			return nil, false, fmt.Errorf("repository: get %s: %w", key, err)
		}
	}

	return nil, false, &BackendError{Key: key, Attempts: r.opts.MaxAttempts, Err: lastErr}
}

func (r *Repository[T, PT]) fetchOnce(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, false, err
	}
	return conn.Get(ctx, key)
}

type fetched struct {
	value []byte
	found bool
}

// load coalesces concurrent reads of the same key across the process.
// Callers must not mutate the returned slice.
func (r *Repository[T, PT]) load(ctx context.Context, key string) ([]byte, bool, error) {
	v, err, _ := r.rt.Flight.Do(r.opts.ConnectionString+"\x00"+key, func() (any, error) {
		value, found, err := r.fetch(ctx, key)
		return fetched{value: value, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	f := v.(fetched)
	return f.value, f.found, nil
}

