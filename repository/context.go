package repository

import "context"

type cacheBypassContextKey struct{}

// WithCacheBypass makes reads using ctx skip the local cache lookup and go
// to the backend. What the backend returns still updates the cache, through
// the same newer-wins rule as any other read.
func WithCacheBypass(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, cacheBypassContextKey{}, true)
}

func cacheBypassFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	bypass, _ := ctx.Value(cacheBypassContextKey{}).(bool)
	return bypass
}
