// Package cache provides the TTL cache that sits in front of backend calls.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched value is served before it is fetched again.
const DefaultTTL = 5 * time.Minute

// Loader serves values from a Cache and falls back to a fetch function on a
// miss or an expired entry. Concurrent misses on one key share a single fetch.
type Loader struct {
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewLoader wraps c. A non-positive ttl selects DefaultTTL.
func NewLoader(c Cache, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Loader{cache: c, ttl: ttl}
}

func (l *Loader) TTL() time.Duration { return l.ttl }

// Clear drops every cached value.
func (l *Loader) Clear(ctx context.Context) error {
	return l.cache.Clear(ctx)
}

// ClearEntry drops a single key.
func (l *Loader) ClearEntry(ctx context.Context, key string) error {
	return l.cache.Delete(ctx, key)
}

// GetOrFetch returns the value cached under key if it is younger than the
// loader's TTL. Otherwise it calls fetch once, stores whatever fetch returned
// and returns it. A fetch error is returned as is and nothing is stored.
// Cache backend failures degrade to a plain fetch. A nil loader always fetches.
// The shared fetch runs detached from ctx cancellation, so it must be bounded
// by its own timeout (the backend HTTP client's).
func GetOrFetch[T any](ctx context.Context, l *Loader, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if l == nil {
		return fetch(ctx)
	}

	raw, found, err := l.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		slog.Warn("cache read failed", "key", key, "error", err)
	case found:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return v, nil
		}
		slog.Warn("discarding undecodable cache entry", "key", key)
	}
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	// The shared fetch outlives any single caller; each caller stops waiting
	// when its own ctx is done.
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		fresh, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if err := l.store(fetchCtx, key, fresh); err != nil {
			slog.Warn("cache write failed", "key", key, "error", err)
		}
		return fresh, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (l *Loader) store(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return l.cache.Set(ctx, key, b, l.ttl)
}
