package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Observer receives cache hit/miss notifications, typically a metrics collector.
type Observer interface {
	ObserveCache(kind string, hit bool)
}

// DefaultFetchTimeout bounds a shared fetch once it is detached from the
// caller that started it.
const DefaultFetchTimeout = time.Minute

// Loader wraps a Cache with get-or-fetch semantics. Concurrent misses on the
// same key share a single fetch.
type Loader struct {
	cache        Cache
	group        singleflight.Group
	logger       *slog.Logger
	observer     Observer
	fetchTimeout time.Duration
}

// NewLoader creates a loader over c. observer may be nil.
func NewLoader(c Cache, logger *slog.Logger, observer Observer) *Loader {
	return &Loader{cache: c, logger: logger, observer: observer, fetchTimeout: DefaultFetchTimeout}
}

// SetFetchTimeout changes the bound on shared fetches. Non-positive values
// restore the default.
func (l *Loader) SetFetchTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultFetchTimeout
	}
	l.fetchTimeout = d
}

// Cache returns the underlying store.
func (l *Loader) Cache() Cache {
	return l.cache
}

func (l *Loader) observe(key string, hit bool) {
	if l.observer == nil {
		return
	}
	kind, _, _ := strings.Cut(key, ":")
	l.observer.ObserveCache(kind, hit)
}

// GetOrFetch returns the cached value at key, or calls fetch and stores its
// result for ttl. The boolean reports whether the value came from the cache.
// Cache failures are logged and never returned; only fetch errors are.
//
// The fetch is shared by every caller waiting on key, so it runs without the
// first caller's cancellation and is bounded by the loader's fetch timeout.
// Each caller stops waiting when its own ctx is done.
func GetOrFetch[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	found, err := l.cache.Get(ctx, key, &cached)
	if err != nil {
		l.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if found {
		l.observe(key, true)
		return cached, true, nil
	}
	l.observe(key, false)

	results := l.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.fetchTimeout)
		defer cancel()
		value, err := fetch(fetchCtx)
		if err != nil {
			return value, err
		}
		if err := l.cache.Set(fetchCtx, key, value, ttl); err != nil {
			l.logger.Warn("cache write failed", "key", key, "error", err)
		}
		return value, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(T), false, nil
	}
}

// Store writes value at key, logging instead of returning failures.
func (l *Loader) Store(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := l.cache.Set(ctx, key, value, ttl); err != nil {
		l.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Lookup reads key into dest, logging instead of returning failures.
func (l *Loader) Lookup(ctx context.Context, key string, dest any) bool {
	found, err := l.cache.Get(ctx, key, dest)
	if err != nil {
		l.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	l.observe(key, found)
	return found
}
