// Package webcache fetches and caches the text content of URLs, with a
// per-URL access counter that ticks on every request regardless of
// cache outcome. Expiration is delegated entirely to the backend's
// per-key TTL: the cache sets a TTL once at write time and never
// refreshes or inspects it.
package webcache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
)

// Key prefixes for the access counter and cached page body.
const (
	countPrefix = "count:"
	cachePrefix = "cache:"
)

// DefaultTTL is how long a fetched page stays cached.
const DefaultTTL = 10 * time.Second

// Fetcher retrieves the text content of a URL. Blocking; a failed
// fetch returns an error and is never cached.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// PageCache is a read-through cache for page bodies. The client handle
// is passed in explicitly and its lifecycle belongs to the caller.
type PageCache struct {
	client  *redis.Client
	fetcher Fetcher
	ttl     time.Duration
	metrics *metrics.Metrics
}

// Option configures a PageCache.
type Option func(*PageCache)

// WithTTL overrides the default cache expiration.
func WithTTL(ttl time.Duration) Option {
	return func(p *PageCache) {
		p.ttl = ttl
	}
}

// WithMetrics attaches prometheus collectors to the cache.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *PageCache) {
		p.metrics = m
	}
}

// New creates a page cache over the given client and fetcher.
func New(client *redis.Client, fetcher Fetcher, opts ...Option) *PageCache {
	p := &PageCache{
		client:  client,
		fetcher: fetcher,
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetPage returns the page body for url, from cache when a fresh entry
// exists, otherwise by fetching and caching it. The access counter for
// url is incremented unconditionally before the cache is consulted, so
// it counts attempts, not fetches.
func (p *PageCache) GetPage(ctx context.Context, url string) (string, error) {
	if err := p.client.Incr(ctx, countPrefix+url).Err(); err != nil {
		return "", fmt.Errorf("incr %s: %w", countPrefix+url, err)
	}

	cached, err := p.client.Get(ctx, cachePrefix+url).Result()
	if err == nil {
		if p.metrics != nil {
			p.metrics.PageHits.Inc()
		}
		return cached, nil
	}
	if err != redis.Nil {
		return "", fmt.Errorf("get %s: %w", cachePrefix+url, err)
	}

	if p.metrics != nil {
		p.metrics.PageMisses.Inc()
	}
	logging.Op().Debug("page cache miss, fetching", "url", url)

	body, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		if p.metrics != nil {
			p.metrics.FetchErrors.Inc()
		}
		return "", err
	}
	if p.metrics != nil {
		p.metrics.Fetches.Inc()
	}

	if err := p.client.Set(ctx, cachePrefix+url, body, p.ttl).Err(); err != nil {
		return "", fmt.Errorf("setex %s: %w", cachePrefix+url, err)
	}
	return body, nil
}

// AccessCount returns how many times GetPage has been called for url
// since the last flush. A URL that was never requested reports 0.
func (p *PageCache) AccessCount(ctx context.Context, url string) (int64, error) {
	n, err := p.client.Get(ctx, countPrefix+url).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", countPrefix+url, err)
	}
	return n, nil
}
