package webcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/oriys/pulsar/internal/metrics"
)

// stubFetcher returns a fixed body (or error) and counts invocations.
type stubFetcher struct {
	calls atomic.Int64
	body  string
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.body, nil
}

func newTestCache(t *testing.T, fetcher Fetcher, opts ...Option) (*PageCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, fetcher, opts...), mr
}

func TestGetPageFetchesOnceWithinTTL(t *testing.T) {
	fetcher := &stubFetcher{body: "<html>hello</html>"}
	pc, _ := newTestCache(t, fetcher)
	ctx := context.Background()

	first, err := pc.GetPage(ctx, "http://x/a")
	if err != nil {
		t.Fatalf("first GetPage failed: %v", err)
	}
	second, err := pc.GetPage(ctx, "http://x/a")
	if err != nil {
		t.Fatalf("second GetPage failed: %v", err)
	}

	if first != fetcher.body || second != first {
		t.Fatalf("expected identical cached content, got %q / %q", first, second)
	}
	if n := fetcher.calls.Load(); n != 1 {
		t.Fatalf("expected 1 fetch within the TTL window, got %d", n)
	}

	count, err := pc.AccessCount(ctx, "http://x/a")
	if err != nil {
		t.Fatalf("AccessCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected access count 2, got %d", count)
	}
}

func TestGetPageRefetchesAfterExpiry(t *testing.T) {
	fetcher := &stubFetcher{body: "<html>hello</html>"}
	pc, mr := newTestCache(t, fetcher)
	ctx := context.Background()

	if _, err := pc.GetPage(ctx, "http://x/a"); err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}

	mr.FastForward(DefaultTTL + time.Second)

	if _, err := pc.GetPage(ctx, "http://x/a"); err != nil {
		t.Fatalf("GetPage after expiry failed: %v", err)
	}
	if n := fetcher.calls.Load(); n != 2 {
		t.Fatalf("expected a second fetch after expiry, got %d", n)
	}
}

func TestGetPageScenario(t *testing.T) {
	fetcher := &stubFetcher{body: "<html>a</html>"}
	pc, mr := newTestCache(t, fetcher, WithTTL(10*time.Second))
	ctx := context.Background()

	// t=0 and t=5: one fetch serves both.
	if _, err := pc.GetPage(ctx, "http://x/a"); err != nil {
		t.Fatalf("GetPage at t=0 failed: %v", err)
	}
	mr.FastForward(5 * time.Second)
	if _, err := pc.GetPage(ctx, "http://x/a"); err != nil {
		t.Fatalf("GetPage at t=5 failed: %v", err)
	}
	if n := fetcher.calls.Load(); n != 1 {
		t.Fatalf("expected 1 fetch at t=5, got %d", n)
	}

	// t=11: past the 10s TTL, a second fetch happens.
	mr.FastForward(6 * time.Second)
	if _, err := pc.GetPage(ctx, "http://x/a"); err != nil {
		t.Fatalf("GetPage at t=11 failed: %v", err)
	}
	if n := fetcher.calls.Load(); n != 2 {
		t.Fatalf("expected 2 fetches at t=11, got %d", n)
	}

	count, err := pc.AccessCount(ctx, "http://x/a")
	if err != nil {
		t.Fatalf("AccessCount failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected access count 3, got %d", count)
	}
}

func TestGetPageFetchErrorNotCached(t *testing.T) {
	fetchErr := errors.New("network down")
	fetcher := &stubFetcher{err: fetchErr}
	pc, mr := newTestCache(t, fetcher)
	ctx := context.Background()

	if _, err := pc.GetPage(ctx, "http://x/a"); !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error to propagate, got %v", err)
	}

	// No negative caching: the page key must not exist.
	if mr.Exists(cachePrefix + "http://x/a") {
		t.Fatal("failed fetch must not be cached")
	}

	// The access attempt still counted.
	count, err := pc.AccessCount(ctx, "http://x/a")
	if err != nil {
		t.Fatalf("AccessCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected access count 1 after failed fetch, got %d", count)
	}
}

func TestAccessCountUnknownURL(t *testing.T) {
	pc, _ := newTestCache(t, FetcherFunc(func(_ context.Context, _ string) (string, error) {
		return "x", nil
	}))

	count, err := pc.AccessCount(context.Background(), "http://never/requested")
	if err != nil {
		t.Fatalf("AccessCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 for unknown URL, got %d", count)
	}
}

func TestCountersAreIndependentPerURL(t *testing.T) {
	fetcher := &stubFetcher{body: "x"}
	pc, _ := newTestCache(t, fetcher)
	ctx := context.Background()

	if _, err := pc.GetPage(ctx, "http://x/a"); err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if _, err := pc.GetPage(ctx, "http://x/b"); err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if _, err := pc.GetPage(ctx, "http://x/a"); err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}

	a, _ := pc.AccessCount(ctx, "http://x/a")
	b, _ := pc.AccessCount(ctx, "http://x/b")
	if a != 2 || b != 1 {
		t.Fatalf("expected counts 2/1, got %d/%d", a, b)
	}
}

func TestGetPageMetrics(t *testing.T) {
	m := metrics.New("pulsar")
	fetcher := &stubFetcher{body: "x"}
	pc, _ := newTestCache(t, fetcher, WithMetrics(m))
	ctx := context.Background()

	if _, err := pc.GetPage(ctx, "http://x/a"); err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if _, err := pc.GetPage(ctx, "http://x/a"); err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}

	if got := testutil.ToFloat64(m.PageMisses); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(m.PageHits); got != 1 {
		t.Fatalf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.Fetches); got != 1 {
		t.Fatalf("expected 1 fetch, got %v", got)
	}
}
