package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type sample struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "quote:AAPL", sample{Symbol: "AAPL", Price: 190.5}, time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	var got sample
	found, err := c.Get(ctx, "quote:AAPL", &got)
	if err != nil || !found {
		t.Fatalf("expected hit, found=%v err=%v", found, err)
	}
	if got.Price != 190.5 {
		t.Errorf("unexpected price %v", got.Price)
	}

	found, _ = c.Get(ctx, "quote:MSFT", &got)
	if found {
		t.Error("expected miss for unknown key")
	}

	stats := c.Stats(ctx)
	if stats.Type != "memory" || stats.TotalKeys != 1 || stats.HitRate != 50 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "k", 1, time.Second)
	now = now.Add(2 * time.Second)

	var v int
	if found, _ := c.Get(ctx, "k", &v); found {
		t.Fatal("expected expired entry to miss")
	}
	if len(c.entries) != 0 {
		t.Errorf("expected expired entry to be removed, have %d", len(c.entries))
	}
}

func TestMemoryCacheDeletePattern(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	for _, key := range []string{
		"analysis:quick:AAPL:u1",
		"analysis:standard:MSFT:u1",
		"analysis:quick:AAPL:u2",
		"quote:AAPL",
	} {
		_ = c.Set(ctx, key, "x", time.Minute)
	}

	n, err := c.DeletePattern(ctx, "analysis:*:*:u1")
	if err != nil {
		t.Fatalf("DeletePattern returned error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deletions, got %d", n)
	}

	n, _ = c.Delete(ctx, "quote:AAPL", "missing")
	if n != 1 {
		t.Errorf("expected 1 deletion, got %d", n)
	}
	if c.Stats(ctx).TotalKeys != 1 {
		t.Errorf("expected 1 remaining key")
	}
}

func TestMemoryCacheRejectsBadPattern(t *testing.T) {
	c := NewMemoryCache()
	if _, err := c.DeletePattern(context.Background(), "["); err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}

func TestNewFallsBackToMemory(t *testing.T) {
	c := New(context.Background(), "", discardLogger())
	if _, ok := c.(*MemoryCache); !ok {
		t.Fatalf("expected memory cache, got %T", c)
	}

	c = New(context.Background(), "redis://127.0.0.1:1/0", discardLogger())
	if _, ok := c.(*MemoryCache); !ok {
		t.Fatalf("expected memory fallback for unreachable redis, got %T", c)
	}
}

type countingObserver struct {
	hits, misses atomic.Int32
}

func (o *countingObserver) ObserveCache(kind string, hit bool) {
	if hit {
		o.hits.Add(1)
	} else {
		o.misses.Add(1)
	}
}

func TestGetOrFetchCachesSuccess(t *testing.T) {
	obs := &countingObserver{}
	l := NewLoader(NewMemoryCache(), discardLogger(), obs)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (sample, error) {
		calls++
		return sample{Symbol: "NVDA", Price: 120}, nil
	}

	v, cached, err := GetOrFetch(ctx, l, "quote:NVDA", time.Minute, fetch)
	if err != nil || cached || v.Price != 120 {
		t.Fatalf("first call: v=%+v cached=%v err=%v", v, cached, err)
	}
	v, cached, err = GetOrFetch(ctx, l, "quote:NVDA", time.Minute, fetch)
	if err != nil || !cached || v.Symbol != "NVDA" {
		t.Fatalf("second call: v=%+v cached=%v err=%v", v, cached, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}
	if obs.hits.Load() != 1 || obs.misses.Load() != 1 {
		t.Errorf("unexpected observations hits=%d misses=%d", obs.hits.Load(), obs.misses.Load())
	}
}

func TestGetOrFetchDoesNotCacheErrors(t *testing.T) {
	l := NewLoader(NewMemoryCache(), discardLogger(), nil)
	ctx := context.Background()
	boom := errors.New("upstream down")

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	}

	for i := 0; i < 2; i++ {
		if _, _, err := GetOrFetch(ctx, l, "quote:X", time.Minute, fetch); !errors.Is(err, boom) {
			t.Fatalf("expected upstream error, got %v", err)
		}
	}
	if calls != 2 {
		t.Errorf("expected errors to bypass cache, got %d fetches", calls)
	}
}

func TestGetOrFetchCollapsesConcurrentMisses(t *testing.T) {
	l := NewLoader(NewMemoryCache(), discardLogger(), nil)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := GetOrFetch(ctx, l, "history:AAPL", time.Minute, fetch)
			if err != nil || v != 42 {
				t.Errorf("unexpected result v=%d err=%v", v, err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("expected a single shared fetch, got %d", n)
	}
}

func TestParseInfo(t *testing.T) {
	info := "# Stats\r\nkeyspace_hits:30\r\nkeyspace_misses:10\r\n\r\n# Memory\r\nused_memory_human:1.5M\r\n"
	fields := parseInfo(info)
	if fields["keyspace_hits"] != "30" || fields["used_memory_human"] != "1.5M" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if hitRate(30, 10) != 75 {
		t.Errorf("unexpected hit rate %v", hitRate(30, 10))
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	c := New(context.Background(), url, discardLogger())
	defer c.Close()
	rc, ok := c.(*RedisCache)
	if !ok {
		t.Fatalf("expected redis cache, got %T", c)
	}

	ctx := context.Background()
	if err := rc.Set(ctx, "test:quote:AAPL", sample{Symbol: "AAPL"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got sample
	if found, err := rc.Get(ctx, "test:quote:AAPL", &got); err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if n, err := rc.DeletePattern(ctx, "test:quote:*"); err != nil || n < 1 {
		t.Fatalf("DeletePattern: n=%d err=%v", n, err)
	}
	if !rc.Stats(ctx).Connected {
		t.Error("expected connected stats")
	}
}
