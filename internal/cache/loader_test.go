package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetOrFetchSurvivesFirstCallerCancel(t *testing.T) {
	l := NewLoader(NewMemoryCache(), discardLogger(), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (float64, error) {
		close(started)
		select {
		case <-release:
			return 190.5, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := GetOrFetch(firstCtx, l, "quote:AAPL", time.Minute, fetch)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   float64
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, _, err := GetOrFetch(context.Background(), l, "quote:AAPL", time.Minute, fetch)
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to stop with context.Canceled, got %v", err)
	}

	close(release)
	res := <-second
	if res.err != nil {
		t.Fatalf("second caller failed after first caller cancelled: %v", res.err)
	}
	if res.v != 190.5 {
		t.Errorf("unexpected value %v", res.v)
	}

	var cached float64
	if !l.Lookup(context.Background(), "quote:AAPL", &cached) || cached != 190.5 {
		t.Errorf("expected shared fetch result to be cached, got %v", cached)
	}
}

func TestGetOrFetchHonoursCallerDeadline(t *testing.T) {
	l := NewLoader(NewMemoryCache(), discardLogger(), nil)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := GetOrFetch(ctx, l, "news:AAPL", time.Minute, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("caller waited past its own deadline")
	}
}

func TestGetOrFetchBoundsSharedFetch(t *testing.T) {
	l := NewLoader(NewMemoryCache(), discardLogger(), nil)
	l.SetFetchTimeout(20 * time.Millisecond)

	_, _, err := GetOrFetch(context.Background(), l, "company:AAPL", time.Minute, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected fetch timeout, got %v", err)
	}
}
