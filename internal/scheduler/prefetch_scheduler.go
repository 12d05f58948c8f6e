package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quantinsight/quantinsight/internal/models"
)

const (
	// DefaultSchedule warms the quote cache every five minutes.
	DefaultSchedule = "@every 5m"

	maxFollowedSymbols = 50
	runTimeout         = 4 * time.Minute
)

// Prefetcher warms the market data cache for a list of symbols.
type Prefetcher interface {
	Prefetch(ctx context.Context, symbols []string) (int, error)
}

// FollowedLister returns symbols followed by any user, most followed first.
type FollowedLister interface {
	AllFollowedSymbols(ctx context.Context, limit int) ([]string, error)
}

// PrefetchScheduler periodically warms the cache for popular and followed stocks.
type PrefetchScheduler struct {
	market   Prefetcher
	followed FollowedLister
	schedule string
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	cancel  context.CancelFunc
}

// NewPrefetchScheduler creates a scheduler. followed may be nil when no
// database is configured; only the popular list is warmed then.
func NewPrefetchScheduler(market Prefetcher, followed FollowedLister, schedule string, logger *slog.Logger) *PrefetchScheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &PrefetchScheduler{
		market:   market,
		followed: followed,
		schedule: schedule,
		logger:   logger,
	}
}

// Start runs one warm-up immediately in the background, then on the schedule
// until Stop is called or ctx is cancelled.
func (s *PrefetchScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("prefetch scheduler already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid prefetch schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	s.cancel = cancel
	s.running = true
	c.Start()
	s.logger.Info("starting prefetch scheduler", "schedule", s.schedule)

	go s.RunOnce(ctx)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a run in progress to finish.
func (s *PrefetchScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	s.logger.Info("prefetch scheduler stopped")
}

// RunOnce warms the cache for the popular list plus stocks followed by any
// user. It returns the number of symbols warmed.
func (s *PrefetchScheduler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	symbols := s.symbols(ctx)
	start := time.Now()
	n, err := s.market.Prefetch(ctx, symbols)
	if err != nil {
		s.logger.Warn("cache prefetch incomplete", "error", err, "warmed", n, "requested", len(symbols))
		return n
	}
	s.logger.Info("cache prefetch completed", "warmed", n, "requested", len(symbols), "duration", time.Since(start))
	return n
}

func (s *PrefetchScheduler) symbols(ctx context.Context) []string {
	symbols := models.PopularSymbols()
	if s.followed == nil {
		return symbols
	}
	followed, err := s.followed.AllFollowedSymbols(ctx, maxFollowedSymbols)
	if err != nil {
		s.logger.Error("failed to load followed symbols", "error", err)
		return symbols
	}

	seen := make(map[string]bool, len(symbols)+len(followed))
	for _, sym := range symbols {
		seen[sym] = true
	}
	for _, sym := range followed {
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	return symbols
}
