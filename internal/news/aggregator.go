package news

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/models"
)

const (
	// DefaultLimit is the article count when callers pass zero.
	DefaultLimit = 10
	// MaxLimit bounds what a single request may ask for.
	MaxLimit = 50
)

// Aggregator fans a ticker out to every source and merges the results.
type Aggregator struct {
	sources []Source
	loader  *cache.Loader
	ttl     time.Duration
	logger  *slog.Logger
}

func NewAggregator(sources []Source, loader *cache.Loader, ttl time.Duration, logger *slog.Logger) *Aggregator {
	return &Aggregator{sources: sources, loader: loader, ttl: ttl, logger: logger}
}

// Sources returns the configured source names.
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return names
}

// Fetch returns up to limit deduplicated articles about symbol, newest first.
// A failing source is logged and skipped.
func (a *Aggregator) Fetch(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	articles, _, err := cache.GetOrFetch(ctx, a.loader, "news:"+symbol, a.ttl, func(ctx context.Context) ([]models.NewsArticle, error) {
		return a.collect(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

func (a *Aggregator) collect(ctx context.Context, symbol string) ([]models.NewsArticle, error) {
	// Results are kept per source so that merging follows source priority.
	results := make([][]models.NewsArticle, len(a.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		g.Go(func() error {
			start := time.Now()
			items, err := src.Fetch(gctx, symbol, MaxLimit)
			if err != nil {
				a.logger.Warn("news source failed", "source", src.Name(), "symbol", symbol, "error", err)
				return nil
			}
			a.logger.Debug("news source fetched", "source", src.Name(), "symbol", symbol, "count", len(items), "duration_ms", time.Since(start).Milliseconds())
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []models.NewsArticle
	for _, items := range results {
		all = append(all, items...)
	}
	merged := Dedupe(all)
	if len(merged) > MaxLimit {
		merged = merged[:MaxLimit]
	}
	return merged, nil
}

// Dedupe drops repeats by normalized URL and then by lowercase title, and
// sorts the survivors newest first.
func Dedupe(articles []models.NewsArticle) []models.NewsArticle {
	seenURL := make(map[string]struct{}, len(articles))
	seenTitle := make(map[string]struct{}, len(articles))
	out := make([]models.NewsArticle, 0, len(articles))

	for _, a := range articles {
		u := normalizeURL(a.URL)
		title := strings.ToLower(strings.TrimSpace(a.Title))
		if u == "" || title == "" {
			continue
		}
		if _, ok := seenURL[u]; ok {
			continue
		}
		if _, ok := seenTitle[title]; ok {
			continue
		}
		seenURL[u] = struct{}{}
		seenTitle[title] = struct{}{}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host + strings.TrimRight(u.Path, "/")
}
