package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/config"
	"github.com/quantinsight/quantinsight/internal/models"
	"github.com/quantinsight/quantinsight/internal/retry"
)

const (
	batchConcurrency = 8
	marketSummaryKey = "market_summary"
)

// MarketIndices maps the ETF proxies used for the market summary to the
// index they track.
var MarketIndices = []struct {
	Symbol string
	Name   string
}{
	{"SPY", "S&P 500"},
	{"QQQ", "NASDAQ"},
	{"DIA", "Dow Jones"},
	{"IWM", "Russell 2000"},
}

// ProviderObserver records provider call outcomes, typically into metrics.
type ProviderObserver interface {
	ObserveProvider(provider, outcome string, d time.Duration)
}

// Providers lists the configured providers per capability, in priority order.
type Providers struct {
	Quotes  []QuoteProvider
	Batch   []BatchQuoteProvider
	History []HistoryProvider
	Search  []SearchProvider
	Profile []ProfileProvider
}

// NewProviders builds the provider chains from configuration. Keyed providers
// without a key are left out.
func NewProviders(cfg config.ProviderConfig, client *http.Client) Providers {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	yahoo := NewYahoo(client, "")
	var (
		finnhub    *Finnhub
		alpha      *AlphaVantage
		polygon    *Polygon
		alpaca     *Alpaca
		twelveData *TwelveData
	)
	if cfg.FinnhubKey != "" {
		finnhub = NewFinnhub(cfg.FinnhubKey, client, "")
	}
	if cfg.AlphaVantageKey != "" {
		alpha = NewAlphaVantage(cfg.AlphaVantageKey, client, "")
	}
	if cfg.PolygonKey != "" {
		polygon = NewPolygon(cfg.PolygonKey, client, "")
	}
	if cfg.AlpacaKey != "" && cfg.AlpacaSecret != "" {
		alpaca = NewAlpaca(cfg.AlpacaKey, cfg.AlpacaSecret, client, "")
	}
	if cfg.TwelveDataKey != "" {
		twelveData = NewTwelveData(cfg.TwelveDataKey, client, "")
	}

	var p Providers
	for _, name := range cfg.QuoteOrder {
		switch name {
		case ProviderYahoo:
			p.Quotes = append(p.Quotes, yahoo)
			p.Batch = append(p.Batch, yahoo)
		case ProviderFinnhub:
			if finnhub != nil {
				p.Quotes = append(p.Quotes, finnhub)
			}
		case ProviderAlphaVantage, "alphavantage":
			if alpha != nil {
				p.Quotes = append(p.Quotes, alpha)
			}
		case ProviderPolygon:
			if polygon != nil {
				p.Quotes = append(p.Quotes, polygon)
			}
		case ProviderAlpaca:
			if alpaca != nil {
				p.Quotes = append(p.Quotes, alpaca)
			}
		}
	}

	p.History = append(p.History, yahoo)
	if alpaca != nil {
		p.History = append(p.History, alpaca)
	}
	if twelveData != nil {
		p.History = append(p.History, twelveData)
	}

	if finnhub != nil {
		p.Search = append(p.Search, finnhub)
		p.Profile = append(p.Profile, finnhub)
	}
	p.Search = append(p.Search, yahoo)
	if polygon != nil {
		p.Profile = append(p.Profile, polygon)
	}
	return p
}

// Service is the cached, rate-limited entry point to market data.
type Service struct {
	providers Providers
	loader    *cache.Loader
	ttl       config.CacheTTLs
	limits    *limiterSet
	retry     retry.Policy
	observer  ProviderObserver
	logger    *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithLimits replaces DefaultLimits.
func WithLimits(limits map[string]Limit) Option {
	return func(s *Service) { s.limits = newLimiterSet(limits) }
}

// WithRetryPolicy sets the per-provider retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.retry = p }
}

// WithObserver attaches a provider call observer.
func WithObserver(o ProviderObserver) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a market data service.
func NewService(providers Providers, loader *cache.Loader, ttl config.CacheTTLs, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		providers: providers,
		loader:    loader,
		ttl:       ttl,
		limits:    newLimiterSet(DefaultLimits),
		retry:     retry.DefaultPolicy(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func quoteKey(symbol string) string { return "quote:" + symbol }

// callProvider runs fn under the provider's rate limit and retry policy.
func callProvider[T any](ctx context.Context, s *Service, provider, subject string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	if !s.limits.allow(provider) {
		s.observe(provider, "rate_limited", 0)
		s.logger.Debug("provider rate limited", "provider", provider, "symbol", subject)
		return out, fmt.Errorf("%s: %w", provider, ErrRateLimited)
	}

	start := time.Now()
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		s.observe(provider, "error", elapsed)
		s.logger.Debug("provider call failed", "provider", provider, "symbol", subject, "duration_ms", elapsed.Milliseconds(), "error", err)
		return out, err
	}
	s.observe(provider, "success", elapsed)
	s.logger.Debug("provider call", "provider", provider, "symbol", subject, "duration_ms", elapsed.Milliseconds())
	return out, nil
}

func (s *Service) observe(provider, outcome string, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveProvider(provider, outcome, d)
	}
}

// exhausted reports a failed provider chain. It wraps ErrRateLimited alone
// when every provider was refused by its limiter, and ErrNoData otherwise.
func exhausted(what, symbol string, errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("%s %s: %w: no providers configured", what, symbol, ErrNoData)
	}
	if allRateLimited(errs) {
		return fmt.Errorf("%s %s: %w", what, symbol, errors.Join(errs...))
	}
	return fmt.Errorf("%s %s: %w: %w", what, symbol, ErrNoData, errors.Join(errs...))
}

func allRateLimited(errs []error) bool {
	for _, err := range errs {
		if !errors.Is(err, ErrRateLimited) {
			return false
		}
	}
	return len(errs) > 0
}

// Quote returns a normalized quote, from cache when fresh, otherwise from the
// first provider in the chain that answers.
func (s *Service) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return models.Quote{}, err
	}
	q, _, err := cache.GetOrFetch(ctx, s.loader, quoteKey(sym), s.ttl.Quote, func(ctx context.Context) (models.Quote, error) {
		return s.fetchQuote(ctx, sym)
	})
	return q, err
}

func (s *Service) fetchQuote(ctx context.Context, sym string) (models.Quote, error) {
	var errs []error
	for _, p := range s.providers.Quotes {
		q, err := callProvider(ctx, s, p.Name(), sym, func(ctx context.Context) (*models.Quote, error) {
			return p.Quote(ctx, sym)
		})
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if q == nil || q.Price <= 0 {
			errs = append(errs, noData(p.Name(), sym))
			continue
		}
		q.Symbol = sym
		return NormalizeQuote(*q), nil
	}
	return models.Quote{}, exhausted("quote", sym, errs)
}

// BatchQuotes returns quotes for every symbol that could be resolved. Symbols
// no provider can price are absent from the map rather than failing the batch.
func (s *Service) BatchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	syms := NormalizeSymbols(symbols)
	out := make(map[string]models.Quote, len(syms))

	var missing []string
	for _, sym := range syms {
		var q models.Quote
		if s.loader.Lookup(ctx, quoteKey(sym), &q) {
			out[sym] = q
			continue
		}
		missing = append(missing, sym)
	}

	for _, bp := range s.providers.Batch {
		if len(missing) == 0 {
			break
		}
		want := missing
		got, err := callProvider(ctx, s, bp.Name(), strings.Join(want, ","), func(ctx context.Context) (map[string]models.Quote, error) {
			return bp.Quotes(ctx, want)
		})
		if err != nil {
			s.logger.Warn("batch quote provider failed", "provider", bp.Name(), "symbols", len(want), "error", err)
			continue
		}

		var remaining []string
		for _, sym := range want {
			q, ok := got[sym]
			if !ok || q.Price <= 0 {
				remaining = append(remaining, sym)
				continue
			}
			q.Symbol = sym
			q = NormalizeQuote(q)
			out[sym] = q
			s.loader.Store(ctx, quoteKey(sym), q, s.ttl.Quote)
		}
		missing = remaining
	}

	if len(missing) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, sym := range missing {
		g.Go(func() error {
			q, err := s.Quote(gctx, sym)
			if err != nil {
				s.logger.Warn("quote unavailable", "symbol", sym, "error", err)
				return nil
			}
			mu.Lock()
			out[sym] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// History returns closes for the window, oldest first.
func (s *Service) History(ctx context.Context, symbol string, window Window) ([]models.PricePoint, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("history:%s:%s", sym, window)
	points, _, err := cache.GetOrFetch(ctx, s.loader, key, s.ttl.History, func(ctx context.Context) ([]models.PricePoint, error) {
		var errs []error
		for _, p := range s.providers.History {
			pts, err := callProvider(ctx, s, p.Name(), sym, func(ctx context.Context) ([]models.PricePoint, error) {
				return p.History(ctx, sym, window)
			})
			if err == nil && len(pts) > 0 {
				return pts, nil
			}
			if err == nil {
				err = noData(p.Name(), sym)
			}
			errs = append(errs, err)
		}
		return nil, exhausted("history", sym, errs)
	})
	return points, err
}

// Closes is History reduced to prices.
func (s *Service) Closes(ctx context.Context, symbol string, window Window) ([]float64, error) {
	points, err := s.History(ctx, symbol, window)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Price
	}
	return closes, nil
}

// Search looks symbols up by name or ticker. The first provider with matches wins.
func (s *Service) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	key := "search:" + strings.ToLower(query)
	results, _, err := cache.GetOrFetch(ctx, s.loader, key, s.ttl.Company, func(ctx context.Context) ([]models.SearchResult, error) {
		var errs []error
		for _, p := range s.providers.Search {
			res, err := callProvider(ctx, s, p.Name(), query, func(ctx context.Context) ([]models.SearchResult, error) {
				return p.Search(ctx, query)
			})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if len(res) > 0 {
				return res, nil
			}
		}
		if len(errs) == len(s.providers.Search) && len(errs) > 0 {
			return nil, exhausted("search", query, errs)
		}
		return []models.SearchResult{}, nil
	})
	return results, err
}

// Profile returns company reference data.
func (s *Service) Profile(ctx context.Context, symbol string) (models.CompanyProfile, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return models.CompanyProfile{}, err
	}
	profile, _, err := cache.GetOrFetch(ctx, s.loader, "company:"+sym, s.ttl.Company, func(ctx context.Context) (models.CompanyProfile, error) {
		var errs []error
		for _, p := range s.providers.Profile {
			prof, err := callProvider(ctx, s, p.Name(), sym, func(ctx context.Context) (*models.CompanyProfile, error) {
				return p.Profile(ctx, sym)
			})
			if err == nil && prof != nil {
				return *prof, nil
			}
			if err == nil {
				err = noData(p.Name(), sym)
			}
			errs = append(errs, err)
		}
		return models.CompanyProfile{}, exhausted("profile", sym, errs)
	})
	return profile, err
}

// MarketSummary quotes the index ETFs.
func (s *Service) MarketSummary(ctx context.Context) (models.MarketSummary, error) {
	summary, _, err := cache.GetOrFetch(ctx, s.loader, marketSummaryKey, s.ttl.MarketSummary, func(ctx context.Context) (models.MarketSummary, error) {
		symbols := make([]string, len(MarketIndices))
		for i, idx := range MarketIndices {
			symbols[i] = idx.Symbol
		}
		quotes, err := s.BatchQuotes(ctx, symbols)
		if err != nil {
			return models.MarketSummary{}, err
		}
		if len(quotes) == 0 {
			return models.MarketSummary{}, fmt.Errorf("market summary: %w", ErrNoData)
		}

		summary := models.MarketSummary{Indices: make(map[string]models.Quote, len(quotes)), Timestamp: time.Now().UTC()}
		for _, idx := range MarketIndices {
			if q, ok := quotes[idx.Symbol]; ok {
				summary.Indices[idx.Name] = q
			}
		}
		return summary, nil
	})
	return summary, err
}

// Prefetch warms the quote cache and reports how many symbols were cached.
func (s *Service) Prefetch(ctx context.Context, symbols []string) (int, error) {
	quotes, err := s.BatchQuotes(ctx, symbols)
	return len(quotes), err
}

// CacheStats describes the backing cache.
func (s *Service) CacheStats(ctx context.Context) cache.Stats {
	return s.loader.Cache().Stats(ctx)
}
