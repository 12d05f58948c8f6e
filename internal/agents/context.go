package agents

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/models"
)

// MarketData is the subset of marketdata.Service the agents read from.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	Closes(ctx context.Context, symbol string, window marketdata.Window) ([]float64, error)
}

// NewsFetcher returns recent articles for a symbol.
type NewsFetcher interface {
	Fetch(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error)
}

// WebSearcher runs a free-text news search and renders the results.
type WebSearcher interface {
	Enabled() bool
	Search(ctx context.Context, query string) string
}

const contextHeadlines = 5

// ContextGatherer collects live data about a ticker for the agents' prompts.
// Any field may be nil; missing sources render as unavailable.
type ContextGatherer struct {
	Market MarketData
	News   NewsFetcher
	Search WebSearcher
}

// Gather renders the quote, 30-day stats, headlines and search results for
// ticker. Individual failures degrade to "unavailable" lines.
func (g *ContextGatherer) Gather(ctx context.Context, ticker string) string {
	if g == nil {
		return ""
	}
	var quoteSection, statsSection, newsSection, searchSection string

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		quoteSection, statsSection = g.marketSections(ctx, ticker)
		return nil
	})
	eg.Go(func() error {
		newsSection = g.newsSection(ctx, ticker)
		return nil
	})
	eg.Go(func() error {
		if g.Search != nil && g.Search.Enabled() {
			searchSection = "Web search results:\n" + g.Search.Search(ctx, ticker)
		}
		return nil
	})
	_ = eg.Wait()

	sections := []string{quoteSection, statsSection, newsSection}
	if searchSection != "" {
		sections = append(sections, searchSection)
	}
	return strings.Join(sections, "\n\n")
}

func (g *ContextGatherer) marketSections(ctx context.Context, ticker string) (string, string) {
	if g.Market == nil {
		return "Live quote: unavailable", "30-day statistics: unavailable"
	}

	quote, err := g.Market.Quote(ctx, ticker)
	quoteSection := "Live quote: unavailable"
	if err == nil {
		quoteSection = fmt.Sprintf("Live quote for %s: $%.2f (%+.2f, %+.2f%%), day range $%.2f - $%.2f, source %s",
			quote.Symbol, quote.Price, quote.Change, quote.ChangePercent, quote.Low, quote.High, quote.Provider)
	}

	closes, err := g.Market.Closes(ctx, ticker, marketdata.Month)
	if err != nil {
		return quoteSection, "30-day statistics: unavailable"
	}
	stats, ok := marketdata.ComputeStats(closes, quote.Price)
	if !ok {
		return quoteSection, "30-day statistics: unavailable"
	}
	statsSection := fmt.Sprintf("30-day statistics: range $%.2f - $%.2f, average $%.2f, return %+.2f%%, volatility %.2f%% (%s), trend %s, trading %s",
		stats.Min, stats.Max, stats.Average, stats.Return, stats.VolatilityPercent, stats.VolatilityLevel, stats.Trend, stats.RangeDescription)
	return quoteSection, statsSection
}

func (g *ContextGatherer) newsSection(ctx context.Context, ticker string) string {
	if g.News == nil {
		return "Recent headlines: unavailable"
	}
	articles, err := g.News.Fetch(ctx, ticker, contextHeadlines)
	if err != nil || len(articles) == 0 {
		return "Recent headlines: unavailable"
	}
	var b strings.Builder
	b.WriteString("Recent headlines:")
	for i, a := range articles {
		if i == contextHeadlines {
			break
		}
		fmt.Fprintf(&b, "\n- %s (%s, %s)", a.Title, a.Source, a.PublishedAt.Format("2006-01-02"))
	}
	return b.String()
}
