package impact

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/llm"
	"github.com/quantinsight/quantinsight/internal/models"
)

var (
	ErrNoInput   = errors.New("Either text or URL must be provided")
	ErrEmptyText = errors.New("No text content found to analyze")
)

const (
	summaryChars        = 1024
	summaryFallback     = "Summary generation in progress..."
	defaultFetchTimeout = 15 * time.Second
)

// Quoter supplies current prices for affected stocks.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
}

// Input is an article given either as raw text or as a URL to fetch.
type Input struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Analyzer turns an article into a MarketImpact.
type Analyzer struct {
	llm    llm.Client
	market Quoter
	client *http.Client
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer. llm and market may be nil.
func NewAnalyzer(client llm.Client, market Quoter, httpClient *http.Client, logger *slog.Logger) *Analyzer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultFetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{llm: client, market: market, client: httpClient, logger: logger}
}

// Analyze fetches the article when a URL is given, then summarizes it,
// classifies the event and predicts the impact on each mentioned stock.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*models.MarketImpact, error) {
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.URL) == "" {
		return nil, ErrNoInput
	}

	text, source := in.Text, "text"
	if strings.TrimSpace(in.URL) != "" {
		var err error
		if text, err = ExtractText(ctx, a.client, in.URL); err != nil {
			return nil, err
		}
		source = "url"
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	event := ClassifyEvent(ctx, a.llm, text)
	stocks := make([]models.StockImpact, 0, maxTickers)
	for _, c := range ExtractTickers(text) {
		stocks = append(stocks, PredictImpact(c.Ticker, c.Name, text, event, a.price(ctx, c.Ticker)))
	}

	result := &models.MarketImpact{
		Summary:         a.summarize(ctx, text),
		OriginalLength:  len(text),
		KeyPoints:       KeyPoints(text),
		AffectedStocks:  stocks,
		SectorImpacts:   SectorImpacts(stocks),
		MarketSentiment: MarketSentiment(stocks),
		EventType:       event,
		ImpactTimeline:  Timeline(event),
		SourceType:      source,
	}
	a.logger.Info("market impact analyzed",
		"source", source, "event_type", event, "stocks", len(stocks), "sentiment", result.MarketSentiment)
	return result, nil
}

func (a *Analyzer) price(ctx context.Context, ticker string) float64 {
	if a.market == nil {
		return 0
	}
	q, err := a.market.Quote(ctx, ticker)
	if err != nil {
		a.logger.Debug("impact price unavailable", "ticker", ticker, "error", err)
		return 0
	}
	return q.Price
}

func (a *Analyzer) summarize(ctx context.Context, text string) string {
	if a.llm != nil {
		resp, err := a.llm.Generate(ctx, llm.Request{
			Prompt:    "Summarize this market news in two or three sentences for an investor:\n\n" + truncate(text, summaryChars),
			MaxTokens: 200,
			Operation: "impact:summary",
		})
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return strings.TrimSpace(resp.Text)
		}
		if err != nil {
			a.logger.Warn("impact summary failed", "error", err)
		}
	}
	return leadSentences(text, 2)
}

func leadSentences(text string, n int) string {
	var out []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s+".")
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		return summaryFallback
	}
	return strings.Join(out, " ")
}
