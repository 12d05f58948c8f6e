package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

// AlphaVantageSource reads the NEWS_SENTIMENT feed for a ticker.
type AlphaVantageSource struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func NewAlphaVantageSource(apiKey string, client *http.Client, baseURL string) *AlphaVantageSource {
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co"
	}
	return &AlphaVantageSource{apiKey: apiKey, httpClient: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *AlphaVantageSource) Name() string { return "alpha_vantage" }

func (s *AlphaVantageSource) Fetch(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	q := url.Values{}
	q.Set("function", "NEWS_SENTIMENT")
	q.Set("tickers", symbol)
	q.Set("sort", "LATEST")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("apikey", s.apiKey)

	var raw avResponse
	if err := doJSON(ctx, s.httpClient, "alphavantage", http.MethodGet, s.baseURL+"/query?"+q.Encode(), nil, nil, &raw); err != nil {
		return nil, err
	}
	if raw.Information != "" && len(raw.Feed) == 0 {
		return nil, fmt.Errorf("alphavantage: %s", raw.Information)
	}

	articles := make([]models.NewsArticle, 0, len(raw.Feed))
	for _, item := range raw.Feed {
		publishedAt, err := time.Parse("20060102T150405", item.TimePublished)
		if err != nil {
			publishedAt = time.Time{}
		}

		symbols := make([]string, 0, len(item.TickerSentiment))
		for _, ts := range item.TickerSentiment {
			if ts.Ticker != "" {
				symbols = append(symbols, ts.Ticker)
			}
		}

		articles = append(articles, models.NewsArticle{
			ID:             generateExternalID(item.URL),
			Title:          item.Title,
			URL:            item.URL,
			Source:         item.Source,
			Symbol:         strings.ToUpper(symbol),
			Snippet:        truncateSnippet(item.Summary),
			PublishedAt:    publishedAt.UTC(),
			Provider:       s.Name(),
			Sentiment:      item.OverallSentimentLabel,
			RelatedTickers: symbols,
		})
		if limit > 0 && len(articles) >= limit {
			break
		}
	}
	return articles, nil
}

type avResponse struct {
	Feed        []avFeedItem `json:"feed"`
	Information string       `json:"Information"`
}

type avFeedItem struct {
	Title                 string              `json:"title"`
	Summary               string              `json:"summary"`
	URL                   string              `json:"url"`
	Source                string              `json:"source"`
	TimePublished         string              `json:"time_published"`
	OverallSentimentLabel string              `json:"overall_sentiment_label"`
	TickerSentiment       []avTickerSentiment `json:"ticker_sentiment"`
}

type avTickerSentiment struct {
	Ticker string `json:"ticker"`
}
