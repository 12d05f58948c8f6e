package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/config"
	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/models"
	"github.com/quantinsight/quantinsight/internal/retry"
)

type staticQuoteProvider struct {
	name   string
	prices map[string]float64
}

func (p staticQuoteProvider) Name() string { return p.name }

func (p staticQuoteProvider) Quote(_ context.Context, symbol string) (*models.Quote, error) {
	price, ok := p.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w for %s", p.name, marketdata.ErrNoData, symbol)
	}
	return &models.Quote{Symbol: symbol, Price: price, Provider: p.name}, nil
}

func newQuoteMux(providers []marketdata.QuoteProvider, limits map[string]marketdata.Limit) *http.ServeMux {
	logger := discardLogger()
	ttl := config.CacheTTLs{Quote: time.Minute, History: time.Minute, Company: time.Minute, MarketSummary: time.Minute}
	svc := marketdata.NewService(
		marketdata.Providers{Quotes: providers},
		cache.NewLoader(cache.NewMemoryCache(), logger, nil),
		ttl,
		logger,
		marketdata.WithLimits(limits),
		marketdata.WithRetryPolicy(retry.Policy{MaxRetries: 0}),
	)
	h := NewMarketHandler(svc, nil, nil, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market/quote/{symbol}", h.Quote)
	return mux
}

func TestQuoteStatusMapping(t *testing.T) {
	polygon := staticQuoteProvider{name: "polygon", prices: map[string]float64{"AAPL": 190, "GOOG": 170}}
	yahoo := staticQuoteProvider{name: "yahoo", prices: map[string]float64{"AAPL": 190}}
	oncePerHour := map[string]marketdata.Limit{"polygon": {Calls: 1, Period: time.Hour}}

	tests := []struct {
		name      string
		providers []marketdata.QuoteProvider
		want      int
	}{
		{name: "every provider rate limited", providers: []marketdata.QuoteProvider{polygon}, want: http.StatusTooManyRequests},
		{name: "rate limited then no data", providers: []marketdata.QuoteProvider{polygon, yahoo}, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newQuoteMux(tt.providers, oncePerHour)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/quote/AAPL", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("first quote: expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			rec = httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/quote/GOOG", nil))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
