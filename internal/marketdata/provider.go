// Package marketdata aggregates quotes, price history, symbol search and
// company reference data from several third-party APIs, with caching, rate
// limiting and ordered failover between providers.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
	"github.com/quantinsight/quantinsight/internal/retry"
)

var (
	// ErrNoData means no provider could return data for the request.
	ErrNoData = errors.New("no market data available")
	// ErrRateLimited means the local limiter refused a provider call.
	ErrRateLimited = errors.New("provider rate limit reached")
	// ErrInvalidSymbol is returned for empty or malformed tickers.
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// Provider names used in configuration, metrics and the quote's provider field.
const (
	ProviderYahoo        = "yahoo"
	ProviderFinnhub      = "finnhub"
	ProviderAlphaVantage = "alpha_vantage"
	ProviderPolygon      = "polygon"
	ProviderAlpaca       = "alpaca"
	ProviderTwelveData   = "twelve_data"
)

// Window selects the span of a price history request.
type Window int

const (
	// Intraday is one trading day of one-minute closes.
	Intraday Window = iota
	// Month is roughly thirty daily closes.
	Month
)

func (w Window) String() string {
	if w == Month {
		return "1mo"
	}
	return "1d"
}

// QuoteProvider returns a real-time quote for one symbol.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// BatchQuoteProvider returns quotes for several symbols in one round trip.
// Symbols it cannot resolve are omitted from the result.
type BatchQuoteProvider interface {
	Name() string
	Quotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
}

// HistoryProvider returns closes ordered oldest first.
type HistoryProvider interface {
	Name() string
	History(ctx context.Context, symbol string, window Window) ([]models.PricePoint, error)
}

// SearchProvider looks symbols up by name or ticker fragment.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

// ProfileProvider returns company reference data.
type ProfileProvider interface {
	Name() string
	Profile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
}

// APIError describes a non-2xx response from an upstream API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxErrorBody     = 512
)

// getJSON performs a GET and decodes the JSON body into dest. Throttling and
// server errors come back wrapped in retry.RetryableError.
func getJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", provider, ctx.Err())
		}
		return retry.NewRetryableError(fmt.Errorf("%s: request failed: %w", provider, err))
	}
	defer resp.Body.Close()

	if err := checkStatus(provider, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}

func checkStatus(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: string(body)}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.NewRetryableErrorWithDelay(apiErr, parseRetryAfter(resp.Header.Get("Retry-After")))
	}
	return apiErr
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func noData(provider, symbol string) error {
	return fmt.Errorf("%s: %w for %s", provider, ErrNoData, symbol)
}
