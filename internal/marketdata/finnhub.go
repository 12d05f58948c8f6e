package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"github.com/quantinsight/quantinsight/internal/models"
	"github.com/quantinsight/quantinsight/internal/retry"
)

// Finnhub wraps the official Finnhub SDK for quotes, search and profiles.
type Finnhub struct {
	client *finnhub.DefaultApiService
}

// NewFinnhub creates a Finnhub provider. baseURL overrides the API host and
// is only set in tests.
func NewFinnhub(apiKey string, httpClient *http.Client, baseURL string) *Finnhub {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if baseURL != "" {
		cfg.Servers = finnhub.ServerConfigurations{{URL: strings.TrimRight(baseURL, "/")}}
	}
	return &Finnhub{client: finnhub.NewAPIClient(cfg).DefaultApi}
}

func (f *Finnhub) Name() string { return ProviderFinnhub }

// API returns the SDK service for callers that need other endpoints.
func (f *Finnhub) API() *finnhub.DefaultApiService { return f.client }

func (f *Finnhub) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	res, httpResp, err := f.client.Quote(ctx).Symbol(symbol).Execute()
	if err != nil {
		return nil, wrapSDKError(ProviderFinnhub, httpResp, err)
	}

	price := float64(res.GetC())
	prev := float64(res.GetPc())
	source := "Regular Hours"
	if price == 0 {
		if prev == 0 {
			return nil, noData(ProviderFinnhub, symbol)
		}
		price, source = prev, "Previous Close"
	}

	change := float64(res.GetD())
	changePct := float64(res.GetDp())
	if change == 0 && prev > 0 && price != prev {
		change = price - prev
		changePct = change / prev * 100
	}

	return &models.Quote{
		Symbol:        strings.ToUpper(symbol),
		Price:         price,
		Open:          float64(res.GetO()),
		High:          float64(res.GetH()),
		Low:           float64(res.GetL()),
		Change:        change,
		ChangePercent: changePct,
		PreviousClose: prev,
		Timestamp:     time.Now().UTC(),
		Provider:      ProviderFinnhub,
		PriceSource:   source,
	}, nil
}

func (f *Finnhub) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	res, httpResp, err := f.client.SymbolSearch(ctx).Q(query).Execute()
	if err != nil {
		return nil, wrapSDKError(ProviderFinnhub, httpResp, err)
	}

	var results []models.SearchResult
	for _, item := range res.GetResult() {
		if item.GetSymbol() == "" {
			continue
		}
		results = append(results, models.SearchResult{
			Symbol: item.GetSymbol(),
			Name:   item.GetDescription(),
			Type:   item.GetType(),
		})
	}
	return results, nil
}

func (f *Finnhub) Profile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	res, httpResp, err := f.client.CompanyProfile2(ctx).Symbol(symbol).Execute()
	if err != nil {
		return nil, wrapSDKError(ProviderFinnhub, httpResp, err)
	}
	if res.GetName() == "" {
		return nil, noData(ProviderFinnhub, symbol)
	}

	return &models.CompanyProfile{
		Symbol:    strings.ToUpper(symbol),
		Name:      res.GetName(),
		Exchange:  res.GetExchange(),
		Industry:  res.GetFinnhubIndustry(),
		Country:   res.GetCountry(),
		Currency:  res.GetCurrency(),
		MarketCap: float64(res.GetMarketCapitalization()) * 1e6,
		Logo:      res.GetLogo(),
		WebURL:    res.GetWeburl(),
	}, nil
}

// wrapSDKError classifies SDK failures the same way getJSON does.
func wrapSDKError(provider string, resp *http.Response, err error) error {
	if resp == nil {
		return retry.NewRetryableError(fmt.Errorf("%s: %w", provider, err))
	}
	apiErr := &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: err.Error()}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.NewRetryableErrorWithDelay(apiErr, parseRetryAfter(resp.Header.Get("Retry-After")))
	}
	return apiErr
}
