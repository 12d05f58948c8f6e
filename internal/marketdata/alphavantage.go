package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
	"github.com/quantinsight/quantinsight/internal/retry"
)

const alphaVantageBaseURL = "https://www.alphavantage.co"

// AlphaVantage reads the GLOBAL_QUOTE endpoint.
type AlphaVantage struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

func NewAlphaVantage(apiKey string, client *http.Client, baseURL string) *AlphaVantage {
	if baseURL == "" {
		baseURL = alphaVantageBaseURL
	}
	return &AlphaVantage{client: client, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *AlphaVantage) Name() string { return ProviderAlphaVantage }

type alphaVantageQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
	ErrorMsg    string            `json:"Error Message"`
}

func (a *AlphaVantage) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", a.apiKey)

	var resp alphaVantageQuoteResponse
	if err := getJSON(ctx, a.client, ProviderAlphaVantage, a.baseURL+"/query?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if msg := firstNonEmpty(resp.Note, resp.Information); msg != "" {
		return nil, retry.NewRetryableError(fmt.Errorf("%s: throttled: %s", ProviderAlphaVantage, msg))
	}
	if resp.ErrorMsg != "" {
		return nil, fmt.Errorf("%s: %s", ProviderAlphaVantage, resp.ErrorMsg)
	}

	gq := resp.GlobalQuote
	price := parseFloat(gq["05. price"])
	if len(gq) == 0 || price <= 0 {
		return nil, noData(ProviderAlphaVantage, symbol)
	}

	return &models.Quote{
		Symbol:        strings.ToUpper(firstNonEmpty(gq["01. symbol"], symbol)),
		Price:         price,
		Open:          parseFloat(gq["02. open"]),
		High:          parseFloat(gq["03. high"]),
		Low:           parseFloat(gq["04. low"]),
		Volume:        int64(parseFloat(gq["06. volume"])),
		PreviousClose: parseFloat(gq["08. previous close"]),
		Change:        parseFloat(gq["09. change"]),
		ChangePercent: parseFloat(strings.TrimSuffix(gq["10. change percent"], "%")),
		Timestamp:     time.Now().UTC(),
		Provider:      ProviderAlphaVantage,
		PriceSource:   "Regular Hours",
	}, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
