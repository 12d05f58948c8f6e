package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

const alpacaDataBaseURL = "https://data.alpaca.markets"

// Alpaca reads the market data v2 API. Quotes are the bid/ask midpoint.
type Alpaca struct {
	client  *http.Client
	key     string
	secret  string
	baseURL string
	now     func() time.Time
}

func NewAlpaca(key, secret string, client *http.Client, baseURL string) *Alpaca {
	if baseURL == "" {
		baseURL = alpacaDataBaseURL
	}
	return &Alpaca{client: client, key: key, secret: secret, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

func (a *Alpaca) Name() string { return ProviderAlpaca }

func (a *Alpaca) headers() map[string]string {
	return map[string]string{
		"APCA-API-KEY-ID":     a.key,
		"APCA-API-SECRET-KEY": a.secret,
	}
}

type alpacaLatestQuoteResponse struct {
	Symbol string `json:"symbol"`
	Quote  struct {
		AskPrice  float64   `json:"ap"`
		BidPrice  float64   `json:"bp"`
		Timestamp time.Time `json:"t"`
	} `json:"quote"`
}

func (a *Alpaca) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", a.baseURL, url.PathEscape(symbol))

	var resp alpacaLatestQuoteResponse
	if err := getJSON(ctx, a.client, ProviderAlpaca, endpoint, a.headers(), &resp); err != nil {
		return nil, err
	}

	ask, bid := resp.Quote.AskPrice, resp.Quote.BidPrice
	var price float64
	switch {
	case ask > 0 && bid > 0:
		price = (ask + bid) / 2
	case ask > 0:
		price = ask
	default:
		price = bid
	}
	if price <= 0 {
		return nil, noData(ProviderAlpaca, symbol)
	}

	ts := resp.Quote.Timestamp.UTC()
	if ts.IsZero() {
		ts = a.now().UTC()
	}
	return &models.Quote{
		Symbol:      strings.ToUpper(symbol),
		Price:       price,
		Timestamp:   ts,
		Provider:    ProviderAlpaca,
		PriceSource: "Latest Quote",
	}, nil
}

type alpacaBarsResponse struct {
	Bars []struct {
		Timestamp time.Time `json:"t"`
		Close     float64   `json:"c"`
	} `json:"bars"`
}

func (a *Alpaca) History(ctx context.Context, symbol string, window Window) ([]models.PricePoint, error) {
	timeframe, start := "1Min", a.now().Add(-24*time.Hour)
	if window == Month {
		timeframe, start = "1Day", a.now().AddDate(0, 0, -30)
	}
	q := url.Values{}
	q.Set("timeframe", timeframe)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("feed", "iex")
	q.Set("limit", "1000")
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", a.baseURL, url.PathEscape(symbol), q.Encode())

	var resp alpacaBarsResponse
	if err := getJSON(ctx, a.client, ProviderAlpaca, endpoint, a.headers(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Bars) == 0 {
		return nil, noData(ProviderAlpaca, symbol)
	}

	points := make([]models.PricePoint, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		points = append(points, models.PricePoint{Timestamp: b.Timestamp.Unix(), Price: b.Close})
	}
	return points, nil
}
