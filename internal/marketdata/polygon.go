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

const polygonBaseURL = "https://api.polygon.io"

// Polygon serves quotes from the previous-day aggregate and profiles from the
// ticker reference endpoint.
type Polygon struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

func NewPolygon(apiKey string, client *http.Client, baseURL string) *Polygon {
	if baseURL == "" {
		baseURL = polygonBaseURL
	}
	return &Polygon{client: client, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *Polygon) Name() string { return ProviderPolygon }

type polygonAggResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Close  float64 `json:"c"`
		Open   float64 `json:"o"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Volume float64 `json:"v"`
		Time   int64   `json:"t"`
	} `json:"results"`
}

type polygonSnapshotResponse struct {
	Status string `json:"status"`
	Ticker struct {
		Ticker           string  `json:"ticker"`
		TodaysChange     float64 `json:"todaysChange"`
		TodaysChangePerc float64 `json:"todaysChangePerc"`
		Updated          int64   `json:"updated"`
		Day              struct {
			Open   float64 `json:"o"`
			High   float64 `json:"h"`
			Low    float64 `json:"l"`
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
		} `json:"day"`
		PrevDay struct {
			Close float64 `json:"c"`
		} `json:"prevDay"`
		LastTrade struct {
			Price float64 `json:"p"`
		} `json:"lastTrade"`
	} `json:"ticker"`
}

// Quote reads the ticker snapshot and falls back to the previous-day
// aggregate, which is all the free tier allows.
func (p *Polygon) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	q, err := p.snapshot(ctx, symbol)
	if err == nil {
		return q, nil
	}
	return p.previousClose(ctx, symbol)
}

func (p *Polygon) snapshot(ctx context.Context, symbol string) (*models.Quote, error) {
	endpoint := fmt.Sprintf("%s/v2/snapshot/locale/us/markets/stocks/tickers/%s?%s", p.baseURL, url.PathEscape(symbol), url.Values{"apiKey": {p.apiKey}}.Encode())

	var resp polygonSnapshotResponse
	if err := getJSON(ctx, p.client, ProviderPolygon, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	t := resp.Ticker
	price := t.LastTrade.Price
	if price <= 0 {
		price = t.Day.Close
	}
	if resp.Status != "OK" || price <= 0 {
		return nil, noData(ProviderPolygon, symbol)
	}

	ts := time.Now().UTC()
	if t.Updated > 0 {
		ts = time.Unix(0, t.Updated).UTC()
	}
	return &models.Quote{
		Symbol:        strings.ToUpper(symbol),
		Price:         price,
		Open:          t.Day.Open,
		High:          t.Day.High,
		Low:           t.Day.Low,
		Volume:        int64(t.Day.Volume),
		Change:        t.TodaysChange,
		ChangePercent: t.TodaysChangePerc,
		PreviousClose: t.PrevDay.Close,
		Timestamp:     ts,
		Provider:      ProviderPolygon,
		PriceSource:   "Snapshot",
	}, nil
}

func (p *Polygon) previousClose(ctx context.Context, symbol string) (*models.Quote, error) {
	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/prev?%s", p.baseURL, url.PathEscape(symbol), url.Values{"apiKey": {p.apiKey}}.Encode())

	var resp polygonAggResponse
	if err := getJSON(ctx, p.client, ProviderPolygon, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return nil, noData(ProviderPolygon, symbol)
	}

	r := resp.Results[0]
	ts := time.UnixMilli(r.Time).UTC()
	if r.Time == 0 {
		ts = time.Now().UTC()
	}
	return &models.Quote{
		Symbol:      strings.ToUpper(symbol),
		Price:       r.Close,
		Open:        r.Open,
		High:        r.High,
		Low:         r.Low,
		Volume:      int64(r.Volume),
		Timestamp:   ts,
		Provider:    ProviderPolygon,
		PriceSource: "Previous Close",
	}, nil
}

type polygonTickerResponse struct {
	Status  string `json:"status"`
	Results struct {
		Ticker          string  `json:"ticker"`
		Name            string  `json:"name"`
		PrimaryExchange string  `json:"primary_exchange"`
		Locale          string  `json:"locale"`
		CurrencyName    string  `json:"currency_name"`
		MarketCap       float64 `json:"market_cap"`
		SICDescription  string  `json:"sic_description"`
		HomepageURL     string  `json:"homepage_url"`
		Branding        struct {
			LogoURL string `json:"logo_url"`
		} `json:"branding"`
	} `json:"results"`
}

func (p *Polygon) Profile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	endpoint := fmt.Sprintf("%s/v3/reference/tickers/%s?%s", p.baseURL, url.PathEscape(symbol), url.Values{"apiKey": {p.apiKey}}.Encode())

	var resp polygonTickerResponse
	if err := getJSON(ctx, p.client, ProviderPolygon, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Results.Name == "" {
		return nil, noData(ProviderPolygon, symbol)
	}

	r := resp.Results
	return &models.CompanyProfile{
		Symbol:    strings.ToUpper(symbol),
		Name:      r.Name,
		Exchange:  r.PrimaryExchange,
		Industry:  r.SICDescription,
		Country:   strings.ToUpper(r.Locale),
		Currency:  strings.ToUpper(r.CurrencyName),
		MarketCap: r.MarketCap,
		Logo:      r.Branding.LogoURL,
		WebURL:    r.HomepageURL,
	}, nil
}
