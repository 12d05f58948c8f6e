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

const yahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo reads the public Yahoo Finance chart, quote and search endpoints. It
// needs no API key.
type Yahoo struct {
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewYahoo creates a Yahoo provider. An empty baseURL selects the public host.
func NewYahoo(client *http.Client, baseURL string) *Yahoo {
	if baseURL == "" {
		baseURL = yahooBaseURL
	}
	return &Yahoo{client: client, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

func (y *Yahoo) Name() string { return ProviderYahoo }

type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooChartResult struct {
	Meta struct {
		Symbol               string  `json:"symbol"`
		Currency             string  `json:"currency"`
		ExchangeName         string  `json:"exchangeName"`
		RegularMarketPrice   float64 `json:"regularMarketPrice"`
		RegularMarketTime    int64   `json:"regularMarketTime"`
		RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
		RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
		RegularMarketOpen    float64 `json:"regularMarketOpen"`
		RegularMarketVolume  int64   `json:"regularMarketVolume"`
		PreviousClose        float64 `json:"previousClose"`
		ChartPreviousClose   float64 `json:"chartPreviousClose"`
		PreMarketPrice       float64 `json:"preMarketPrice"`
		PostMarketPrice      float64 `json:"postMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			Close  []*float64 `json:"close"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

func (y *Yahoo) chart(ctx context.Context, symbol, interval, rng string, prePost bool) (*yahooChartResult, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("range", rng)
	q.Set("includePrePost", fmt.Sprintf("%t", prePost))
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), q.Encode())

	var resp yahooChartResponse
	if err := getJSON(ctx, y.client, ProviderYahoo, endpoint, map[string]string{"User-Agent": browserUserAgent}, &resp); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("%s: %s: %s", ProviderYahoo, resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, noData(ProviderYahoo, symbol)
	}
	return &resp.Chart.Result[0], nil
}

// Quote picks the freshest price Yahoo exposes: post-market, then pre-market,
// then the regular session, then the previous close. A later bar in the
// one-minute series overrides the meta price.
func (y *Yahoo) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	result, err := y.chart(ctx, symbol, "1m", "1d", true)
	if err != nil {
		return nil, err
	}
	meta := result.Meta

	pick := y.pickPrice(meta.PostMarketPrice, meta.PreMarketPrice, meta.RegularMarketPrice, meta.PreviousClose, meta.RegularMarketTime)
	price, source, state, ts := pick.price, pick.source, pick.state, pick.ts
	if price <= 0 {
		return nil, noData(ProviderYahoo, symbol)
	}

	if len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		for i := len(result.Timestamp) - 1; i >= 0; i-- {
			if i >= len(closes) || closes[i] == nil {
				continue
			}
			if result.Timestamp[i] > ts {
				price = *closes[i]
				ts = result.Timestamp[i]
				source = "Most Recent Data"
			}
			break
		}
	}

	prev := meta.PreviousClose
	if prev == 0 {
		prev = meta.ChartPreviousClose
	}
	if prev == 0 {
		prev = price
	}
	change := price - prev
	changePct := 0.0
	if prev != 0 {
		changePct = change / prev * 100
	}

	sym := meta.Symbol
	if sym == "" {
		sym = symbol
	}
	return &models.Quote{
		Symbol:        sym,
		Price:         price,
		Open:          meta.RegularMarketOpen,
		High:          meta.RegularMarketDayHigh,
		Low:           meta.RegularMarketDayLow,
		Volume:        meta.RegularMarketVolume,
		Change:        change,
		ChangePercent: changePct,
		PreviousClose: prev,
		Timestamp:     time.Unix(ts, 0).UTC(),
		Provider:      ProviderYahoo,
		MarketState:   state,
		PriceSource:   source,
	}, nil
}

type pricePick struct {
	price  float64
	source string
	state  string
	ts     int64
}

// pickPrice applies the freshness order shared by the chart and batch paths:
// post-market, pre-market, regular session, previous close. Extended-hours
// prices are stamped with the current time.
func (y *Yahoo) pickPrice(post, pre, regular, prevClose float64, regularTime int64) pricePick {
	switch {
	case post > 0:
		return pricePick{post, "After Hours", "post", y.now().Unix()}
	case pre > 0:
		return pricePick{pre, "Pre Market", "pre", y.now().Unix()}
	case regular > 0:
		return pricePick{regular, "Regular Hours", "regular", regularTime}
	default:
		return pricePick{prevClose, "Previous Close", "closed", regularTime}
	}
}

// History returns the non-null closes for the window.
func (y *Yahoo) History(ctx context.Context, symbol string, window Window) ([]models.PricePoint, error) {
	interval, rng := "1m", "1d"
	if window == Month {
		interval, rng = "1d", "30d"
	}
	result, err := y.chart(ctx, symbol, interval, rng, false)
	if err != nil {
		return nil, err
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, noData(ProviderYahoo, symbol)
	}

	closes := result.Indicators.Quote[0].Close
	points := make([]models.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, models.PricePoint{Timestamp: ts, Price: *closes[i]})
	}
	if len(points) == 0 {
		return nil, noData(ProviderYahoo, symbol)
	}
	return points, nil
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketChange        float64 `json:"regularMarketChange"`
			RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
			RegularMarketDayHigh       float64 `json:"regularMarketDayHigh"`
			RegularMarketDayLow        float64 `json:"regularMarketDayLow"`
			RegularMarketOpen          float64 `json:"regularMarketOpen"`
			RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
			RegularMarketVolume        int64   `json:"regularMarketVolume"`
			RegularMarketTime          int64   `json:"regularMarketTime"`
			PreMarketPrice             float64 `json:"preMarketPrice"`
			PostMarketPrice            float64 `json:"postMarketPrice"`
			MarketState                string  `json:"marketState"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// Quotes uses the multi-symbol v7 quote endpoint.
func (y *Yahoo) Quotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	endpoint := fmt.Sprintf("%s/v7/finance/quote?%s", y.baseURL, q.Encode())

	var resp yahooQuoteResponse
	if err := getJSON(ctx, y.client, ProviderYahoo, endpoint, map[string]string{"User-Agent": browserUserAgent}, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]models.Quote, len(resp.QuoteResponse.Result))
	for _, r := range resp.QuoteResponse.Result {
		if r.Symbol == "" || r.RegularMarketPrice <= 0 {
			continue
		}
		pick := y.pickPrice(r.PostMarketPrice, r.PreMarketPrice, r.RegularMarketPrice, r.RegularMarketPreviousClose, r.RegularMarketTime)
		ts := time.Unix(pick.ts, 0).UTC()
		if pick.ts == 0 {
			ts = y.now().UTC()
		}

		change, changePct := r.RegularMarketChange, r.RegularMarketChangePercent
		if pick.state != "regular" && r.RegularMarketPreviousClose > 0 {
			change = pick.price - r.RegularMarketPreviousClose
			changePct = change / r.RegularMarketPreviousClose * 100
		}

		out[strings.ToUpper(r.Symbol)] = models.Quote{
			Symbol:        r.Symbol,
			Price:         pick.price,
			Open:          r.RegularMarketOpen,
			High:          r.RegularMarketDayHigh,
			Low:           r.RegularMarketDayLow,
			Volume:        r.RegularMarketVolume,
			Change:        change,
			ChangePercent: changePct,
			PreviousClose: r.RegularMarketPreviousClose,
			Timestamp:     ts,
			Provider:      ProviderYahoo,
			MarketState:   pick.state,
			PriceSource:   pick.source,
		}
	}
	return out, nil
}

type yahooSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		LongName  string `json:"longname"`
		ShortName string `json:"shortname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
	News []YahooNewsItem `json:"news"`
}

// YahooNewsItem is one entry of the search endpoint's news array.
type YahooNewsItem struct {
	UUID                string   `json:"uuid"`
	Title               string   `json:"title"`
	Publisher           string   `json:"publisher"`
	Link                string   `json:"link"`
	ProviderPublishTime int64    `json:"providerPublishTime"`
	RelatedTickers      []string `json:"relatedTickers"`
}

func (y *Yahoo) search(ctx context.Context, query string, quotes, news int) (*yahooSearchResponse, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("quotesCount", fmt.Sprintf("%d", quotes))
	q.Set("newsCount", fmt.Sprintf("%d", news))
	endpoint := fmt.Sprintf("%s/v1/finance/search?%s", y.baseURL, q.Encode())

	var resp yahooSearchResponse
	if err := getJSON(ctx, y.client, ProviderYahoo, endpoint, map[string]string{"User-Agent": browserUserAgent}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (y *Yahoo) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	resp, err := y.search(ctx, query, 10, 0)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		if q.Symbol == "" {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		results = append(results, models.SearchResult{Symbol: q.Symbol, Name: name, Exchange: q.Exchange, Type: q.QuoteType})
	}
	return results, nil
}

// News returns up to limit headlines related to symbol.
func (y *Yahoo) News(ctx context.Context, symbol string, limit int) ([]YahooNewsItem, error) {
	resp, err := y.search(ctx, symbol, 0, limit)
	if err != nil {
		return nil, err
	}
	return resp.News, nil
}
