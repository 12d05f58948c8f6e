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

const twelveDataBaseURL = "https://api.twelvedata.com"

// TwelveData serves price history from the time_series endpoint.
type TwelveData struct {
	client  *http.Client
	apiKey  string
	baseURL string
	now     func() time.Time
}

func NewTwelveData(apiKey string, client *http.Client, baseURL string) *TwelveData {
	if baseURL == "" {
		baseURL = twelveDataBaseURL
	}
	return &TwelveData{client: client, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

func (t *TwelveData) Name() string { return ProviderTwelveData }

type twelveDataSeriesResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Values  []struct {
		Datetime string `json:"datetime"`
		Close    string `json:"close"`
	} `json:"values"`
}

// History returns closes oldest first; the API itself returns newest first.
func (t *TwelveData) History(ctx context.Context, symbol string, window Window) ([]models.PricePoint, error) {
	now := t.now().UTC()
	interval, start := "1min", now.Add(-24*time.Hour)
	if window == Month {
		interval, start = "1day", now.AddDate(0, 0, -30)
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("start_date", start.Format("2006-01-02 15:04:05"))
	q.Set("end_date", now.Format("2006-01-02 15:04:05"))
	q.Set("apikey", t.apiKey)

	var resp twelveDataSeriesResponse
	if err := getJSON(ctx, t.client, ProviderTwelveData, t.baseURL+"/time_series?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("%s: %s", ProviderTwelveData, resp.Message)
	}

	points := make([]models.PricePoint, 0, len(resp.Values))
	for i := len(resp.Values) - 1; i >= 0; i-- {
		v := resp.Values[i]
		ts, err := parseTwelveDataTime(v.Datetime)
		if err != nil {
			continue
		}
		price := parseFloat(v.Close)
		if price <= 0 {
			continue
		}
		points = append(points, models.PricePoint{Timestamp: ts.Unix(), Price: price})
	}
	if len(points) == 0 {
		return nil, noData(ProviderTwelveData, symbol)
	}
	return points, nil
}

func parseTwelveDataTime(s string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", s)
}
