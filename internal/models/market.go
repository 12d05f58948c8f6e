package models

import "time"

// Quote is a normalized price snapshot from any provider.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        int64     `json:"volume"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	PreviousClose float64   `json:"previous_close,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Provider      string    `json:"provider"`
	MarketState   string    `json:"market_state,omitempty"`
	PriceSource   string    `json:"price_source,omitempty"`
}

// PricePoint is a single close in an intraday or daily series.
type PricePoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

// CompanyProfile is reference data about an issuer.
type CompanyProfile struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Exchange  string  `json:"exchange,omitempty"`
	Industry  string  `json:"industry,omitempty"`
	Country   string  `json:"country,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	MarketCap float64 `json:"market_cap,omitempty"`
	Logo      string  `json:"logo,omitempty"`
	WebURL    string  `json:"web_url,omitempty"`
}

// SearchResult is one symbol lookup match.
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Type     string `json:"type,omitempty"`
}

// MarketSummary maps index display names to their ETF proxy quotes.
type MarketSummary struct {
	Indices   map[string]Quote `json:"indices"`
	Timestamp time.Time        `json:"timestamp"`
}

// PriceStats are descriptive statistics over a window of closes.
type PriceStats struct {
	Current           float64 `json:"current"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	Average           float64 `json:"average"`
	Volatility        float64 `json:"volatility"`
	VolatilityPercent float64 `json:"volatility_percent"`
	VolatilityLevel   string  `json:"volatility_level"`
	Return            float64 `json:"return_percent"`
	Trend             string  `json:"trend"`
	RangePosition     float64 `json:"range_position"`
	RangeDescription  string  `json:"range_description"`
	FromHigh          float64 `json:"from_high_percent"`
	FromLow           float64 `json:"from_low_percent"`
	FromAverage       float64 `json:"from_average_percent"`
	DataPoints        int     `json:"data_points"`
}
