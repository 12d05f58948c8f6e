package models

// StockImpact is the predicted effect of a news item on one stock.
type StockImpact struct {
	Ticker           string   `json:"ticker"`
	CompanyName      string   `json:"company_name"`
	CurrentPrice     float64  `json:"current_price"`
	PredictedImpact  string   `json:"predicted_impact"`
	ImpactPercentage string   `json:"impact_percentage"`
	Confidence       float64  `json:"confidence"`
	Reasons          []string `json:"reasons"`
	Recommendation   string   `json:"recommendation"`
	Timeframe        string   `json:"timeframe"`
}

// MarketImpact is the full analysis of one article.
type MarketImpact struct {
	Summary         string            `json:"summary"`
	OriginalLength  int               `json:"original_length"`
	KeyPoints       []string          `json:"key_points"`
	AffectedStocks  []StockImpact     `json:"affected_stocks"`
	SectorImpacts   map[string]string `json:"sector_impacts"`
	MarketSentiment string            `json:"market_sentiment"`
	EventType       string            `json:"event_type"`
	ImpactTimeline  string            `json:"impact_timeline"`
	SourceType      string            `json:"source_type"`
}
