package models

import "time"

// NewsArticle is a headline from any news source.
type NewsArticle struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	Symbol         string    `json:"symbol,omitempty"`
	Snippet        string    `json:"snippet"`
	PublishedAt    time.Time `json:"published_at"`
	Provider       string    `json:"provider"`
	Sentiment      string    `json:"sentiment,omitempty"`
	RelatedTickers []string  `json:"related_tickers,omitempty"`
}
