package news

import (
	"context"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/models"
)

// YahooSource reads the news block of the Yahoo Finance search endpoint.
type YahooSource struct {
	yahoo *marketdata.Yahoo
}

func NewYahooSource(y *marketdata.Yahoo) *YahooSource {
	return &YahooSource{yahoo: y}
}

func (s *YahooSource) Name() string { return "yahoo" }

func (s *YahooSource) Fetch(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	items, err := s.yahoo.News(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(items))
	for _, item := range items {
		if item.Title == "" || item.Link == "" {
			continue
		}
		id := item.UUID
		if id == "" {
			id = generateExternalID(item.Link)
		}
		articles = append(articles, models.NewsArticle{
			ID:             id,
			Title:          item.Title,
			URL:            item.Link,
			Source:         item.Publisher,
			Symbol:         strings.ToUpper(symbol),
			PublishedAt:    time.Unix(item.ProviderPublishTime, 0).UTC(),
			Provider:       s.Name(),
			RelatedTickers: item.RelatedTickers,
		})
	}
	return articles, nil
}
