package news

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"github.com/quantinsight/quantinsight/internal/models"
)

const finnhubLookback = 7 * 24 * time.Hour

// FinnhubSource reads company news for the past week.
type FinnhubSource struct {
	client *finnhub.DefaultApiService
	now    func() time.Time
}

func NewFinnhubSource(client *finnhub.DefaultApiService) *FinnhubSource {
	return &FinnhubSource{client: client, now: time.Now}
}

func (s *FinnhubSource) Name() string { return "finnhub" }

func (s *FinnhubSource) Fetch(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	to := s.now().UTC()
	from := to.Add(-finnhubLookback)

	res, _, err := s.client.CompanyNews(ctx).
		Symbol(symbol).
		From(from.Format("2006-01-02")).
		To(to.Format("2006-01-02")).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("finnhub company news: %w", err)
	}

	var articles []models.NewsArticle
	for _, item := range res {
		if limit > 0 && len(articles) >= limit {
			break
		}
		if item.GetHeadline() == "" || item.GetUrl() == "" {
			continue
		}

		a := models.NewsArticle{
			Title:       item.GetHeadline(),
			URL:         item.GetUrl(),
			Source:      item.GetSource(),
			Symbol:      strings.ToUpper(symbol),
			Snippet:     truncateSnippet(item.GetSummary()),
			PublishedAt: time.Unix(item.GetDatetime(), 0).UTC(),
			Provider:    s.Name(),
		}
		if item.Id != nil {
			a.ID = strconv.FormatInt(*item.Id, 10)
		} else {
			a.ID = generateExternalID(a.URL)
		}
		if related := item.GetRelated(); related != "" {
			a.RelatedTickers = strings.Split(related, ",")
		}
		articles = append(articles, a)
	}
	return articles, nil
}
