package news

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

// PolygonSource reads the Polygon reference news endpoint.
type PolygonSource struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func NewPolygonSource(apiKey string, client *http.Client, baseURL string) *PolygonSource {
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}
	return &PolygonSource{apiKey: apiKey, httpClient: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *PolygonSource) Name() string { return "polygon" }

func (s *PolygonSource) Fetch(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	q := url.Values{}
	q.Set("ticker", symbol)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "desc")
	q.Set("sort", "published_utc")
	q.Set("apiKey", s.apiKey)

	var raw polygonResponse
	if err := doJSON(ctx, s.httpClient, "polygon", http.MethodGet, s.baseURL+"/v2/reference/news?"+q.Encode(), nil, nil, &raw); err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(raw.Results))
	for _, item := range raw.Results {
		publishedAt, err := time.Parse(time.RFC3339, item.PublishedUTC)
		if err != nil {
			publishedAt = time.Time{}
		}

		articles = append(articles, models.NewsArticle{
			ID:             item.ID,
			Title:          item.Title,
			URL:            item.ArticleURL,
			Source:         item.Publisher.Name,
			Symbol:         strings.ToUpper(symbol),
			Snippet:        truncateSnippet(item.Description),
			PublishedAt:    publishedAt.UTC(),
			Provider:       s.Name(),
			RelatedTickers: item.Tickers,
		})
	}
	return articles, nil
}

type polygonResponse struct {
	Results []polygonResult `json:"results"`
}

type polygonResult struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	ArticleURL   string           `json:"article_url"`
	PublishedUTC string           `json:"published_utc"`
	Tickers      []string         `json:"tickers"`
	Publisher    polygonPublisher `json:"publisher"`
}

type polygonPublisher struct {
	Name string `json:"name"`
}
