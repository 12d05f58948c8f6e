package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

// NewsAPISource searches newsapi.org for articles mentioning the ticker.
type NewsAPISource struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func NewNewsAPISource(apiKey string, client *http.Client, baseURL string) *NewsAPISource {
	if baseURL == "" {
		baseURL = "https://newsapi.org"
	}
	return &NewsAPISource{apiKey: apiKey, httpClient: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *NewsAPISource) Name() string { return "newsapi" }

func (s *NewsAPISource) Fetch(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	q := url.Values{}
	q.Set("q", symbol)
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(limit))

	var raw newsAPIResponse
	headers := map[string]string{"X-Api-Key": s.apiKey}
	if err := doJSON(ctx, s.httpClient, "newsapi", http.MethodGet, s.baseURL+"/v2/everything?"+q.Encode(), headers, nil, &raw); err != nil {
		return nil, err
	}
	if raw.Status == "error" {
		return nil, fmt.Errorf("newsapi: %s", raw.Message)
	}

	articles := make([]models.NewsArticle, 0, len(raw.Articles))
	for _, item := range raw.Articles {
		if item.Title == "" || item.URL == "" || item.Title == "[Removed]" {
			continue
		}
		publishedAt, err := time.Parse(time.RFC3339, item.PublishedAt)
		if err != nil {
			publishedAt = time.Time{}
		}
		articles = append(articles, models.NewsArticle{
			ID:          generateExternalID(item.URL),
			Title:       item.Title,
			URL:         item.URL,
			Source:      item.Source.Name,
			Symbol:      strings.ToUpper(symbol),
			Snippet:     truncateSnippet(item.Description),
			PublishedAt: publishedAt.UTC(),
			Provider:    s.Name(),
		})
	}
	return articles, nil
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}
