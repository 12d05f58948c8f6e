package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const serperBaseURL = "https://google.serper.dev"

// Serper searches recent web news through serper.dev. Agents use it as a
// research tool, so every outcome is rendered as text rather than an error.
type Serper struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewSerper(apiKey string, client *http.Client, baseURL string, logger *slog.Logger) *Serper {
	if baseURL == "" {
		baseURL = serperBaseURL
	}
	return &Serper{apiKey: apiKey, httpClient: client, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Enabled reports whether an API key is configured.
func (s *Serper) Enabled() bool {
	return s != nil && s.apiKey != ""
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
	GL  string `json:"gl"`
	HL  string `json:"hl"`
}

type serperResponse struct {
	News []serperItem `json:"news"`
}

type serperItem struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Date    string `json:"date"`
	Source  string `json:"source"`
}

// Search returns up to five numbered news results for query.
func (s *Serper) Search(ctx context.Context, query string) string {
	if !s.Enabled() {
		return fmt.Sprintf("Search unavailable: API key not configured. Query was: %s", query)
	}

	body := serperRequest{Q: query + " stock market news finance", Num: 5, GL: "us", HL: "en"}
	var resp serperResponse
	headers := map[string]string{"X-API-KEY": s.apiKey}
	if err := doJSON(ctx, s.httpClient, "serper", http.MethodPost, s.baseURL+"/news", headers, body, &resp); err != nil {
		s.logger.Error("serper search failed", "query", query, "error", err)
		return fmt.Sprintf("Search request failed for '%s': %v", query, err)
	}

	if len(resp.News) == 0 {
		return fmt.Sprintf("No recent news found for: %s", query)
	}

	items := resp.News
	if len(items) > 5 {
		items = items[:5]
	}
	blocks := make([]string, 0, len(items))
	for i, item := range items {
		blocks = append(blocks, fmt.Sprintf("%d. %s\n   %s\n   Published: %s\n   Source: %s\n",
			i+1, orDefault(item.Title, "No title"), orDefault(item.Snippet, "No description"), orDefault(item.Date, "Recent"), item.Link))
	}
	s.logger.Info("serper search", "query", query, "results", len(resp.News))
	return strings.Join(blocks, "\n")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
