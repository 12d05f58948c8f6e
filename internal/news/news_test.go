package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerateExternalID(t *testing.T) {
	id1 := generateExternalID("https://example.com/article/123")
	id2 := generateExternalID("https://example.com/article/123")
	if id1 != id2 || len(id1) != 16 {
		t.Fatalf("expected stable 16 char id, got %q and %q", id1, id2)
	}
	if id1 == generateExternalID("https://example.com/article/456") {
		t.Error("expected different urls to produce different ids")
	}
}

func TestTruncateSnippet(t *testing.T) {
	long := strings.Repeat("a", 250)
	got := truncateSnippet(long)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("unexpected truncation %q", got)
	}
	if got := truncateSnippet("  short \n text "); got != "short text" {
		t.Errorf("expected whitespace collapsed, got %q", got)
	}
}

func TestAlphaVantageSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("function") != "NEWS_SENTIMENT" || r.URL.Query().Get("tickers") != "SPY" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"feed":[{"title":"Fed Holds Rates Steady","summary":"The Federal Reserve kept interest rates unchanged.",
			"url":"https://example.com/fed-rates","source":"Reuters","time_published":"20260226T120000",
			"overall_sentiment_label":"Neutral","ticker_sentiment":[{"ticker":"SPY"},{"ticker":"TLT"}]}]}`)
	}))
	defer srv.Close()

	articles, err := NewAlphaVantageSource("k", srv.Client(), srv.URL).Fetch(context.Background(), "spy", 5)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	a := articles[0]
	if a.ID != generateExternalID("https://example.com/fed-rates") || a.Sentiment != "Neutral" || a.Symbol != "SPY" {
		t.Errorf("unexpected article %+v", a)
	}
	if want := time.Date(2026, 2, 26, 12, 0, 0, 0, time.UTC); !a.PublishedAt.Equal(want) {
		t.Errorf("published = %v, want %v", a.PublishedAt, want)
	}
	if len(a.RelatedTickers) != 2 {
		t.Errorf("unexpected related tickers %v", a.RelatedTickers)
	}
}

func TestPolygonAndNewsAPISources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/reference/news":
			fmt.Fprint(w, `{"results":[{"id":"p1","title":"Apple beats","article_url":"https://p.example/a","published_utc":"2024-05-01T10:00:00Z","tickers":["AAPL"],"publisher":{"name":"Benzinga"}}]}`)
		case "/v2/everything":
			if r.Header.Get("X-Api-Key") != "nk" {
				t.Errorf("missing newsapi key header")
			}
			fmt.Fprint(w, `{"status":"ok","articles":[{"source":{"name":"CNBC"},"title":"Apple news","url":"https://n.example/b","publishedAt":"2024-05-01T11:00:00Z"},{"title":"[Removed]","url":"https://removed"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	poly, err := NewPolygonSource("k", srv.Client(), srv.URL).Fetch(context.Background(), "AAPL", 5)
	if err != nil || len(poly) != 1 || poly[0].Source != "Benzinga" {
		t.Fatalf("unexpected polygon result %+v err=%v", poly, err)
	}

	na, err := NewNewsAPISource("nk", srv.Client(), srv.URL).Fetch(context.Background(), "AAPL", 5)
	if err != nil || len(na) != 1 || na[0].Source != "CNBC" {
		t.Fatalf("unexpected newsapi result %+v err=%v", na, err)
	}
}

type stubSource struct {
	name     string
	articles []models.NewsArticle
	err      error
	calls    atomic.Int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(context.Context, string, int) ([]models.NewsArticle, error) {
	s.calls.Add(1)
	return s.articles, s.err
}

func TestAggregatorMergesAndDedupes(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := &stubSource{name: "a", articles: []models.NewsArticle{
		{Title: "Older story", URL: "https://www.example.com/older/", PublishedAt: base.Add(-time.Hour)},
		{Title: "Fresh story", URL: "https://example.com/fresh", PublishedAt: base},
	}}
	b := &stubSource{name: "b", articles: []models.NewsArticle{
		{Title: "Duplicate by URL", URL: "https://example.com/older", PublishedAt: base.Add(time.Hour)},
		{Title: "FRESH STORY", URL: "https://other.example/fresh", PublishedAt: base},
		{Title: "Newest", URL: "https://other.example/newest", PublishedAt: base.Add(2 * time.Hour)},
	}}
	broken := &stubSource{name: "broken", err: errors.New("down")}

	loader := cache.NewLoader(cache.NewMemoryCache(), discardLogger(), nil)
	agg := NewAggregator([]Source{a, b, broken}, loader, time.Minute, discardLogger())

	got, err := agg.Fetch(context.Background(), "aapl", 10)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	titles := make([]string, len(got))
	for i, art := range got {
		titles[i] = art.Title
	}
	want := []string{"Newest", "Fresh story", "Older story"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", titles, want)
	}

	limited, err := agg.Fetch(context.Background(), "AAPL", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one cached article, got %d err=%v", len(limited), err)
	}
	if a.calls.Load() != 1 {
		t.Errorf("expected second fetch to be served from cache, source called %d times", a.calls.Load())
	}
}

func TestSerperSearch(t *testing.T) {
	var body serperRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-API-KEY") != "sk" {
			t.Errorf("unexpected request %s %v", r.Method, r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"news":[{"title":"Nvidia surges","snippet":"Chips rally","link":"https://x.example/1","date":"2 hours ago"}]}`)
	}))
	defer srv.Close()

	out := NewSerper("sk", srv.Client(), srv.URL, discardLogger()).Search(context.Background(), "NVDA")
	want := "1. Nvidia surges\n   Chips rally\n   Published: 2 hours ago\n   Source: https://x.example/1\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
	if body.Q != "NVDA stock market news finance" || body.Num != 5 || body.GL != "us" {
		t.Errorf("unexpected request body %+v", body)
	}
}

func TestSerperWithoutKey(t *testing.T) {
	out := NewSerper("", http.DefaultClient, "", discardLogger()).Search(context.Background(), "AAPL")
	if out != "Search unavailable: API key not configured. Query was: AAPL" {
		t.Errorf("unexpected output %q", out)
	}
}
