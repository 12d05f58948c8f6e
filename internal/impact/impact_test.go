package impact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/quantinsight/quantinsight/internal/llm"
	"github.com/quantinsight/quantinsight/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQuoter map[string]float64

func (f fakeQuoter) Quote(_ context.Context, symbol string) (models.Quote, error) {
	p, ok := f[symbol]
	if !ok {
		return models.Quote{}, errors.New("no data")
	}
	return models.Quote{Symbol: symbol, Price: p}, nil
}

func TestExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("expected browser user agent")
		}
		fmt.Fprint(w, `<html><head><style>p{}</style></head><body><script>var x=1;</script><p>Hello</p><p>World</p></body></html>`)
	}))
	defer srv.Close()

	got, err := ExtractText(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "Hello World" {
		t.Errorf("got %q, want %q", got, "Hello World")
	}
}

func TestExtractTextBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := ExtractText(context.Background(), srv.Client(), srv.URL); !errors.Is(err, ErrBlockedSite) {
		t.Fatalf("expected ErrBlockedSite, got %v", err)
	}
}

func TestExtractTextTruncates(t *testing.T) {
	long := strings.Repeat("a", maxArticleChars+100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", long)
	}))
	defer srv.Close()

	got, err := ExtractText(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if len(got) != maxArticleChars+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("unexpected truncation, len=%d", len(got))
	}
}

func TestExtractTickers(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Apple and Microsoft shares rose while NVDA gained", []string{"AAPL", "MSFT", "NVDA"}},
		{"The CEO told the SEC that AI demand is strong", nil},
		{"Google parent Alphabet beat estimates", []string{"GOOGL"}},
		{"Metadata vendors and BP rallied", []string{"BP"}},
	}
	for _, tt := range tests {
		var got []string
		for _, c := range ExtractTickers(tt.text) {
			got = append(got, c.Ticker)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractTickers(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestExtractTickersLimit(t *testing.T) {
	got := ExtractTickers("Apple, Microsoft, Amazon, Tesla, Netflix and Nvidia all moved")
	if len(got) != maxTickers {
		t.Fatalf("expected %d tickers, got %d", maxTickers, len(got))
	}
}

func TestPredictImpact(t *testing.T) {
	tests := []struct {
		name       string
		ticker     string
		company    string
		text       string
		event      string
		impact     string
		rec        string
		confidence float64
		timeframe  string
	}{
		{
			name: "strong positive earnings", ticker: "AAPL", company: "Apple Inc.",
			text: "Apple posted record earnings with strong growth.", event: EventEarnings,
			impact: "Strong Positive", rec: "Strong Buy", confidence: 0.85, timeframe: "Immediate (1-2 days)",
		},
		{
			name: "positive merger", ticker: "TSLA", company: "Tesla Inc.",
			text: "Tesla agreed to acquire a startup to expand growth.", event: EventMerger,
			impact: "Positive", rec: "Buy", confidence: 0.74, timeframe: "Medium-term (2-4 weeks)",
		},
		{
			name: "legal news stays negative", ticker: "BA", company: "Boeing Company",
			text: "Boeing faces a fraud investigation.", event: EventLegal,
			impact: "Strong Negative", rec: "Strong Sell", confidence: 0.85, timeframe: "Medium-term (2-4 weeks)",
		},
		{
			name: "company not mentioned", ticker: "XOM", company: "Exxon Mobil",
			text: "Apple posted record earnings.", event: EventGeneral,
			impact: "Neutral", rec: "Hold", confidence: 0.6, timeframe: "Medium-term (2-4 weeks)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PredictImpact(tt.ticker, tt.company, tt.text, tt.event, 10)
			if got.PredictedImpact != tt.impact || got.Recommendation != tt.rec {
				t.Errorf("got %s/%s, want %s/%s", got.PredictedImpact, got.Recommendation, tt.impact, tt.rec)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.confidence)
			}
			if got.Timeframe != tt.timeframe {
				t.Errorf("timeframe = %q, want %q", got.Timeframe, tt.timeframe)
			}
			if len(got.Reasons) == 0 || len(got.Reasons) > maxReasons {
				t.Errorf("unexpected reasons %v", got.Reasons)
			}
		})
	}
}

func TestPredictImpactReasons(t *testing.T) {
	got := PredictImpact("AAPL", "Apple Inc.", "Apple posted record earnings with strong growth.", EventEarnings, 0)
	want := []string{
		"Strong positive indicator: 'record'",
		"Positive indicator: 'growth'",
		"Event type: Earnings Report",
	}
	if !reflect.DeepEqual(got.Reasons, want) {
		t.Errorf("reasons = %v, want %v", got.Reasons, want)
	}

	neutral := PredictImpact("XOM", "Exxon Mobil", "Nothing relevant here.", EventGeneral, 0)
	if !reflect.DeepEqual(neutral.Reasons, []string{"General market sentiment"}) {
		t.Errorf("unexpected default reasons %v", neutral.Reasons)
	}
}

func TestSectorImpactsAndSentiment(t *testing.T) {
	stocks := []models.StockImpact{
		{Ticker: "AAPL", PredictedImpact: "Strong Positive"},
		{Ticker: "MSFT", PredictedImpact: "Negative"},
		{Ticker: "XOM", PredictedImpact: "Negative"},
		{Ticker: "ZZZZ", PredictedImpact: "Positive"},
	}
	want := map[string]string{
		"Technology": "Mixed signals",
		"Energy":     "Negative pressure expected",
	}
	if got := SectorImpacts(stocks); !reflect.DeepEqual(got, want) {
		t.Errorf("SectorImpacts = %v, want %v", got, want)
	}

	if got := MarketSentiment(nil); got != "Neutral" {
		t.Errorf("empty sentiment = %q", got)
	}
	if got := MarketSentiment(stocks); got != "Mixed" {
		t.Errorf("sentiment = %q, want Mixed", got)
	}
	bullish := []models.StockImpact{{PredictedImpact: "Positive"}, {PredictedImpact: "Positive"}, {PredictedImpact: "Negative"}}
	if got := MarketSentiment(bullish); got != "Bullish" {
		t.Errorf("sentiment = %q, want Bullish", got)
	}
}

func TestKeyPoints(t *testing.T) {
	got := KeyPoints("Revenue rose 12% to $5,000. The weather was nice. Analysts expect more")
	want := []string{"Revenue rose 12% to $5,000", "Analysts expect more"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("KeyPoints = %v, want %v", got, want)
	}
	if got := KeyPoints("Nothing to see here"); !reflect.DeepEqual(got, []string{noKeyPointsMessage}) {
		t.Errorf("expected default key point, got %v", got)
	}
}

func TestClassifyEvent(t *testing.T) {
	text := "The company reported quarterly earnings and revenue"
	if got := ClassifyEvent(context.Background(), nil, text); got != EventEarnings {
		t.Errorf("keyword classification = %q", got)
	}
	if got := ClassifyEvent(context.Background(), llm.NewScriptedClient("merger & acquisition"), text); got != EventMerger {
		t.Errorf("model classification = %q", got)
	}
	if got := ClassifyEvent(context.Background(), llm.NewScriptedClient("banana"), text); got != EventEarnings {
		t.Errorf("off-list answer should fall back to keywords, got %q", got)
	}
	if got := ClassifyEvent(context.Background(), nil, "Nothing notable"); got != EventGeneral {
		t.Errorf("expected general news, got %q", got)
	}
}

func TestAnalyzeRequiresInput(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil, discardLogger())
	if _, err := a.Analyze(context.Background(), Input{}); !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestAnalyzeText(t *testing.T) {
	client := llm.NewScriptedClient("Earnings Report", "Apple beat estimates.")
	a := NewAnalyzer(client, fakeQuoter{"AAPL": 190}, nil, discardLogger())

	text := "Apple posted record earnings with strong growth."
	got, err := a.Analyze(context.Background(), Input{Text: text})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.SourceType != "text" || got.OriginalLength != len(text) {
		t.Errorf("unexpected source %q/%d", got.SourceType, got.OriginalLength)
	}
	if got.EventType != EventEarnings || got.Summary != "Apple beat estimates." {
		t.Errorf("unexpected event/summary %q/%q", got.EventType, got.Summary)
	}
	if len(got.AffectedStocks) != 1 || got.AffectedStocks[0].CurrentPrice != 190 {
		t.Fatalf("unexpected stocks %+v", got.AffectedStocks)
	}
	if got.MarketSentiment != "Bullish" {
		t.Errorf("sentiment = %q", got.MarketSentiment)
	}
	if got.SectorImpacts["Technology"] != "Positive momentum expected" {
		t.Errorf("sector impacts = %v", got.SectorImpacts)
	}
	if got.ImpactTimeline != "Immediate market reaction expected (1-2 days)" {
		t.Errorf("timeline = %q", got.ImpactTimeline)
	}
}

func TestAnalyzeURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Tesla shares fell after a recall. Investors worry.</p></body></html>`)
	}))
	defer srv.Close()

	a := NewAnalyzer(nil, nil, srv.Client(), discardLogger())
	got, err := a.Analyze(context.Background(), Input{URL: srv.URL})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.SourceType != "url" {
		t.Errorf("source = %q", got.SourceType)
	}
	if got.Summary != "Tesla shares fell after a recall. Investors worry." {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.AffectedStocks) != 1 || got.AffectedStocks[0].Ticker != "TSLA" {
		t.Fatalf("unexpected stocks %+v", got.AffectedStocks)
	}
	if got.AffectedStocks[0].CurrentPrice != 0 {
		t.Errorf("expected zero price without market data")
	}
}
