package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/llm"
	"github.com/quantinsight/quantinsight/internal/logging"
	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/models"
)

type blockingClient struct{}

func (blockingClient) Model() string { return "blocking" }

func (blockingClient) Generate(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingHistory struct {
	mu      sync.Mutex
	entries []*models.AnalysisHistory
}

func (r *recordingHistory) Save(_ context.Context, h *models.AnalysisHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, h)
	return nil
}

func newTestPipeline(client llm.Client, history HistoryStore) (*Pipeline, *cache.MemoryCache) {
	mem := cache.NewMemoryCache()
	logger := logging.Discard()
	crew := &Crew{LLM: client, Logger: logger}
	return NewPipeline(crew, nil, cache.NewLoader(mem, logger, nil), history, logger), mem
}

// failingFor returns a responder that errors whenever the prompt mentions ticker.
func failingFor(ticker string) func(llm.Request) (string, error) {
	return func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, ticker) {
			return "", errors.New("upstream unavailable")
		}
		return "Solid momentum above the 50-day average.", nil
	}
}

func TestAgentsFor(t *testing.T) {
	tests := map[models.AnalysisType][]string{
		models.AnalysisQuick:         {MarketAnalyst},
		models.AnalysisStandard:      {MarketAnalyst, SentimentAnalyst},
		models.AnalysisComprehensive: {MarketAnalyst, SentimentAnalyst, FundamentalAnalyst, RiskAnalyst, StrategyAdvisor},
	}
	for typ, want := range tests {
		got := AgentKeys(typ)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("AgentKeys(%s) = %v, want %v", typ, got, want)
		}
		for _, a := range AgentsFor(typ) {
			if a.MaxExecutionTime != 120*time.Second || a.MaxRetryLimit != 1 {
				t.Errorf("agent %s has limits %v/%d", a.Key, a.MaxExecutionTime, a.MaxRetryLimit)
			}
		}
	}
}

func TestTasksFor(t *testing.T) {
	tasks := TasksFor("NVDA", models.AnalysisComprehensive)
	if len(tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(tasks))
	}
	wantKeys := []string{"market_analysis", "sentiment_analysis", "fundamental_analysis", "risk_assessment", "investment_strategy"}
	for i, task := range tasks {
		if task.OutputKey != wantKeys[i] {
			t.Errorf("task %d output key = %q, want %q", i, task.OutputKey, wantKeys[i])
		}
		if !strings.Contains(task.Description, "NVDA") {
			t.Errorf("task %d description does not mention ticker", i)
		}
	}
	if !strings.HasPrefix(tasks[0].Description, "Analyze NVDA technical indicators and price action:") {
		t.Errorf("unexpected market task description %q", tasks[0].Description)
	}
}

func TestTimeoutsAndLimits(t *testing.T) {
	if Timeout(models.AnalysisQuick) != 60*time.Second || Timeout(models.AnalysisStandard) != 120*time.Second || Timeout(models.AnalysisComprehensive) != 300*time.Second {
		t.Error("unexpected analysis timeouts")
	}
	if TickerLimit(models.AnalysisQuick) != 10 || TickerLimit(models.AnalysisStandard) != 5 || TickerLimit(models.AnalysisComprehensive) != 3 {
		t.Error("unexpected ticker limits")
	}
}

func TestResolveTickers(t *testing.T) {
	if got := ResolveTickers(" aapl, tsla ,aapl", []string{"MSFT"}, models.AnalysisStandard); strings.Join(got, ",") != "AAPL,TSLA" {
		t.Errorf("explicit tickers = %v", got)
	}
	followed := []string{"a", "b", "c", "d", "e"}
	if got := ResolveTickers("", followed, models.AnalysisComprehensive); strings.Join(got, ",") != "A,B,C" {
		t.Errorf("followed tickers = %v", got)
	}
	if got := ResolveTickers("", nil, models.AnalysisQuick); strings.Join(got, ",") != "AAPL,MSFT" {
		t.Errorf("default tickers = %v", got)
	}
}

func TestCrewPassesPreviousOutputs(t *testing.T) {
	client := llm.NewScriptedClient("technical view", "sentiment view")
	crew := &Crew{LLM: client, Logger: logging.Discard()}

	var events []string
	out, err := crew.Run(context.Background(), "AAPL", TasksFor("AAPL", models.AnalysisStandard), "Live quote for AAPL: $190.00", func(e Event) {
		events = append(events, e.Type+":"+e.Agent)
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out["market_analysis"] != "technical view" || out["sentiment_analysis"] != "sentiment view" {
		t.Fatalf("unexpected outputs %v", out)
	}

	reqs := client.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if !strings.Contains(reqs[0].Prompt, "Live quote for AAPL") {
		t.Error("tool context missing from prompt")
	}
	if !strings.Contains(reqs[1].Prompt, "technical view") {
		t.Error("second task did not receive the first task's output")
	}
	if !strings.Contains(reqs[1].System, "News & Sentiment Analyst") {
		t.Errorf("unexpected system prompt %q", reqs[1].System)
	}
	if reqs[0].Operation != "agent:market_analyst" {
		t.Errorf("unexpected operation %q", reqs[0].Operation)
	}

	want := "progress:market_analyst,result:market_analyst,progress:sentiment_analyst,result:sentiment_analyst"
	if got := strings.Join(events, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestCrewRetriesFailedTask(t *testing.T) {
	calls := 0
	client := &llm.MockClient{Respond: func(llm.Request) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "recovered", nil
	}}
	crew := &Crew{LLM: client, Logger: logging.Discard()}

	out, err := crew.Run(context.Background(), "AAPL", TasksFor("AAPL", models.AnalysisQuick), "", nil)
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if out["market_analysis"] != "recovered" || calls != 2 {
		t.Fatalf("unexpected result %v after %d calls", out, calls)
	}

	calls = 0
	client.Respond = func(llm.Request) (string, error) {
		calls++
		return "", errors.New("down")
	}
	if _, err := crew.Run(context.Background(), "AAPL", TasksFor("AAPL", models.AnalysisQuick), "", nil); err == nil {
		t.Fatal("expected error after retries are exhausted")
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestAnalyzeTickerStatuses(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		p, _ := newTestPipeline(llm.NewScriptedClient("market view"), nil)
		r := p.AnalyzeTicker(context.Background(), "u1", "aapl", models.AnalysisQuick)
		if r.Status != models.StatusSuccess {
			t.Fatalf("status = %s (%s)", r.Status, r.Error)
		}
		if r.Prediction["market_analysis"] != "market view" || r.Prediction["ticker"] != "AAPL" || r.Prediction["model"] != "mock" {
			t.Errorf("unexpected prediction %v", r.Prediction)
		}
		if _, ok := r.Prediction["agents_used"]; !ok {
			t.Error("agents_used missing")
		}
	})

	t.Run("fallback", func(t *testing.T) {
		p, _ := newTestPipeline(&llm.MockClient{Respond: failingFor("AAPL")}, nil)
		r := p.AnalyzeTicker(context.Background(), "u1", "AAPL", models.AnalysisStandard)
		if r.Status != models.StatusFallback {
			t.Fatalf("status = %s", r.Status)
		}
		if r.Prediction["market_analysis"] != "AAPL technical analysis unavailable due to processing error." {
			t.Errorf("unexpected fallback text %v", r.Prediction["market_analysis"])
		}
		if r.Error == "" {
			t.Error("fallback should carry the error")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		p, _ := newTestPipeline(blockingClient{}, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		r := p.AnalyzeTicker(ctx, "u1", "AAPL", models.AnalysisQuick)
		if r.Status != models.StatusTimeout {
			t.Fatalf("status = %s", r.Status)
		}
		if r.Prediction["error"] != "quick analysis timed out" {
			t.Errorf("unexpected timeout error %v", r.Prediction["error"])
		}
	})
}

func TestAnalyzeTickerBlockedResponseUsesFallbackText(t *testing.T) {
	blocked := &llm.MockClient{Respond: func(llm.Request) (string, error) { return "", llm.ErrBlocked }}
	p, _ := newTestPipeline(llm.Safe(blocked), nil)

	r := p.AnalyzeTicker(context.Background(), "u1", "AAPL", models.AnalysisStandard)
	if r.Status != models.StatusSuccess {
		t.Fatalf("status = %s (%s)", r.Status, r.Error)
	}
	for _, key := range OutputKeys(models.AnalysisStandard) {
		if r.Prediction[key] != llm.EmptyResponseFallback {
			t.Errorf("%s = %v, want fallback text", key, r.Prediction[key])
		}
	}
}

func TestRunCachesOnlySuccess(t *testing.T) {
	client := &llm.MockClient{Respond: failingFor("TSLA")}
	p, mem := newTestPipeline(client, nil)
	ctx := context.Background()

	report := p.Run(ctx, "u1", []string{"AAPL", "TSLA"}, models.AnalysisQuick)
	if report.Status != "completed" {
		t.Fatalf("status = %q", report.Status)
	}
	if report.Reports["AAPL"].Status != models.StatusSuccess || report.Reports["TSLA"].Status != models.StatusFallback {
		t.Fatalf("unexpected statuses %+v", report.Reports)
	}
	if report.Summary.TotalTickers != 2 || report.Summary.SuccessfulPredictions != 2 || report.Summary.SuccessRate != "100.0%" {
		t.Errorf("unexpected summary %+v", report.Summary)
	}
	if !strings.HasPrefix(report.Message, "Quick analysis completed in ") {
		t.Errorf("unexpected message %q", report.Message)
	}

	var cached models.TickerReport
	if ok, _ := mem.Get(ctx, CacheKey(models.AnalysisQuick, "AAPL", "u1"), &cached); !ok {
		t.Error("successful analysis was not cached")
	}
	if ok, _ := mem.Get(ctx, CacheKey(models.AnalysisQuick, "TSLA", "u1"), &cached); ok {
		t.Error("fallback analysis must not be cached")
	}

	before := len(client.Requests())
	second := p.Run(ctx, "u1", []string{"AAPL"}, models.AnalysisQuick)
	if !second.Reports["AAPL"].Cached {
		t.Error("expected cached report on second run")
	}
	if len(client.Requests()) != before {
		t.Error("cached ticker should not call the model")
	}
}

func TestRunEmptySummary(t *testing.T) {
	p, _ := newTestPipeline(llm.NewMockClient(), nil)
	report := p.Run(context.Background(), "u1", nil, models.AnalysisQuick)
	if report.Summary.SuccessRate != "0%" || report.Summary.TotalTickers != 0 {
		t.Errorf("unexpected summary %+v", report.Summary)
	}
}

func TestStreamEmitsEventsAndCaches(t *testing.T) {
	p, _ := newTestPipeline(llm.NewScriptedClient("first", "second"), nil)
	ctx := context.Background()

	var events []Event
	if err := p.Stream(ctx, "u1", "msft", models.AnalysisStandard, func(e Event) { events = append(events, e) }); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := "start,progress,result,progress,result,complete"
	if got := strings.Join(types, ","); got != want {
		t.Fatalf("event types = %s, want %s", got, want)
	}
	final, ok := events[len(events)-1].Data.(models.TickerReport)
	if !ok || final.Prediction["market_analysis"] != "first" || final.Prediction["sentiment_analysis"] != "second" {
		t.Fatalf("unexpected final result %#v", events[len(events)-1].Data)
	}

	events = nil
	if err := p.Stream(ctx, "u1", "MSFT", models.AnalysisStandard, func(e Event) { events = append(events, e) }); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventCached {
		t.Fatalf("expected a single cached event, got %+v", events)
	}
}

func TestStreamReportsAgentErrors(t *testing.T) {
	client := &llm.MockClient{Respond: func(req llm.Request) (string, error) {
		if req.Operation == "agent:"+SentimentAnalyst {
			return "", errors.New("quota")
		}
		return "fine", nil
	}}
	p, mem := newTestPipeline(client, nil)
	ctx := context.Background()

	var events []Event
	_ = p.Stream(ctx, "u1", "AAPL", models.AnalysisStandard, func(e Event) { events = append(events, e) })
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := "start,progress,result,progress,error,complete"
	if got := strings.Join(types, ","); got != want {
		t.Fatalf("event types = %s, want %s", got, want)
	}

	final := events[len(events)-1].Data.(models.TickerReport)
	if final.Status != models.StatusFallback || final.Prediction["market_analysis"] != "fine" {
		t.Errorf("unexpected final report %+v", final)
	}
	if _, ok := final.Prediction["sentiment_analysis"]; ok {
		t.Error("failed agent should have no output")
	}
	var cached models.TickerReport
	if ok, _ := mem.Get(ctx, CacheKey(models.AnalysisStandard, "AAPL", "u1"), &cached); ok {
		t.Error("partial stream result must not be cached")
	}
}

func TestStreamResultReadableByRun(t *testing.T) {
	client := llm.NewScriptedClient("streamed view")
	p, _ := newTestPipeline(client, nil)
	ctx := context.Background()

	if err := p.Stream(ctx, "u1", "NVDA", models.AnalysisQuick, func(Event) {}); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	before := len(client.Requests())
	report := p.Run(ctx, "u1", []string{"NVDA"}, models.AnalysisQuick)
	got := report.Reports["NVDA"]
	if !got.Cached || got.Prediction["market_analysis"] != "streamed view" {
		t.Errorf("expected Run to reuse the streamed result, got %+v", got)
	}
	if len(client.Requests()) != before {
		t.Error("Run should not call the model for a streamed ticker")
	}
}

func TestClearCache(t *testing.T) {
	p, mem := newTestPipeline(llm.NewMockClient(), nil)
	ctx := context.Background()
	for _, key := range []string{
		CacheKey(models.AnalysisQuick, "AAPL", "u1"),
		CacheKey(models.AnalysisStandard, "AAPL", "u1"),
		CacheKey(models.AnalysisQuick, "MSFT", "u1"),
		CacheKey(models.AnalysisQuick, "MSFT", "u2"),
	} {
		if err := mem.Set(ctx, key, models.TickerReport{Status: models.StatusSuccess}, time.Hour); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := p.ClearCache(ctx, "u1", "aapl")
	if err != nil || n != 2 {
		t.Fatalf("ClearCache(ticker) = %d, %v; want 2", n, err)
	}
	n, err = p.ClearCache(ctx, "u1", "")
	if err != nil || n != 1 {
		t.Fatalf("ClearCache(all) = %d, %v; want 1", n, err)
	}
	var r models.TickerReport
	if ok, _ := mem.Get(ctx, CacheKey(models.AnalysisQuick, "MSFT", "u2"), &r); !ok {
		t.Error("another user's cache entry was removed")
	}
}

func TestCompare(t *testing.T) {
	client := &llm.MockClient{Respond: func(req llm.Request) (string, error) {
		if req.Operation == "agent:comparison_specialist" {
			return "RECOMMENDATION: msft\nRANKING:\n1. MSFT - cloud growth\n2. AAPL - rich valuation\nKEY REASONS: steady margins", nil
		}
		return "analysis text", nil
	}}
	history := &recordingHistory{}
	p, _ := newTestPipeline(client, history)

	if _, err := p.Compare(context.Background(), "u1", []string{"AAPL"}); !errors.Is(err, ErrTooFewTickers) {
		t.Fatalf("expected ErrTooFewTickers, got %v", err)
	}

	result, err := p.Compare(context.Background(), "u1", []string{"aapl", "msft"})
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if result.Recommendation != "MSFT" {
		t.Errorf("recommendation = %q", result.Recommendation)
	}
	if len(result.Ranking) != 2 || result.Ranking[0].Symbol != "MSFT" || result.Ranking[1].Reason != "rich valuation" {
		t.Errorf("unexpected ranking %+v", result.Ranking)
	}
	if len(result.Analyses) != 2 {
		t.Errorf("expected 2 individual analyses, got %d", len(result.Analyses))
	}
	if len(history.entries) != 1 || history.entries[0].AnalysisType != "comparison" {
		t.Fatalf("comparison not saved to history: %+v", history.entries)
	}

	var prompt string
	for _, req := range client.Requests() {
		if req.Operation == "agent:comparison_specialist" {
			prompt = req.Prompt
		}
	}
	if !strings.Contains(prompt, "=== AAPL Analysis ===") || !strings.Contains(prompt, "Stocks to compare: AAPL, MSFT") {
		t.Errorf("comparison prompt missing analysis data: %s", prompt)
	}
}

func TestParseRanking(t *testing.T) {
	text := "RECOMMENDATION: [NVDA]\nRANKING: 1. NVDA - AI demand\n2. AMD\n\nRISKS: chips"
	if got := ParseRecommendation(text); got != "NVDA" {
		t.Errorf("ParseRecommendation = %q", got)
	}
	ranking := ParseRanking(text)
	if len(ranking) != 2 || ranking[0].Symbol != "NVDA" || ranking[1].Symbol != "AMD" || ranking[1].Reason != "" || ranking[1].Rank != 2 {
		t.Errorf("unexpected ranking %+v", ranking)
	}
	if ParseRanking("no ranking here") != nil {
		t.Error("expected nil ranking")
	}
}

type fakeMarket struct {
	quote  models.Quote
	closes []float64
	err    error
}

func (f fakeMarket) Quote(context.Context, string) (models.Quote, error) { return f.quote, f.err }

func (f fakeMarket) Closes(context.Context, string, marketdata.Window) ([]float64, error) {
	return f.closes, f.err
}

type fakeNews struct{ articles []models.NewsArticle }

func (f fakeNews) Fetch(context.Context, string, int) ([]models.NewsArticle, error) {
	return f.articles, nil
}

func TestContextGatherer(t *testing.T) {
	g := &ContextGatherer{
		Market: fakeMarket{
			quote:  models.Quote{Symbol: "AAPL", Price: 110, Change: 2, ChangePercent: 1.85, Low: 108, High: 111, Provider: "yahoo"},
			closes: []float64{100, 102, 104, 106, 108, 110},
		},
		News: fakeNews{articles: []models.NewsArticle{{Title: "Apple beats estimates", Source: "Reuters", PublishedAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}}},
	}
	out := g.Gather(context.Background(), "AAPL")
	for _, want := range []string{"Live quote for AAPL: $110.00", "30-day statistics: range $100.00 - $110.00", "Apple beats estimates (Reuters, 2024-05-02)"} {
		if !strings.Contains(out, want) {
			t.Errorf("context missing %q:\n%s", want, out)
		}
	}

	degraded := (&ContextGatherer{Market: fakeMarket{err: errors.New("down")}}).Gather(context.Background(), "AAPL")
	for _, want := range []string{"Live quote: unavailable", "30-day statistics: unavailable", "Recent headlines: unavailable"} {
		if !strings.Contains(degraded, want) {
			t.Errorf("degraded context missing %q:\n%s", want, degraded)
		}
	}
}
