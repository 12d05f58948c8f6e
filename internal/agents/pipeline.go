package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/models"
)

const (
	// DefaultResultTTL is how long a successful ticker analysis stays cached.
	DefaultResultTTL = 2 * time.Hour

	maxParallelTickers = 5
)

// DefaultTickers are analyzed when a user follows nothing and names nothing.
var DefaultTickers = []string{"AAPL", "MSFT"}

// Timeout is the per-ticker deadline for an analysis type.
func Timeout(t models.AnalysisType) time.Duration {
	switch t {
	case models.AnalysisQuick:
		return 60 * time.Second
	case models.AnalysisComprehensive:
		return 300 * time.Second
	default:
		return 120 * time.Second
	}
}

// TickerLimit caps how many followed stocks one run analyzes.
func TickerLimit(t models.AnalysisType) int {
	switch t {
	case models.AnalysisQuick:
		return 10
	case models.AnalysisComprehensive:
		return 3
	default:
		return 5
	}
}

// ResolveTickers picks the tickers for a run: an explicit comma separated
// list wins, then the user's followed stocks up to TickerLimit, then
// DefaultTickers.
func ResolveTickers(explicit string, followed []string, t models.AnalysisType) []string {
	if strings.TrimSpace(explicit) != "" {
		return uniqueUpper(strings.Split(explicit, ","))
	}
	if len(followed) > 0 {
		tickers := uniqueUpper(followed)
		if limit := TickerLimit(t); len(tickers) > limit {
			tickers = tickers[:limit]
		}
		return tickers
	}
	return append([]string(nil), DefaultTickers...)
}

func uniqueUpper(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// CacheKey is the cache key of one user's analysis of ticker.
func CacheKey(t models.AnalysisType, ticker, userID string) string {
	return fmt.Sprintf("analysis:%s:%s:%s", t, strings.ToUpper(ticker), userID)
}

// HistoryStore persists completed analyses.
type HistoryStore interface {
	Save(ctx context.Context, h *models.AnalysisHistory) error
}

// Pipeline runs crews over tickers with caching, deadlines and fallbacks.
type Pipeline struct {
	crew     *Crew
	gatherer *ContextGatherer
	loader   *cache.Loader
	history  HistoryStore
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResultTTL overrides DefaultResultTTL.
func WithResultTTL(ttl time.Duration) Option {
	return func(p *Pipeline) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// NewPipeline creates a pipeline. gatherer, loader and history may be nil.
func NewPipeline(crew *Crew, gatherer *ContextGatherer, loader *cache.Loader, history HistoryStore, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		crew:     crew,
		gatherer: gatherer,
		loader:   loader,
		history:  history,
		logger:   logger,
		ttl:      DefaultResultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Model names the LLM behind the crew.
func (p *Pipeline) Model() string {
	return p.crew.LLM.Model()
}

func (p *Pipeline) timestamp() string {
	return p.now().UTC().Format(time.RFC3339)
}

// AnalyzeTicker runs the crew for one ticker under the type's deadline.
// It never returns an error; failures are reported through the status.
func (p *Pipeline) AnalyzeTicker(ctx context.Context, userID, ticker string, t models.AnalysisType) (report models.TickerReport) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	ctx, cancel := context.WithTimeout(ctx, Timeout(t))
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("analysis panicked", "ticker", ticker, "user_id", userID, "panic", r)
			report = models.TickerReport{
				Status: models.StatusError,
				Ticker: ticker,
				Error:  fmt.Sprint(r),
				Prediction: map[string]any{
					"ticker":        ticker,
					"error":         fmt.Sprint(r),
					"timestamp":     p.timestamp(),
					"analysis_type": string(t),
				},
			}
		}
	}()

	p.logger.Info("starting analysis", "ticker", ticker, "analysis_type", t, "user_id", userID)
	toolContext := p.gatherer.Gather(ctx, ticker)
	outputs, err := p.crew.Run(ctx, ticker, TasksFor(ticker, t), toolContext, nil)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		p.logger.Error("analysis timed out", "ticker", ticker, "analysis_type", t)
		msg := fmt.Sprintf("%s analysis timed out", t)
		return models.TickerReport{
			Status: models.StatusTimeout,
			Ticker: ticker,
			Error:  msg,
			Prediction: map[string]any{
				"ticker":    ticker,
				"error":     msg,
				"timestamp": p.timestamp(),
			},
		}
	}
	if err != nil {
		p.logger.Error("analysis failed", "ticker", ticker, "analysis_type", t, "error", err)
		return models.TickerReport{
			Status: models.StatusFallback,
			Ticker: ticker,
			Error:  err.Error(),
			Prediction: map[string]any{
				"ticker":          ticker,
				"timestamp":       p.timestamp(),
				"analysis_type":   string(t),
				"model":           p.Model(),
				"market_analysis": ticker + " technical analysis unavailable due to processing error.",
				"note":            "Analysis encountered technical difficulties. Please try again.",
			},
		}
	}

	prediction := make(map[string]any, len(outputs)+5)
	for _, key := range OutputKeys(t) {
		prediction[key] = outputs[key]
	}
	prediction["ticker"] = ticker
	prediction["timestamp"] = p.timestamp()
	prediction["analysis_type"] = string(t)
	prediction["agents_used"] = AgentKeys(t)
	prediction["model"] = p.Model()

	p.logger.Info("completed analysis", "ticker", ticker, "analysis_type", t)
	return models.TickerReport{Status: models.StatusSuccess, Ticker: ticker, Prediction: prediction}
}

func (p *Pipeline) lookup(ctx context.Context, key string) (models.TickerReport, bool) {
	var cached models.TickerReport
	if p.loader == nil || !p.loader.Lookup(ctx, key, &cached) {
		return cached, false
	}
	return cached, true
}

func (p *Pipeline) store(ctx context.Context, key string, report models.TickerReport) {
	if p.loader == nil || report.Status != models.StatusSuccess {
		return
	}
	p.loader.Store(ctx, key, report, p.ttl)
}

// Run analyzes tickers in parallel, reusing cached results, and summarizes
// the run.
func (p *Pipeline) Run(ctx context.Context, userID string, tickers []string, t models.AnalysisType) models.Report {
	start := p.now()
	tickers = uniqueUpper(tickers)
	reports := make(map[string]models.TickerReport, len(tickers))

	var pending []string
	for _, ticker := range tickers {
		if cached, ok := p.lookup(ctx, CacheKey(t, ticker, userID)); ok {
			cached.Cached = true
			reports[ticker] = cached
			continue
		}
		pending = append(pending, ticker)
	}

	if len(pending) > 0 {
		results := make([]models.TickerReport, len(pending))
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(min(maxParallelTickers, len(pending)))
		for i, ticker := range pending {
			eg.Go(func() error {
				results[i] = p.AnalyzeTicker(egCtx, userID, ticker, t)
				p.store(ctx, CacheKey(t, ticker, userID), results[i])
				return nil
			})
		}
		_ = eg.Wait()
		for i, ticker := range pending {
			reports[ticker] = results[i]
		}
	}

	elapsed := p.now().Sub(start)
	successful := 0
	for _, r := range reports {
		if r.Status == models.StatusSuccess || r.Status == models.StatusFallback {
			successful++
		}
	}

	summary := models.ReportSummary{
		TotalTickers:          len(tickers),
		SuccessfulPredictions: successful,
		SuccessRate:           "0%",
		AnalysisType:          string(t),
		Model:                 p.Model(),
		ExecutionTimeSeconds:  round2(elapsed.Seconds()),
		CacheEnabled:          p.loader != nil,
		Timestamp:             p.now().UTC(),
	}
	if len(tickers) > 0 {
		summary.SuccessRate = fmt.Sprintf("%.1f%%", float64(successful)/float64(len(tickers))*100)
		summary.AverageTimePerTicker = round2(elapsed.Seconds() / float64(len(tickers)))
	}

	return models.Report{
		Reports: reports,
		Summary: summary,
		Status:  "completed",
		Message: fmt.Sprintf("%s analysis completed in %.1fs", capitalize(string(t)), elapsed.Seconds()),
	}
}

// Stream analyzes one ticker agent by agent, emitting progress as it goes.
// Failed agents are reported and skipped. Results use the same output keys as
// Run, and only a run where every agent succeeded is cached.
func (p *Pipeline) Stream(ctx context.Context, userID, ticker string, t models.AnalysisType, emitFn func(Event)) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	key := CacheKey(t, ticker, userID)
	if cached, ok := p.lookup(ctx, key); ok {
		emitFn(Event{Type: EventCached, Data: cached})
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout(t))
	defer cancel()

	emitFn(Event{Type: EventStart, Ticker: ticker, AnalysisType: string(t)})
	toolContext := p.gatherer.Gather(ctx, ticker)

	results := make(map[string]any)
	var (
		previous []Output
		failed   []string
	)
	for _, task := range TasksFor(ticker, t) {
		if err := ctx.Err(); err != nil {
			emitFn(Event{Type: EventError, Error: fmt.Sprintf("%s analysis timed out", t)})
			return err
		}
		emitFn(Event{Type: EventProgress, Agent: task.Agent.Key, Status: "running"})
		text, err := p.crew.RunTask(ctx, ticker, task, toolContext, previous)
		if err != nil {
			emitFn(Event{Type: EventError, Agent: task.Agent.Key, Error: err.Error()})
			failed = append(failed, task.Agent.Key)
			continue
		}
		results[task.OutputKey] = text
		previous = append(previous, Output{Task: task, Text: text})
		emitFn(Event{Type: EventResult, Agent: task.Agent.Key, Result: text})
	}

	results["ticker"] = ticker
	results["timestamp"] = p.timestamp()
	results["analysis_type"] = string(t)
	results["model"] = p.Model()
	results["agents_used"] = AgentKeys(t)
	final := models.TickerReport{Status: models.StatusSuccess, Ticker: ticker, Prediction: results}
	if len(failed) > 0 {
		final.Status = models.StatusFallback
		final.Error = "agents failed: " + strings.Join(failed, ", ")
	}
	p.store(ctx, key, final)

	emitFn(Event{Type: EventComplete, Data: final})
	return nil
}

// ClearCache removes cached analyses for one ticker across all types, or for
// every ticker when ticker is empty. It returns how many entries were removed.
func (p *Pipeline) ClearCache(ctx context.Context, userID, ticker string) (int, error) {
	if p.loader == nil {
		return 0, nil
	}
	c := p.loader.Cache()
	if ticker != "" {
		keys := make([]string, 0, len(models.AllAnalysisTypes))
		for _, t := range models.AllAnalysisTypes {
			keys = append(keys, CacheKey(t, ticker, userID))
		}
		return c.Delete(ctx, keys...)
	}
	return c.DeletePattern(ctx, fmt.Sprintf("analysis:*:*:%s", userID))
}

// ProfessionalReport runs the research-note crew for ticker and structures
// its output. Sections whose agent failed get fallback content. Complete
// reports are cached.
func (p *Pipeline) ProfessionalReport(ctx context.Context, ticker string) (ProfessionalReport, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	key := "professional:" + ticker
	var cached ProfessionalReport
	if p.loader != nil && p.loader.Lookup(ctx, key, &cached) {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout(models.AnalysisComprehensive))
	defer cancel()

	toolContext := p.gatherer.Gather(ctx, ticker)
	tasks := ProfessionalTasks(ticker)
	outputs := make([]string, len(tasks))
	var (
		previous []Output
		failed   int
	)
	for i, task := range tasks {
		text, err := p.crew.RunTask(ctx, ticker, task, toolContext, previous)
		if err != nil {
			if ctx.Err() != nil {
				return ProfessionalReport{}, fmt.Errorf("professional report for %s: %w", ticker, ctx.Err())
			}
			failed++
			continue
		}
		outputs[i] = text
		previous = append(previous, Output{Task: task, Text: text})
	}
	if failed == len(tasks) {
		return ProfessionalReport{}, fmt.Errorf("professional report for %s: every section failed", ticker)
	}

	report := StructureReport(ticker, outputs)
	if failed == 0 && p.loader != nil {
		p.loader.Store(ctx, key, report, p.ttl)
	}
	return report, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
