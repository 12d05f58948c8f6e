package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quantinsight/quantinsight/internal/models"
)

// ErrTooFewTickers is returned when a comparison names fewer than two stocks.
var ErrTooFewTickers = errors.New("at least 2 stocks required for comparison")

var comparisonAgent = Agent{
	Key:  "comparison_specialist",
	Role: "Stock Comparison Specialist",
	Goal: "Compare multiple stocks and recommend the best investment opportunity",
	Backstory: `You are an expert investment advisor specializing in comparative stock analysis.
You excel at comparing multiple investment opportunities and identifying the best choice based on:
- Growth potential and momentum
- Financial health and fundamentals
- Risk/reward ratio
- Market sentiment and timing
- Technical indicators
You provide clear, decisive recommendations backed by solid reasoning.`,
	MaxExecutionTime: defaultMaxExecutionTime,
	MaxRetryLimit:    defaultMaxRetryLimit,
}

const comparisonPrompt = `Compare the following stocks and recommend which ONE is the best buy:

Stocks to compare: %s

Analysis data for each stock:
%s

Provide:
1. A ranking of all stocks from best to worst investment
2. Clear recommendation of which stock to buy
3. Key reasons for your recommendation
4. Comparative analysis highlighting why the recommended stock is better
5. Risk factors to consider

Format your response as:
RECOMMENDATION: [Stock Symbol]
RANKING: [1. SYMBOL - reason, 2. SYMBOL - reason, etc.]
KEY REASONS: [Bullet points]
COMPARATIVE ADVANTAGE: [Why this stock beats others]
RISKS: [Key risks to watch]`

// Compare analyzes each ticker with the standard crew, then asks a
// comparison agent to rank them. The result is saved to the user's history.
func (p *Pipeline) Compare(ctx context.Context, userID string, tickers []string) (*models.Comparison, error) {
	tickers = uniqueUpper(tickers)
	if len(tickers) < 2 {
		return nil, ErrTooFewTickers
	}
	p.logger.Info("starting stock comparison", "user_id", userID, "tickers", tickers)

	results := make([]models.TickerReport, len(tickers))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, ticker := range tickers {
		eg.Go(func() error {
			key := CacheKey(models.AnalysisStandard, ticker, userID)
			if cached, ok := p.lookup(egCtx, key); ok {
				results[i] = cached
				return nil
			}
			results[i] = p.AnalyzeTicker(egCtx, userID, ticker, models.AnalysisStandard)
			p.store(ctx, key, results[i])
			return nil
		})
	}
	_ = eg.Wait()

	analyses := make(map[string]models.TickerReport, len(tickers))
	var blocks []string
	for i, ticker := range tickers {
		analyses[ticker] = results[i]
		if results[i].Status != models.StatusSuccess && results[i].Status != models.StatusFallback {
			continue
		}
		data, err := json.MarshalIndent(results[i].Prediction, "", "  ")
		if err != nil {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("=== %s Analysis ===\n%s", ticker, data))
	}

	task := Task{
		Agent:          comparisonAgent,
		Description:    fmt.Sprintf(comparisonPrompt, strings.Join(tickers, ", "), strings.Join(blocks, "\n\n")),
		ExpectedOutput: "A clear stock recommendation with ranking and comparative analysis",
		OutputKey:      "comparison",
	}
	text, err := p.crew.RunTask(ctx, strings.Join(tickers, ","), task, "", nil)
	if err != nil {
		return nil, fmt.Errorf("comparison: %w", err)
	}

	result := &models.Comparison{
		Tickers:        tickers,
		Analyses:       analyses,
		Summary:        text,
		Recommendation: ParseRecommendation(text),
		Ranking:        ParseRanking(text),
		Timestamp:      p.now().UTC(),
	}
	p.saveHistory(ctx, userID, tickers, "comparison", result)
	return result, nil
}

func (p *Pipeline) saveHistory(ctx context.Context, userID string, tickers []string, analysisType string, result any) {
	if p.history == nil || userID == "" {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		p.logger.Error("encoding analysis history", "error", err)
		return
	}
	completed := p.now().UTC()
	entry := &models.AnalysisHistory{
		UserID:       userID,
		AnalysisID:   uuid.NewString(),
		Tickers:      tickers,
		AnalysisType: analysisType,
		Results:      payload,
		Status:       "completed",
		CompletedAt:  &completed,
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.history.Save(saveCtx, entry); err != nil {
		p.logger.Error("saving analysis history", "user_id", userID, "error", err)
		return
	}
	p.logger.Info("saved analysis to history", "user_id", userID, "analysis_type", analysisType)
}

// ParseRecommendation returns the upper-cased remainder of the
// "RECOMMENDATION:" line, or "" when there is none.
func ParseRecommendation(text string) string {
	_, after, ok := strings.Cut(text, "RECOMMENDATION:")
	if !ok {
		return ""
	}
	line, _, _ := strings.Cut(after, "\n")
	return strings.ToUpper(strings.Trim(strings.TrimSpace(line), "[]*"))
}

var sectionHeader = regexp.MustCompile(`^\s*[A-Z][A-Z ]+:`)

// ParseRanking reads "N. SYMBOL - reason" lines following "RANKING:" up to the
// next blank line.
func ParseRanking(text string) []models.RankedStock {
	_, after, ok := strings.Cut(text, "RANKING:")
	if !ok {
		return nil
	}
	section, _, _ := strings.Cut(after, "\n\n")

	var ranking []models.RankedStock
	for _, line := range strings.Split(strings.TrimSpace(section), "\n") {
		if sectionHeader.MatchString(line) {
			break
		}
		_, entry, ok := strings.Cut(line, ". ")
		if !ok {
			continue
		}
		symbol, reason, _ := strings.Cut(entry, " - ")
		ranking = append(ranking, models.RankedStock{
			Rank:   len(ranking) + 1,
			Symbol: strings.TrimSpace(symbol),
			Reason: strings.TrimSpace(reason),
		})
	}
	return ranking
}
