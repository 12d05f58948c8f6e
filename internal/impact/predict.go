package impact

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/quantinsight/quantinsight/internal/models"
)

// Event labels.
const (
	EventEarnings    = "Earnings Report"
	EventMerger      = "Merger & Acquisition"
	EventProduct     = "Product Launch"
	EventRegulatory  = "Regulatory News"
	EventManagement  = "Management Change"
	EventAnalysis    = "Market Analysis"
	EventEconomic    = "Economic Data"
	EventLegal       = "Legal/Lawsuit"
	EventPartnership = "Partnership/Deal"
	EventRating      = "Stock Upgrade/Downgrade"
	EventGeneral     = "General News"
)

// EventTypes lists the labels an article can be classified as.
var EventTypes = []string{
	EventEarnings, EventMerger, EventProduct, EventRegulatory, EventManagement,
	EventAnalysis, EventEconomic, EventLegal, EventPartnership, EventRating,
}

var (
	strongPositiveWords = []string{"breakthrough", "record", "surge", "soar", "exceptional", "beat expectations", "upgraded"}
	positiveWords       = []string{"growth", "profit", "increase", "gain", "improve", "positive", "expand"}
	negativeWords       = []string{"loss", "decline", "fall", "concern", "challenge", "miss expectations", "downgraded"}
	strongNegativeWords = []string{"crash", "plunge", "bankruptcy", "investigation", "fraud", "lawsuit", "recall"}
)

// eventWeights scale the keyword score and then shift it. Adverse events
// push the score down rather than inverting its sign.
var eventWeights = map[string]struct{ scale, shift float64 }{
	EventEarnings:   {1.5, 0},
	EventMerger:     {1.2, 0},
	EventProduct:    {0.8, 0},
	EventRegulatory: {1, -0.5},
	EventLegal:      {1, -1},
	EventRating:     {1, 0},
}

const maxReasons = 3

// PredictImpact scores the article's keywords for one stock, scales the
// score by the event type and maps it to an impact band. Keywords count only
// when the article mentions the company or its ticker.
func PredictImpact(ticker, name, text, event string, price float64) models.StockImpact {
	lower := strings.ToLower(text)
	mentioned := strings.Contains(lower, strings.ToLower(ticker)) ||
		(name != "" && strings.Contains(lower, strings.ToLower(firstWord(name))))

	var (
		score   float64
		reasons []string
	)
	if mentioned {
		tally := func(words []string, weight float64, label string) {
			for _, w := range words {
				if strings.Contains(lower, w) {
					score += weight
					reasons = append(reasons, fmt.Sprintf("%s indicator: '%s'", label, w))
				}
			}
		}
		tally(strongPositiveWords, 2, "Strong positive")
		tally(positiveWords, 1, "Positive")
		tally(negativeWords, -1, "Negative")
		tally(strongNegativeWords, -2, "Strong negative")
	}

	if w, ok := eventWeights[event]; ok {
		score = score*w.scale + w.shift
		reasons = append(reasons, "Event type: "+event)
	}

	impact := models.StockImpact{
		Ticker:       ticker,
		CompanyName:  name,
		CurrentPrice: price,
		Timeframe:    Timeframe(event),
	}
	switch {
	case score >= 3:
		impact.PredictedImpact, impact.ImpactPercentage, impact.Recommendation = "Strong Positive", "+5-10%", "Strong Buy"
		impact.Confidence = math.Min(0.85, 0.5+math.Abs(score)*0.1)
	case score >= 1:
		impact.PredictedImpact, impact.ImpactPercentage, impact.Recommendation = "Positive", "+2-5%", "Buy"
		impact.Confidence = math.Min(0.75, 0.5+math.Abs(score)*0.1)
	case score <= -3:
		impact.PredictedImpact, impact.ImpactPercentage, impact.Recommendation = "Strong Negative", "-5-10%", "Strong Sell"
		impact.Confidence = math.Min(0.85, 0.5+math.Abs(score)*0.1)
	case score <= -1:
		impact.PredictedImpact, impact.ImpactPercentage, impact.Recommendation = "Negative", "-2-5%", "Sell"
		impact.Confidence = math.Min(0.75, 0.5+math.Abs(score)*0.1)
	default:
		impact.PredictedImpact, impact.ImpactPercentage, impact.Recommendation = "Neutral", "-1% to +1%", "Hold"
		impact.Confidence = 0.6
	}
	impact.Confidence = math.Round(impact.Confidence*100) / 100

	if len(reasons) == 0 {
		reasons = []string{"General market sentiment"}
	}
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}
	impact.Reasons = reasons
	return impact
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return strings.TrimRight(f[0], ".,")
	}
	return s
}

// Timeframe is how soon a stock should react to an event type.
func Timeframe(event string) string {
	switch event {
	case EventEarnings, EventRating:
		return "Immediate (1-2 days)"
	case EventProduct, EventPartnership:
		return "Short-term (1-2 weeks)"
	default:
		return "Medium-term (2-4 weeks)"
	}
}

// Timeline describes when the broader market should react to an event type.
func Timeline(event string) string {
	switch event {
	case EventEarnings, EventRating:
		return "Immediate market reaction expected (1-2 days)"
	case EventProduct, EventPartnership:
		return "Gradual impact over 1-2 weeks"
	default:
		return "Impact may unfold over 2-4 weeks"
	}
}

var tickerSectors = map[string]string{
	"AAPL": "Technology", "MSFT": "Technology", "GOOGL": "Technology", "META": "Technology",
	"NVDA": "Technology", "INTC": "Technology", "AMD": "Technology",
	"AMZN": "Consumer Cyclical", "TSLA": "Consumer Cyclical", "GM": "Consumer Cyclical", "F": "Consumer Cyclical",
	"DIS": "Communication Services", "NFLX": "Communication Services",
	"JPM": "Financial Services", "GS": "Financial Services", "V": "Financial Services", "MA": "Financial Services",
	"WMT": "Consumer Defensive", "KO": "Consumer Defensive", "PEP": "Consumer Defensive",
	"JNJ": "Healthcare", "PFE": "Healthcare", "MRNA": "Healthcare",
	"BA": "Industrials", "LMT": "Industrials",
	"XOM": "Energy", "CVX": "Energy", "SHEL": "Energy", "BP": "Energy",
}

// SectorImpacts groups affected stocks by known sector and reports the
// majority direction for each.
func SectorImpacts(stocks []models.StockImpact) map[string]string {
	type tally struct{ pos, neg int }
	counts := make(map[string]*tally)
	for _, s := range stocks {
		sector, ok := tickerSectors[s.Ticker]
		if !ok {
			continue
		}
		if counts[sector] == nil {
			counts[sector] = &tally{}
		}
		switch {
		case strings.Contains(s.PredictedImpact, "Positive"):
			counts[sector].pos++
		case strings.Contains(s.PredictedImpact, "Negative"):
			counts[sector].neg++
		}
	}

	out := make(map[string]string, len(counts))
	for sector, c := range counts {
		switch {
		case c.pos > c.neg:
			out[sector] = "Positive momentum expected"
		case c.neg > c.pos:
			out[sector] = "Negative pressure expected"
		default:
			out[sector] = "Mixed signals"
		}
	}
	return out
}

// MarketSentiment summarizes the direction across all affected stocks.
func MarketSentiment(stocks []models.StockImpact) string {
	if len(stocks) == 0 {
		return "Neutral"
	}
	var pos, neg float64
	for _, s := range stocks {
		switch {
		case strings.Contains(s.PredictedImpact, "Positive"):
			pos++
		case strings.Contains(s.PredictedImpact, "Negative"):
			neg++
		}
	}
	switch {
	case pos > neg*1.5:
		return "Bullish"
	case neg > pos*1.5:
		return "Bearish"
	default:
		return "Mixed"
	}
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	keyPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`\d+%`),
		regexp.MustCompile(`\$[\d,]+`),
		regexp.MustCompile(`(?i)announce[ds]?`),
		regexp.MustCompile(`(?i)report[eds]?`),
		regexp.MustCompile(`(?i)expect[eds]?`),
		regexp.MustCompile(`(?i)forecast`),
		regexp.MustCompile(`(?i)earnings`),
		regexp.MustCompile(`(?i)revenue`),
		regexp.MustCompile(`(?i)profit`),
		regexp.MustCompile(`(?i)loss`),
	}
)

const (
	maxKeyPoints       = 5
	keyPointSentences  = 20
	maxKeyPointLength  = 200
	noKeyPointsMessage = "Key information extraction in progress"
)

// KeyPoints returns up to five short sentences from the first twenty that
// carry figures or earnings language.
func KeyPoints(text string) []string {
	var sentences []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) > keyPointSentences {
		sentences = sentences[:keyPointSentences]
	}

	var points []string
	for _, s := range sentences {
		if len(s) >= maxKeyPointLength || !matchesAny(s) {
			continue
		}
		points = append(points, s)
		if len(points) == maxKeyPoints {
			break
		}
	}
	if len(points) == 0 {
		return []string{noKeyPointsMessage}
	}
	return points
}

func matchesAny(s string) bool {
	for _, p := range keyPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
