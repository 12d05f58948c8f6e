package impact

import (
	"context"
	"fmt"
	"strings"

	"github.com/quantinsight/quantinsight/internal/llm"
)

const classifyChars = 1000

var eventKeywords = map[string][]string{
	EventEarnings:    {"earnings", "quarterly results", "eps", "revenue", "guidance"},
	EventMerger:      {"merger", "acquisition", "acquire", "takeover", "buyout"},
	EventProduct:     {"launch", "unveil", "new product", "release", "introduce"},
	EventRegulatory:  {"regulator", "regulatory", "sec ", "fda", "approval", "antitrust"},
	EventManagement:  {"ceo", "cfo", "resign", "appoint", "steps down", "executive"},
	EventAnalysis:    {"analyst", "outlook", "market analysis", "valuation"},
	EventEconomic:    {"inflation", "gdp", "unemployment", "interest rate", "federal reserve", "cpi"},
	EventLegal:       {"lawsuit", "sued", "court", "settlement", "litigation"},
	EventPartnership: {"partnership", "partner", "agreement", "deal", "collaboration"},
	EventRating:      {"upgrade", "downgrade", "price target", "rating"},
}

// ClassifyEvent labels the article with one of EventTypes. The model is asked
// first; when it is unavailable or answers off-list, keyword counts decide.
func ClassifyEvent(ctx context.Context, client llm.Client, text string) string {
	sample := truncate(text, classifyChars)
	if client != nil {
		resp, err := client.Generate(ctx, llm.Request{
			Prompt: fmt.Sprintf(
				"Classify this market news into exactly one of these categories: %s.\n"+
					"Reply with the category name only, or \"%s\" if none fits.\n\n%s",
				strings.Join(EventTypes, ", "), EventGeneral, sample),
			Operation: "impact:classify",
		})
		if err == nil {
			if label, ok := matchEventType(resp.Text); ok {
				return label
			}
		}
	}
	return classifyByKeywords(sample)
}

func matchEventType(answer string) (string, bool) {
	answer = strings.Trim(strings.TrimSpace(answer), `."'*`)
	if strings.EqualFold(answer, EventGeneral) {
		return EventGeneral, true
	}
	for _, label := range EventTypes {
		if strings.EqualFold(answer, label) {
			return label, true
		}
	}
	return "", false
}

func classifyByKeywords(text string) string {
	lower := strings.ToLower(text)
	best, bestHits := EventGeneral, 0
	// EventTypes order breaks ties
	for _, label := range EventTypes {
		hits := 0
		for _, kw := range eventKeywords[label] {
			hits += strings.Count(lower, kw)
		}
		if hits > bestHits {
			best, bestHits = label, hits
		}
	}
	return best
}
