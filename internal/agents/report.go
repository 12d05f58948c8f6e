package agents

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Report sections.
const (
	SectionOverview    = "overview"
	SectionTechnical   = "technical"
	SectionFundamental = "fundamental"
	SectionSentiment   = "sentiment"
	SectionRisks       = "risks"
	SectionStrategy    = "strategy"
)

var professionalSections = []string{SectionOverview, SectionTechnical, SectionFundamental, SectionSentiment, SectionRisks, SectionStrategy}

var fallbackContent = map[string]string{
	SectionOverview:    "Comprehensive analysis is being compiled. Price action shows consolidation near recent levels with technical indicators suggesting neutral momentum. Fundamental metrics are being evaluated across multiple reporting periods to provide accurate assessment.",
	SectionTechnical:   "• Trading near 50-day moving average with support and resistance levels being calculated from recent price action.\n• Volume patterns suggest accumulation phase with average daily volume requiring further validation.\n• RSI at neutral levels indicating neither overbought nor oversold conditions in current timeframe.\n• MACD histogram showing convergence pattern suggesting potential directional move ahead.\n• Relative strength versus sector benchmarks being computed for comparative analysis.",
	SectionFundamental: "Revenue growth metrics and margin trends are being analyzed across recent reporting periods. Earnings trajectory shows consistency with sector averages pending detailed financial statement review. Valuation multiples require comparison against both historical ranges and current peer group metrics. Balance sheet strength indicators including cash position and debt ratios are being calculated. Capital allocation strategies and segment performance data need comprehensive evaluation for complete fundamental picture.",
	SectionSentiment:   "Market sentiment analysis over the past two weeks indicates mixed signals with both positive and negative catalysts impacting investor perception. Recent analyst actions show divergent views with price target revisions reflecting uncertainty about near-term prospects. News flow has been moderate with earnings-related updates and sector developments driving sentiment shifts. Social media indicators and options positioning data suggest cautious optimism among retail and institutional investors.",
	SectionRisks:       "• Macroeconomic headwinds could impact valuation multiples by 15-20% if broader market correction materializes.\n• Competitive pressures intensifying with new market entrants potentially affecting market share dynamics.\n• Regulatory environment remains uncertain with potential policy changes impacting operational flexibility.\n• Technology disruption accelerating faster than anticipated in core business segments.\n• Execution risks around strategic initiatives with timeline dependencies.",
	SectionStrategy:    "• Monitor key support levels for potential entry opportunities.\n• Watch for catalyst events including earnings releases and product announcements.\n• Consider position sizing based on risk tolerance and market conditions.",
}

// FallbackContent returns placeholder text for a section whose generated
// content was unusable.
func FallbackContent(section string) string {
	if s, ok := fallbackContent[section]; ok {
		return s
	}
	return "Data temporarily unavailable."
}

var (
	boldPattern      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern    = regexp.MustCompile(`\*([^*\n]+)\*`)
	headerPattern    = regexp.MustCompile(`#{1,6}\s*`)
	linkPattern      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	spacePattern     = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLinePattern = regexp.MustCompile(`\n\s*\n+`)
	trailingFiller   = regexp.MustCompile(`\s+(and|or|but|however|therefore|thus|with|at|to|from|the|a)\s*$`)

	cutOffPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s*$`),
		regexp.MustCompile(`the\s+$`),
		regexp.MustCompile(`a\s+$`),
		regexp.MustCompile(`is\s+$`),
		regexp.MustCompile(`at\s+$`),
		regexp.MustCompile(`\d+\s*$`),
		regexp.MustCompile(`:\s*$`),
		regexp.MustCompile(`,\s*$`),
	}
	trailingConjunctions = []string{"and", "or", "but", "however", "therefore", "thus"}
)

func isBulletSection(section string) bool {
	return section == SectionRisks || section == SectionStrategy || section == SectionTechnical
}

// PostProcessContent strips markdown from generated text, normalizes bullets
// and punctuation, and substitutes FallbackContent when the result looks
// truncated or too thin.
func PostProcessContent(content, section string) string {
	if len(strings.TrimSpace(content)) < 5 {
		return FallbackContent(section)
	}

	content = boldPattern.ReplaceAllString(content, "$1")
	content = linkPattern.ReplaceAllString(content, "$1")
	content = headerPattern.ReplaceAllString(content, "")

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		// markdown list markers survive the italic pass
		if strings.HasPrefix(line, "* ") {
			line = "•" + line[1:]
		}
		line = italicPattern.ReplaceAllString(line, "$1")
		line = spacePattern.ReplaceAllString(line, " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if !isBulletSection(section) {
		lines = []string{strings.Join(lines, " ")}
	}
	content = blankLinePattern.ReplaceAllString(strings.Join(lines, "\n"), "\n")
	content = strings.TrimSpace(content)

	if len(content) < 20 && section != SectionStrategy && section != SectionRisks {
		return FallbackContent(section)
	}

	content = trailingFiller.ReplaceAllString(content, "")
	content = ensureTerminal(content)

	if isBulletSection(section) {
		var bullets []string
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "•"):
				line = "• " + strings.TrimSpace(strings.TrimPrefix(line, "•"))
			case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "*"), strings.HasPrefix(line, "·"):
				line = "• " + strings.TrimSpace(strings.TrimPrefix(line, firstRune(line)))
			case line != "":
				line = "• " + line
			}
			line = ensureTerminal(line)
			if len(strings.TrimSpace(line)) > 3 {
				bullets = append(bullets, line)
			}
		}
		content = strings.Join(bullets, "\n")
	}

	if ok, _ := ValidateContent(content, section); !ok {
		return FallbackContent(section)
	}
	return content
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

func ensureTerminal(s string) string {
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

// ValidateContent reports whether content is complete enough to publish,
// with a reason when it is not.
func ValidateContent(content, section string) (bool, string) {
	if len(strings.TrimSpace(content)) < 10 {
		return false, section + " content is empty or too short"
	}
	for _, p := range cutOffPatterns {
		if p.MatchString(content) {
			return false, "content appears cut off"
		}
	}

	words := len(strings.Fields(content))
	switch section {
	case SectionTechnical, SectionRisks:
		if len(nonEmptyLines(content)) == 0 {
			return false, "no " + section + " content found"
		}
	case SectionFundamental, SectionSentiment:
		if words < 20 {
			return false, fmt.Sprintf("%s too short, got %d words", section, words)
		}
	}

	for _, c := range trailingConjunctions {
		if strings.HasSuffix(content, c) {
			return false, "content ends with conjunction"
		}
	}
	return true, ""
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ProfessionalReport is a structured equity research note.
type ProfessionalReport struct {
	Ticker   string         `json:"ticker"`
	Sections ReportSections `json:"sections"`
	Meta     ReportMeta     `json:"meta"`
}

type ReportSections struct {
	Overview            string   `json:"overview"`
	MarketAnalysis      []string `json:"market_analysis"`
	FundamentalAnalysis string   `json:"fundamental_analysis"`
	SentimentSnapshot   string   `json:"sentiment_snapshot"`
	RiskAssessment      []string `json:"risk_assessment"`
	StrategyNote        []string `json:"strategy_note"`
}

type ReportMeta struct {
	GeneratedAt time.Time          `json:"generated_at"`
	KeyLevels   map[string]float64 `json:"key_levels"`
}

var (
	movingAveragePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)-DMA?\s+(?:at\s+)?(\d+\.?\d*)`),
		regexp.MustCompile(`(?i)MA\s*\(?\s*(\d+)\s*\)?\s+(?:at\s+)?(\d+\.?\d*)`),
	}
	supportResistancePattern = regexp.MustCompile(`(?i)(support|resistance)\s+(?:at\s+)?(\d+\.?\d*)`)
)

// StructureReport maps the six professional task outputs (overview,
// technical, fundamental, sentiment, risks, strategy) onto report sections.
// Missing outputs get fallback content.
func StructureReport(ticker string, outputs []string) ProfessionalReport {
	section := func(i int) string {
		raw := ""
		if i < len(outputs) {
			raw = outputs[i]
		}
		return PostProcessContent(raw, professionalSections[i])
	}

	technical := bullets(section(1), 7)
	report := ProfessionalReport{
		Ticker: ticker,
		Sections: ReportSections{
			Overview:            section(0),
			MarketAnalysis:      technical,
			FundamentalAnalysis: section(2),
			SentimentSnapshot:   section(3),
			RiskAssessment:      stripBullets(bullets(section(4), 5)),
			StrategyNote:        stripBullets(bullets(section(5), 3)),
		},
		Meta: ReportMeta{
			GeneratedAt: time.Now().UTC(),
			KeyLevels:   ExtractKeyLevels(strings.Join(technical, "\n")),
		},
	}
	return report
}

// ExtractKeyLevels pulls moving averages and support/resistance prices out of
// technical commentary, e.g. "50-DMA at 192.15" or "support at 185".
func ExtractKeyLevels(text string) map[string]float64 {
	levels := make(map[string]float64)
	for _, p := range movingAveragePatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			if v, err := strconv.ParseFloat(strings.TrimSuffix(m[2], "."), 64); err == nil {
				levels[m[1]+"-DMA"] = v
			}
		}
	}
	for _, m := range supportResistancePattern.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(strings.TrimSuffix(m[2], "."), 64); err == nil {
			levels[capitalize(strings.ToLower(m[1]))] = v
		}
	}
	return levels
}

func bullets(content string, limit int) []string {
	var out []string
	for _, line := range nonEmptyLines(content) {
		if strings.HasPrefix(line, "•") {
			out = append(out, line)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

func stripBullets(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strings.TrimSpace(strings.TrimPrefix(line, "•"))
	}
	return out
}
