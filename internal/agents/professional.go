package agents

import (
	"fmt"
	"time"
)

const professionalExecutionTime = 30 * time.Second

var professionalAgents = map[string]Agent{
	"technical_analyst": {
		Key:       "technical_analyst",
		Role:      "Senior Technical Analyst",
		Goal:      "Identify precise price levels, indicators, and technical setups",
		Backstory: "You are a technical analyst at a major investment bank. You provide specific price levels, indicator readings, and chart patterns. Always include numbers: support/resistance levels, moving averages, RSI values, volume changes. Never use vague terms. Format: brief bullets with exact figures.",
	},
	"equity_analyst": {
		Key:       "equity_analyst",
		Role:      "Equity Research Analyst",
		Goal:      "Analyze financial metrics and valuation with specific numbers",
		Backstory: "You cover stocks for institutional clients. Focus on concrete metrics: revenue growth %, EBITDA margins, P/E ratios, FCF yield, debt/equity. One key driver per analysis. Be specific with quarters (Q3'24) and comparisons (vs 15% industry avg). No generic statements.",
	},
	"sentiment_specialist": {
		Key:       "sentiment_specialist",
		Role:      "Market Sentiment Specialist",
		Goal:      "Track recent sentiment shifts with specific timeframes",
		Backstory: "You monitor news flow and analyst actions for a trading desk. Always specify timeframes: 'past 5 days', 'since Nov 15', 'following Q3 earnings'. Mention specific sources when possible: 'Goldman upgrade to Buy', '3 of 5 analysts'. Focus on direction and recency.",
	},
	"risk_director": {
		Key:       "risk_director",
		Role:      "Risk Management Director",
		Goal:      "Identify specific, actionable risks with clear triggers",
		Backstory: "You assess portfolio risks for a hedge fund. List 3-5 specific risks, not generic market risks. Examples: 'FDA decision on XYZ drug by Jan 15', 'Debt refinancing due Q1 at higher rates', 'China revenue 30% of total exposed to tariffs'. Each risk should be distinct and measurable.",
	},
	"strategy_head": {
		Key:       "strategy_head",
		Role:      "Portfolio Strategy Head",
		Goal:      "Synthesize analysis into specific, non-prescriptive positioning notes",
		Backstory: "You write strategy notes for professional investors. Frame opportunities without prescribing. Include specific levels to monitor. Examples: 'Watch for break above 52 with volume', 'Consider hedges if drops below 200-DMA at 47.50', 'Earnings catalyst Feb 8 could clarify guidance'.",
	},
}

type professionalTemplate struct {
	agent          string
	section        string
	description    string
	expectedOutput string
}

var professionalTemplates = []professionalTemplate{
	{
		agent:   "strategy_head",
		section: SectionOverview,
		description: `Create a comprehensive 3-4 sentence overview of %s current position.
Include: 1) Price action and trend context 2) Key technical level 3) Fundamental driver 4) Near-term catalyst
Target 80-100 words. Include at least 3 specific numbers/dates.`,
		expectedOutput: "Comprehensive 3-4 sentence overview with price, fundamentals, and catalysts",
	},
	{
		agent:   "technical_analyst",
		section: SectionTechnical,
		description: `Provide comprehensive technical analysis of %s with 5-7 detailed bullets, each 18-28 words.
EVERY bullet must include at least one concrete metric: specific price level, indicator reading, volume metric, or timeframe.

Required elements across all bullets:
• Current price vs 20/50/200-DMA with exact levels
• Support and resistance levels with volume context
• RSI and MACD readings with specific values
• Volume trends vs 20-day average
• ATR or volatility metrics
• Gap levels or pattern formations
• Relative strength vs sector/market

Output exactly 5-7 bullets. Each bullet 18-28 words with specific numbers.`,
		expectedOutput: "5-7 detailed technical bullets, each 18-28 words with concrete metrics",
	},
	{
		agent:   "equity_analyst",
		section: SectionFundamental,
		description: `Analyze %s fundamentals in one cohesive paragraph of 120-180 words (3-5 sentences).

MUST include at least 4 concrete fundamentals from revenue growth, EPS trajectory, margin trends, free cash flow, net cash/debt, valuation multiples vs peers, guidance changes, segment performance, or capital allocation.

MUST include at least 3 specific numbers (percentages or currency amounts) with time periods (Q3'24, TTM, FY24E).

Output 120-180 words in paragraph form. No bullet points.`,
		expectedOutput: "One paragraph of 120-180 words with 4+ fundamentals and 3+ specific numbers",
	},
	{
		agent:   "sentiment_specialist",
		section: SectionSentiment,
		description: `Assess %s sentiment comprehensively in 80-120 words (2-3 sentences).

MUST reference:
• Specific recency windows (last 7 days, past 2 weeks, since [date])
• Direction of sentiment shift with counts when available
• Analyst actions (upgrades/downgrades) with firms and targets
• News tone with headline themes
• Social media or options flow indicators if relevant

If data is limited, acknowledge briefly but still provide full snapshot.
Output 80-120 words total.`,
		expectedOutput: "2-3 sentences totaling 80-120 words with specific timeframes and counts",
	},
	{
		agent:   "risk_director",
		section: SectionRisks,
		description: `List exactly 5 specific risks for %s with varied depth:

FIRST THREE RISKS (16-28 words each) must be analytical with specific mechanisms, metrics, thresholds, and trigger events.
LAST TWO RISKS (8-16 words each) are more concise but still specific.

Output exactly 5 risks as bullets.`,
		expectedOutput: "5 risks: first 3 at 16-28 words with mechanisms, last 2 at 8-16 words",
	},
	{
		agent:   "strategy_head",
		section: SectionStrategy,
		description: `Create 2-3 strategy bullets for %s. Frame as observations, not advice.
Each bullet 10-18 words. Include one specific level to monitor.
No prescriptive language. Focus on levels and catalysts.`,
		expectedOutput: "2-3 strategy bullets with specific levels/dates",
	},
}

// ProfessionalTasks returns the six research-note tasks for ticker, in the
// section order StructureReport expects.
func ProfessionalTasks(ticker string) []Task {
	tasks := make([]Task, 0, len(professionalTemplates))
	for _, tmpl := range professionalTemplates {
		agent := professionalAgents[tmpl.agent]
		agent.MaxExecutionTime = professionalExecutionTime
		agent.MaxRetryLimit = defaultMaxRetryLimit
		tasks = append(tasks, Task{
			Agent:          agent,
			Description:    fmt.Sprintf(tmpl.description, ticker),
			ExpectedOutput: tmpl.expectedOutput,
			OutputKey:      tmpl.section,
		})
	}
	return tasks
}
