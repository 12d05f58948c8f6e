package agents

import (
	"fmt"

	"github.com/quantinsight/quantinsight/internal/models"
)

// Task is one unit of work for an agent. Its output is stored in the
// prediction under OutputKey.
type Task struct {
	Agent          Agent
	Description    string
	ExpectedOutput string
	OutputKey      string
}

type taskTemplate struct {
	description    string
	expectedOutput string
	outputKey      string
}

var taskTemplates = map[string]taskTemplate{
	MarketAnalyst: {
		description: `Analyze %s technical indicators and price action:
1. Current price trends and momentum (bullish/bearish/neutral)
2. Key support and resistance levels with specific prices
3. Volume analysis and what it indicates
4. Technical indicators (RSI, MACD, Moving Averages) interpretation
5. Chart patterns if any (head and shoulders, triangles, etc.)

Provide specific price levels and actionable insights. Be concise but precise.`,
		expectedOutput: "Technical analysis with specific price levels, trends, and trading signals",
		outputKey:      "market_analysis",
	},
	SentimentAnalyst: {
		description: `Analyze %s market sentiment and news impact:
1. Recent news headlines and their impact (positive/negative/neutral)
2. Analyst ratings and price targets consensus
3. Social media sentiment and retail investor interest
4. Institutional investor activity and insider trading if available
5. Overall market sentiment towards the stock

Focus on the last 7-14 days of sentiment. Be specific about sentiment shifts.`,
		expectedOutput: "Sentiment analysis with specific news impacts and market perception",
		outputKey:      "sentiment_analysis",
	},
	FundamentalAnalyst: {
		description: `Analyze %s fundamental metrics and business health:
1. Revenue and earnings growth trends (YoY and QoQ)
2. Profit margins and operational efficiency
3. Debt levels and financial health (debt-to-equity, cash flow)
4. Competitive positioning and market share
5. Valuation metrics (P/E, P/B, PEG) vs industry averages

Compare to industry peers when possible. Focus on what matters for investors.`,
		expectedOutput: "Fundamental analysis with key metrics, growth prospects, and valuation assessment",
		outputKey:      "fundamental_analysis",
	},
	RiskAnalyst: {
		description: `Identify and assess risks for %s investment:
1. Market risks (volatility, sector rotation, macro factors)
2. Company-specific risks (competition, regulation, execution)
3. Financial risks (debt, cash flow, currency exposure)
4. External risks (geopolitical, supply chain, technology disruption)
5. Risk mitigation strategies and hedging options

Quantify risks where possible. Provide actionable risk management advice.`,
		expectedOutput: "Comprehensive risk assessment with specific risk factors and mitigation strategies",
		outputKey:      "risk_assessment",
	},
	StrategyAdvisor: {
		description: `Synthesize all analyses into investment strategy for %s:
1. Overall investment recommendation (buy/hold/sell) with conviction level
2. Entry and exit price targets with rationale
3. Time horizon for the investment (short/medium/long term)
4. Position sizing recommendations based on risk
5. Alternative strategies (options, dollar-cost averaging, etc.)

Tailor recommendations for different investor profiles. Be specific and actionable.`,
		expectedOutput: "Clear investment strategy with specific recommendations and price targets",
		outputKey:      "investment_strategy",
	},
}

// TasksFor builds the ordered task list for ticker under analysis type t.
func TasksFor(ticker string, t models.AnalysisType) []Task {
	agents := AgentsFor(t)
	tasks := make([]Task, 0, len(agents))
	for _, a := range agents {
		tmpl := taskTemplates[a.Key]
		tasks = append(tasks, Task{
			Agent:          a,
			Description:    fmt.Sprintf(tmpl.description, ticker),
			ExpectedOutput: tmpl.expectedOutput,
			OutputKey:      tmpl.outputKey,
		})
	}
	return tasks
}

// OutputKeys lists the prediction keys produced for analysis type t.
func OutputKeys(t models.AnalysisType) []string {
	agents := AgentsFor(t)
	keys := make([]string, len(agents))
	for i, a := range agents {
		keys[i] = taskTemplates[a.Key].outputKey
	}
	return keys
}
