// Package agents runs the multi-agent stock analysis pipeline: a crew of
// role-prompted LLM agents that each contribute one section of a report.
package agents

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

// Agent keys, also used as event labels and metric labels.
const (
	MarketAnalyst      = "market_analyst"
	SentimentAnalyst   = "sentiment_analyst"
	FundamentalAnalyst = "fundamental_analyst"
	RiskAnalyst        = "risk_analyst"
	StrategyAdvisor    = "strategy_advisor"
)

const (
	defaultMaxExecutionTime = 120 * time.Second
	defaultMaxRetryLimit    = 1
)

// Agent is a role-prompted LLM persona.
type Agent struct {
	Key              string
	Role             string
	Goal             string
	Backstory        string
	MaxExecutionTime time.Duration
	MaxRetryLimit    int
}

// SystemPrompt renders the agent's persona for the model.
func (a Agent) SystemPrompt() string {
	return fmt.Sprintf("You are a %s.\nYour goal: %s\n\n%s", a.Role, a.Goal, a.Backstory)
}

var registry = map[string]Agent{
	MarketAnalyst: {
		Key:       MarketAnalyst,
		Role:      "Market Data Analyst",
		Goal:      "Analyze technical indicators, price movements, and market trends",
		Backstory: "You are an expert technical analyst with 15+ years of experience in stock market analysis. You specialize in identifying chart patterns, support/resistance levels, volume analysis, and technical indicators like RSI, MACD, and moving averages. You provide data-driven insights based on price action.",
	},
	SentimentAnalyst: {
		Key:       SentimentAnalyst,
		Role:      "News & Sentiment Analyst",
		Goal:      "Analyze market sentiment, news impact, and social media trends",
		Backstory: "You are a market sentiment expert who tracks news flow, analyst ratings, social media sentiment, and institutional investor behavior. You identify how external factors and market psychology affect stock prices and predict sentiment-driven price movements.",
	},
	FundamentalAnalyst: {
		Key:       FundamentalAnalyst,
		Role:      "Fundamental Analyst",
		Goal:      "Evaluate company financials, business model, and intrinsic value",
		Backstory: "You are a seasoned fundamental analyst with expertise in financial statement analysis, valuation models, and business evaluation. You examine earnings, revenue growth, debt levels, competitive positioning, and management effectiveness. You determine fair value and long-term prospects.",
	},
	RiskAnalyst: {
		Key:       RiskAnalyst,
		Role:      "Risk Analyst",
		Goal:      "Identify and assess investment risks and portfolio impact",
		Backstory: "You are a risk management specialist who identifies market risks, company-specific risks, sector risks, and geopolitical factors. You evaluate downside scenarios, volatility, and provide risk mitigation strategies. You help investors understand potential losses and risk-reward ratios.",
	},
	StrategyAdvisor: {
		Key:       StrategyAdvisor,
		Role:      "Investment Strategy Advisor",
		Goal:      "Synthesize all analyses into actionable investment recommendations",
		Backstory: "You are a senior investment strategist who combines technical, fundamental, sentiment, and risk analyses to provide clear investment recommendations. You consider different investor profiles, time horizons, and risk tolerances. You provide specific entry/exit points and portfolio allocation advice.",
	},
}

var agentOrder = map[models.AnalysisType][]string{
	models.AnalysisQuick:         {MarketAnalyst},
	models.AnalysisStandard:      {MarketAnalyst, SentimentAnalyst},
	models.AnalysisComprehensive: {MarketAnalyst, SentimentAnalyst, FundamentalAnalyst, RiskAnalyst, StrategyAdvisor},
}

// Lookup returns the agent registered under key with default limits applied.
func Lookup(key string) (Agent, bool) {
	a, ok := registry[key]
	if !ok {
		return Agent{}, false
	}
	a.MaxExecutionTime = defaultMaxExecutionTime
	a.MaxRetryLimit = defaultMaxRetryLimit
	return a, true
}

// AgentsFor returns the agents that run for an analysis type, in execution order.
// Unknown types get the standard crew.
func AgentsFor(t models.AnalysisType) []Agent {
	keys, ok := agentOrder[t]
	if !ok {
		keys = agentOrder[models.AnalysisStandard]
	}
	out := make([]Agent, 0, len(keys))
	for _, k := range keys {
		a, _ := Lookup(k)
		out = append(out, a)
	}
	return out
}

// AgentKeys returns the agent keys for an analysis type.
func AgentKeys(t models.AnalysisType) []string {
	agents := AgentsFor(t)
	keys := make([]string, len(agents))
	for i, a := range agents {
		keys[i] = a.Key
	}
	return keys
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
