// Package assistant answers free-form stock questions by letting an LLM pick
// one of a small set of market data tools.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/models"
)

// Tool names.
const (
	ToolStockPrice     = "get_stock_price"
	ToolAnalyzeStock   = "analyze_stock"
	ToolSearchStocks   = "search_stocks"
	ToolMarketOverview = "get_market_overview"
)

// ErrUnknownTool is returned by Toolkit.Call for names outside Tools.
var ErrUnknownTool = errors.New("unknown tool")

// Tool describes a callable tool to the model.
type Tool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Examples    []string          `json:"examples"`
	Parameters  map[string]string `json:"parameters"`
}

// Tools is the catalogue offered to the model, in prompt order.
var Tools = []Tool{
	{
		Name:        ToolStockPrice,
		Description: "Get current stock price, change, volume, and basic info for any stock symbol. Use this for questions about current prices, how much a stock is worth, or basic stock information.",
		Examples:    []string{"What's the price of AAPL?", "How much is Tesla worth?", "Current price of Microsoft", "What's Apple trading at?"},
		Parameters:  map[string]string{"symbol": "Stock symbol (e.g., AAPL, TSLA, MSFT)"},
	},
	{
		Name:        ToolAnalyzeStock,
		Description: "Get detailed analysis including performance, trends, key metrics, and insights for any stock. Use this for investment analysis, performance questions, or detailed stock research.",
		Examples:    []string{"Should I buy AAPL?", "Analyze Tesla stock", "Is Microsoft a good investment?", "How is Apple performing?"},
		Parameters:  map[string]string{"symbol": "Stock symbol (e.g., AAPL, TSLA, MSFT)"},
	},
	{
		Name:        ToolSearchStocks,
		Description: "Search for stocks by company name, sector, or keywords. Use this to find companies, discover stocks in specific sectors, or search for stocks matching certain criteria.",
		Examples:    []string{"Find AI stocks", "Search for electric vehicle companies", "Show me tech stocks", "Find companies in healthcare"},
		Parameters:  map[string]string{"query": "Search term or keywords"},
	},
	{
		Name:        ToolMarketOverview,
		Description: "Compare multiple stocks and get market overview. Use this for comparing stocks, getting market summaries, or analyzing multiple companies at once.",
		Examples:    []string{"Compare Apple and Google", "How are tech stocks doing?", "Market overview of top stocks", "Compare TSLA and NIO"},
		Parameters:  map[string]string{"symbols": "Comma-separated stock symbols (e.g., AAPL,GOOGL,MSFT)"},
	},
}

const maxOverviewSymbols = 10

// MarketData is the subset of marketdata.Service the tools use.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	BatchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
	Closes(ctx context.Context, symbol string, window marketdata.Window) ([]float64, error)
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

// Toolkit renders market data as plain-text reports for the model.
type Toolkit struct {
	market MarketData
	now    func() time.Time
}

func NewToolkit(market MarketData) *Toolkit {
	return &Toolkit{market: market, now: time.Now}
}

// Call dispatches a tool by name. Missing arguments are empty strings.
func (t *Toolkit) Call(ctx context.Context, name string, args map[string]string) (string, error) {
	switch name {
	case ToolStockPrice:
		return t.StockPrice(ctx, args["symbol"]), nil
	case ToolAnalyzeStock:
		return t.AnalyzeStock(ctx, args["symbol"]), nil
	case ToolSearchStocks:
		return t.SearchStocks(ctx, args["query"]), nil
	case ToolMarketOverview:
		return t.MarketOverview(ctx, args["symbols"]), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// StockPrice reports the live quote for symbol with intraday context.
func (t *Toolkit) StockPrice(ctx context.Context, symbol string) string {
	sym := marketdata.CorrectSymbol(symbol)
	q, err := t.market.Quote(ctx, sym)
	if err != nil {
		return fmt.Sprintf("Unable to get price data for %s. Please check the symbol and try again. (Tried: %s)", strings.ToUpper(symbol), sym)
	}
	return t.renderQuote(q)
}

func (t *Toolkit) renderQuote(q models.Quote) string {
	dayRange := q.High - q.Low
	position := "minimal price movement"
	var intraday float64
	if dayRange > 0 {
		intraday = (q.Price - q.Low) / dayRange * 100
		position = intradayDescription(intraday)
	}

	rangePct := 0.0
	if ref := referencePrice(q); ref > 0 {
		rangePct = dayRange / ref * 100
	}
	status := "Regular Trading"
	switch q.PriceSource {
	case "After Hours", "Pre Market":
		status = q.PriceSource
	}
	source := q.PriceSource
	if source == "" {
		source = "Regular Market"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "REAL-TIME STOCK DATA: %s\n\n", q.Symbol)
	b.WriteString("CURRENT PRICING:\n")
	fmt.Fprintf(&b, "• Price: $%.2f (%s)\n", q.Price, status)
	fmt.Fprintf(&b, "• Daily Change: $%+.2f (%+.2f%%)\n", q.Change, q.ChangePercent)
	fmt.Fprintf(&b, "• Day Range: $%.2f - $%.2f\n", q.Low, q.High)
	fmt.Fprintf(&b, "• Current Position: Trading %s (%.1f%% of daily range)\n", position, intraday)
	fmt.Fprintf(&b, "• Opening Price: $%.2f\n", q.Open)
	fmt.Fprintf(&b, "• Previous Close: $%.2f\n\n", q.PreviousClose)
	b.WriteString("TRADING INSIGHTS:\n")
	fmt.Fprintf(&b, "• Daily Range: $%.2f (%.1f%% volatility)\n", dayRange, rangePct)
	fmt.Fprintf(&b, "• Price Source: %s (%s)\n", providerLabel(q.Provider), source)
	fmt.Fprintf(&b, "• Last Updated: %s\n\n", t.now().Format("2006-01-02 15:04:05"))
	b.WriteString("MARKET CONTEXT:\n")
	fmt.Fprintf(&b, "• %s\n", movementDescription(q.ChangePercent))
	fmt.Fprintf(&b, "• %s\n", activityDescription(rangePct))
	return b.String()
}

func referencePrice(q models.Quote) float64 {
	if q.PreviousClose > 0 {
		return q.PreviousClose
	}
	return q.Price - q.Change
}

func providerLabel(p string) string {
	switch p {
	case marketdata.ProviderYahoo:
		return "Yahoo Finance"
	case marketdata.ProviderFinnhub:
		return "Finnhub"
	case marketdata.ProviderAlphaVantage:
		return "Alpha Vantage"
	case marketdata.ProviderPolygon:
		return "Polygon"
	case marketdata.ProviderAlpaca:
		return "Alpaca"
	default:
		return p
	}
}

func intradayDescription(pos float64) string {
	switch {
	case pos < 25:
		return "near daily low"
	case pos < 45:
		return "lower half of range"
	case pos < 65:
		return "mid-range"
	case pos < 85:
		return "upper half of range"
	default:
		return "near daily high"
	}
}

func movementDescription(pct float64) string {
	switch {
	case pct > 3:
		return "Strong positive movement"
	case pct > 1:
		return "Moderate gains"
	case pct > 0:
		return "Slight gains"
	case math.Abs(pct) < 0.1:
		return "Flat"
	case pct > -1:
		return "Slight decline"
	case pct > -3:
		return "Moderate decline"
	default:
		return "Significant decline"
	}
}

func activityDescription(rangePct float64) string {
	switch {
	case rangePct > 2:
		return "High intraday activity"
	case rangePct > 0.5:
		return "Normal trading activity"
	default:
		return "Low volatility session"
	}
}

// AnalyzeStock reports the live quote plus 30-day statistics.
func (t *Toolkit) AnalyzeStock(ctx context.Context, symbol string) string {
	sym := marketdata.CorrectSymbol(symbol)
	q, err := t.market.Quote(ctx, sym)
	if err != nil {
		return fmt.Sprintf("Unable to get price data for %s. Please check the symbol and try again. (Tried: %s)", strings.ToUpper(symbol), sym)
	}
	priceInfo := t.renderQuote(q)

	closes, err := t.market.Closes(ctx, sym, marketdata.Month)
	if err != nil || len(closes) < 2 {
		return priceInfo
	}
	if len(closes) > 30 {
		closes = closes[len(closes)-30:]
	}
	s, ok := marketdata.ComputeStats(closes, q.Price)
	if !ok {
		return priceInfo
	}

	var b strings.Builder
	fmt.Fprintf(&b, "COMPREHENSIVE STOCK ANALYSIS: %s\n\n", q.Symbol)
	b.WriteString("CURRENT MARKET DATA:\n")
	b.WriteString(priceInfo)
	b.WriteString("\nPERFORMANCE METRICS (30-Day Analysis):\n")
	fmt.Fprintf(&b, "• Price Range: $%.2f - $%.2f\n", s.Min, s.Max)
	fmt.Fprintf(&b, "• Current Position: %s (%.1f%% of range)\n", s.RangeDescription, s.RangePosition)
	fmt.Fprintf(&b, "• 30-Day Return: %+.2f%%\n", s.Return)
	fmt.Fprintf(&b, "• Average Price: $%.2f\n", s.Average)
	fmt.Fprintf(&b, "• Volatility: $%.2f (%s - %.1f%%)\n\n", s.Volatility, s.VolatilityLevel, s.VolatilityPercent)
	b.WriteString("TECHNICAL INDICATORS:\n")
	fmt.Fprintf(&b, "• Short-term Trend: %s\n", s.Trend)
	fmt.Fprintf(&b, "• Distance from High: %+.2f%%\n", s.FromHigh)
	fmt.Fprintf(&b, "• Distance from Low: %+.2f%%\n", s.FromLow)
	fmt.Fprintf(&b, "• Distance from Average: %+.2f%%\n\n", s.FromAverage)
	b.WriteString("RISK ASSESSMENT:\n")
	fmt.Fprintf(&b, "• Volatility Level: %s (%.1f%% daily volatility)\n", s.VolatilityLevel, s.VolatilityPercent)
	fmt.Fprintf(&b, "• Range Position: Currently trading in %s of recent range\n", strings.ToLower(s.RangeDescription))
	fmt.Fprintf(&b, "• Recent Performance: %+.2f%% over last 30 days\n\n", s.Return)
	b.WriteString("MARKET CONTEXT:\n")
	fmt.Fprintf(&b, "• Analysis based on %d trading days of data\n", s.DataPoints)
	fmt.Fprintf(&b, "• Last updated: %s\n", t.now().Format("2006-01-02 15:04"))
	return b.String()
}

// SearchStocks lists symbols matching query.
func (t *Toolkit) SearchStocks(ctx context.Context, query string) string {
	results, err := t.market.Search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error searching stocks: %v", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No stocks found matching '%s'.", query)
	}
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("• %s - %s (%s)", r.Symbol, r.Name, r.Exchange)
	}
	return fmt.Sprintf("Found %d stocks matching '%s':\n%s", len(results), query, strings.Join(lines, "\n"))
}

// MarketOverview lists price and daily change for up to ten comma separated
// symbols.
func (t *Toolkit) MarketOverview(ctx context.Context, symbols string) string {
	var requested []string
	for _, s := range strings.Split(symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			requested = append(requested, marketdata.CorrectSymbol(s))
		}
	}
	shown := requested
	if len(shown) > maxOverviewSymbols {
		shown = shown[:maxOverviewSymbols]
	}

	quotes, _ := t.market.BatchQuotes(ctx, shown)
	lines := make([]string, len(shown))
	for i, sym := range shown {
		q, ok := quotes[sym]
		if !ok {
			lines[i] = fmt.Sprintf("• %s: Data unavailable", sym)
			continue
		}
		lines[i] = fmt.Sprintf("• %s: $%.2f (%+.2f%%)", sym, q.Price, q.ChangePercent)
	}
	return fmt.Sprintf("Market Overview for %d stocks:\n%s", len(requested), strings.Join(lines, "\n"))
}
