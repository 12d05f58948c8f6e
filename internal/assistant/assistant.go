package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/quantinsight/quantinsight/internal/llm"
)

const (
	emptyQueryMessage = "Please provide a question about stocks or financial data."
	failureMessage    = "I'm sorry, I encountered an error while processing your request. Please try again."
	unknownToolResult = "I'm not sure how to handle that request. I can help with stock prices, analysis, searches, and market overviews."

	defaultSymbol          = "AAPL"
	defaultOverviewSymbols = "AAPL,GOOGL,MSFT"
	maxFallbackSymbols     = 5
)

var (
	tickerPattern = regexp.MustCompile(`\b[A-Z]{1,5}\b`)
	// capitalized words of two or more letters, so "I" is not a ticker
	writtenTickerPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
)

// SymbolLookup resolves a company name fragment to a ticker.
type SymbolLookup interface {
	FindSymbolByName(ctx context.Context, name string) (string, error)
}

// Answer is the assistant's reply.
type Answer struct {
	Response string `json:"response"`
	Success  bool   `json:"success"`
}

// Assistant routes a question to a tool via the LLM and phrases the result.
type Assistant struct {
	llm     llm.Client
	tools   *Toolkit
	symbols SymbolLookup
	logger  *slog.Logger
}

// New creates an assistant. symbols may be nil.
func New(client llm.Client, tools *Toolkit, symbols SymbolLookup, logger *slog.Logger) *Assistant {
	return &Assistant{llm: client, tools: tools, symbols: symbols, logger: logger}
}

// ToolCall is a parsed tool selection from the model.
type ToolCall struct {
	Name   string
	Params string
}

// ParseToolCall extracts the TOOL_CALL and PARAMS lines from a model reply.
// ok is false unless both are present.
func ParseToolCall(text string) (ToolCall, bool) {
	var call ToolCall
	var haveTool, haveParams bool
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "TOOL_CALL:"):
			call.Name = strings.TrimSpace(strings.TrimPrefix(line, "TOOL_CALL:"))
			haveTool = true
		case strings.HasPrefix(line, "PARAMS:"):
			call.Params = strings.TrimSpace(strings.TrimPrefix(line, "PARAMS:"))
			haveParams = true
		}
	}
	return call, haveTool && haveParams
}

// Answer responds to query. Failures are reported in the answer rather than
// as an error.
func (a *Assistant) Answer(ctx context.Context, query string) Answer {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{Response: emptyQueryMessage}
	}

	route, err := a.llm.Generate(ctx, llm.Request{Prompt: routerPrompt(query), Operation: "assistant:route"})
	if err != nil {
		a.logger.Error("assistant routing failed", "error", err)
		return Answer{Response: failureMessage}
	}

	call, ok := ParseToolCall(route.Text)
	if !ok {
		return Answer{Response: route.Text, Success: true}
	}

	args := a.toolArgs(ctx, call, query)
	a.logger.Info("calling assistant tool", "tool", call.Name, "args", args)
	result, err := a.tools.Call(ctx, call.Name, args)
	if err != nil {
		result = unknownToolResult
	}

	answer, err := a.llm.Generate(ctx, llm.Request{Prompt: followUpPrompt(call.Name, result, query), Operation: "assistant:answer"})
	if err != nil {
		a.logger.Error("assistant follow-up failed", "tool", call.Name, "error", err)
		return Answer{Response: fmt.Sprintf("I encountered an error while processing your request: %v. Please try rephrasing your question.", err)}
	}
	return Answer{Response: answer.Text, Success: true}
}

// toolArgs decodes PARAMS, falling back to heuristics over the query when the
// model's JSON is unusable.
func (a *Assistant) toolArgs(ctx context.Context, call ToolCall, query string) map[string]string {
	var raw map[string]any
	if err := json.Unmarshal([]byte(call.Params), &raw); err == nil && len(raw) > 0 {
		args := make(map[string]string, len(raw))
		for k, v := range raw {
			args[k] = stringify(v)
		}
		return args
	}

	switch call.Name {
	case ToolStockPrice, ToolAnalyzeStock:
		return map[string]string{"symbol": a.guessSymbol(ctx, query)}
	case ToolMarketOverview:
		symbols := tickerPattern.FindAllString(strings.ToUpper(query), -1)
		if len(symbols) > 1 {
			if len(symbols) > maxFallbackSymbols {
				symbols = symbols[:maxFallbackSymbols]
			}
			return map[string]string{"symbols": strings.Join(symbols, ",")}
		}
		return map[string]string{"symbols": defaultOverviewSymbols}
	default:
		return map[string]string{"query": query}
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}

// guessSymbol prefers tickers written in capitals, then a catalogue lookup by
// company name, then any short word upper-cased. The upper-cased match comes
// last because it also hits ordinary words such as "how".
func (a *Assistant) guessSymbol(ctx context.Context, query string) string {
	if m := writtenTickerPattern.FindString(query); m != "" {
		return m
	}
	if a.symbols != nil {
		for _, word := range strings.Fields(strings.ToLower(query)) {
			word = strings.Trim(word, "?.,!'\"")
			if len(word) <= 2 {
				continue
			}
			if sym, err := a.symbols.FindSymbolByName(ctx, word); err == nil && sym != "" {
				return sym
			}
		}
	}
	if m := tickerPattern.FindString(strings.ToUpper(query)); m != "" {
		return m
	}
	return defaultSymbol
}

func routerPrompt(query string) string {
	var tools strings.Builder
	names := make([]string, len(Tools))
	for i, t := range Tools {
		names[i] = t.Name
		keys := make([]string, 0, len(t.Parameters))
		for k := range t.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		params := make([]string, len(keys))
		for j, k := range keys {
			params[j] = fmt.Sprintf("%q: %q", k, t.Parameters[k])
		}
		fmt.Fprintf(&tools, "Tool: %s\nDescription: %s\nExamples: %s\nParameters: {%s}\n\n",
			t.Name, t.Description, strings.Join(t.Examples, ", "), strings.Join(params, ", "))
	}

	return fmt.Sprintf(`You are a helpful financial AI assistant. The user asked: "%s"

Available tools:
%s
Based on the user's question, determine which tool(s) to use and provide a helpful response. You can use multiple tools if needed.

IMPORTANT GUIDELINES:
1. If the user asks about a specific stock price, use get_stock_price
2. If the user asks for analysis, investment advice, or performance, use analyze_stock
3. If the user asks to find or search for stocks, use search_stocks
4. If the user asks to compare multiple stocks, use get_market_overview
5. If the user asks for investment advice, be helpful but include appropriate disclaimers
6. If the question is not financial-related, politely redirect to financial topics
7. Extract stock symbols from company names when possible (e.g., "Apple" = "AAPL", "Tesla" = "TSLA")

Respond with:
TOOL_CALL: <tool_name>
PARAMS: <parameters as JSON>

If you can answer directly without tools, provide a helpful response.

Available tools: %s`, query, tools.String(), strings.Join(names, ", "))
}

func followUpPrompt(tool, result, query string) string {
	return fmt.Sprintf(`The tool %s returned the following result:

%s

Please provide a helpful, natural language response to the user's original query: "%s"

Make the response informative, conversational, and easy to understand. If this was an investment-related question, include appropriate disclaimers about not providing financial advice.`, tool, result, query)
}
