package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quantinsight/quantinsight/internal/llm"
	"github.com/quantinsight/quantinsight/internal/logging"
	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/models"
)

type fakeMarket struct {
	quotes  map[string]models.Quote
	closes  []float64
	results []models.SearchResult
	asked   []string
}

func (f *fakeMarket) Quote(_ context.Context, symbol string) (models.Quote, error) {
	f.asked = append(f.asked, symbol)
	q, ok := f.quotes[symbol]
	if !ok {
		return models.Quote{}, marketdata.ErrNoData
	}
	return q, nil
}

func (f *fakeMarket) BatchQuotes(_ context.Context, symbols []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote)
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (f *fakeMarket) Closes(context.Context, string, marketdata.Window) ([]float64, error) {
	if f.closes == nil {
		return nil, marketdata.ErrNoData
	}
	return f.closes, nil
}

func (f *fakeMarket) Search(context.Context, string) ([]models.SearchResult, error) {
	return f.results, nil
}

type fakeLookup map[string]string

func (f fakeLookup) FindSymbolByName(_ context.Context, name string) (string, error) {
	if sym, ok := f[name]; ok {
		return sym, nil
	}
	return "", errors.New("not found")
}

func newMarket() *fakeMarket {
	return &fakeMarket{
		quotes: map[string]models.Quote{
			"AAPL": {Symbol: "AAPL", Price: 190, Open: 188, High: 191, Low: 187, Change: 2.5, ChangePercent: 1.33, PreviousClose: 187.5, Provider: "yahoo", PriceSource: "Regular Hours"},
			"TSLA": {Symbol: "TSLA", Price: 250, Change: -5, ChangePercent: -1.96, High: 256, Low: 249, PreviousClose: 255, Provider: "finnhub"},
		},
		closes:  []float64{170, 172, 175, 180, 185, 188, 190},
		results: []models.SearchResult{{Symbol: "NVDA", Name: "NVIDIA Corporation", Exchange: "NMS"}},
	}
}

func TestParseToolCall(t *testing.T) {
	call, ok := ParseToolCall("Sure.\nTOOL_CALL: get_stock_price\nPARAMS: {\"symbol\": \"AAPL\"}")
	if !ok || call.Name != ToolStockPrice || call.Params != `{"symbol": "AAPL"}` {
		t.Fatalf("unexpected call %+v ok=%v", call, ok)
	}
	if _, ok := ParseToolCall("TOOL_CALL: analyze_stock"); ok {
		t.Error("expected no call without PARAMS")
	}
}

func TestAnswerEmptyQuery(t *testing.T) {
	a := New(llm.NewMockClient(), NewToolkit(newMarket()), nil, logging.Discard())
	got := a.Answer(context.Background(), "   ")
	if got.Success || got.Response != "Please provide a question about stocks or financial data." {
		t.Errorf("unexpected answer %+v", got)
	}
}

func TestAnswerDirectResponse(t *testing.T) {
	a := New(llm.NewScriptedClient("Markets close at 4pm Eastern."), NewToolkit(newMarket()), nil, logging.Discard())
	got := a.Answer(context.Background(), "When does the market close?")
	if !got.Success || got.Response != "Markets close at 4pm Eastern." {
		t.Errorf("unexpected answer %+v", got)
	}
}

func TestAnswerCallsTool(t *testing.T) {
	client := llm.NewScriptedClient("TOOL_CALL: get_stock_price\nPARAMS: {\"symbol\": \"apple\"}", "Apple trades at $190.")
	market := newMarket()
	a := New(client, NewToolkit(market), nil, logging.Discard())

	got := a.Answer(context.Background(), "How much is Apple?")
	if !got.Success || got.Response != "Apple trades at $190." {
		t.Fatalf("unexpected answer %+v", got)
	}
	if len(market.asked) != 1 || market.asked[0] != "AAPL" {
		t.Errorf("expected corrected symbol lookup, got %v", market.asked)
	}
	reqs := client.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(reqs))
	}
	if !strings.Contains(reqs[0].Prompt, `The user asked: "How much is Apple?"`) || !strings.Contains(reqs[0].Prompt, "Tool: analyze_stock") {
		t.Error("router prompt missing query or tools")
	}
	if !strings.Contains(reqs[1].Prompt, "REAL-TIME STOCK DATA: AAPL") {
		t.Errorf("follow-up prompt missing tool result: %s", reqs[1].Prompt)
	}
}

func TestToolArgsFallbacks(t *testing.T) {
	a := New(llm.NewMockClient(), NewToolkit(newMarket()), fakeLookup{"tesla": "TSLA"}, logging.Discard())
	ctx := context.Background()

	tests := []struct {
		name  string
		call  ToolCall
		query string
		key   string
		want  string
	}{
		{"written ticker", ToolCall{Name: ToolStockPrice, Params: "AAPL"}, "Should I buy NVDA today?", "symbol", "NVDA"},
		{"name lookup", ToolCall{Name: ToolAnalyzeStock, Params: "tesla"}, "analyze tesla please", "symbol", "TSLA"},
		{"name before plain words", ToolCall{Name: ToolStockPrice, Params: "?"}, "how is tesla doing", "symbol", "TSLA"},
		{"search", ToolCall{Name: ToolSearchStocks, Params: "oops"}, "find ai stocks", "query", "find ai stocks"},
		{"overview symbols", ToolCall{Name: ToolMarketOverview, Params: "x"}, "compare amd and intc", "symbols", "AMD,AND,INTC"},
		{"json list", ToolCall{Name: ToolMarketOverview, Params: `{"symbols": ["AAPL", "MSFT"]}`}, "compare", "symbols", "AAPL,MSFT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := a.toolArgs(ctx, tt.call, tt.query)
			if got := args[tt.key]; got != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
			}
		})
	}

	if got := a.toolArgs(ctx, ToolCall{Name: ToolMarketOverview, Params: "x"}, "overview"); got["symbols"] != "AAPL,GOOGL,MSFT" {
		t.Errorf("expected default overview symbols, got %v", got)
	}
}

func TestAnswerModelFailure(t *testing.T) {
	client := &llm.MockClient{Respond: func(llm.Request) (string, error) { return "", errors.New("quota") }}
	a := New(client, NewToolkit(newMarket()), nil, logging.Discard())
	got := a.Answer(context.Background(), "price of AAPL")
	if got.Success || !strings.Contains(got.Response, "encountered an error") {
		t.Errorf("unexpected answer %+v", got)
	}
}

func TestToolkitReports(t *testing.T) {
	tk := NewToolkit(newMarket())
	tk.now = func() time.Time { return time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	price := tk.StockPrice(ctx, "aapl")
	for _, want := range []string{"REAL-TIME STOCK DATA: AAPL", "• Price: $190.00 (Regular Trading)", "• Daily Change: $+2.50 (+1.33%)", "Moderate gains", "Yahoo Finance"} {
		if !strings.Contains(price, want) {
			t.Errorf("price report missing %q:\n%s", want, price)
		}
	}

	analysis := tk.AnalyzeStock(ctx, "AAPL")
	for _, want := range []string{"COMPREHENSIVE STOCK ANALYSIS: AAPL", "• Price Range: $170.00 - $190.00", "• Short-term Trend: Upward", "Analysis based on 7 trading days"} {
		if !strings.Contains(analysis, want) {
			t.Errorf("analysis missing %q:\n%s", want, analysis)
		}
	}

	if got := tk.StockPrice(ctx, "ZZZZ"); !strings.HasPrefix(got, "Unable to get price data for ZZZZ") {
		t.Errorf("unexpected missing-symbol report %q", got)
	}

	search := tk.SearchStocks(ctx, "chips")
	if search != "Found 1 stocks matching 'chips':\n• NVDA - NVIDIA Corporation (NMS)" {
		t.Errorf("unexpected search report %q", search)
	}

	overview := tk.MarketOverview(ctx, "aapl, tesla, XYZ")
	want := "Market Overview for 3 stocks:\n• AAPL: $190.00 (+1.33%)\n• TSLA: $250.00 (-1.96%)\n• XYZ: Data unavailable"
	if overview != want {
		t.Errorf("overview = %q, want %q", overview, want)
	}

	if _, err := tk.Call(ctx, "delete_everything", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}
