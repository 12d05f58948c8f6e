package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quantinsight/quantinsight/internal/assistant"
	"github.com/quantinsight/quantinsight/internal/logging"
)

type stubTools struct {
	lastName string
	lastArgs map[string]string
}

func (s *stubTools) Call(_ context.Context, name string, args map[string]string) (string, error) {
	s.lastName, s.lastArgs = name, args
	switch name {
	case assistant.ToolStockPrice:
		return "AAPL is trading at $190.00", nil
	case "broken":
		return "", errors.New("provider down")
	default:
		return "", assistant.ErrUnknownTool
	}
}

func newTestServer() (*MCPServer, *stubTools) {
	tools := &stubTools{}
	return NewMCPServer(tools, "test", logging.Discard()), tools
}

func request(t *testing.T, method string, params any) MCPRequest {
	t.Helper()
	req := MCPRequest{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatal(err)
		}
		req.Params = raw
	}
	return req
}

func TestInitialize(t *testing.T) {
	s, _ := newTestServer()
	resp := s.Handle(context.Background(), request(t, "initialize", nil))
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	result := resp.Result.(map[string]any)
	if result["protocolVersion"] != protocolVersion {
		t.Errorf("unexpected protocol version %v", result["protocolVersion"])
	}
}

func TestToolsListMirrorsAssistantCatalogue(t *testing.T) {
	s, _ := newTestServer()
	resp := s.Handle(context.Background(), request(t, "tools/list", nil))
	tools := resp.Result.(map[string]any)["tools"].([]ToolDefinition)
	if len(tools) != len(assistant.Tools) {
		t.Fatalf("expected %d tools, got %d", len(assistant.Tools), len(tools))
	}
	for i, tool := range tools {
		if tool.Name != assistant.Tools[i].Name {
			t.Errorf("tool %d: got %q, want %q", i, tool.Name, assistant.Tools[i].Name)
		}
		schema := tool.InputSchema.(map[string]any)
		if len(schema["required"].([]string)) != len(assistant.Tools[i].Parameters) {
			t.Errorf("tool %s: required params mismatch", tool.Name)
		}
	}
}

func TestToolsCall(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		wantCode int
		wantText string
	}{
		{"success", assistant.ToolStockPrice, 0, "AAPL is trading at $190.00"},
		{"unknown tool", "nope", codeInvalidParams, ""},
		{"tool failure", "broken", codeInternalError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tools := newTestServer()
			resp := s.Handle(context.Background(), request(t, "tools/call", map[string]any{
				"name":      tt.tool,
				"arguments": map[string]any{"symbol": "AAPL", "limit": 3},
			}))
			if tt.wantCode != 0 {
				if resp.Error == nil || resp.Error.Code != tt.wantCode {
					t.Fatalf("expected error code %d, got %+v", tt.wantCode, resp.Error)
				}
				return
			}
			if resp.Error != nil {
				t.Fatalf("unexpected error %+v", resp.Error)
			}
			content := resp.Result.(map[string]any)["content"].([]map[string]any)
			if content[0]["text"] != tt.wantText {
				t.Errorf("unexpected text %v", content[0]["text"])
			}
			if tools.lastArgs["symbol"] != "AAPL" || tools.lastArgs["limit"] != "3" {
				t.Errorf("arguments not converted to strings: %v", tools.lastArgs)
			}
		})
	}
}

func TestNotificationsGetNoResponse(t *testing.T) {
	s, _ := newTestServer()
	req := MCPRequest{JSONRPC: "2.0", Method: "notifications/initialized"}
	if resp := s.Handle(context.Background(), req); resp != nil {
		t.Fatalf("expected no response, got %+v", resp)
	}
}

func TestUnknownMethod(t *testing.T) {
	s, _ := newTestServer()
	resp := s.Handle(context.Background(), request(t, "resources/list", nil))
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestServeStdio(t *testing.T) {
	s, _ := newTestServer()
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":"two","method":"tools/call","params":{"name":"get_stock_price","arguments":{"symbol":"AAPL"}}}`,
	}, "\n")
	var out bytes.Buffer
	if err := s.ServeStdio(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("ServeStdio: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 responses, got %d: %q", len(lines), out.String())
	}
	var parseErr MCPResponse
	if err := json.Unmarshal([]byte(lines[1]), &parseErr); err != nil {
		t.Fatal(err)
	}
	if parseErr.Error == nil || parseErr.Error.Code != codeParseError {
		t.Errorf("expected parse error, got %s", lines[1])
	}
	if !strings.Contains(lines[2], `"id":"two"`) || !strings.Contains(lines[2], "190.00") {
		t.Errorf("unexpected tool response %s", lines[2])
	}
}

func TestServeHTTP(t *testing.T) {
	s, _ := newTestServer()
	h := enableCORS(s)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET: expected 405, got %d", rec.Code)
	}

	body := `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST: expected 200, got %d", rec.Code)
	}
	var resp struct {
		ID     int `json:"id"`
		Result struct {
			Tools []ToolDefinition `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != 7 || len(resp.Result.Tools) != len(assistant.Tools) {
		t.Fatalf("unexpected response %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{")))
	if !strings.Contains(rec.Body.String(), "-32700") {
		t.Fatalf("expected parse error, got %s", rec.Body.String())
	}
}
