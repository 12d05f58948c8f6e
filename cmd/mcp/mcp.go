package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/quantinsight/quantinsight/internal/assistant"
)

const (
	protocolVersion = "2024-11-05"
	maxMessageBytes = 1 << 20

	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// MCPRequest represents an MCP protocol request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request expects no response.
func (r MCPRequest) isNotification() bool {
	return len(r.ID) == 0
}

// MCPResponse represents an MCP protocol response
type MCPResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolDefinition represents an MCP tool definition
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// ToolCaller runs a named market data tool.
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]string) (string, error)
}

// MCPServer exposes the assistant's market data tools over JSON-RPC.
type MCPServer struct {
	tools   ToolCaller
	version string
	logger  *slog.Logger
}

func NewMCPServer(tools ToolCaller, version string, logger *slog.Logger) *MCPServer {
	return &MCPServer{tools: tools, version: version, logger: logger}
}

// Handle dispatches one request. It returns nil for notifications.
func (s *MCPServer) Handle(ctx context.Context, req MCPRequest) *MCPResponse {
	s.logger.Debug("MCP request received", "method", req.Method)

	var (
		result any
		rpcErr *MCPError
	)
	switch req.Method {
	case "initialize":
		result = map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "quantinsight", "version": s.version},
		}
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = map[string]any{"tools": toolDefinitions()}
	case "tools/call":
		result, rpcErr = s.callTool(ctx, req.Params)
	default:
		if req.isNotification() {
			return nil
		}
		rpcErr = &MCPError{Code: codeMethodNotFound, Message: "Method not found: " + req.Method}
	}

	if req.isNotification() {
		return nil
	}
	resp := &MCPResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func (s *MCPServer) callTool(ctx context.Context, raw json.RawMessage) (any, *MCPError) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &MCPError{Code: codeInvalidParams, Message: "Invalid params: " + err.Error()}
	}

	args := make(map[string]string, len(params.Arguments))
	for k, v := range params.Arguments {
		switch val := v.(type) {
		case string:
			args[k] = val
		case nil:
		default:
			args[k] = fmt.Sprint(val)
		}
	}

	text, err := s.tools.Call(ctx, params.Name, args)
	if errors.Is(err, assistant.ErrUnknownTool) {
		return nil, &MCPError{Code: codeInvalidParams, Message: "Unknown tool: " + params.Name}
	}
	if err != nil {
		s.logger.Error("tool call failed", "tool", params.Name, "error", err)
		return nil, &MCPError{Code: codeInternalError, Message: "Tool failed: " + err.Error()}
	}

	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	}, nil
}

// toolDefinitions converts the assistant catalogue into MCP tool schemas.
func toolDefinitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(assistant.Tools))
	for _, t := range assistant.Tools {
		props := make(map[string]any, len(t.Parameters))
		required := make([]string, 0, len(t.Parameters))
		for name, desc := range t.Parameters {
			props[name] = map[string]any{"type": "string", "description": desc}
			required = append(required, name)
		}
		defs = append(defs, ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	return defs
}

// ServeStdio reads newline delimited requests from r and writes responses to w
// until r is exhausted or ctx is cancelled.
func (s *MCPServer) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageBytes)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		var resp *MCPResponse
		if err := json.Unmarshal(line, &req); err != nil {
			resp = &MCPResponse{
				JSONRPC: "2.0",
				ID:      json.RawMessage("null"),
				Error:   &MCPError{Code: codeParseError, Message: "Parse error: " + err.Error()},
			}
		} else {
			resp = s.Handle(ctx, req)
		}
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

// ServeHTTP handles POST /mcp with one JSON-RPC request per body.
func (s *MCPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MCPRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeRPC(w, &MCPResponse{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &MCPError{Code: codeParseError, Message: "Parse error: " + err.Error()},
		})
		return
	}

	resp := s.Handle(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeRPC(w, resp)
}

// writeRPC always answers 200; MCP carries errors in the body.
func writeRPC(w http.ResponseWriter, resp *MCPResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// enableCORS adds CORS headers
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
