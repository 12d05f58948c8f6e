// Package llm provides a provider-neutral text generation client over Gemini,
// OpenAI and Anthropic, plus a deterministic mock for offline use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/config"
	"github.com/quantinsight/quantinsight/internal/inference"
)

var (
	// ErrBlocked means the model refused the prompt even after neutralization.
	ErrBlocked = errors.New("llm: prompt blocked")
	// ErrEmptyResponse means the model returned no text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// EmptyResponseFallback is returned by Safe clients when the model yields nothing.
const EmptyResponseFallback = "I'll provide a general analysis based on available information. For specific financial data, please consult current market sources."

// Request is a single-turn generation request.
type Request struct {
	System      string
	Prompt      string
	Temperature *float32
	MaxTokens   int
	// Operation labels the call in inference logs, e.g. "agent:market_analyst".
	Operation string
	Metadata  map[string]interface{}
}

// Response is the generated text and its accounting.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Client generates text.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// New builds the client selected by cfg.Provider, wrapped with call logging.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger, inf *inference.Logger) (Client, error) {
	var (
		client Client
		err    error
	)
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		client, err = NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.GoogleAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger)
	case "openai":
		client, err = NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "anthropic":
		client, err = NewAnthropicClient(AnthropicConfig{
			APIKey:      cfg.AnthropicKey,
			Model:       cfg.AnthropicModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "mock", "":
		client = NewMockClient()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithLogging(client, strings.ToLower(cfg.Provider), logger, inf), nil
}

type loggingClient struct {
	next     Client
	provider string
	logger   *slog.Logger
	inf      *inference.Logger
}

// WithLogging wraps c so that every call emits start and end log lines and an
// inference log row.
func WithLogging(c Client, provider string, logger *slog.Logger, inf *inference.Logger) Client {
	if provider == "" {
		provider = "mock"
	}
	return &loggingClient{next: c, provider: provider, logger: logger, inf: inf}
}

func (c *loggingClient) Model() string { return c.next.Model() }

func (c *loggingClient) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	c.logger.Info("[LLM CALL START]", "provider", c.provider, "model", c.next.Model(), "operation", req.Operation, "prompt_chars", len(req.Prompt))

	resp, err := c.next.Generate(ctx, req)
	latency := time.Since(start)

	var usage inference.Usage
	if resp != nil {
		usage = inference.Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}
		resp.Latency = latency
	}
	c.inf.LogLLMCall(ctx, c.provider, c.next.Model(), req.Operation, usage, latency, err, req.Metadata)

	if err != nil {
		c.logger.Warn("[LLM CALL END]", "provider", c.provider, "model", c.next.Model(), "operation", req.Operation, "latency_ms", latency.Milliseconds(), "error", err)
		return nil, err
	}
	c.logger.Info("[LLM CALL END]", "provider", c.provider, "model", c.next.Model(), "operation", req.Operation, "latency_ms", latency.Milliseconds(), "response_chars", len(resp.Text))
	return resp, nil
}

type safeClient struct {
	next Client
}

// Safe wraps c so that blocked or empty generations return
// EmptyResponseFallback instead of an error. Other errors pass through.
func Safe(c Client) Client {
	return &safeClient{next: c}
}

func (c *safeClient) Model() string { return c.next.Model() }

func (c *safeClient) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.next.Generate(ctx, req)
	if errors.Is(err, ErrBlocked) || errors.Is(err, ErrEmptyResponse) {
		return &Response{Text: EmptyResponseFallback, Model: c.next.Model()}, nil
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		resp.Text = EmptyResponseFallback
	}
	return resp, nil
}
