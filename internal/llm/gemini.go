package llm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/quantinsight/quantinsight/internal/retry"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// GeminiClient calls the Gemini API with all safety filters relaxed, retrying
// quota errors and neutralizing prompts the model refuses.
type GeminiClient struct {
	client *genai.Client
	config GeminiConfig
	retry  retry.Policy
	logger *slog.Logger
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: GOOGLE_API_KEY is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: cfg,
		retry: retry.Policy{
			MaxRetries:     3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     60 * time.Second,
			BackoffFactor:  2,
			Jitter:         true,
		},
		logger: logger,
	}, nil
}

func (c *GeminiClient) Model() string { return c.config.Model }

func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, cat := range categories {
		settings = append(settings, &genai.SafetySetting{Category: cat, Threshold: genai.HarmBlockThresholdBlockNone})
	}
	return settings
}

func (c *GeminiClient) generateConfig(req Request) *genai.GenerateContentConfig {
	temp := c.config.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTokens := c.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(temp),
		SafetySettings: safetySettings(),
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.generateWithRetry(ctx, req.Prompt, req)
	if err != nil {
		return nil, err
	}
	if resp.Text != "" {
		return resp, nil
	}

	neutral := NeutralizePrompt(req.Prompt)
	if neutral == req.Prompt {
		return nil, ErrBlocked
	}
	c.logger.Info("gemini response blocked, retrying with neutralized prompt", "operation", req.Operation)

	retried, err := c.generateWithRetry(ctx, neutral, req)
	if err != nil {
		return nil, err
	}
	if retried.Text == "" {
		return nil, ErrBlocked
	}
	retried.InputTokens += resp.InputTokens
	retried.OutputTokens += resp.OutputTokens
	return retried, nil
}

func (c *GeminiClient) generateWithRetry(ctx context.Context, prompt string, req Request) (*Response, error) {
	var out *Response
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(prompt), c.generateConfig(req))
		if err != nil {
			if delay, ok := rateLimitDelay(err); ok {
				c.logger.Warn("gemini rate limited", "retry_after", delay, "operation", req.Operation)
				return retry.NewRetryableErrorWithDelay(fmt.Errorf("gemini: %w", err), delay)
			}
			return fmt.Errorf("chat generation failed: %w", err)
		}
		out = convertGeminiResponse(resp, c.config.Model)
		if out.Text == "" && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			c.logger.Warn("gemini blocked prompt", "reason", resp.PromptFeedback.BlockReason, "operation", req.Operation)
		}
		return nil
	})
	return out, err
}

func convertGeminiResponse(resp *genai.GenerateContentResponse, model string) *Response {
	out := &Response{Model: model}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		if text.Len() > 0 {
			break
		}
	}
	out.Text = strings.TrimSpace(text.String())
	return out
}

var (
	retryDelayJSON  = regexp.MustCompile(`retryDelay"?\s*:\s*"?(\d+(?:\.\d+)?)s`)
	retryDelayProse = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)\s*s`)
)

const defaultRateLimitDelay = 10 * time.Second

// rateLimitDelay reports whether err is a quota error and how long the API
// asked us to wait.
func rateLimitDelay(err error) (time.Duration, bool) {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if !strings.Contains(msg, "429") && !strings.Contains(msg, "RESOURCE_EXHAUSTED") && !strings.Contains(lower, "quota") {
		return 0, false
	}

	for _, re := range []*regexp.Regexp{retryDelayJSON, retryDelayProse} {
		if m := re.FindStringSubmatch(msg); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
				return time.Duration(secs * float64(time.Second)), true
			}
		}
	}
	return defaultRateLimitDelay, true
}
