package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/llm"
	"github.com/quantinsight/quantinsight/internal/retry"
)

// Event types emitted while a crew runs.
const (
	EventCached   = "cached"
	EventStart    = "start"
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
	EventComplete = "complete"
)

// Event is a progress notification, serialized as one SSE frame.
type Event struct {
	Type         string `json:"type"`
	Ticker       string `json:"ticker,omitempty"`
	AnalysisType string `json:"analysis_type,omitempty"`
	Agent        string `json:"agent,omitempty"`
	Status       string `json:"status,omitempty"`
	Result       string `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// Observer records per-agent task durations, typically a metrics collector.
type Observer interface {
	ObserveAgent(agent, status string, d time.Duration)
}

// Crew executes tasks sequentially against one LLM, passing each task's
// output to the tasks after it.
type Crew struct {
	LLM          llm.Client
	Logger       *slog.Logger
	Observer     Observer
	Temperature  float32
	MaxTokens    int
	RetryBackoff time.Duration
}

// Output is the result of one completed task.
type Output struct {
	Task Task
	Text string
}

// Run executes tasks in order and returns their outputs keyed by OutputKey.
// The first task that fails after its retries aborts the run.
func (c *Crew) Run(ctx context.Context, ticker string, tasks []Task, toolContext string, onEvent func(Event)) (map[string]string, error) {
	results := make(map[string]string, len(tasks))
	var previous []Output
	for _, task := range tasks {
		emit(onEvent, Event{Type: EventProgress, Agent: task.Agent.Key, Status: "running"})
		text, err := c.RunTask(ctx, ticker, task, toolContext, previous)
		if err != nil {
			emit(onEvent, Event{Type: EventError, Agent: task.Agent.Key, Error: err.Error()})
			return results, fmt.Errorf("%s: %w", task.Agent.Key, err)
		}
		emit(onEvent, Event{Type: EventResult, Agent: task.Agent.Key, Result: text})
		results[task.OutputKey] = text
		previous = append(previous, Output{Task: task, Text: text})
	}
	return results, nil
}

// RunTask executes a single task under its agent's time limit, retrying up to
// the agent's MaxRetryLimit.
func (c *Crew) RunTask(ctx context.Context, ticker string, task Task, toolContext string, previous []Output) (string, error) {
	start := time.Now()
	req := llm.Request{
		System:    task.Agent.SystemPrompt(),
		Prompt:    taskPrompt(task, toolContext, previous),
		MaxTokens: c.MaxTokens,
		Operation: "agent:" + task.Agent.Key,
		Metadata:  map[string]interface{}{"ticker": ticker, "agent": task.Agent.Key},
	}
	if c.Temperature > 0 {
		temp := c.Temperature
		req.Temperature = &temp
	}

	policy := retry.Policy{
		MaxRetries:     task.Agent.MaxRetryLimit,
		InitialBackoff: c.RetryBackoff,
		MaxBackoff:     c.RetryBackoff,
		BackoffFactor:  1,
	}

	var text string
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		callCtx := ctx
		if task.Agent.MaxExecutionTime > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, task.Agent.MaxExecutionTime)
			defer cancel()
		}
		resp, err := c.LLM.Generate(callCtx, req)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, llm.ErrBlocked) {
				return err
			}
			return retry.NewRetryableError(err)
		}
		text = strings.TrimSpace(resp.Text)
		if text == "" {
			return retry.NewRetryableError(llm.ErrEmptyResponse)
		}
		return nil
	})

	status := "success"
	if err != nil {
		status = "error"
		c.logger().Warn("agent task failed", "agent", task.Agent.Key, "ticker", ticker, "error", err)
	} else {
		c.logger().Debug("agent task completed", "agent", task.Agent.Key, "ticker", ticker, "duration_ms", time.Since(start).Milliseconds())
	}
	if c.Observer != nil {
		c.Observer.ObserveAgent(task.Agent.Key, status, time.Since(start))
	}
	return text, err
}

func (c *Crew) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func taskPrompt(task Task, toolContext string, previous []Output) string {
	var b strings.Builder
	b.WriteString(task.Description)
	b.WriteString("\n\nExpected output: ")
	b.WriteString(task.ExpectedOutput)
	if toolContext != "" {
		b.WriteString("\n\nCurrent market data:\n")
		b.WriteString(toolContext)
	}
	if len(previous) > 0 {
		b.WriteString("\n\nContext from previous analyses:")
		for _, p := range previous {
			fmt.Fprintf(&b, "\n\n[%s]\n%s", p.Task.Agent.Role, p.Text)
		}
	}
	return b.String()
}

func emit(onEvent func(Event), e Event) {
	if onEvent != nil {
		onEvent(e)
	}
}
