package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
)

// MockClient returns deterministic text without network access. Respond, when
// set, replaces the built-in generator.
type MockClient struct {
	Respond func(Request) (string, error)

	mu       sync.Mutex
	requests []Request
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// NewScriptedClient returns a mock that answers with responses in order and
// repeats the last one when it runs out.
func NewScriptedClient(responses ...string) *MockClient {
	var (
		mu sync.Mutex
		i  int
	)
	return &MockClient{Respond: func(Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(responses) == 0 {
			return "", ErrEmptyResponse
		}
		r := responses[min(i, len(responses)-1)]
		i++
		return r, nil
	}}
}

func (m *MockClient) Model() string { return "mock" }

// Requests returns every request seen so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	var (
		text string
		err  error
	)
	if m.Respond != nil {
		text, err = m.Respond(req)
	} else {
		text = mockText(req)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{
		Text:         text,
		Model:        m.Model(),
		InputTokens:  len(strings.Fields(req.System + " " + req.Prompt)),
		OutputTokens: len(strings.Fields(text)),
	}, nil
}

var mockTickerPattern = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

var mockTones = []string{"constructive", "balanced", "cautious"}

func mockText(req Request) string {
	subject := "the requested security"
	for _, m := range mockTickerPattern.FindAllString(req.Prompt, -1) {
		if len(m) > 1 {
			subject = m
			break
		}
	}
	h := fnv.New32a()
	h.Write([]byte(req.Prompt))
	tone := mockTones[h.Sum32()%uint32(len(mockTones))]

	return fmt.Sprintf("%s shows a %s setup based on the available data. Price action, recent news flow and broader market conditions were reviewed together. "+
		"Key levels and catalysts should be monitored closely because conditions can change quickly. This output was generated offline without a live language model.",
		subject, tone)
}
