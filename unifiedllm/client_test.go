package unifiedllm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	closed   bool
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:           "test_resp",
			Model:        "test-model",
			Provider:     name,
			Message:      AssistantMessage(text),
			FinishReason: FinishReason{Reason: "stop"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

// sequenceAdapter returns queued results in order and records each request.
type sequenceAdapter struct {
	name    string
	results []func(ctx context.Context) (*Response, error)

	mu       sync.Mutex
	requests []Request
}

func (s *sequenceAdapter) Name() string { return s.name }

func (s *sequenceAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if i >= len(s.results) {
		return nil, errors.New("sequence exhausted")
	}
	return s.results[i](ctx)
}

func textResult(text string) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) {
		return &Response{Message: AssistantMessage(text), Usage: Usage{InputTokens: 5, OutputTokens: 3, TotalTokens: 8}}, nil
	}
}

func errResult(err error) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) { return nil, err }
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(
		WithProvider("test-provider", mock),
		WithDefaultProvider("test-provider"),
	)

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", resp.Text())
	}
	if resp.Provider != "test-provider" {
		t.Errorf("expected provider %q, got %q", "test-provider", resp.Provider)
	}
}

func TestClientProviderRouting(t *testing.T) {
	ollama := newMockAdapter("ollama", "Ollama response")
	anthropic := newMockAdapter("anthropic", "Anthropic response")

	client := NewClient(
		WithProvider("ollama", ollama),
		WithProvider("anthropic", anthropic),
		WithDefaultProvider("ollama"),
	)

	resp, err := client.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("Hi")},
		Provider: "anthropic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Anthropic response" {
		t.Errorf("expected Anthropic response, got %q", resp.Text())
	}

	resp, err = client.Complete(context.Background(), Request{
		Model:    "llama3.1:8b-instruct-q8_0",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Ollama response" {
		t.Errorf("expected Ollama response, got %q", resp.Text())
	}

	if got := client.Providers(); len(got) != 2 || got[0] != "anthropic" || got[1] != "ollama" {
		t.Errorf("unexpected providers %v", got)
	}
}

func TestClientInfersProviderFromCatalog(t *testing.T) {
	client := &Client{providers: map[string]ProviderAdapter{
		"ollama":    newMockAdapter("ollama", "local"),
		"anthropic": newMockAdapter("anthropic", "remote"),
	}}

	resp, err := client.Complete(context.Background(), Request{Model: "sonnet"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "remote" {
		t.Errorf("expected catalog routing to anthropic, got %q", resp.Text())
	}
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %T", err)
	}

	_, err = NewClient(WithDefaultProvider("missing")).Complete(context.Background(), Request{})
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError for unregistered provider, got %T", err)
	}

	client = NewClient(
		WithProvider("ollama", newMockAdapter("ollama", "x")),
		WithProvider("openai", newMockAdapter("openai", "x")),
	)
	_, err = client.Complete(context.Background(), Request{Provider: "anthropic"})
	if err == nil || !strings.Contains(err.Error(), "(registered: ollama, openai)") {
		t.Errorf("error should list registered providers, got %v", err)
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	mock := newMockAdapter("test", "response")
	var order []int

	mw1 := func(ctx context.Context, req Request, next Handler) (*Response, error) {
		order = append(order, 1)
		resp, err := next(ctx, req)
		order = append(order, -1)
		return resp, err
	}
	mw2 := func(ctx context.Context, req Request, next Handler) (*Response, error) {
		order = append(order, 2)
		resp, err := next(ctx, req)
		order = append(order, -2)
		return resp, err
	}

	client := NewClient(
		WithProvider("test", mock),
		WithMiddleware(mw1, mw2),
	)

	_, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Onion pattern: first registered runs first for request, reverse for response.
	expected := []int{1, 2, -2, -1}
	if len(order) != len(expected) {
		t.Fatalf("expected %d middleware calls, got %d", len(expected), len(order))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("position %d: expected %d, got %d", i, v, order[i])
		}
	}
}

func TestClientMiddlewareSeesResolvedProvider(t *testing.T) {
	var provider string
	mw := func(ctx context.Context, req Request, next Handler) (*Response, error) {
		provider = req.Provider
		return next(ctx, req)
	}
	client := NewClient(WithProvider("only", newMockAdapter("only", "x")), WithMiddleware(mw))

	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider != "only" {
		t.Errorf("expected middleware to see provider %q, got %q", "only", provider)
	}
}

func TestClientRegisterProvider(t *testing.T) {
	client := NewClient()
	client.RegisterProvider("dynamic", newMockAdapter("dynamic", "dynamic response"))

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "dynamic response" {
		t.Errorf("expected %q, got %q", "dynamic response", resp.Text())
	}
}

func TestClientClose(t *testing.T) {
	mock := newMockAdapter("test", "x")
	client := NewClient(WithProvider("test", mock))
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mock.closed {
		t.Error("expected adapter to be closed")
	}
}

func TestCompleterRetriesTransientFailures(t *testing.T) {
	seq := &sequenceAdapter{name: "seq", results: []func(context.Context) (*Response, error){
		errResult(&ServerError{ProviderError: ProviderError{Retryable: true}}),
		errResult(&NetworkError{}),
		textResult("third time"),
	}}
	completer := NewCompleter(NewClient(WithProvider("seq", seq)), CompleterOptions{
		Model:  "m",
		System: "system text",
		Retry:  fastPolicy(3),
	})

	text, err := completer.Complete(context.Background(), "prompt text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "third time" {
		t.Errorf("expected %q, got %q", "third time", text)
	}
	if len(seq.requests) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(seq.requests))
	}

	req := seq.requests[0]
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[1].Content != "prompt text" {
		t.Errorf("unexpected request messages %+v", req.Messages)
	}

	usage, calls := completer.Usage()
	if calls != 1 || usage.TotalTokens != 8 {
		t.Errorf("unexpected usage %+v over %d calls", usage, calls)
	}
}

func TestCompleterGivesUpAfterPolicy(t *testing.T) {
	seq := &sequenceAdapter{name: "seq", results: []func(context.Context) (*Response, error){
		errResult(&ServerError{ProviderError: ProviderError{Retryable: true}}),
		errResult(&ServerError{ProviderError: ProviderError{Retryable: true}}),
		errResult(&ServerError{ProviderError: ProviderError{Retryable: true}}),
	}}
	completer := NewCompleter(NewClient(WithProvider("seq", seq)), CompleterOptions{Retry: fastPolicy(2)})

	_, err := completer.Complete(context.Background(), "p")
	var server *ServerError
	if !errors.As(err, &server) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if len(seq.requests) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(seq.requests))
	}
}

func TestCompleterAttemptTimeout(t *testing.T) {
	block := func(ctx context.Context) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	seq := &sequenceAdapter{name: "seq", results: []func(context.Context) (*Response, error){
		block,
		textResult("recovered"),
	}}
	completer := NewCompleter(NewClient(WithProvider("seq", seq)), CompleterOptions{
		Retry:   fastPolicy(1),
		Timeout: 20 * time.Millisecond,
	})

	text, err := completer.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "recovered" {
		t.Errorf("expected %q, got %q", "recovered", text)
	}
}

func TestCompleterWithoutClient(t *testing.T) {
	_, err := NewCompleter(nil, CompleterOptions{}).Complete(context.Background(), "p")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}
