package unifiedllm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CompleterOptions configures a Completer.
type CompleterOptions struct {
	Model       string
	Provider    string
	System      string // prepended as a system message when set
	Temperature *float64
	MaxTokens   *int
	Retry       RetryPolicy
	Timeout     time.Duration // per attempt; zero means no limit
}

// Completer turns a single prompt into a single completion. Each call is sent
// through the Client with the configured retry policy, and each attempt gets
// its own timeout.
type Completer struct {
	client *Client
	opts   CompleterOptions

	mu    sync.Mutex
	usage Usage
	calls int
}

// NewCompleter creates a Completer backed by client.
func NewCompleter(client *Client, opts CompleterOptions) *Completer {
	return &Completer{client: client, opts: opts}
}

// Complete sends prompt as a user message and returns the assistant text.
// Transient failures are retried; the returned error is the last failure.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	if c.client == nil {
		return "", &ConfigurationError{SDKError: SDKError{Message: "completer has no client"}}
	}

	req := Request{
		Model:       c.opts.Model,
		Provider:    c.opts.Provider,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
	if c.opts.System != "" {
		req.Messages = append(req.Messages, SystemMessage(c.opts.System))
	}
	req.Messages = append(req.Messages, UserMessage(prompt))

	resp, err := Retry(ctx, c.opts.Retry, func(ctx context.Context) (*Response, error) {
		return c.attempt(ctx, req)
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.usage = c.usage.Add(resp.Usage)
	c.calls++
	c.mu.Unlock()

	return resp.Text(), nil
}

func (c *Completer) attempt(ctx context.Context, req Request) (*Response, error) {
	if c.opts.Timeout <= 0 {
		return c.client.Complete(ctx, req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.client.Complete(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var timeout *RequestTimeoutError
		if !errors.As(err, &timeout) {
			err = &RequestTimeoutError{SDKError: SDKError{Message: "attempt timed out after " + c.opts.Timeout.String(), Cause: err}}
		}
	}
	return resp, err
}

// Usage returns the token usage accumulated over successful calls and the
// number of those calls.
func (c *Completer) Usage() (Usage, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage, c.calls
}
