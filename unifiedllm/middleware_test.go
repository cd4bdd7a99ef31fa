package unifiedllm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func TestRateLimitMiddlewareAbortsOnCancel(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	client := NewClient(
		WithProvider("test", newMockAdapter("test", "ok")),
		WithMiddleware(RateLimitMiddleware(limiter)),
	)

	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("first call should pass the burst: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, Request{})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("expected aborted wait to be non-retryable")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	ok := NewClient(
		WithProvider("test", newMockAdapter("test", "ok")),
		WithMiddleware(LoggingMiddleware(logger)),
	)
	if _, err := ok.Complete(context.Background(), Request{Model: "m"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failing := &mockAdapter{name: "bad", err: &AuthenticationError{}}
	bad := NewClient(WithProvider("bad", failing), WithMiddleware(LoggingMiddleware(logger)))
	if _, err := bad.Complete(context.Background(), Request{Model: "m"}); err == nil {
		t.Fatal("expected error")
	}

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].Message != "llm call" {
		t.Errorf("unexpected success entry %+v", entries[0].Entry)
	}
	if got := entries[0].ContextMap()["output_tokens"]; got != int64(20) {
		t.Errorf("expected output_tokens 20, got %v", got)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["retryable"] != false {
		t.Errorf("unexpected failure entry %+v %v", entries[1].Entry, entries[1].ContextMap())
	}
	if entries[1].ContextMap()["provider"] != "bad" {
		t.Errorf("expected provider field, got %v", entries[1].ContextMap()["provider"])
	}
}
