// Package unifiedllm is a provider-agnostic text completion client. It wraps
// the gollm library (github.com/teilomillet/gollm) and go-openai
// (github.com/sashabaranov/go-openai) behind one ProviderAdapter interface.
//
// # Architecture
//
//   - ProviderAdapter and the shared Request/Response types
//   - Error classification (IsRetryable) and Retry with exponential backoff
//   - Client, which routes by provider name and applies Middleware
//   - Completer, which turns one prompt into one completion with retries and
//     per-attempt timeouts
//
// # Quick Start
//
// A local Ollama server through its OpenAI-compatible endpoint:
//
//	adapter := unifiedllm.NewOpenAIAdapter("",
//	    unifiedllm.WithOpenAIName("ollama"),
//	    unifiedllm.WithBaseURL("http://localhost:11434/v1"),
//	)
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("ollama", adapter),
//	    unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(logger)),
//	)
//	completer := unifiedllm.NewCompleter(client, unifiedllm.CompleterOptions{
//	    Retry:   unifiedllm.DefaultRetryPolicy(),
//	    Timeout: 2 * time.Minute,
//	})
//	text, err := completer.Complete(ctx, "Say hello")
//
// Hosted providers go through gollm:
//
//	adapter, _ := unifiedllm.NewGollmAdapter("anthropic", os.Getenv("ANTHROPIC_API_KEY"))
//
// # Model Catalog
//
// A small catalog names each provider's default model and resolves aliases:
//
//	info := unifiedllm.DefaultModel("ollama")
//	id := unifiedllm.ResolveModel("sonnet")
package unifiedllm
