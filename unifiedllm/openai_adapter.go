package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to any OpenAI-compatible chat completions endpoint:
// OpenAI itself, or a local server such as Ollama (http://localhost:11434/v1).
type OpenAIAdapter struct {
	name   string
	client *openai.Client
	model  string
}

// OpenAIAdapterOption configures an OpenAIAdapter.
type OpenAIAdapterOption func(*openAIAdapterConfig)

type openAIAdapterConfig struct {
	name       string
	baseURL    string
	model      string
	httpClient *http.Client
}

// WithOpenAIName overrides the provider name reported by the adapter.
func WithOpenAIName(name string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.name = name
	}
}

// WithBaseURL points the adapter at a compatible endpoint.
func WithBaseURL(url string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.baseURL = url
	}
}

// WithOpenAIModel sets the model used when a request names none.
func WithOpenAIModel(model string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.model = model
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.httpClient = hc
	}
}

// NewOpenAIAdapter creates an adapter for an OpenAI-compatible endpoint. An
// empty apiKey is allowed for local servers that do not check it.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIAdapterOption) *OpenAIAdapter {
	cfg := &openAIAdapterConfig{
		name:       "openai",
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	oc := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.baseURL, "/")
	}
	oc.HTTPClient = cfg.httpClient

	model := ResolveModel(cfg.model)
	if model == "" {
		if info := DefaultModel(cfg.name); info != nil {
			model = info.ID
		}
	}

	return &OpenAIAdapter{
		name:   cfg.name,
		client: openai.NewClientWithConfig(oc),
		model:  model,
	}
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Complete sends a chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	creq, err := a.translateRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr, err)
		}
		return nil, a.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &EmptyResponseError{SDKError: SDKError{Message: a.name + " returned no choices"}}
	}

	choice := resp.Choices[0]
	return &Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Provider:     a.name,
		Message:      AssistantMessage(choice.Message.Content),
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func (a *OpenAIAdapter) translateRequest(req Request) (openai.ChatCompletionRequest, error) {
	model := ResolveModel(req.Model)
	if model == "" {
		model = a.model
	}
	if model == "" {
		return openai.ChatCompletionRequest{}, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("no model configured for provider %q", a.name),
		}}
	}

	creq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Stop:     req.StopSequences,
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		creq.MaxTokens = *req.MaxTokens
	}
	return creq, nil
}

// translateError maps go-openai errors into the unified hierarchy.
func (a *OpenAIAdapter) translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return wrapCause(ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, a.name, code, nil), err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return wrapCause(ErrorFromStatusCode(reqErr.HTTPStatusCode, msg, a.name, "", nil), err)
	}

	return &NetworkError{SDKError: SDKError{Message: a.name + " request failed", Cause: err}}
}

// wrapCause attaches cause to errors built by ErrorFromStatusCode.
func wrapCause(err, cause error) error {
	switch e := err.(type) {
	case *InvalidRequestError:
		e.Cause = cause
	case *AuthenticationError:
		e.Cause = cause
	case *AccessDeniedError:
		e.Cause = cause
	case *NotFoundError:
		e.Cause = cause
	case *RequestTimeoutError:
		e.Cause = cause
	case *ContextLengthError:
		e.Cause = cause
	case *RateLimitError:
		e.Cause = cause
	case *ServerError:
		e.Cause = cause
	case *ProviderError:
		e.Cause = cause
	}
	return err
}

func mapFinishReason(r openai.FinishReason) FinishReason {
	raw := string(r)
	switch r {
	case openai.FinishReasonStop:
		return FinishReason{Reason: "stop", Raw: raw}
	case openai.FinishReasonLength:
		return FinishReason{Reason: "length", Raw: raw}
	case openai.FinishReasonContentFilter:
		return FinishReason{Reason: "content_filter", Raw: raw}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}
