package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/alnah/go-docpipe/internal/apierr"
)

// chatCompleter is the subset of *openai.Client used here.
// This allows injecting mocks in tests.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Compile-time interface compliance checks.
var (
	_ Client        = (*OpenAIClient)(nil)
	_ chatCompleter = (*openai.Client)(nil)
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint
// (OpenAI, DeepSeek, Volcengine Ark).
type OpenAIClient struct {
	provider Provider
	apiKey   string
	settings

	once sync.Once
	api  chatCompleter
}

// NewOpenAIClient creates a client for an OpenAI-compatible provider.
// Unknown provider names are treated as custom endpoints and need WithBaseURL.
func NewOpenAIClient(provider, apiKey string, opts ...Option) *OpenAIClient {
	p, ok := providers[provider]
	if !ok {
		p = Provider{Name: provider}
	}
	return &OpenAIClient{
		provider: p,
		apiKey:   apiKey,
		settings: newSettings(p, opts),
	}
}

// Complete sends one chat completion request.
// The SDK client is created on first use.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if err := c.validate(model); err != nil {
		return Response{}, &ServiceError{Provider: c.provider.Name, Model: model, Err: err}
	}

	c.once.Do(func() {
		if c.api == nil {
			c.api = c.newSDKClient()
		}
	})

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return Response{}, &ServiceError{Provider: c.provider.Name, Model: model, Err: classifyOpenAIError(err)}
	}
	if len(resp.Choices) == 0 {
		return Response{}, &ServiceError{
			Provider: c.provider.Name,
			Model:    model,
			Err:      fmt.Errorf("no choices in response: %w", apierr.ErrMalformedResponse),
		}
	}

	stats := c.pricing.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.logger.Debug("completion",
		zap.String("provider", c.provider.Name),
		zap.String("model", model),
		zap.Int("prompt_tokens", stats.PromptTokens),
		zap.Int("completion_tokens", stats.CompletionTokens),
	)

	return Response{Text: resp.Choices[0].Message.Content, Usage: stats}, nil
}

func (c *OpenAIClient) validate(model string) error {
	if c.apiKey == "" {
		return fmt.Errorf("missing API key (set %s): %w", c.provider.KeyEnv, apierr.ErrConfiguration)
	}
	if model == "" {
		return fmt.Errorf("no model configured for provider %q: %w", c.provider.Name, apierr.ErrConfiguration)
	}
	if c.baseURL == "" {
		return fmt.Errorf("no base URL configured for provider %q: %w", c.provider.Name, apierr.ErrConfiguration)
	}
	return nil
}

func (c *OpenAIClient) newSDKClient() *openai.Client {
	cfg := openai.DefaultConfig(c.apiKey)
	cfg.BaseURL = strings.TrimSuffix(c.baseURL, "/")
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

// classifyOpenAIError maps OpenAI API errors to apierr sentinel errors.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return classifyTransport(err)
}

// classifyStatus maps an HTTP status to a sentinel.
// Unrecognized statuses return err unchanged.
func classifyStatus(status int, msg string, err error) error {
	switch status {
	case http.StatusTooManyRequests:
		// Quota exceeded requires user action, a rate limit only needs waiting.
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			return fmt.Errorf("%s: %w", msg, apierr.ErrQuotaExceeded)
		}
		return fmt.Errorf("%s: %w", msg, apierr.ErrRateLimit)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%s: %w", msg, apierr.ErrQuotaExceeded)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, apierr.ErrAuthFailed)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", msg, apierr.ErrTimeout)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return fmt.Errorf("%s: %w", msg, apierr.ErrTimeout) // Retryable server error
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w", msg, apierr.ErrBadRequest)
	}
	return err
}

// classifyTransport handles errors that never reached the server.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	return err
}
