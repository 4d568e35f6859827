package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/alnah/go-docpipe/internal/apierr"
)

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var (
	_ Client           = (*GeminiClient)(nil)
	_ contentGenerator = (*genai.Models)(nil)
)

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	provider Provider
	apiKey   string
	settings

	mu  sync.Mutex
	gen contentGenerator
}

// NewGeminiClient creates a Gemini client. The SDK client is created lazily
// on the first call so that construction never touches the network.
func NewGeminiClient(apiKey string, opts ...Option) *GeminiClient {
	p := providers[Gemini]
	return &GeminiClient{
		provider: p,
		apiKey:   apiKey,
		settings: newSettings(p, opts),
	}
}

// Complete sends one GenerateContent request.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	fail := func(err error) (Response, error) {
		return Response{}, &ServiceError{Provider: c.provider.Name, Model: model, Err: err}
	}

	if c.apiKey == "" {
		return fail(fmt.Errorf("missing API key (set %s): %w", c.provider.KeyEnv, apierr.ErrConfiguration))
	}
	if model == "" {
		return fail(fmt.Errorf("no model configured for provider %q: %w", c.provider.Name, apierr.ErrConfiguration))
	}

	gen, err := c.generator(ctx)
	if err != nil {
		return fail(err)
	}

	var cfg *genai.GenerateContentConfig
	if req.SystemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		}
	}

	result, err := gen.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return fail(classifyGeminiError(err))
	}

	text, ok := candidateText(result)
	if !ok {
		return fail(fmt.Errorf("empty response from Gemini: %w", apierr.ErrMalformedResponse))
	}

	var promptTokens, completionTokens int
	if result.UsageMetadata != nil {
		promptTokens = int(result.UsageMetadata.PromptTokenCount)
		completionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	stats := c.pricing.Cost(promptTokens, completionTokens)
	c.logger.Debug("completion",
		zap.String("provider", c.provider.Name),
		zap.String("model", model),
		zap.Int("prompt_tokens", stats.PromptTokens),
		zap.Int("completion_tokens", stats.CompletionTokens),
	)

	return Response{Text: text, Usage: stats}, nil
}

func (c *GeminiClient) generator(ctx context.Context) (contentGenerator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != nil {
		return c.gen, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w: %w", err, apierr.ErrConfiguration)
	}
	c.gen = client.Models
	return c.gen, nil
}

func candidateText(result *genai.GenerateContentResponse) (string, bool) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", false
	}
	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return text.String(), true
}

// classifyGeminiError maps genai errors to apierr sentinel errors.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == "RESOURCE_EXHAUSTED" && apiErr.Code == 0 {
			apiErr.Code = http.StatusTooManyRequests
		}
		return classifyStatus(apiErr.Code, apiErr.Message, err)
	}
	return classifyTransport(err)
}
