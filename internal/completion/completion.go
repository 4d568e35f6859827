// Package completion sends prompts to a remote text-generation service and
// reports the token usage and cost of each call.
package completion

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/alnah/go-docpipe/internal/usage"
)

// Request is one completion call.
type Request struct {
	Prompt string
	// SystemPrompt is sent as a system message before Prompt. Empty means absent.
	SystemPrompt string
	// Model overrides the client's model for this call. Empty means client default.
	Model string
}

// Response is the generated text and the usage of the call that produced it.
type Response struct {
	Text  string
	Usage usage.Stats
}

// Client sends a single completion request.
// Implementations make exactly one outbound call per Complete and never retry;
// retry policy belongs to the caller.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ServiceError reports a failed completion call.
// Err wraps an apierr sentinel describing the failure class.
type ServiceError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Model, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Options shared by all backends
// ---------------------------------------------------------------------------

type settings struct {
	model      string
	baseURL    string
	pricing    usage.Pricing
	logger     *zap.Logger
	httpClient *http.Client
}

func newSettings(p Provider, opts []Option) settings {
	s := settings{
		model:   p.DefaultModel,
		baseURL: p.BaseURL,
		pricing: usage.DefaultPricing(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures a completion client.
type Option func(*settings)

// WithModel sets the default model. Empty keeps the provider default.
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithBaseURL sets a custom endpoint (for proxies, compatible gateways or tests).
func WithBaseURL(url string) Option {
	return func(s *settings) {
		if url != "" {
			s.baseURL = url
		}
	}
}

// WithPricing sets the per-1K-token prices used to cost each call.
func WithPricing(p usage.Pricing) Option {
	return func(s *settings) {
		s.pricing = p
	}
}

// WithLogger sets the logger. Calls are logged at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

// New returns the client for a named provider.
// Only an unknown provider fails here; a missing key or model is reported
// by the first Complete call.
func New(provider, apiKey string, opts ...Option) (Client, error) {
	p, err := LookupProvider(provider)
	if err != nil {
		return nil, err
	}
	if p.Name == Gemini {
		return NewGeminiClient(apiKey, opts...), nil
	}
	return NewOpenAIClient(p.Name, apiKey, opts...), nil
}
