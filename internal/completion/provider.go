package completion

import (
	"fmt"

	"github.com/alnah/go-docpipe/internal/apierr"
)

// Provider names.
const (
	Ark      = "ark"
	OpenAI   = "openai"
	DeepSeek = "deepseek"
	Gemini   = "gemini"
)

// DefaultProvider is used when none is configured.
const DefaultProvider = Ark

// Provider describes a completion endpoint.
type Provider struct {
	Name    string
	BaseURL string
	// DefaultModel is empty when the provider has no usable default
	// (Ark models are per-account endpoint IDs).
	DefaultModel string
	// KeyEnv is the environment variable holding the API key.
	KeyEnv string
}

var providerOrder = []string{Ark, OpenAI, DeepSeek, Gemini}

var providers = map[string]Provider{
	Ark: {
		Name:    Ark,
		BaseURL: "https://ark.cn-beijing.volces.com/api/v3",
		KeyEnv:  "ARK_API_KEY",
	},
	OpenAI: {
		Name:         OpenAI,
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-4o-mini",
		KeyEnv:       "OPENAI_API_KEY",
	},
	DeepSeek: {
		Name:         DeepSeek,
		BaseURL:      "https://api.deepseek.com/v1",
		DefaultModel: "deepseek-chat",
		KeyEnv:       "DEEPSEEK_API_KEY",
	},
	Gemini: {
		Name:         Gemini,
		DefaultModel: "gemini-2.5-flash",
		KeyEnv:       "GEMINI_API_KEY",
	},
}

// LookupProvider returns the named provider.
// Returns apierr.ErrConfiguration if the name is unknown.
func LookupProvider(name string) (Provider, error) {
	p, ok := providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("unknown provider %q (expected one of %v): %w",
			name, providerOrder, apierr.ErrConfiguration)
	}
	return p, nil
}

// Providers returns the provider names in canonical order.
func Providers() []string {
	result := make([]string, len(providerOrder))
	copy(result, providerOrder)
	return result
}
