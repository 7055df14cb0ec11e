package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-access/internal/config"
)

// NewSuggester builds the configured provider. It returns nil when suggestions are
// disabled, which callers treat as "no suggestion".
func NewSuggester(ctx context.Context, cfg *config.Config) (Suggester, error) {
	switch cfg.Suggestion.Provider {
	case "none", "":
		return nil, nil
	case "gemini":
		key := cfg.Gemini.GetAPIKey()
		if key == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required")
		}
		pricing := cfg.GetModelPricing(geminiModel)
		provider, err := NewGeminiProvider(ctx, key, RequestPricing{Input: pricing.Input, Output: pricing.Output}, "")
		if err != nil {
			return nil, err
		}
		return provider, nil
	case "openai":
		token := cfg.OpenAI.GetToken()
		if token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required")
		}
		pricing := cfg.GetModelPricing(chatModel)
		return NewOpenAIProvider(token, RequestPricing{Input: pricing.Input, Output: pricing.Output}), nil
	default:
		return nil, fmt.Errorf("unknown suggestion provider: %s", cfg.Suggestion.Provider)
	}
}
