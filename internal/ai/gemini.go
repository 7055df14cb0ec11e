package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/face-access/internal/constants"
)

const geminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	usageTracker
	client *genai.Client
}

// NewGeminiProvider creates a provider. baseURL overrides the API endpoint and is
// empty in production.
func NewGeminiProvider(ctx context.Context, apiKey string, pricing RequestPricing, baseURL string) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		usageTracker: usageTracker{pricing: pricing},
		client:       client,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

func (p *GeminiProvider) Suggest(ctx context.Context, imageData []byte, sc SuggestionContext) (string, error) {
	if len(imageData) == 0 {
		return "", nil
	}

	prompt, err := BuildPrompt(sc)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{
			Data:     prepareImage(imageData, constants.MaxSuggestionImageSize),
			MIMEType: "image/jpeg",
		}},
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	if result.UsageMetadata != nil {
		p.track(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
	}

	content := cleanSuggestion(result.Text())
	if content == "" {
		return "", errors.New("no response from Gemini")
	}
	return content, nil
}

var _ Suggester = (*GeminiProvider)(nil)
