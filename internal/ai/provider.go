package ai

import (
	"context"
	"sync"
	"time"
)

// Suggestion context types.
const (
	ContextNew      = "new"
	ContextExisting = "existing"
)

// SuggestionContext describes the observed user a suggestion is requested for.
type SuggestionContext struct {
	Type      string     // ContextNew or ContextExisting
	UserID    string     // observed user ID, existing users only
	Status    string     // status name, existing users only
	ExpiresAt *time.Time // nil when expired or unknown
	Zones     []string   // zone names the user accessed
}

// Suggester produces a short advisory action for an observed user from a capture.
// An empty suggestion means the provider had nothing to say.
type Suggester interface {
	Name() string
	Suggest(ctx context.Context, imageData []byte, sc SuggestionContext) (string, error)

	// Usage tracking.
	GetUsage() Usage
	ResetUsage()
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageTracker accumulates usage across concurrent requests.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (t *usageTracker) track(inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.InputTokens += int(inputTokens)
	t.usage.OutputTokens += int(outputTokens)
	t.usage.TotalCost += float64(inputTokens) / 1_000_000 * t.pricing.Input
	t.usage.TotalCost += float64(outputTokens) / 1_000_000 * t.pricing.Output
}

// GetUsage returns a snapshot of the accumulated usage.
func (t *usageTracker) GetUsage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// ResetUsage clears the accumulated usage.
func (t *usageTracker) ResetUsage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = Usage{}
}
