// Package embedding turns free text into fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"
)

// Provider generates an embedding vector for a piece of text.
type Provider interface {
	// Embed returns the embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider name for logging and metrics.
	Name() string
}

// NewProvider creates a provider by name.
func NewProvider(ctx context.Context, name, apiKey, model string) (Provider, error) {
	switch name {
	case "gemini":
		return NewGeminiProvider(ctx, apiKey, model)
	case "openai":
		return NewOpenAIProvider(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
}
