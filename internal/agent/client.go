// Package agent holds the clients for external reasoning and speech
// services. Each backend turns an analysis.Request into the raw text of one
// JSON document and leaves parsing to the analysis package.
package agent

import (
	"context"
	"fmt"

	"symptosafe/internal/analysis"
	"symptosafe/internal/config"
)

// NewReasoner returns the backend selected by cfg.ReasonerProvider. A missing
// API key yields analysis.ErrMissingCredential so callers can run on the
// fallback classifier alone.
func NewReasoner(ctx context.Context, cfg *config.Config) (analysis.Reasoner, error) {
	switch cfg.ReasonerProvider {
	case config.ProviderOpenAI:
		return NewOpenAIReasoner(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case config.ProviderGemini:
		return NewGeminiReasoner(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, "")
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", cfg.ReasonerProvider)
	}
}

// lastUserIndex is where an attached image goes.
func lastUserIndex(msgs []analysis.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == analysis.RoleUser {
			return i
		}
	}
	return -1
}
