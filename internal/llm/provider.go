// Package llm provides the code generation providers used to author tools.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/neuroidss/ToolArtifact/internal/config"
	"github.com/neuroidss/ToolArtifact/internal/logging"
)

// CodeProvider turns a prompt into candidate source text.
// Implementations make exactly one attempt with deterministic sampling.
type CodeProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// systemPrompt frames every request; the task prompt carries the contract.
const systemPrompt = "You write small, self-contained Go functions. " +
	"Reply with Go source only: no prose, no comments, no markdown."

// NewProvider creates the provider selected by cfg.
func NewProvider(cfg config.LLMConfig, timeout time.Duration) (CodeProvider, error) {
	logging.API("Creating code provider: provider=%s model=%s", cfg.Provider, cfg.Model)

	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	case "gemini":
		return NewGeminiClient(cfg.APIKey, cfg.Model, timeout)
	case "stub":
		return NewStubProvider(nil), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// withDefaultTimeout applies d to ctx when ctx has no deadline.
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
