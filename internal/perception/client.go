// Package perception is the model boundary: it sends prompts out and hands
// raw text back. No assumptions about reply well-formedness live here; that
// is the extract package's problem.
package perception

import (
	"context"
	"errors"
	"fmt"
)

// LLMClient defines the interface for LLM providers.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrTimeout marks a request that hit its deadline before the provider
// answered. Distinct from provider-side failures so callers can message the
// two differently.
var ErrTimeout = errors.New("llm request timed out")

// ProviderError is a failure reported by the provider itself (auth, quota,
// model errors) as opposed to transport or deadline problems.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// classifyErr folds a raw client error into the timeout/provider split.
func classifyErr(ctx context.Context, provider string, err error) error {
	if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &ProviderError{Provider: provider, Err: err}
}
