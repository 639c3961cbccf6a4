// Package llm synthesizes dossier drafts by prompting a language model with
// the selection context and any retrieved snippets.
package llm

import (
	"context"
)

// CompletionRequest is one structured-output request to a provider.
type CompletionRequest struct {
	// System frames the model's role.
	System string

	// Prompt carries the fact sheet, snippets and output contract.
	Prompt string

	// MaxTokens limits the response length.
	MaxTokens int
}

// CompletionResponse is the raw provider output.
type CompletionResponse struct {
	// Content should be a single JSON object; the schema validator decides
	// whether it actually is one.
	Content string

	// Model is the model that generated the response.
	Model string

	// TokensUsed tracks token consumption.
	TokensUsed int
}

// Provider is a language model backend capable of JSON-object responses.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Complete performs one model call. Implementations enforce their own
	// call-level timeout and never retry internally.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
