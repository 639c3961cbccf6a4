package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/duffmetro/metroscope/internal/model"
)

// Synthesizer produces draft dossiers. It does not validate them; the
// orchestrator hands the raw output to the schema validator and calls
// Synthesize again, with the accumulated issues, on a validation failure.
type Synthesizer struct {
	provider  Provider
	maxTokens int
}

// NewSynthesizer builds a synthesizer from configuration. Returns an error
// when no usable provider can be constructed (e.g. missing API key); a
// profile run that reaches synthesis without a provider fails.
func NewSynthesizer(config model.LLMConfig) (*Synthesizer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Synthesizer{provider: provider, maxTokens: config.MaxTokens}, nil
}

// NewSynthesizerWithProvider wires an explicit provider; used by tests.
func NewSynthesizerWithProvider(provider Provider) *Synthesizer {
	return &Synthesizer{provider: provider}
}

// ProviderName names the underlying provider.
func (s *Synthesizer) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// Synthesize performs one model call and returns the raw structured output.
// priorIssues, when non-empty, turns the prompt into a correction request.
// Provider failures come back as *model.SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, sc *model.SelectionContext, retrieval model.RetrievalResult, priorIssues []model.FieldIssue) (json.RawMessage, error) {
	req := CompletionRequest{
		System:    synthesisSystemPrompt,
		Prompt:    BuildSynthesisPrompt(sc, retrieval, priorIssues),
		MaxTokens: s.maxTokens,
	}

	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		return nil, &model.SynthesisError{Provider: s.provider.Name(), Err: err}
	}

	content := strings.TrimSpace(resp.Content)
	// Some models wrap JSON in a fenced block even in JSON mode.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	return json.RawMessage(strings.TrimSpace(content)), nil
}
