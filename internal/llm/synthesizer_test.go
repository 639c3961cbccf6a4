package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/duffmetro/metroscope/internal/model"
)

type mockProvider struct {
	response string
	err      error
	calls    int
	lastReq  CompletionRequest
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &CompletionResponse{Content: m.response, Model: "mock-1"}, nil
}

func sampleContext() *model.SelectionContext {
	year := 1974
	return &model.SelectionContext{
		SystemID:   "metro-7",
		SystemName: "Greenline",
		City:       "Springfield",
		Country:    "USA",
		OpenedYear: &year,
	}
}

func TestSynthesizeReturnsRawJSON(t *testing.T) {
	provider := &mockProvider{response: `{"system_id": "metro-7"}`}
	s := NewSynthesizerWithProvider(provider)

	raw, err := s.Synthesize(context.Background(), sampleContext(), model.SkippedRetrieval(), nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(raw) != `{"system_id": "metro-7"}` {
		t.Errorf("raw = %s", raw)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times", provider.calls)
	}
}

func TestSynthesizeStripsCodeFences(t *testing.T) {
	provider := &mockProvider{response: "```json\n{\"system_id\": \"metro-7\"}\n```"}
	s := NewSynthesizerWithProvider(provider)

	raw, err := s.Synthesize(context.Background(), sampleContext(), model.SkippedRetrieval(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"system_id": "metro-7"}` {
		t.Errorf("fences not stripped: %s", raw)
	}
}

func TestSynthesizeWrapsProviderErrors(t *testing.T) {
	provider := &mockProvider{err: errors.New("quota exceeded")}
	s := NewSynthesizerWithProvider(provider)

	_, err := s.Synthesize(context.Background(), sampleContext(), model.SkippedRetrieval(), nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	var synthErr *model.SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("error type = %T, want *model.SynthesisError", err)
	}
	if synthErr.Provider != "mock" {
		t.Errorf("provider = %q", synthErr.Provider)
	}
}

func TestBuildSynthesisPromptNoWeb(t *testing.T) {
	prompt := BuildSynthesisPrompt(sampleContext(), model.SkippedRetrieval(), nil)

	if !strings.Contains(prompt, "system_id: metro-7") {
		t.Error("prompt missing known facts")
	}
	if !strings.Contains(prompt, "opened_year: 1974") {
		t.Error("prompt missing opened year")
	}
	if !strings.Contains(prompt, "NO WEB RESULTS ARE AVAILABLE") {
		t.Error("no-web prompt should state the absence of snippets")
	}
	if !strings.Contains(prompt, `never "high"`) {
		t.Error("no-web prompt should cap confidence")
	}
	if strings.Contains(prompt, "CITATION RULES") {
		t.Error("no-web prompt should not carry citation rules")
	}
}

func TestBuildSynthesisPromptWithSnippets(t *testing.T) {
	retrieval := model.RetrievalResult{
		Mode: model.RetrievalModeRetrieved,
		Snippets: []model.Snippet{
			{Title: "History", Text: "Opened 1974.", URL: "https://example.com/history", Topic: model.TopicHistory, Query: "Greenline subway system history"},
		},
	}
	prompt := BuildSynthesisPrompt(sampleContext(), retrieval, nil)

	if !strings.Contains(prompt, "WEB SNIPPETS") {
		t.Error("prompt missing snippets section")
	}
	if !strings.Contains(prompt, "https://example.com/history") {
		t.Error("prompt missing the allowed URL")
	}
	if !strings.Contains(prompt, "CITATION RULES") {
		t.Error("prompt missing citation rules")
	}
}

func TestBuildSynthesisPromptCorrection(t *testing.T) {
	issues := []model.FieldIssue{
		{Path: "perception.confidence", Problem: "required, one of low/medium/high"},
	}
	prompt := BuildSynthesisPrompt(sampleContext(), model.SkippedRetrieval(), issues)

	if !strings.Contains(prompt, "PREVIOUS ATTEMPT FAILED VALIDATION") {
		t.Error("correction prompt missing failure preamble")
	}
	if !strings.Contains(prompt, "perception.confidence: required") {
		t.Error("correction prompt missing the specific issue")
	}
}
