package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/duffmetro/metroscope/internal/model"
)

func TestNewAnthropicProviderRequiresKey(t *testing.T) {
	if _, err := NewAnthropicProvider(model.LLMConfig{}); err == nil {
		t.Error("expected an error without an API key")
	}
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.System == "" || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("request = %+v", req)
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": `{"ok": true}`}},
			"model":   "claude-3-5-sonnet-20241022",
			"usage":   map[string]int{"input_tokens": 30, "output_tokens": 12},
		})
	}))
	defer srv.Close()

	provider, err := NewAnthropicProvider(model.LLMConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		System: "You are a researcher.",
		Prompt: "Write the dossier.",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != `{"ok": true}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("tokens = %d, want input+output", resp.TokensUsed)
	}
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))
	defer srv.Close()

	provider, err := NewAnthropicProvider(model.LLMConfig{APIKey: "bad", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "x"}); err == nil {
		t.Error("expected an error for a 401 response")
	}
}
