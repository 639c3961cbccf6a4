package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestEnricherExtractsParagraphs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
		case "/page":
			_, _ = w.Write([]byte(`<html><head><style>p{}</style></head><body>
				<nav>skip this</nav>
				<p>The system opened in 1974.</p>
				<script>var x = "not text";</script>
				<p>It was extended in 1985.</p>
			</body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewEnricher("test-agent", time.Second, 0)
	text, err := e.Extract(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(text, "opened in 1974") || !strings.Contains(text, "extended in 1985") {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(text, "skip this") || strings.Contains(text, "not text") {
		t.Errorf("non-paragraph content leaked: %q", text)
	}
}

func TestEnricherHonorsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
		default:
			_, _ = w.Write([]byte(`<html><body><p>secret</p></body></html>`))
		}
	}))
	defer srv.Close()

	e := NewEnricher("test-agent", time.Second, 0)
	if _, err := e.Extract(context.Background(), srv.URL+"/private/page"); err == nil {
		t.Error("disallowed paths must not be fetched")
	}

	// Allowed paths on the same host still work, via the cached rules.
	if _, err := e.Extract(context.Background(), srv.URL+"/public/page"); err != nil {
		t.Errorf("allowed path failed: %v", err)
	}
}

func TestExtractParagraphTextRuneBoundary(t *testing.T) {
	// Multi-byte text long enough that a byte-index cut would land inside
	// a rune (each character here is three bytes).
	page := "<html><body><p>" + strings.Repeat("地下鉄", 1000) + "</p></body></html>"

	text := extractParagraphText(page)
	if len(text) > enricherMaxChars {
		t.Errorf("text length = %d, want at most %d", len(text), enricherMaxChars)
	}
	if !utf8.ValidString(text) {
		t.Error("truncation split a rune")
	}
}

func TestExtractParagraphTextBudget(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 200; i++ {
		b.WriteString("<p>This paragraph pads the output well past the extraction budget.</p>")
	}
	b.WriteString("</body></html>")

	text := extractParagraphText(b.String())
	if len(text) > enricherMaxChars {
		t.Errorf("text length = %d, want at most %d", len(text), enricherMaxChars)
	}
	if text == "" {
		t.Error("expected some text")
	}
}
