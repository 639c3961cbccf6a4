package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// Enricher fetches the page behind a top search hit and extracts readable
// paragraph text, giving the synthesizer more than the provider's short
// snippet. Fetches respect robots.txt and are rate limited per host.
type Enricher struct {
	userAgent  string
	maxBytes   int64
	httpClient *http.Client

	mu       sync.Mutex
	robots   map[string]*robotstxt.RobotsData
	limiters map[string]*rate.Limiter
}

const enricherMaxChars = 2000

// NewEnricher creates an enricher.
func NewEnricher(userAgent string, timeout time.Duration, maxBytes int64) *Enricher {
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	return &Enricher{
		userAgent: userAgent,
		maxBytes:  maxBytes,
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		robots:   make(map[string]*robotstxt.RobotsData),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Extract fetches rawURL (if robots.txt allows) and returns its paragraph
// text, truncated to a prompt-friendly length.
func (e *Enricher) Extract(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if !e.allowed(ctx, parsed) {
		return "", fmt.Errorf("disallowed by robots.txt: %s", rawURL)
	}

	if err := e.hostLimiter(parsed.Host).Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}

	return extractParagraphText(string(body)), nil
}

// allowed checks robots.txt for the URL's host, caching the parsed rules.
// An unreachable robots.txt allows fetching.
func (e *Enricher) allowed(ctx context.Context, u *url.URL) bool {
	e.mu.Lock()
	data, ok := e.robots[u.Host]
	e.mu.Unlock()

	if !ok {
		robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
		if err != nil {
			return true
		}
		req.Header.Set("User-Agent", e.userAgent)

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return true
		}
		data, err = robotstxt.FromResponse(resp)
		_ = resp.Body.Close()
		if err != nil {
			return true
		}

		e.mu.Lock()
		e.robots[u.Host] = data
		e.mu.Unlock()
	}

	return data.TestAgent(u.Path, e.userAgent)
}

func (e *Enricher) hostLimiter(host string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(1), 1)
		e.limiters[host] = l
	}
	return l
}

// extractParagraphText walks the HTML tree collecting <p> text until the
// character budget is spent.
func extractParagraphText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if b.Len() >= enricherMaxChars {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.ElementNode && n.Data == "p" {
			text := strings.TrimSpace(collectText(n))
			if text != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := b.String()
	if len(text) > enricherMaxChars {
		// Back up to a rune boundary so the cut never emits a partial rune.
		cut := enricherMaxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func collectText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(collectText(c))
	}
	return b.String()
}
