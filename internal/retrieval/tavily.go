package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/duffmetro/metroscope/internal/cache"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// SearchResult is one hit from the search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient issues one query against a web search provider.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// TavilyClient calls the Tavily search API. Queries are rate limited and
// responses are cached so a force-refreshed profile does not necessarily
// re-pay for identical searches.
type TavilyClient struct {
	apiKey     string
	baseURL    string
	depth      string
	maxResults int
	httpClient *http.Client
	limiter    *rate.Limiter
	store      cache.Store
}

// NewTavilyClient builds a client. store may be nil to disable response
// caching.
func NewTavilyClient(apiKey, baseURL, depth string, maxResults int, requestsPerSecond float64, httpClient *http.Client, store cache.Store) *TavilyClient {
	if baseURL == "" {
		baseURL = defaultTavilyURL
	}
	if depth == "" {
		depth = "basic"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TavilyClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		depth:      depth,
		maxResults: maxResults,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		store:      store,
	}
}

// Search posts a query to Tavily and returns up to maxResults hits.
func (c *TavilyClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if c.store != nil {
		if data, ok := c.store.Get(cache.SearchKey(query)); ok {
			var cached []SearchResult
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"query":       query,
		"api_key":     c.apiKey,
		"depth":       c.depth,
		"max_results": c.maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider returned status %d", resp.StatusCode)
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]SearchResult, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if len(results) >= c.maxResults {
			break
		}
	}

	if c.store != nil {
		if data, err := json.Marshal(results); err == nil {
			_ = c.store.Set(cache.SearchKey(query), data, 0)
		}
	}

	return results, nil
}
