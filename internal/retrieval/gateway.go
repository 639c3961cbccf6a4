// Package retrieval turns a selection context into web snippets with
// provenance. Retrieval is strictly best-effort: provider and network
// failures degrade to an empty result with warnings and never abort a
// profile run.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/duffmetro/metroscope/internal/cache"
	"github.com/duffmetro/metroscope/internal/model"
	"github.com/duffmetro/metroscope/internal/util"
)

// Gateway is the retrieval side of the profile workflow. A gateway without
// a search client reports unavailable and is skipped by the orchestrator.
type Gateway struct {
	client   SearchClient
	enricher *Enricher
	timeout  time.Duration
}

// New builds a gateway from configuration. With no API key the gateway is
// constructed but unavailable; the workflow then runs in no-web mode.
func New(cfg model.SearchConfig, httpCfg model.HTTPConfig, store cache.Store) *Gateway {
	g := &Gateway{timeout: httpCfg.Timeout}
	if g.timeout == 0 {
		g.timeout = 30 * time.Second
	}

	if cfg.APIKey == "" {
		return g
	}

	httpClient := util.NewHTTPClient(g.timeout, httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy)
	g.client = NewTavilyClient(cfg.APIKey, cfg.BaseURL, cfg.Depth, cfg.MaxResults, cfg.RequestsPerSecond, httpClient, store)

	if cfg.EnrichTopResult {
		g.enricher = NewEnricher(httpCfg.UserAgent, g.timeout, httpCfg.MaxBodyBytes)
	}
	return g
}

// NewWithClient wires an explicit search client; used by tests and by any
// caller that wants a non-Tavily provider.
func NewWithClient(client SearchClient, timeout time.Duration) *Gateway {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{client: client, timeout: timeout}
}

// Available reports whether a retrieval provider is configured. The
// orchestrator must check this before calling Retrieve.
func (g *Gateway) Available() bool {
	return g != nil && g.client != nil
}

// BuildQueries derives the fixed query set from the system name. The set is
// deterministic: four topics, same suffixes every run.
func BuildQueries(sc *model.SelectionContext) []model.RetrievalQuery {
	name := sc.SystemName
	return []model.RetrievalQuery{
		{Topic: model.TopicHistory, Text: name + " subway system history"},
		{Topic: model.TopicOwnership, Text: name + " subway operator and ownership"},
		{Topic: model.TopicOpeningYear, Text: name + " subway opening year first line"},
		{Topic: model.TopicArtworks, Text: "artworks about the " + name + " subway"},
	}
}

// Retrieve issues the four queries and merges the hits, preserving which
// query produced each snippet. Failed queries become warnings; if every
// query fails the result is simply empty.
func (g *Gateway) Retrieve(ctx context.Context, sc *model.SelectionContext) model.RetrievalResult {
	result := model.RetrievalResult{Mode: model.RetrievalModeRetrieved}

	for _, q := range BuildQueries(sc) {
		hits, err := g.search(ctx, q.Text)
		if err != nil {
			rerr := &model.RetrievalError{Query: q.Text, Err: err}
			result.Warnings = append(result.Warnings, rerr.Error())
			continue
		}

		for i, hit := range hits {
			snippet := model.Snippet{
				Title: hit.Title,
				Text:  hit.Snippet,
				URL:   hit.URL,
				Topic: q.Topic,
				Query: q.Text,
			}
			// Only the top hit per topic is worth a full page fetch.
			if i == 0 && g.enricher != nil {
				if text, err := g.enricher.Extract(ctx, hit.URL); err == nil && text != "" {
					snippet.Text = text
				}
			}
			result.Snippets = append(result.Snippets, snippet)
		}
	}

	return result
}

func (g *Gateway) search(ctx context.Context, query string) ([]SearchResult, error) {
	if g.client == nil {
		return nil, fmt.Errorf("no search provider configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.client.Search(callCtx, query)
}
