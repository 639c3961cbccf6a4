package model

// RetrievalMode tags whether web retrieval actually ran for a profile run.
// Downstream components branch on the tag instead of re-checking gateway
// availability.
type RetrievalMode string

const (
	RetrievalModeRetrieved RetrievalMode = "retrieved"
	RetrievalModeSkipped   RetrievalMode = "skipped"
)

// RetrievalTopic identifies which of the fixed queries produced a snippet.
type RetrievalTopic string

const (
	TopicHistory     RetrievalTopic = "history"
	TopicOwnership   RetrievalTopic = "ownership"
	TopicOpeningYear RetrievalTopic = "opening_year"
	TopicArtworks    RetrievalTopic = "artworks"
)

// RetrievalQuery is one natural-language query built deterministically from
// the selection context.
type RetrievalQuery struct {
	Topic RetrievalTopic `json:"topic"`
	Text  string         `json:"text"`
}

// Snippet is one retrieved piece of text with its provenance.
type Snippet struct {
	Title string         `json:"title,omitempty"`
	Text  string         `json:"text"`
	URL   string         `json:"url"`
	Topic RetrievalTopic `json:"topic"`
	Query string         `json:"query"`
}

// RetrievalResult is the merged outcome of the fixed query set for one run.
// It is never persisted independently of the run that produced it.
type RetrievalResult struct {
	Mode     RetrievalMode `json:"mode"`
	Snippets []Snippet     `json:"snippets"`
	Warnings []string      `json:"warnings,omitempty"`
}

// SkippedRetrieval returns the empty result used when no retrieval provider
// is configured.
func SkippedRetrieval() RetrievalResult {
	return RetrievalResult{Mode: RetrievalModeSkipped}
}

// Empty reports whether the result carries no snippets, either because
// retrieval was skipped or because every query failed or came back empty.
func (r RetrievalResult) Empty() bool {
	return len(r.Snippets) == 0
}

// URLs returns the deduplicated set of snippet URLs, preserving first-seen
// order. This is the allowlist the validator enforces on dossier sources.
func (r RetrievalResult) URLs() []string {
	seen := make(map[string]bool, len(r.Snippets))
	var urls []string
	for _, s := range r.Snippets {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		urls = append(urls, s.URL)
	}
	return urls
}
