package model

// Confidence labels how strongly the qualitative portions of a dossier are
// supported. Perception always carries one.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ValidConfidence reports whether s is one of the three accepted labels.
func ValidConfidence(s string) bool {
	switch Confidence(s) {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Dossier is the validated structured profile for one subway system. A
// Dossier is either absent from the cache or fully schema-valid; nothing
// partially validated is ever stored or returned.
type Dossier struct {
	SystemID   string `json:"system_id"`
	SystemName string `json:"system_name"`

	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`

	OpenedYear *int `json:"opened_year,omitempty"`

	HistorySummary string          `json:"history_summary"`
	Timeline       []TimelineEvent `json:"timeline"`

	OwnershipAndOperations string `json:"ownership_and_operations,omitempty"`
	ScaleAndUsage          string `json:"scale_and_usage,omitempty"`

	Perception Perception    `json:"perception"`
	Culture    []CultureWork `json:"culture"`

	// Sources may only contain URLs that the retrieval gateway returned
	// during the run that produced this dossier.
	Sources []Source `json:"sources"`
}

// TimelineEvent is one dated entry in the dossier timeline.
type TimelineEvent struct {
	Year  *int   `json:"year,omitempty"`
	Event string `json:"event"`
}

// Perception holds the explicitly qualitative impressions of a system.
type Perception struct {
	Summary       string     `json:"summary"`
	Safety        string     `json:"safety,omitempty"`
	Cleanliness   string     `json:"cleanliness,omitempty"`
	TypicalRiders string     `json:"typical_riders,omitempty"`
	Confidence    Confidence `json:"confidence"`
	Notes         string     `json:"notes,omitempty"`
}

// CultureWork is one artwork, film, song or book connected to the system.
type CultureWork struct {
	Work      string `json:"work"`
	Creator   string `json:"creator,omitempty"`
	Year      *int   `json:"year,omitempty"`
	Medium    string `json:"medium,omitempty"`
	Relevance string `json:"relevance"`
	SourceURL string `json:"source_url,omitempty"`
}

// Source is one citation backing the dossier.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
