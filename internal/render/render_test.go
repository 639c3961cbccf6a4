package render

import (
	"strings"
	"testing"

	"github.com/duffmetro/metroscope/internal/model"
)

func sampleDossier() *model.Dossier {
	year := 1974
	return &model.Dossier{
		SystemID:       "metro-7",
		SystemName:     "Greenline",
		City:           "Springfield",
		Country:        "USA",
		OpenedYear:     &year,
		HistorySummary: "Opened in the seventies.",
		Timeline: []model.TimelineEvent{
			{Year: &year, Event: "First line opens"},
			{Event: "Extension approved"},
		},
		Perception: model.Perception{
			Summary:    "Quiet and reliable.",
			Safety:     "Safe at all hours.",
			Confidence: model.ConfidenceMedium,
		},
		Culture: []model.CultureWork{
			{Work: "Night Train", Creator: "J. Doe", Relevance: "Filmed on the line", SourceURL: "https://example.com/b"},
		},
		Sources: []model.Source{
			{Title: "History page", URL: "https://example.com/a"},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md := NewRenderer(true).Markdown(sampleDossier())

	for _, want := range []string{
		"# Greenline",
		"**Location:** Springfield, USA",
		"**Opened:** 1974",
		"## History",
		"- **1974** — First line opens",
		"- Extension approved",
		"confidence: medium",
		"**Night Train** by J. Doe",
		"[History page](https://example.com/a)",
		"_Generated by metroscope._",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestMarkdownNoWebDossier(t *testing.T) {
	d := sampleDossier()
	d.Sources = nil
	d.Culture = nil
	d.Perception.Confidence = model.ConfidenceLow

	md := NewRenderer(false).Markdown(d)
	if !strings.Contains(md, "No web sources were available") {
		t.Error("no-web dossier should state the absence of sources")
	}
	if strings.Contains(md, "Generated by metroscope") {
		t.Error("footer should be omitted when disabled")
	}
	if strings.Contains(md, "## In Culture") {
		t.Error("empty culture section should be omitted")
	}
}

func TestSummary(t *testing.T) {
	var b strings.Builder
	NewRenderer(true).Summary(&b, sampleDossier(), true)

	out := b.String()
	if !strings.Contains(out, "Greenline") || !strings.Contains(out, "served from session cache") {
		t.Errorf("summary = %q", out)
	}
	if !strings.Contains(out, "sources: 1") {
		t.Errorf("summary missing source count: %q", out)
	}
}
