// Package render writes dossiers as JSON, Markdown and terminal summaries.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/duffmetro/metroscope/internal/model"
)

// Renderer formats validated dossiers for output.
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer.
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// WriteJSON writes the dossier as indented JSON.
func (r *Renderer) WriteJSON(d *model.Dossier, path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dossier: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}

// WriteMarkdown writes the dossier as a Markdown report.
func (r *Renderer) WriteMarkdown(d *model.Dossier, path string) error {
	if err := os.WriteFile(path, []byte(r.Markdown(d)), 0644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

// Markdown renders the dossier as a Markdown document.
func (r *Renderer) Markdown(d *model.Dossier) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", d.SystemName)
	if loc := location(d); loc != "" {
		fmt.Fprintf(&b, "**Location:** %s\n\n", loc)
	}
	if d.OpenedYear != nil {
		fmt.Fprintf(&b, "**Opened:** %d\n\n", *d.OpenedYear)
	}

	if d.HistorySummary != "" {
		b.WriteString("## History\n\n")
		b.WriteString(d.HistorySummary)
		b.WriteString("\n\n")
	}

	if len(d.Timeline) > 0 {
		b.WriteString("## Timeline\n\n")
		for _, ev := range d.Timeline {
			if ev.Year != nil {
				fmt.Fprintf(&b, "- **%d** — %s\n", *ev.Year, ev.Event)
			} else {
				fmt.Fprintf(&b, "- %s\n", ev.Event)
			}
		}
		b.WriteString("\n")
	}

	if d.OwnershipAndOperations != "" {
		b.WriteString("## Ownership & Operations\n\n")
		b.WriteString(d.OwnershipAndOperations)
		b.WriteString("\n\n")
	}

	if d.ScaleAndUsage != "" {
		b.WriteString("## Scale & Usage\n\n")
		b.WriteString(d.ScaleAndUsage)
		b.WriteString("\n\n")
	}

	b.WriteString("## Perception\n\n")
	fmt.Fprintf(&b, "_Qualitative impressions, confidence: %s_\n\n", d.Perception.Confidence)
	if d.Perception.Summary != "" {
		b.WriteString(d.Perception.Summary + "\n\n")
	}
	writeField(&b, "Safety", d.Perception.Safety)
	writeField(&b, "Cleanliness", d.Perception.Cleanliness)
	writeField(&b, "Typical riders", d.Perception.TypicalRiders)
	writeField(&b, "Notes", d.Perception.Notes)
	b.WriteString("\n")

	if len(d.Culture) > 0 {
		b.WriteString("## In Culture\n\n")
		for _, w := range d.Culture {
			fmt.Fprintf(&b, "- **%s**", w.Work)
			if w.Creator != "" {
				fmt.Fprintf(&b, " by %s", w.Creator)
			}
			if w.Year != nil {
				fmt.Fprintf(&b, " (%d)", *w.Year)
			}
			if w.Medium != "" {
				fmt.Fprintf(&b, " — %s", w.Medium)
			}
			fmt.Fprintf(&b, ": %s", w.Relevance)
			if w.SourceURL != "" {
				fmt.Fprintf(&b, " [[source]](%s)", w.SourceURL)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(d.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		for _, s := range d.Sources {
			fmt.Fprintf(&b, "- [%s](%s)\n", s.Title, s.URL)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("## Sources\n\nNo web sources were available for this profile.\n\n")
	}

	if r.includeFooter {
		b.WriteString("---\n_Generated by metroscope._\n")
	}

	return b.String()
}

// Summary prints a short colored overview to w.
func (r *Renderer) Summary(w io.Writer, d *model.Dossier, fromCache bool) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	_, _ = bold.Fprintf(w, "%s", d.SystemName)
	if loc := location(d); loc != "" {
		fmt.Fprintf(w, " (%s)", loc)
	}
	fmt.Fprintln(w)

	if fromCache {
		_, _ = green.Fprintln(w, "served from session cache")
	}
	if d.OpenedYear != nil {
		fmt.Fprintf(w, "opened: %d\n", *d.OpenedYear)
	}
	fmt.Fprintf(w, "timeline entries: %d, cultural works: %d\n", len(d.Timeline), len(d.Culture))

	switch d.Perception.Confidence {
	case model.ConfidenceHigh:
		_, _ = green.Fprintf(w, "confidence: %s\n", d.Perception.Confidence)
	default:
		_, _ = yellow.Fprintf(w, "confidence: %s\n", d.Perception.Confidence)
	}

	if len(d.Sources) == 0 {
		_, _ = yellow.Fprintln(w, "no web sources (no-web mode)")
	} else {
		fmt.Fprintf(w, "sources: %d\n", len(d.Sources))
	}
}

func location(d *model.Dossier) string {
	switch {
	case d.City != "" && d.Country != "":
		return d.City + ", " + d.Country
	case d.City != "":
		return d.City
	default:
		return d.Country
	}
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, value)
}
