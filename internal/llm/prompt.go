package llm

import (
	"fmt"
	"strings"

	"github.com/duffmetro/metroscope/internal/model"
)

const synthesisSystemPrompt = `You are a careful transit researcher writing a structured dossier about one subway system. You separate verifiable facts from qualitative impressions, you label impressions with an honest confidence level, and you never invent sources.`

const dossierShape = `{
  "system_id": string,
  "system_name": string,
  "city": string or null,
  "country": string or null,
  "opened_year": integer or null,
  "history_summary": string,
  "timeline": [{"year": integer or null, "event": string}],
  "ownership_and_operations": string or null,
  "scale_and_usage": string or null,
  "perception": {
    "summary": string,
    "safety": string or null,
    "cleanliness": string or null,
    "typical_riders": string or null,
    "confidence": "low" | "medium" | "high",
    "notes": string or null
  },
  "culture": [{"work": string, "creator": string or null, "year": integer or null, "medium": string or null, "relevance": string, "source_url": string or null}],
  "sources": [{"title": string, "url": string}]
}`

// BuildSynthesisPrompt assembles the user prompt for one synthesis call.
func BuildSynthesisPrompt(sc *model.SelectionContext, retrieval model.RetrievalResult, priorIssues []model.FieldIssue) string {
	var b strings.Builder

	b.WriteString("Write a dossier about the following subway system as a single JSON object.\n\n")

	b.WriteString("KNOWN FACTS (from the dataset, treat as authoritative):\n")
	writeFact(&b, "system_id", sc.SystemID)
	writeFact(&b, "system_name", sc.SystemName)
	writeFact(&b, "city", sc.City)
	writeFact(&b, "country", sc.Country)
	if sc.OpenedYear != nil {
		writeFact(&b, "opened_year", fmt.Sprintf("%d", *sc.OpenedYear))
	}
	if sc.Lines != nil {
		writeFact(&b, "number_of_lines", fmt.Sprintf("%d", *sc.Lines))
	}
	if sc.TrackMiles != nil {
		writeFact(&b, "total_miles", fmt.Sprintf("%g", *sc.TrackMiles))
	}
	if sc.Stations != nil {
		writeFact(&b, "stations", fmt.Sprintf("%d", *sc.Stations))
	}
	if sc.AnnualRidership != nil {
		writeFact(&b, "annual_ridership", fmt.Sprintf("%d", *sc.AnnualRidership))
	}
	if sc.CityPopulation != nil {
		writeFact(&b, "city_population", fmt.Sprintf("%d", *sc.CityPopulation))
	}
	if sc.Visited != nil {
		writeFact(&b, "visited_by_author", fmt.Sprintf("%t", *sc.Visited))
	}
	b.WriteString("\n")

	if retrieval.Mode == model.RetrievalModeRetrieved && !retrieval.Empty() {
		b.WriteString("WEB SNIPPETS (each with its source URL and the query that found it):\n")
		for _, s := range retrieval.Snippets {
			fmt.Fprintf(&b, "- [%s] %s\n  URL: %s\n  %s\n", s.Topic, s.Title, s.URL, s.Text)
		}
		b.WriteString("\nCITATION RULES:\n")
		b.WriteString("- The \"sources\" array may ONLY contain URLs from this allowed list:\n")
		for _, u := range retrieval.URLs() {
			fmt.Fprintf(&b, "  - %s\n", u)
		}
		b.WriteString("- culture[].source_url, when present, must also come from that list.\n")
		b.WriteString("- Never cite a URL that is not in the list. Omit a source rather than inventing one.\n")
	} else {
		b.WriteString("NO WEB RESULTS ARE AVAILABLE for this run.\n")
		b.WriteString("- Leave the \"sources\" array empty. Do not invent URLs anywhere.\n")
		b.WriteString("- Set perception.confidence to \"low\" or \"medium\", never \"high\".\n")
		b.WriteString("- Avoid specific claims you cannot support from the known facts alone.\n")
	}
	b.WriteString("\n")

	b.WriteString("OUTPUT CONTRACT — respond with exactly one JSON object of this shape:\n")
	b.WriteString(dossierShape)
	b.WriteString("\n\nGUIDELINES:\n")
	b.WriteString("- Keep factual claims (history, ownership, scale) separate from qualitative impressions, which belong under \"perception\".\n")
	b.WriteString("- perception.confidence reflects how well the impressions are supported by the snippets.\n")
	b.WriteString("- history_summary must be a string; use \"\" when you have nothing reliable to say.\n")
	b.WriteString("- Order timeline entries chronologically.\n")

	if len(priorIssues) > 0 {
		b.WriteString("\nYOUR PREVIOUS ATTEMPT FAILED VALIDATION. Fix every problem below and return the corrected JSON object:\n")
		for _, issue := range priorIssues {
			fmt.Fprintf(&b, "- %s: %s\n", issue.Path, issue.Problem)
		}
	}

	return b.String()
}

func writeFact(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", name, value)
}
