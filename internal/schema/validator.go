// Package schema turns raw synthesizer output into a validated Dossier, or
// into a field-by-field account of why it isn't one.
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/duffmetro/metroscope/internal/model"
)

// Options carries the run-specific context the structural check needs.
type Options struct {
	// SystemID and SystemName anchor the dossier identity; the model's
	// echo of the id is checked against SystemID.
	SystemID   string
	SystemName string

	// AllowedURLs is the exact set of URLs the retrieval gateway returned
	// this run. Every source URL must come from it. Empty in no-web mode,
	// which forces sources to be empty too.
	AllowedURLs []string

	// WebMode is true when retrieval actually ran. Without it,
	// perception.confidence may not be "high".
	WebMode bool
}

// Validate coerces and checks a candidate dossier. It returns either a
// fully valid Dossier or a ValidationError listing every problem found;
// never both, and never a partially-checked result. Side-effect-free.
func Validate(raw json.RawMessage, opts Options) (*model.Dossier, *model.ValidationError) {
	verr := &model.ValidationError{}

	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var candidate map[string]interface{}
	if err := dec.Decode(&candidate); err != nil {
		verr.Add("$", "output is not a JSON object: %v", err)
		return nil, verr
	}

	allowed := make(map[string]bool, len(opts.AllowedURLs))
	for _, u := range opts.AllowedURLs {
		allowed[u] = true
	}

	d := &model.Dossier{
		SystemID:   opts.SystemID,
		SystemName: opts.SystemName,
		Timeline:   []model.TimelineEvent{},
		Culture:    []model.CultureWork{},
		Sources:    []model.Source{},
	}

	if id, ok := asString(candidate["system_id"]); ok && id != "" && id != opts.SystemID {
		verr.Add("system_id", "got %q, want %q", id, opts.SystemID)
	}
	if name, ok := asString(candidate["system_name"]); ok && name != "" {
		d.SystemName = name
	}

	d.City = optString(candidate, "city", verr)
	d.Country = optString(candidate, "country", verr)
	d.OpenedYear = optInt(candidate, "opened_year", verr)
	d.HistorySummary = optString(candidate, "history_summary", verr)
	d.OwnershipAndOperations = optString(candidate, "ownership_and_operations", verr)
	d.ScaleAndUsage = optString(candidate, "scale_and_usage", verr)

	d.Timeline = validateTimeline(candidate["timeline"], verr)
	d.Perception = validatePerception(candidate["perception"], opts.WebMode, verr)
	d.Culture = validateCulture(candidate["culture"], allowed, verr)
	d.Sources = validateSources(candidate["sources"], allowed, verr)

	if len(verr.Issues) > 0 {
		return nil, verr
	}
	return d, nil
}

func validateTimeline(v interface{}, verr *model.ValidationError) []model.TimelineEvent {
	entries := []model.TimelineEvent{}
	if v == nil {
		return entries
	}
	list, ok := v.([]interface{})
	if !ok {
		verr.Add("timeline", "expected an array")
		return entries
	}
	for i, item := range list {
		path := fmt.Sprintf("timeline[%d]", i)
		obj, ok := item.(map[string]interface{})
		if !ok {
			verr.Add(path, "expected an object")
			continue
		}
		event, ok := asString(obj["event"])
		if !ok || event == "" {
			verr.Add(path+".event", "required non-empty string")
			continue
		}
		entries = append(entries, model.TimelineEvent{
			Year:  coerceOptInt(obj["year"], path+".year", verr),
			Event: event,
		})
	}
	return entries
}

func validatePerception(v interface{}, webMode bool, verr *model.ValidationError) model.Perception {
	var p model.Perception
	obj, ok := v.(map[string]interface{})
	if !ok {
		verr.Add("perception", "required object")
		return p
	}

	p.Summary, _ = asString(obj["summary"])
	p.Safety, _ = asString(obj["safety"])
	p.Cleanliness, _ = asString(obj["cleanliness"])
	p.TypicalRiders, _ = asString(obj["typical_riders"])
	p.Notes, _ = asString(obj["notes"])

	conf, ok := asString(obj["confidence"])
	if !ok || conf == "" {
		verr.Add("perception.confidence", "required, one of low/medium/high")
		return p
	}
	conf = strings.ToLower(strings.TrimSpace(conf))
	if !model.ValidConfidence(conf) {
		verr.Add("perception.confidence", "got %q, want one of low/medium/high", conf)
		return p
	}
	if !webMode && model.Confidence(conf) == model.ConfidenceHigh {
		verr.Add("perception.confidence", `must not be "high" when web retrieval was unavailable`)
		return p
	}
	p.Confidence = model.Confidence(conf)
	return p
}

func validateCulture(v interface{}, allowed map[string]bool, verr *model.ValidationError) []model.CultureWork {
	works := []model.CultureWork{}
	if v == nil {
		return works
	}
	list, ok := v.([]interface{})
	if !ok {
		verr.Add("culture", "expected an array")
		return works
	}
	for i, item := range list {
		path := fmt.Sprintf("culture[%d]", i)
		obj, ok := item.(map[string]interface{})
		if !ok {
			verr.Add(path, "expected an object")
			continue
		}
		work, ok := asString(obj["work"])
		if !ok || work == "" {
			verr.Add(path+".work", "required non-empty string")
			continue
		}
		relevance, ok := asString(obj["relevance"])
		if !ok || relevance == "" {
			verr.Add(path+".relevance", "required non-empty string")
			continue
		}
		entry := model.CultureWork{
			Work:      work,
			Relevance: relevance,
			Year:      coerceOptInt(obj["year"], path+".year", verr),
		}
		entry.Creator, _ = asString(obj["creator"])
		entry.Medium, _ = asString(obj["medium"])
		if u, _ := asString(obj["source_url"]); u != "" {
			if !allowed[u] {
				verr.Add(path+".source_url", "URL %q was not returned by retrieval in this run", u)
				continue
			}
			entry.SourceURL = u
		}
		works = append(works, entry)
	}
	return works
}

func validateSources(v interface{}, allowed map[string]bool, verr *model.ValidationError) []model.Source {
	sources := []model.Source{}
	if v == nil {
		return sources
	}
	list, ok := v.([]interface{})
	if !ok {
		verr.Add("sources", "expected an array")
		return sources
	}
	for i, item := range list {
		path := fmt.Sprintf("sources[%d]", i)
		obj, ok := item.(map[string]interface{})
		if !ok {
			verr.Add(path, "expected an object")
			continue
		}
		title, _ := asString(obj["title"])
		u, ok := asString(obj["url"])
		if !ok || u == "" {
			verr.Add(path+".url", "required non-empty string")
			continue
		}
		if !allowed[u] {
			verr.Add(path+".url", "URL %q was not returned by retrieval in this run", u)
			continue
		}
		if title == "" {
			title = u
		}
		sources = append(sources, model.Source{Title: title, URL: u})
	}
	return sources
}

// asString accepts strings and nulls; everything else is (,"false").
func asString(v interface{}) (string, bool) {
	if v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

func optString(obj map[string]interface{}, field string, verr *model.ValidationError) string {
	s, ok := asString(obj[field])
	if !ok {
		verr.Add(field, "expected a string")
		return ""
	}
	return s
}

func optInt(obj map[string]interface{}, field string, verr *model.ValidationError) *int {
	return coerceOptInt(obj[field], field, verr)
}

// coerceOptInt accepts integers, integral floats, and numeric-looking
// strings; anything else is recorded as an issue.
func coerceOptInt(v interface{}, path string, verr *model.ValidationError) *int {
	if v == nil {
		return nil
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			out := int(i)
			return &out
		}
		if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
			out := int(f)
			return &out
		}
		verr.Add(path, "expected an integer, got %q", n.String())
		return nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil
		}
		if i, err := strconv.Atoi(s); err == nil {
			return &i
		}
		verr.Add(path, "expected an integer, got %q", n)
		return nil
	default:
		verr.Add(path, "expected an integer")
		return nil
	}
}
