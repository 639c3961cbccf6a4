package dataset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MissingColumnsError means the spreadsheet lacks columns the rest of the
// system cannot work without.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s (CITY and COUNTRY are required)",
		strings.Join(e.Columns, ", "))
}

// columnVariants maps normalized column names to the spellings seen in real
// spreadsheets. First match wins.
var columnVariants = map[string][]string{
	ColCity:            {"CITY", "City"},
	ColCountry:         {"COUNTRY", "Country"},
	ColSystemID:        {"SYSTEM_ID", "Sequence"},
	ColSystemName:      {"SYSTEM_NAME", "Name"},
	ColOpenedYear:      {"OPENED_YEAR"},
	ColLines:           {"NUMBER_OF_LINES", "Lines"},
	ColTotalMiles:      {"TOTAL_MILES", "System length   miles"},
	ColRidership:       {"ANNUAL_RIDERSHIP", "Annual Ridership"},
	ColCityPopulation:  {"CITY_POPULATION"},
	ColVisited:         {"VISITED", "Ridden?"},
	ColLastMajorUpdate: {"LAST_MAJOR_UPDATE", "Year of last expansion"},
	ColStations:        {"Stations"},
	ColLatitude:        {"LATITUDE"},
	ColLongitude:       {"LONGITUDE"},
}

// ignoredColumns are source columns dropped during cleaning.
var ignoredColumns = map[string]bool{
	"Year when First Ridden":         true,
	"Continent":                      true,
	"Year opened (General Format)":   true,
	"Year opened     (date order)":   true,
	"System length  km":              true,
	"Year of ridership data ":        true,
	"Visited but subway not ridden":  true,
	"Logo":                           true,
	"Pre-1985?":                      true,
}

var numericColumns = []string{
	ColOpenedYear, ColLines, ColTotalMiles, ColRidership,
	ColCityPopulation, ColStations, ColLastMajorUpdate,
	ColLatitude, ColLongitude,
}

// Normalize turns raw header+record data from a spreadsheet into a cleaned
// Table: column names mapped to the canonical set, rows with non-numeric
// Sequence values dropped, SYSTEM_ID generated when absent, and numeric
// columns coerced. Returns MissingColumnsError when CITY or COUNTRY cannot
// be found.
func Normalize(headers []string, records [][]string) (*Table, error) {
	var issues []string

	// Drop summary/footer rows: anything whose Sequence cell is not numeric.
	if seqIdx := indexOf(headers, "Sequence"); seqIdx >= 0 {
		kept := records[:0]
		dropped := 0
		for _, rec := range records {
			if seqIdx < len(rec) {
				if _, err := strconv.ParseFloat(strings.TrimSpace(rec[seqIdx]), 64); err != nil {
					dropped++
					continue
				}
			}
			kept = append(kept, rec)
		}
		records = kept
		if dropped > 0 {
			issues = append(issues, fmt.Sprintf("filtered out %d row(s) with non-numeric 'Sequence' values", dropped))
		}
	}

	mapping := buildColumnMapping(headers)

	missing := missingRequired(mapping)
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	var columns []string
	seenCol := make(map[string]bool)
	for _, h := range headers {
		norm, ok := mapping[h]
		if !ok || seenCol[norm] {
			continue
		}
		seenCol[norm] = true
		columns = append(columns, norm)
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := make(Row, len(columns))
		for i, h := range headers {
			norm, ok := mapping[h]
			if !ok {
				continue
			}
			if _, exists := row[norm]; exists {
				continue
			}
			val := ""
			if i < len(rec) {
				val = strings.TrimSpace(rec[i])
			}
			if val == "" {
				row[norm] = nil
			} else {
				row[norm] = val
			}
		}
		rows = append(rows, row)
	}

	if !seenCol[ColSystemID] {
		columns = append([]string{ColSystemID}, columns...)
	}
	generateSystemIDs(rows)

	coerceIssues := coerceNumericColumns(rows)
	issues = append(issues, coerceIssues...)

	return &Table{Columns: columns, Rows: rows, Issues: issues}, nil
}

func buildColumnMapping(headers []string) map[string]string {
	mapping := make(map[string]string)
	taken := make(map[string]bool)

	for norm, variants := range columnVariants {
		for _, variant := range variants {
			if indexOf(headers, variant) >= 0 && !taken[norm] {
				mapping[variant] = norm
				taken[norm] = true
				break
			}
		}
	}

	for _, h := range headers {
		if _, ok := mapping[h]; ok || ignoredColumns[h] {
			continue
		}
		norm := normalizeColumnName(h)
		if norm == "" || taken[norm] {
			continue
		}
		mapping[h] = norm
		taken[norm] = true
	}

	return mapping
}

func missingRequired(mapping map[string]string) []string {
	have := make(map[string]bool, len(mapping))
	for _, norm := range mapping {
		have[norm] = true
	}
	var missing []string
	for _, col := range []string{ColCity, ColCountry} {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// normalizeColumnName converts arbitrary header text to
// ALL_CAPS_WITH_UNDERSCORES.
func normalizeColumnName(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = nonAlnum.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// generateSystemIDs fills SYSTEM_ID deterministically from CITY and COUNTRY
// where it is missing, so repeated uploads of the same file produce the
// same ids.
func generateSystemIDs(rows []Row) {
	for _, row := range rows {
		if row.String(ColSystemID) != "" {
			continue
		}
		city := row.String(ColCity)
		country := row.String(ColCountry)
		id := strings.ToUpper(city + "_" + country)
		id = strings.ReplaceAll(id, " ", "_")
		row[ColSystemID] = id
	}
}

var (
	billionPattern = regexp.MustCompile(`(?i)([\d,]+\.?\d*)\s*billion`)
	millionPattern = regexp.MustCompile(`(?i)([\d,]+\.?\d*)\s*million`)
	parenPattern   = regexp.MustCompile(`\([^)]*\)`)
	numberPattern  = regexp.MustCompile(`[-+]?\d{1,3}(?:,\d{3})*(?:\.\d+)?`)
	yearPattern    = regexp.MustCompile(`\d{4}`)
)

// coerceNumericColumns converts numeric-looking text cells to float64,
// handling thousand separators, unit suffixes ("245 mi", "1.7 billion") and
// parenthetical notes. Unconvertible values become nil; the noisier columns
// are expected to contain text and do not produce warnings.
func coerceNumericColumns(rows []Row) []string {
	var issues []string
	failed := make(map[string][]string)

	for _, row := range rows {
		for _, col := range numericColumns {
			raw, ok := row[col]
			if !ok || raw == nil {
				continue
			}
			s, isStr := raw.(string)
			if !isStr {
				continue
			}
			if f, ok := coerceNumeric(s, col); ok {
				row[col] = f
			} else {
				row[col] = nil
				if col != ColRidership && col != ColLastMajorUpdate && len(failed[col]) < 3 {
					failed[col] = append(failed[col], s)
				}
			}
		}
	}

	for col, examples := range failed {
		issues = append(issues, fmt.Sprintf("column %s: could not convert values to numeric (examples: %s)",
			col, strings.Join(examples, ", ")))
	}
	return issues
}

func coerceNumeric(val, col string) (float64, bool) {
	val = strings.ReplaceAll(val, "\u00a0", " ")
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, false
	}

	if col == ColRidership {
		if m := billionPattern.FindStringSubmatch(val); m != nil {
			if f, err := parseCommaFloat(m[1]); err == nil {
				return f * 1_000_000_000, true
			}
		}
		if m := millionPattern.FindStringSubmatch(val); m != nil {
			if f, err := parseCommaFloat(m[1]); err == nil {
				return f * 1_000_000, true
			}
		}
	}

	if col == ColLastMajorUpdate || col == ColOpenedYear {
		if m := yearPattern.FindString(val); m != "" {
			f, err := strconv.ParseFloat(m, 64)
			return f, err == nil
		}
	}

	val = parenPattern.ReplaceAllString(val, " ")
	if m := numberPattern.FindString(val); m != "" {
		f, err := parseCommaFloat(m)
		return f, err == nil
	}
	return 0, false
}

func parseCommaFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func indexOf(ss []string, want string) int {
	for i, s := range ss {
		if s == want {
			return i
		}
	}
	return -1
}
