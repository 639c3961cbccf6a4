package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Normalized column names. Every loaded table exposes these regardless of
// how the source spreadsheet spelled them.
const (
	ColSystemID        = "SYSTEM_ID"
	ColCity            = "CITY"
	ColCountry         = "COUNTRY"
	ColSystemName      = "SYSTEM_NAME"
	ColOpenedYear      = "OPENED_YEAR"
	ColLines           = "NUMBER_OF_LINES"
	ColTotalMiles      = "TOTAL_MILES"
	ColRidership       = "ANNUAL_RIDERSHIP"
	ColCityPopulation  = "CITY_POPULATION"
	ColVisited         = "VISITED"
	ColStations        = "STATIONS"
	ColLastMajorUpdate = "LAST_MAJOR_UPDATE"
	ColLatitude        = "LATITUDE"
	ColLongitude       = "LONGITUDE"
)

// Row is one normalized dataset record. Values are string for text columns,
// float64 for numeric columns, and nil where a value is missing or could
// not be coerced.
type Row map[string]interface{}

// String returns the row's value for col as a trimmed string, or "".
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Float returns the row's numeric value for col, if present.
func (r Row) Float(col string) (float64, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Table is a cleaned, validated dataset ready for selection and profiling.
type Table struct {
	Columns []string
	Rows    []Row

	// Version is the sha256 of the source file bytes. It is one half of
	// every profile cache key, so re-uploading a changed file implicitly
	// invalidates all cached dossiers.
	Version string

	// Issues are non-fatal cleaning warnings surfaced to the user.
	Issues []string
}

// FindBySystemID returns the first row whose SYSTEM_ID matches id.
func (t *Table) FindBySystemID(id string) (Row, bool) {
	for _, row := range t.Rows {
		if row.String(ColSystemID) == id {
			return row, true
		}
	}
	return nil, false
}

// SystemIDs lists every SYSTEM_ID in table order.
func (t *Table) SystemIDs() []string {
	ids := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if id := row.String(ColSystemID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ComputeVersion hashes the raw uploaded bytes into the dataset version.
func ComputeVersion(fileBytes []byte) string {
	sum := sha256.Sum256(fileBytes)
	return hex.EncodeToString(sum[:])
}
