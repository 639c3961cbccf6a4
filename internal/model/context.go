package model

// SelectionContext is the compact fact sheet derived from one dataset row.
// It is built once per profile run, never mutated, and discarded afterwards.
type SelectionContext struct {
	SystemID   string `json:"system_id"`
	SystemName string `json:"system_name"`

	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`

	OpenedYear      *int     `json:"opened_year,omitempty"`
	Lines           *int     `json:"number_of_lines,omitempty"`
	TrackMiles      *float64 `json:"total_miles,omitempty"`
	Stations        *int     `json:"stations,omitempty"`
	AnnualRidership *int64   `json:"annual_ridership,omitempty"`
	CityPopulation  *int64   `json:"city_population,omitempty"`
	LastMajorUpdate *int     `json:"last_major_update,omitempty"`

	Visited *bool `json:"visited,omitempty"`
}

// Location renders "City, Country" with whichever parts are known.
func (sc *SelectionContext) Location() string {
	switch {
	case sc.City != "" && sc.Country != "":
		return sc.City + ", " + sc.Country
	case sc.City != "":
		return sc.City
	default:
		return sc.Country
	}
}
