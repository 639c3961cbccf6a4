package profile

import (
	"strings"

	"github.com/duffmetro/metroscope/internal/dataset"
	"github.com/duffmetro/metroscope/internal/model"
)

// AssembleContext maps one normalized dataset row to the fact sheet the
// synthesizer works from. Pure and deterministic: the same row always
// yields the same context, missing optionals become nil, and only an
// underivable system id or name is an error.
func AssembleContext(systemID string, row dataset.Row) (*model.SelectionContext, error) {
	if systemID == "" {
		systemID = row.String(dataset.ColSystemID)
	}
	if systemID == "" {
		return nil, &model.MissingRequiredFieldError{Field: dataset.ColSystemID}
	}

	name := row.String(dataset.ColSystemName)
	if name == "" {
		if city := row.String(dataset.ColCity); city != "" {
			name = city + " Metro"
		}
	}
	if name == "" {
		return nil, &model.MissingRequiredFieldError{Field: dataset.ColSystemName}
	}

	sc := &model.SelectionContext{
		SystemID:   systemID,
		SystemName: name,
		City:       row.String(dataset.ColCity),
		Country:    row.String(dataset.ColCountry),
	}

	sc.OpenedYear = intField(row, dataset.ColOpenedYear)
	sc.Lines = intField(row, dataset.ColLines)
	sc.Stations = intField(row, dataset.ColStations)
	sc.LastMajorUpdate = intField(row, dataset.ColLastMajorUpdate)
	sc.TrackMiles = floatField(row, dataset.ColTotalMiles)
	sc.AnnualRidership = int64Field(row, dataset.ColRidership)
	sc.CityPopulation = int64Field(row, dataset.ColCityPopulation)
	sc.Visited = boolField(row, dataset.ColVisited)

	return sc, nil
}

func intField(row dataset.Row, col string) *int {
	if f, ok := row.Float(col); ok {
		v := int(f)
		return &v
	}
	return nil
}

func int64Field(row dataset.Row, col string) *int64 {
	if f, ok := row.Float(col); ok {
		v := int64(f)
		return &v
	}
	return nil
}

func floatField(row dataset.Row, col string) *float64 {
	if f, ok := row.Float(col); ok {
		return &f
	}
	return nil
}

func boolField(row dataset.Row, col string) *bool {
	s := strings.ToLower(row.String(col))
	if s == "" {
		return nil
	}
	v := s == "yes" || s == "true" || s == "y" || s == "1"
	return &v
}
