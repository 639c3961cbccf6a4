// Package geo infers coordinates for dataset rows from their city and
// country using the Nominatim API.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/duffmetro/metroscope/internal/cache"
	"github.com/duffmetro/metroscope/internal/dataset"
)

// Coordinates is one resolved (lat, lon) pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geocoder resolves "city, country" queries against Nominatim. Lookups are
// rate limited to respect the service's usage policy and cached so repeated
// uploads do not re-query.
type Geocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	store      cache.Store
}

// NewGeocoder creates a geocoder. store may be nil to disable caching.
func NewGeocoder(baseURL, userAgent string, requestsPerSecond float64, timeout time.Duration, store cache.Store) *Geocoder {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Geocoder{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		store:      store,
	}
}

// Lookup resolves a single city/country pair. A nil result with nil error
// means the location is unknown to Nominatim (cached as a miss).
func (g *Geocoder) Lookup(ctx context.Context, city, country string) (*Coordinates, error) {
	query := city + ", " + country

	if g.store != nil {
		if data, ok := g.store.Get(cache.GeocodeKey(query)); ok {
			var coords *Coordinates
			if err := json.Unmarshal(data, &coords); err == nil {
				return coords, nil
			}
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&limit=1", g.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode %q: unexpected status %d", query, resp.StatusCode)
	}

	var places []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	var coords *Coordinates
	if len(places) > 0 {
		lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
		lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
		if latErr == nil && lonErr == nil {
			coords = &Coordinates{Latitude: lat, Longitude: lon}
		}
	}

	if g.store != nil {
		if data, err := json.Marshal(coords); err == nil {
			_ = g.store.Set(cache.GeocodeKey(query), data, 0)
		}
	}

	return coords, nil
}

// FillTable adds LATITUDE and LONGITUDE to rows that lack them. Rows whose
// location cannot be resolved are reported, not removed.
func (g *Geocoder) FillTable(ctx context.Context, table *dataset.Table) (unresolved []string, err error) {
	hasLat := false
	hasLon := false
	for _, col := range table.Columns {
		if col == dataset.ColLatitude {
			hasLat = true
		}
		if col == dataset.ColLongitude {
			hasLon = true
		}
	}
	if !hasLat {
		table.Columns = append(table.Columns, dataset.ColLatitude)
	}
	if !hasLon {
		table.Columns = append(table.Columns, dataset.ColLongitude)
	}

	for _, row := range table.Rows {
		if _, ok := row.Float(dataset.ColLatitude); ok {
			if _, ok := row.Float(dataset.ColLongitude); ok {
				continue
			}
		}

		city := row.String(dataset.ColCity)
		country := row.String(dataset.ColCountry)
		if city == "" || country == "" {
			unresolved = append(unresolved, city+", "+country)
			continue
		}

		coords, lookupErr := g.Lookup(ctx, city, country)
		if lookupErr != nil {
			if ctx.Err() != nil {
				return unresolved, ctx.Err()
			}
			unresolved = append(unresolved, city+", "+country)
			continue
		}
		if coords == nil {
			unresolved = append(unresolved, city+", "+country)
			continue
		}

		row[dataset.ColLatitude] = coords.Latitude
		row[dataset.ColLongitude] = coords.Longitude
	}

	return unresolved, nil
}
