package collab

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultLocation is used when the client sends no usable coordinates
// (geolocation denied or unsupported): central São Paulo.
var DefaultLocation = Coordinates{Lat: -23.5505, Lon: -46.6333}

// ResolveLocation returns the requested point, or DefaultLocation and true
// when it is absent or out of range.
func ResolveLocation(requested *Coordinates) (Coordinates, bool) {
	if requested == nil || !requested.Valid() {
		return DefaultLocation, true
	}
	return *requested, false
}

// Report is everything the dashboard shows around the plants.
type Report struct {
	Location         Coordinates `json:"location"`
	LocationFallback bool        `json:"locationFallback"`
	Weather          Reading     `json:"weather"`
	Stores           []Place     `json:"stores"`
}

// Environment combines the collaborators into a Report. Either provider may
// be nil, in which case its fallback is used.
type Environment struct {
	weather WeatherProvider
	places  PlaceFinder
	radius  int
	logger  *slog.Logger
}

func NewEnvironment(weather WeatherProvider, places PlaceFinder, radiusMeters int, logger *slog.Logger) *Environment {
	if radiusMeters <= 0 {
		radiusMeters = DefaultSearchRadius
	}
	return &Environment{weather: weather, places: places, radius: radiusMeters, logger: logger}
}

// Report fetches weather and stores concurrently. It never fails.
func (e *Environment) Report(ctx context.Context, requested *Coordinates) Report {
	loc, fallback := ResolveLocation(requested)
	r := Report{Location: loc, LocationFallback: fallback}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.Weather = CurrentOrFallback(ctx, e.weather, loc.Lat, loc.Lon, e.logger)
	}()
	go func() {
		defer wg.Done()
		r.Stores = NearbyOrNone(ctx, e.places, loc.Lat, loc.Lon, e.radius, e.logger)
	}()
	wg.Wait()

	return r
}
