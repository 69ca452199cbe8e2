// Package collab holds the clients for the services Pluk only consumes:
// current weather, nearby garden shops, device location and the species
// identifier. None of them is allowed to fail a request. Each makes a single
// attempt and substitutes a fixed fallback when that attempt fails.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 5 * time.Second

// Coordinates is a WGS84 point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether c is inside the WGS84 range.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type WeatherProvider interface {
	Current(ctx context.Context, lat, lon float64) (Reading, error)
}

type PlaceFinder interface {
	Nearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]Place, error)
}

type SpeciesIdentifier interface {
	Identify(ctx context.Context, photo string) (Identification, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// doJSON sends req and decodes a 2xx JSON body into out.
func doJSON(client *http.Client, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
