package collab

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

	DefaultSearchRadius = 5000 // meters
	MaxPlaces           = 10

	earthRadiusKm = 6371.0
)

// gardenShops are the OSM shop=* values searched for.
var gardenShops = []string{"garden_centre", "florist", "agrarian"}

type Place struct {
	Name        string  `json:"name"`
	Street      string  `json:"street,omitempty"`
	HouseNumber string  `json:"houseNumber,omitempty"`
	City        string  `json:"city,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Phone       string  `json:"phone,omitempty"`
	Website     string  `json:"website,omitempty"`
	DistanceKm  float64 `json:"distanceKm"`
}

// Overpass searches OpenStreetMap through an Overpass API interpreter.
type Overpass struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

var _ PlaceFinder = (*Overpass)(nil)

func NewOverpass(endpoint string, timeout time.Duration, logger *slog.Logger) *Overpass {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	return &Overpass{endpoint: endpoint, client: newHTTPClient(timeout), logger: logger}
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string  `json:"type"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Tags map[string]string `json:"tags"`
}

// overpassQuery asks for nodes and ways of every garden shop kind within
// radius of the point. Ways come back with their center.
func overpassQuery(lat, lon float64, radius int) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:10];(")
	for _, shop := range gardenShops {
		for _, kind := range []string{"node", "way"} {
			fmt.Fprintf(&b, `%s["shop"="%s"](around:%d,%f,%f);`, kind, shop, radius, lat, lon)
		}
	}
	b.WriteString(");out center tags;")
	return b.String()
}

// Nearby returns the closest garden shops, nearest first, at most MaxPlaces.
func (o *Overpass) Nearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]Place, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultSearchRadius
	}

	form := url.Values{"data": {overpassQuery(lat, lon, radiusMeters)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("collab: building place search: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body overpassResponse
	if err := doJSON(o.client, req, &body); err != nil {
		return nil, fmt.Errorf("collab: searching places: %w", err)
	}

	places := make([]Place, 0, len(body.Elements))
	for _, el := range body.Elements {
		p, ok := toPlace(el)
		if !ok {
			continue
		}
		p.DistanceKm = Haversine(lat, lon, p.Lat, p.Lon)
		places = append(places, p)
	}
	return NearestFirst(places, MaxPlaces), nil
}

func toPlace(el overpassElement) (Place, bool) {
	lat, lon := el.Lat, el.Lon
	if el.Center != nil {
		lat, lon = el.Center.Lat, el.Center.Lon
	}
	if lat == 0 && lon == 0 {
		return Place{}, false
	}

	name := el.Tags["name"]
	if name == "" {
		name = "Loja de jardinagem"
	}
	website := el.Tags["website"]
	if website == "" {
		website = el.Tags["contact:website"]
	}
	phone := el.Tags["phone"]
	if phone == "" {
		phone = el.Tags["contact:phone"]
	}

	return Place{
		Name:        name,
		Street:      el.Tags["addr:street"],
		HouseNumber: el.Tags["addr:housenumber"],
		City:        el.Tags["addr:city"],
		Lat:         lat,
		Lon:         lon,
		Phone:       phone,
		Website:     website,
	}, true
}

// NearestFirst sorts by DistanceKm and keeps at most limit places. The input
// slice is reordered in place.
func NearestFirst(places []Place, limit int) []Place {
	sort.SliceStable(places, func(i, j int) bool {
		return places[i].DistanceKm < places[j].DistanceKm
	})
	if limit > 0 && len(places) > limit {
		places = places[:limit]
	}
	return places
}

// Haversine is the great-circle distance in kilometers.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// NearbyOrNone turns any search error into an empty result.
func NearbyOrNone(ctx context.Context, f PlaceFinder, lat, lon float64, radiusMeters int, logger *slog.Logger) []Place {
	if f == nil {
		return []Place{}
	}
	places, err := f.Nearby(ctx, lat, lon, radiusMeters)
	if err != nil {
		logger.Warn("place search failed, reporting no results", "error", err)
		return []Place{}
	}
	if places == nil {
		return []Place{}
	}
	return places
}
