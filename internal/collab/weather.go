package collab

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultWeatherBaseURL = "https://api.open-meteo.com/v1"

// Reading is the current weather at a point. ConditionCode is a WMO weather
// interpretation code (0 clear sky, 1 mainly clear, ... 95 thunderstorm).
type Reading struct {
	TemperatureC  float64 `json:"temperatureC"`
	HumidityPct   float64 `json:"humidityPct"`
	WindSpeedKmh  float64 `json:"windSpeedKmh"`
	ConditionCode int     `json:"conditionCode"`
	Fallback      bool    `json:"fallback"`
}

// FallbackReading is shown whenever the weather provider cannot answer.
var FallbackReading = Reading{
	TemperatureC:  22,
	HumidityPct:   60,
	WindSpeedKmh:  10,
	ConditionCode: 1,
	Fallback:      true,
}

// OpenMeteo reads the "current" block of the Open-Meteo forecast API. No API
// key is needed.
type OpenMeteo struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ WeatherProvider = (*OpenMeteo)(nil)

func NewOpenMeteo(baseURL string, timeout time.Duration, logger *slog.Logger) *OpenMeteo {
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}
	return &OpenMeteo{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
		logger:  logger,
	}
}

type openMeteoResponse struct {
	Current *struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

// Current returns the live reading. Callers that must not fail use
// CurrentOrFallback instead.
func (w *OpenMeteo) Current(ctx context.Context, lat, lon float64) (Reading, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code")
	q.Set("wind_speed_unit", "kmh")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/forecast?"+q.Encode(), nil)
	if err != nil {
		return Reading{}, fmt.Errorf("collab: building weather request: %w", err)
	}

	var body openMeteoResponse
	if err := doJSON(w.client, req, &body); err != nil {
		return Reading{}, fmt.Errorf("collab: fetching weather: %w", err)
	}
	if body.Current == nil {
		return Reading{}, fmt.Errorf("collab: weather response has no current block")
	}

	return Reading{
		TemperatureC:  body.Current.Temperature,
		HumidityPct:   body.Current.Humidity,
		WindSpeedKmh:  body.Current.WindSpeed,
		ConditionCode: body.Current.WeatherCode,
	}, nil
}

// CurrentOrFallback never fails: any provider error yields FallbackReading.
func CurrentOrFallback(ctx context.Context, w WeatherProvider, lat, lon float64, logger *slog.Logger) Reading {
	if w == nil {
		return FallbackReading
	}
	r, err := w.Current(ctx, lat, lon)
	if err != nil {
		logger.Warn("weather unavailable, using fallback", "error", err)
		return FallbackReading
	}
	return r
}
