package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/voltledger/voltledger/pkg/common"
	"github.com/voltledger/voltledger/pkg/log"
)

// errNoAPIKey is returned by Current when no key was configured. The cache
// treats it like any other upstream failure.
var errNoAPIKey = errors.New("openweather api key is not configured")

// OpenWeather implements Provider against the OpenWeather current weather
// endpoint.
type OpenWeather struct {
	apiURL string
	apiKey string
	client *http.Client
}

// NewOpenWeather returns a provider for the given endpoint and key.
func NewOpenWeather(apiURL, apiKey string, client *http.Client) *OpenWeather {
	return &OpenWeather{apiURL: apiURL, apiKey: apiKey, client: client}
}

// Configured registers the OpenWeather flags and returns the provider and
// the upstream timeout the cache should use.
func Configured() (*OpenWeather, *time.Duration) {
	o := &OpenWeather{}
	apiURL := lflag.String("openweather-api-url", "https://api.openweathermap.org/data/2.5/weather", "URL for the OpenWeather current weather API")
	apiKey := lflag.String("openweather-api-key", "", "API key for OpenWeather (solar estimates fall back to clear sky without it)")
	timeout := lflag.Duration("weather-timeout", DefaultFetchTimeout, "Timeout for a single weather provider call")

	lflag.Do(func() {
		o.apiURL = *apiURL
		o.apiKey = *apiKey
		o.client = common.HTTPClient(*timeout)
	})
	return o, timeout
}

// Validate ensures the configuration is usable.
func (o *OpenWeather) Validate() error {
	if o.apiURL == "" {
		return fmt.Errorf("openweather-api-url is required")
	}
	if _, err := url.Parse(o.apiURL); err != nil {
		return fmt.Errorf("failed to parse openweather url (%s): %w", o.apiURL, err)
	}
	return nil
}

type openWeatherResponse struct {
	Clouds struct {
		All *float64 `json:"all"`
	} `json:"clouds"`
	Sys struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

// Current implements Provider.
func (o *OpenWeather) Current(ctx context.Context, lat, lon float64) (Observation, error) {
	if o.apiKey == "" {
		return Observation{}, errNoAPIKey
	}
	u, err := url.Parse(o.apiURL)
	if err != nil {
		return Observation{}, fmt.Errorf("invalid api url: %w", err)
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", o.apiKey)
	params.Set("units", "metric")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Observation{}, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching weather from openweather", slog.Float64("lat", lat), slog.Float64("lon", lon))

	resp, err := o.client.Do(req)
	if err != nil {
		return Observation{}, fmt.Errorf("failed to fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Observation{}, fmt.Errorf("openweather api returned status %d: %s", resp.StatusCode, body)
	}

	var data openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Observation{}, fmt.Errorf("failed to decode openweather response: %w", err)
	}
	if data.Clouds.All == nil {
		return Observation{}, fmt.Errorf("openweather response missing cloud cover")
	}
	if data.Sys.Sunrise == 0 || data.Sys.Sunset == 0 {
		return Observation{}, fmt.Errorf("openweather response missing sunrise/sunset")
	}

	cloud := min(max(*data.Clouds.All, 0), 100)
	return Observation{
		CloudCoverPct: cloud,
		Sunrise:       time.Unix(data.Sys.Sunrise, 0).UTC(),
		Sunset:        time.Unix(data.Sys.Sunset, 0).UTC(),
	}, nil
}
