// Package weather provides cloud cover and sunrise/sunset for a location,
// cached per rounded coordinate in front of an upstream provider.
package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voltledger/voltledger/pkg/types"
)

// ErrProviderUnavailable is returned when the upstream provider failed and
// there is no cached snapshot to fall back on.
var ErrProviderUnavailable = errors.New("weather provider unavailable")

// Observation is what a Provider returns for a coordinate.
type Observation struct {
	CloudCoverPct float64
	Sunrise       time.Time
	Sunset        time.Time
}

// Provider fetches current weather for a coordinate.
type Provider interface {
	Current(ctx context.Context, lat, lon float64) (Observation, error)
}

// SnapshotStore holds the latest snapshot for each location key. Put must
// replace the entry wholesale.
type SnapshotStore interface {
	GetWeatherSnapshot(ctx context.Context, key string) (types.WeatherSnapshot, bool, error)
	PutWeatherSnapshot(ctx context.Context, snap types.WeatherSnapshot) error
}

// Weather is the result of a cache lookup.
type Weather struct {
	CloudCoverPct float64
	Sunrise       time.Time
	Sunset        time.Time
	FetchedAt     time.Time
	// Stale is set when the provider failed and an expired snapshot was
	// returned instead.
	Stale bool
}

func fromSnapshot(s types.WeatherSnapshot, stale bool) Weather {
	return Weather{
		CloudCoverPct: s.CloudCoverPct,
		Sunrise:       s.Sunrise,
		Sunset:        s.Sunset,
		FetchedAt:     s.FetchedAt,
		Stale:         stale,
	}
}

// LocationKey rounds a coordinate to two decimal places (roughly 1 km) so
// GPS jitter does not fragment the cache.
func LocationKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}
