package types

import "time"

// SolarGenerationRecord is a point-in-time snapshot of estimated solar
// output against measured home load. Records are append-only.
type SolarGenerationRecord struct {
	OwnerID       string    `json:"owner_id"`
	Timestamp     time.Time `json:"timestamp"`
	SolarKW       float64   `json:"solar_kw"`
	HomeKW        float64   `json:"home_kw"`
	GridImportKW  float64   `json:"grid_import_kw"`
	CloudCoverPct float64   `json:"cloud_cover"`
}

// WeatherSnapshot is a cached upstream weather observation for a rounded
// location. Snapshots are never mutated after creation.
type WeatherSnapshot struct {
	LocationKey   string    `json:"location_key"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	CloudCoverPct float64   `json:"cloud_cover"`
	Sunrise       time.Time `json:"sunrise"`
	Sunset        time.Time `json:"sunset"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// SolarSource describes where the numbers in a SolarStatus came from.
type SolarSource string

const (
	SolarSourceEstimated    SolarSource = "estimated"
	SolarSourceStaleWeather SolarSource = "estimated-stale-weather"
	SolarSourceNoWeather    SolarSource = "estimated-no-weather"
)

// SolarStatus is the response type for the solar status endpoint.
type SolarStatus struct {
	Enabled         bool        `json:"enabled"`
	SolarKW         float64     `json:"solar_kw"`
	HomeKW          float64     `json:"home_kw"`
	GridImportKW    float64     `json:"grid_import_kw"`
	SavingsTodayPKR Amount      `json:"savings_today_pkr"`
	CloudCoverPct   float64     `json:"cloud_cover"`
	Source          SolarSource `json:"source,omitempty"`
}

// SolarHistoryPoint is a single point of the solar history series.
type SolarHistoryPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	SolarKW      float64   `json:"solar_kw"`
	HomeKW       float64   `json:"home_kw"`
	GridImportKW float64   `json:"grid_import_kw"`
}
