package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// UserSettings represents the per-user settings stored in the database.
type UserSettings struct {
	OwnerID string `json:"owner_id"`

	// TariffPKRPerKWH is the manually configured tariff. Zero means the user
	// has not configured one and the calculated tariff should be used.
	TariffPKRPerKWH float64 `json:"tariff_pkr_per_kwh"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ManualRate returns the configured override, or an undefined rate if none
// is configured.
func (s UserSettings) ManualRate() Rate {
	if s.TariffPKRPerKWH > 0 {
		return RateOf(s.TariffPKRPerKWH)
	}
	return UndefinedRate()
}

// Validate checks the settings for values we refuse to store.
func (s UserSettings) Validate() error {
	if math.IsNaN(s.TariffPKRPerKWH) || math.IsInf(s.TariffPKRPerKWH, 0) {
		return errors.New("tariff_pkr_per_kwh must be a finite number")
	}
	if s.TariffPKRPerKWH < 0 {
		return errors.New("tariff_pkr_per_kwh cannot be negative")
	}
	return nil
}

// SolarConfig describes a user's rooftop installation.
type SolarConfig struct {
	OwnerID             string    `json:"owner_id"`
	Enabled             bool      `json:"enabled"`
	InstalledCapacityKW float64   `json:"installed_capacity_kw"`
	Latitude            *float64  `json:"latitude"`
	Longitude           *float64  `json:"longitude"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Validate checks that coordinates are present when solar is enabled and
// that every value is in range.
func (c SolarConfig) Validate() error {
	if math.IsNaN(c.InstalledCapacityKW) || math.IsInf(c.InstalledCapacityKW, 0) || c.InstalledCapacityKW < 0 {
		return fmt.Errorf("installed_capacity_kw must be a non-negative number")
	}
	if c.Enabled && (c.Latitude == nil || c.Longitude == nil) {
		return errors.New("latitude and longitude are required when solar is enabled")
	}
	if c.Latitude != nil && (math.IsNaN(*c.Latitude) || *c.Latitude < -90 || *c.Latitude > 90) {
		return fmt.Errorf("latitude %v out of range", *c.Latitude)
	}
	if c.Longitude != nil && (math.IsNaN(*c.Longitude) || *c.Longitude < -180 || *c.Longitude > 180) {
		return fmt.Errorf("longitude %v out of range", *c.Longitude)
	}
	return nil
}
