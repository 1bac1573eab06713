package types

import (
	"math"
	"time"
)

// Reading is a single telemetry sample reported by a power-meter device.
// EnergyKWH is the meter's cumulative energy counter.
type Reading struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
	EnergyKWH float64   `json:"energy_kwh"`
}

// Valid reports whether every numeric field is finite.
func (r Reading) Valid() bool {
	for _, v := range []float64{r.Voltage, r.Current, r.Power, r.EnergyKWH} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// PowerKW returns the instantaneous power in kW.
func (r Reading) PowerKW() float64 {
	return r.Power / 1000
}

// Device is an energy meter owned by a single user.
type Device struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	Room           string    `json:"room"`
	DeviceType     string    `json:"device_type"`
	IsControllable bool      `json:"is_controllable"`
	CreatedAt      time.Time `json:"created_at"`

	// TokenHash is the hex SHA-256 of the device's ingestion token. The plain
	// token is only ever returned when the device is created.
	TokenHash string `json:"-"`
}
