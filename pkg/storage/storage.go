package storage

import (
	"context"
	"errors"
	"time"

	"github.com/voltledger/voltledger/pkg/types"
)

var (
	// ErrNotFound is returned when a requested document or row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when an append would overwrite a stored
	// reading or generation record with the same timestamp.
	ErrAlreadyExists = errors.New("already exists")
)

// Database defines the interface for persisting telemetry, devices and
// per-owner configuration.
type Database interface {
	// Devices
	CreateDevice(ctx context.Context, device types.Device) error
	GetDevice(ctx context.Context, deviceID string) (types.Device, error)
	GetDeviceByTokenHash(ctx context.Context, tokenHash string) (types.Device, error)
	ListDevices(ctx context.Context, ownerID string) ([]types.Device, error)

	// Telemetry
	// InsertReading never replaces a stored reading. A second reading for the
	// same device and timestamp returns ErrAlreadyExists.
	InsertReading(ctx context.Context, reading types.Reading) error
	// GetReadings returns readings with start <= timestamp <= end, ascending.
	GetReadings(ctx context.Context, deviceID string, start, end time.Time) ([]types.Reading, error)
	// GetRecentReadings returns the latest limit readings in [start, end],
	// ascending.
	GetRecentReadings(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]types.Reading, error)
	GetLatestReading(ctx context.Context, deviceID string) (types.Reading, error)
	// GetFirstReadingTime returns the zero time when the device has no readings.
	GetFirstReadingTime(ctx context.Context, deviceID string) (time.Time, error)

	// Settings
	GetUserSettings(ctx context.Context, ownerID string) (types.UserSettings, error)
	SetUserSettings(ctx context.Context, settings types.UserSettings) error
	GetSolarConfig(ctx context.Context, ownerID string) (types.SolarConfig, error)
	SetSolarConfig(ctx context.Context, cfg types.SolarConfig) error

	// Solar
	InsertSolarGeneration(ctx context.Context, record types.SolarGenerationRecord) error
	// GetSolarGenerationHistory returns the latest limit records in
	// [start, end], ascending. A limit <= 0 returns all of them.
	GetSolarGenerationHistory(ctx context.Context, ownerID string, start, end time.Time, limit int) ([]types.SolarGenerationRecord, error)
	GetLatestSolarGenerationTime(ctx context.Context, ownerID string) (time.Time, error)

	// Weather
	GetWeatherSnapshot(ctx context.Context, key string) (types.WeatherSnapshot, bool, error)
	PutWeatherSnapshot(ctx context.Context, snap types.WeatherSnapshot) error

	// Lifecycle
	Close() error
}

// timestamp document IDs are fixed-width so they sort lexicographically
const docIDLayout = "2006-01-02T15:04:05.000000000Z"

func timeDocID(t time.Time) string {
	return t.UTC().Format(docIDLayout)
}
