package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/storage"
	"github.com/voltledger/voltledger/pkg/types"
)

// HashToken returns the stored form of a device token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DeviceInput is the user-editable part of a device.
type DeviceInput struct {
	Name           string `json:"name"`
	Room           string `json:"room"`
	DeviceType     string `json:"device_type"`
	IsControllable bool   `json:"is_controllable"`
}

// CreatedDevice is returned once when a device is registered. Token is not
// recoverable afterwards.
type CreatedDevice struct {
	types.Device
	Token string `json:"token"`
}

// CreateDevice registers a device for owner and issues its ingestion token.
func (s *Service) CreateDevice(ctx context.Context, ownerID string, in DeviceInput) (CreatedDevice, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return CreatedDevice{}, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	token := uuid.NewString()
	d := types.Device{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Name:           name,
		Room:           strings.TrimSpace(in.Room),
		DeviceType:     strings.TrimSpace(in.DeviceType),
		IsControllable: in.IsControllable,
		CreatedAt:      s.now().UTC(),
		TokenHash:      HashToken(token),
	}
	if err := s.db.CreateDevice(ctx, d); err != nil {
		return CreatedDevice{}, fmt.Errorf("failed to create device: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "created device", slog.String("deviceID", d.ID), slog.String("ownerID", ownerID))
	return CreatedDevice{Device: d, Token: token}, nil
}

// ListDevices returns the owner's devices.
func (s *Service) ListDevices(ctx context.Context, ownerID string) ([]types.Device, error) {
	devices, err := s.db.ListDevices(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if devices == nil {
		devices = []types.Device{}
	}
	return devices, nil
}

// ReadingInput is the body a device posts. Pointers distinguish a missing
// field from zero.
type ReadingInput struct {
	Timestamp *time.Time `json:"timestamp"`
	Voltage   *float64   `json:"voltage"`
	Current   *float64   `json:"current"`
	Power     *float64   `json:"power"`
	EnergyKWH *float64   `json:"energy_kwh"`
}

func requireFinite(name string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s is required", ErrMalformedReading, name)
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrMalformedReading, name)
	}
	return *v, nil
}

// IngestReading authenticates a device by its token and stores the reading.
// A missing timestamp defaults to now. Stored readings are never replaced, a
// repeated timestamp returns ErrDuplicateReading.
func (s *Service) IngestReading(ctx context.Context, token string, in ReadingInput) (types.Reading, error) {
	if strings.TrimSpace(token) == "" {
		return types.Reading{}, fmt.Errorf("%w: missing token", ErrInvalidDeviceToken)
	}
	d, err := s.db.GetDeviceByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.Reading{}, ErrInvalidDeviceToken
		}
		return types.Reading{}, fmt.Errorf("failed to look up device token: %w", err)
	}

	r := types.Reading{DeviceID: d.ID}
	fields := []struct {
		name string
		in   *float64
		out  *float64
	}{
		{"voltage", in.Voltage, &r.Voltage},
		{"current", in.Current, &r.Current},
		{"power", in.Power, &r.Power},
		{"energy_kwh", in.EnergyKWH, &r.EnergyKWH},
	}
	for _, f := range fields {
		v, err := requireFinite(f.name, f.in)
		if err != nil {
			return types.Reading{}, err
		}
		*f.out = v
	}
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		r.Timestamp = in.Timestamp.UTC()
	} else {
		r.Timestamp = s.now().UTC()
	}

	if err := s.db.InsertReading(ctx, r); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return types.Reading{}, fmt.Errorf("%w: %s", ErrDuplicateReading, r.Timestamp.Format(time.RFC3339Nano))
		}
		return types.Reading{}, fmt.Errorf("failed to store reading: %w", err)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"ingested reading",
		slog.String("deviceID", d.ID),
		slog.Time("timestamp", r.Timestamp),
		slog.Float64("energyKWH", r.EnergyKWH),
	)
	return r, nil
}

// LatestReading returns the most recent reading of an owned device.
func (s *Service) LatestReading(ctx context.Context, ownerID, deviceID string) (types.Reading, error) {
	if _, err := s.ownedDevice(ctx, ownerID, deviceID); err != nil {
		return types.Reading{}, err
	}
	r, err := s.db.GetLatestReading(ctx, deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.Reading{}, fmt.Errorf("%w: no readings for %s", ErrDeviceNotFound, deviceID)
		}
		return types.Reading{}, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return r, nil
}

const (
	DefaultRangeLimit = 200
	MaxRangeLimit     = 20000
)

// ClampLimit applies the default and bounds of TelemetryRange.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultRangeLimit
	}
	return min(max(limit, 1), MaxRangeLimit)
}

// TelemetryRange returns the latest readings of an owned device within
// [from, to], ascending. A zero to means now.
func (s *Service) TelemetryRange(ctx context.Context, ownerID, deviceID string, from, to time.Time, limit int) ([]types.Reading, error) {
	if _, err := s.ownedDevice(ctx, ownerID, deviceID); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.now()
	}
	if !from.IsZero() && from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidRange)
	}
	readings, err := s.db.GetRecentReadings(ctx, deviceID, from, to, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	return readings, nil
}
