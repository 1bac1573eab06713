// Package report turns stored telemetry into the numbers users see: today's
// usage, tariff evaluation, monthly reports and solar estimates.
//
// Every operation is a function of its inputs, the stored data and the
// weather cache. Nothing is cached between calls.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/storage"
	"github.com/voltledger/voltledger/pkg/types"
	"github.com/voltledger/voltledger/pkg/usage"
	"github.com/voltledger/voltledger/pkg/weather"
)

var (
	ErrInvalidDeviceToken = errors.New("invalid device token")
	ErrMalformedReading   = errors.New("malformed reading")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrSolarNotEnabled    = errors.New("solar is not enabled")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrInvalidRange       = errors.New("invalid time range")
	ErrDuplicateReading   = errors.New("reading already stored for this timestamp")
)

// DefaultHomeLoadMaxAge is how old a device's latest reading may be and
// still count toward the current home load.
const DefaultHomeLoadMaxAge = 15 * time.Minute

// WeatherSource is satisfied by *weather.Cache.
type WeatherSource interface {
	Get(ctx context.Context, lat, lon float64) (weather.Weather, error)
}

// Service computes reports for device owners.
type Service struct {
	db             storage.Database
	weather        WeatherSource
	loc            *time.Location
	homeLoadMaxAge time.Duration
	now            func() time.Time
}

// New returns a Service reporting in the billing location loc.
func New(db storage.Database, w WeatherSource, loc *time.Location) *Service {
	return &Service{
		db:             db,
		weather:        w,
		loc:            loc,
		homeLoadMaxAge: DefaultHomeLoadMaxAge,
		now:            time.Now,
	}
}

// WithClock replaces the clock. It is used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithHomeLoadMaxAge sets how stale a reading may be before it is ignored
// for the current home load.
func (s *Service) WithHomeLoadMaxAge(d time.Duration) *Service {
	s.homeLoadMaxAge = d
	return s
}

// Location returns the billing location.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ownedDevice returns the device if it belongs to owner. Devices of other
// owners are reported as not found.
func (s *Service) ownedDevice(ctx context.Context, ownerID, deviceID string) (types.Device, error) {
	d, err := s.db.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return types.Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	if d.OwnerID != ownerID {
		return types.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return d, nil
}

// readingsByDevice loads [start, end] readings of every device.
func (s *Service) readingsByDevice(ctx context.Context, devices []types.Device, start, end time.Time) (map[string][]types.Reading, error) {
	out := make(map[string][]types.Reading, len(devices))
	for _, d := range devices {
		readings, err := s.db.GetReadings(ctx, d.ID, start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to get readings for device %s: %w", d.ID, err)
		}
		out[d.ID] = readings
	}
	return out, nil
}

// firstReadingTime returns the earliest reading across devices, or the zero
// time if none of them has reported.
func (s *Service) firstReadingTime(ctx context.Context, devices []types.Device) (time.Time, error) {
	var first time.Time
	for _, d := range devices {
		t, err := s.db.GetFirstReadingTime(ctx, d.ID)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to get first reading for device %s: %w", d.ID, err)
		}
		if !t.IsZero() && (first.IsZero() || t.Before(first)) {
			first = t
		}
	}
	return first, nil
}

// bucketsByDevice computes each device's buckets on the grid and
// the home total. Malformed pairs are logged, never fatal.
func (s *Service) bucketsByDevice(ctx context.Context, devices []types.Device, readings map[string][]types.Reading, grid usage.Grid) (map[string][]usage.Bucket, []usage.Bucket, error) {
	perDevice := make(map[string][]usage.Bucket, len(devices))
	series := make([][]usage.Bucket, 0, len(devices))
	for _, d := range devices {
		b, err := usage.Buckets(readings[d.ID], grid)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to bucket readings: %w", err)
		}
		logSkipped(ctx, d.ID, sumSkipped(b))
		perDevice[d.ID] = b
		series = append(series, b)
	}
	home := usage.SumBuckets(series...)
	if home == nil {
		var err error
		home, err = grid.Boundaries()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build grid: %w", err)
		}
	}
	return perDevice, home, nil
}

func sumSkipped(buckets []usage.Bucket) int {
	var n int
	for _, b := range buckets {
		n += b.Skipped
	}
	return n
}

func logSkipped(ctx context.Context, deviceID string, skipped int) {
	if skipped == 0 {
		return
	}
	log.Ctx(ctx).WarnContext(
		ctx,
		"skipped malformed readings",
		slog.String("deviceID", deviceID),
		slog.Int("pairs", skipped),
	)
}
