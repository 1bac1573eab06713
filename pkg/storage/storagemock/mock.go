package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/voltledger/voltledger/pkg/storage"
	"github.com/voltledger/voltledger/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

// slice returns args.Get(i) as []T, allowing a plain nil in Return.
func slice[T any](args mock.Arguments, i int) []T {
	if v := args.Get(i); v != nil {
		return v.([]T)
	}
	return nil
}

func (m *MockDatabase) CreateDevice(ctx context.Context, device types.Device) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockDatabase) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(types.Device), args.Error(1)
}

func (m *MockDatabase) GetDeviceByTokenHash(ctx context.Context, tokenHash string) (types.Device, error) {
	args := m.Called(ctx, tokenHash)
	return args.Get(0).(types.Device), args.Error(1)
}

func (m *MockDatabase) ListDevices(ctx context.Context, ownerID string) ([]types.Device, error) {
	args := m.Called(ctx, ownerID)
	return slice[types.Device](args, 0), args.Error(1)
}

func (m *MockDatabase) InsertReading(ctx context.Context, reading types.Reading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}

func (m *MockDatabase) GetReadings(ctx context.Context, deviceID string, start, end time.Time) ([]types.Reading, error) {
	args := m.Called(ctx, deviceID, start, end)
	return slice[types.Reading](args, 0), args.Error(1)
}

func (m *MockDatabase) GetRecentReadings(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]types.Reading, error) {
	args := m.Called(ctx, deviceID, start, end, limit)
	return slice[types.Reading](args, 0), args.Error(1)
}

func (m *MockDatabase) GetLatestReading(ctx context.Context, deviceID string) (types.Reading, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(types.Reading), args.Error(1)
}

func (m *MockDatabase) GetFirstReadingTime(ctx context.Context, deviceID string) (time.Time, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockDatabase) GetUserSettings(ctx context.Context, ownerID string) (types.UserSettings, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(types.UserSettings), args.Error(1)
}

func (m *MockDatabase) SetUserSettings(ctx context.Context, settings types.UserSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockDatabase) GetSolarConfig(ctx context.Context, ownerID string) (types.SolarConfig, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(types.SolarConfig), args.Error(1)
}

func (m *MockDatabase) SetSolarConfig(ctx context.Context, cfg types.SolarConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *MockDatabase) InsertSolarGeneration(ctx context.Context, record types.SolarGenerationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDatabase) GetSolarGenerationHistory(ctx context.Context, ownerID string, start, end time.Time, limit int) ([]types.SolarGenerationRecord, error) {
	args := m.Called(ctx, ownerID, start, end, limit)
	return slice[types.SolarGenerationRecord](args, 0), args.Error(1)
}

func (m *MockDatabase) GetLatestSolarGenerationTime(ctx context.Context, ownerID string) (time.Time, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockDatabase) GetWeatherSnapshot(ctx context.Context, key string) (types.WeatherSnapshot, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(types.WeatherSnapshot), args.Bool(1), args.Error(2)
}

func (m *MockDatabase) PutWeatherSnapshot(ctx context.Context, snap types.WeatherSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
