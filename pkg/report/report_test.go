package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voltledger/voltledger/pkg/storage"
	"github.com/voltledger/voltledger/pkg/types"
	"github.com/voltledger/voltledger/pkg/weather"
)

type fakeWeather struct {
	w     weather.Weather
	err   error
	calls int
}

func (f *fakeWeather) Get(ctx context.Context, lat, lon float64) (weather.Weather, error) {
	f.calls++
	return f.w, f.err
}

type testEnv struct {
	t       *testing.T
	ctx     context.Context
	db      *storage.SQLiteProvider
	svc     *Service
	weather *fakeWeather
	loc     *time.Location
	now     time.Time
}

const testOwner = "owner-1"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)

	db := storage.NewSQLiteProvider(t.TempDir() + "/report.db")
	require.NoError(t, db.Init(context.Background()))
	t.Cleanup(func() { db.Close() })

	e := &testEnv{
		t:   t,
		ctx: context.Background(),
		db:  db,
		loc: loc,
		now: time.Date(2025, 6, 15, 12, 0, 0, 0, loc),
	}
	e.weather = &fakeWeather{w: weather.Weather{
		CloudCoverPct: 50,
		Sunrise:       time.Date(2025, 6, 15, 6, 0, 0, 0, loc),
		Sunset:        time.Date(2025, 6, 15, 18, 0, 0, 0, loc),
		FetchedAt:     e.now,
	}}
	e.svc = New(db, e.weather, loc).WithClock(func() time.Time { return e.now })
	return e
}

func (e *testEnv) at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2025, month, day, hour, minute, 0, 0, e.loc)
}

func (e *testEnv) device(owner, name string) (types.Device, string) {
	e.t.Helper()
	created, err := e.svc.CreateDevice(e.ctx, owner, DeviceInput{Name: name, Room: "Lounge"})
	require.NoError(e.t, err)
	return created.Device, created.Token
}

func (e *testEnv) reading(deviceID string, ts time.Time, energyKWH, powerW float64) {
	e.t.Helper()
	require.NoError(e.t, e.db.InsertReading(e.ctx, types.Reading{
		DeviceID:  deviceID,
		Timestamp: ts,
		Voltage:   230,
		Current:   powerW / 230,
		Power:     powerW,
		EnergyKWH: energyKWH,
	}))
}

// monthlyUsage gives deviceID exactly kwh of consumption in each listed
// month of 2025, using two readings inside the month.
func (e *testEnv) monthlyUsage(deviceID string, kwh map[time.Month]float64) {
	e.t.Helper()
	var cumulative float64
	for m := time.January; m <= time.December; m++ {
		v, ok := kwh[m]
		if !ok {
			continue
		}
		e.reading(deviceID, e.at(m, 2, 10, 0), cumulative, 500)
		cumulative += v
		e.reading(deviceID, e.at(m, 10, 10, 0), cumulative, 500)
	}
}

func (e *testEnv) manualTariff(owner string, pkr float64) {
	e.t.Helper()
	_, err := e.svc.UpdateSettings(e.ctx, owner, types.UserSettings{TariffPKRPerKWH: pkr})
	require.NoError(e.t, err)
}

func (e *testEnv) enableSolar(owner string, capacityKW float64) {
	e.t.Helper()
	lat, lon := 24.86, 67.0
	_, err := e.svc.UpdateSolarConfig(e.ctx, owner, types.SolarConfig{
		Enabled:             true,
		InstalledCapacityKW: capacityKW,
		Latitude:            &lat,
		Longitude:           &lon,
	})
	require.NoError(e.t, err)
}

func amount(t *testing.T, a types.Amount) float64 {
	t.Helper()
	v, ok := a.Value()
	require.True(t, ok, "expected a defined amount")
	return v
}

func rate(t *testing.T, r types.Rate) float64 {
	t.Helper()
	v, ok := r.Value()
	require.True(t, ok, "expected a defined rate")
	return v
}
