package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltledger/voltledger/pkg/types"
)

// testDatabase runs the behavior every Database must share. Owner and
// device IDs are suffixed so the suite can run against a shared emulator.
func testDatabase(t *testing.T, db Database) {
	ctx := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	owner := "owner-" + suffix
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	dev1 := types.Device{
		ID:         "dev-1-" + suffix,
		OwnerID:    owner,
		Name:       "Fridge",
		Room:       "Kitchen",
		DeviceType: "meter",
		CreatedAt:  base,
		TokenHash:  "hash-1-" + suffix,
	}
	dev2 := types.Device{
		ID:             "dev-2-" + suffix,
		OwnerID:        owner,
		Name:           "AC",
		IsControllable: true,
		CreatedAt:      base.Add(time.Minute),
		TokenHash:      "hash-2-" + suffix,
	}

	t.Run("Devices", func(t *testing.T) {
		require.NoError(t, db.CreateDevice(ctx, dev2))
		require.NoError(t, db.CreateDevice(ctx, dev1))
		assert.Error(t, db.CreateDevice(ctx, dev1), "duplicate id must fail")

		got, err := db.GetDevice(ctx, dev1.ID)
		require.NoError(t, err)
		assert.Equal(t, dev1.Name, got.Name)
		assert.Equal(t, dev1.Room, got.Room)
		assert.Equal(t, dev1.TokenHash, got.TokenHash)
		assert.True(t, dev1.CreatedAt.Equal(got.CreatedAt))

		got, err = db.GetDeviceByTokenHash(ctx, dev2.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, dev2.ID, got.ID)
		assert.True(t, got.IsControllable)

		_, err = db.GetDeviceByTokenHash(ctx, "nope-"+suffix)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = db.GetDevice(ctx, "missing-"+suffix)
		assert.ErrorIs(t, err, ErrNotFound)

		list, err := db.ListDevices(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, dev1.ID, list[0].ID)
		assert.Equal(t, dev2.ID, list[1].ID)

		list, err = db.ListDevices(ctx, "other-"+suffix)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("Readings", func(t *testing.T) {
		first, err := db.GetFirstReadingTime(ctx, dev1.ID)
		require.NoError(t, err)
		assert.True(t, first.IsZero())
		_, err = db.GetLatestReading(ctx, dev1.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		for i := 0; i < 5; i++ {
			require.NoError(t, db.InsertReading(ctx, types.Reading{
				DeviceID:  dev1.ID,
				Timestamp: base.Add(time.Duration(i) * time.Minute),
				Voltage:   230,
				Current:   1,
				Power:     230,
				EnergyKWH: float64(i) * 0.5,
			}))
		}

		// a replayed timestamp must not rewrite the stored reading
		err = db.InsertReading(ctx, types.Reading{
			DeviceID:  dev1.ID,
			Timestamp: base.Add(4 * time.Minute),
			Voltage:   230,
			EnergyKWH: 0.1,
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)

		all, err := db.GetReadings(ctx, dev1.ID, base, base.Add(4*time.Minute))
		require.NoError(t, err)
		require.Len(t, all, 5, "range is inclusive at both ends")
		for i := 1; i < len(all); i++ {
			assert.True(t, all[i-1].Timestamp.Before(all[i].Timestamp))
		}
		assert.Equal(t, 2.0, all[4].EnergyKWH)

		recent, err := db.GetRecentReadings(ctx, dev1.ID, base, base.Add(time.Hour), 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.True(t, recent[0].Timestamp.Equal(base.Add(3*time.Minute)))
		assert.True(t, recent[1].Timestamp.Equal(base.Add(4*time.Minute)))

		latest, err := db.GetLatestReading(ctx, dev1.ID)
		require.NoError(t, err)
		assert.True(t, latest.Timestamp.Equal(base.Add(4*time.Minute)))

		first, err = db.GetFirstReadingTime(ctx, dev1.ID)
		require.NoError(t, err)
		assert.True(t, first.Equal(base))

		other, err := db.GetReadings(ctx, dev2.ID, base, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("Settings", func(t *testing.T) {
		s, err := db.GetUserSettings(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, owner, s.OwnerID)
		assert.Zero(t, s.TariffPKRPerKWH)

		require.NoError(t, db.SetUserSettings(ctx, types.UserSettings{OwnerID: owner, TariffPKRPerKWH: 42.5, UpdatedAt: base}))
		s, err = db.GetUserSettings(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, 42.5, s.TariffPKRPerKWH)
	})

	t.Run("SolarConfig", func(t *testing.T) {
		c, err := db.GetSolarConfig(ctx, owner)
		require.NoError(t, err)
		assert.False(t, c.Enabled)
		assert.Nil(t, c.Latitude)

		lat, lon := 24.86, 67.0
		require.NoError(t, db.SetSolarConfig(ctx, types.SolarConfig{
			OwnerID:             owner,
			Enabled:             true,
			InstalledCapacityKW: 5,
			Latitude:            &lat,
			Longitude:           &lon,
			UpdatedAt:           base,
		}))
		c, err = db.GetSolarConfig(ctx, owner)
		require.NoError(t, err)
		assert.True(t, c.Enabled)
		assert.Equal(t, 5.0, c.InstalledCapacityKW)
		require.NotNil(t, c.Latitude)
		require.NotNil(t, c.Longitude)
		assert.Equal(t, lat, *c.Latitude)
		assert.Equal(t, lon, *c.Longitude)
	})

	t.Run("SolarGeneration", func(t *testing.T) {
		latest, err := db.GetLatestSolarGenerationTime(ctx, owner)
		require.NoError(t, err)
		assert.True(t, latest.IsZero())

		for i := 0; i < 3; i++ {
			require.NoError(t, db.InsertSolarGeneration(ctx, types.SolarGenerationRecord{
				OwnerID:   owner,
				Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
				SolarKW:   float64(i),
				HomeKW:    2,
			}))
		}
		err = db.InsertSolarGeneration(ctx, types.SolarGenerationRecord{
			OwnerID:   owner,
			Timestamp: base.Add(10 * time.Minute),
			SolarKW:   9,
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)

		latest, err = db.GetLatestSolarGenerationTime(ctx, owner)
		require.NoError(t, err)
		assert.True(t, latest.Equal(base.Add(10*time.Minute)))

		recs, err := db.GetSolarGenerationHistory(ctx, owner, base, base.Add(time.Hour), 0)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, 0.0, recs[0].SolarKW)
		assert.Equal(t, 2.0, recs[2].SolarKW)

		recs, err = db.GetSolarGenerationHistory(ctx, owner, base, base.Add(time.Hour), 1)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 2.0, recs[0].SolarKW)
	})

	t.Run("Weather", func(t *testing.T) {
		key := "1.23," + suffix
		_, ok, err := db.GetWeatherSnapshot(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		snap := types.WeatherSnapshot{
			LocationKey:   key,
			Latitude:      1.23,
			Longitude:     4.56,
			CloudCoverPct: 30,
			Sunrise:       base.Add(-4 * time.Hour),
			Sunset:        base.Add(8 * time.Hour),
			FetchedAt:     base,
		}
		require.NoError(t, db.PutWeatherSnapshot(ctx, snap))
		snap.CloudCoverPct = 80
		require.NoError(t, db.PutWeatherSnapshot(ctx, snap))

		got, ok, err := db.GetWeatherSnapshot(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 80.0, got.CloudCoverPct)
		assert.True(t, got.Sunrise.Equal(snap.Sunrise))
		assert.True(t, got.FetchedAt.Equal(base))
	})
}

func TestSQLiteProvider(t *testing.T) {
	s := NewSQLiteProvider(t.TempDir() + "/voltledger.db")
	require.NoError(t, s.Validate())
	require.NoError(t, s.Init(context.Background()))
	defer s.Close()

	testDatabase(t, s)
}

func TestSQLiteProviderValidate(t *testing.T) {
	assert.Error(t, NewSQLiteProvider("").Validate())
}

func TestTimeDocID(t *testing.T) {
	a := timeDocID(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	b := timeDocID(time.Date(2025, 5, 1, 10, 0, 0, 500, time.UTC))
	c := timeDocID(time.Date(2025, 5, 1, 10, 0, 1, 0, time.FixedZone("PKT", 5*3600)))
	assert.Equal(t, "2025-05-01T10:00:00.000000000Z", a)
	assert.Less(t, a, b)
	assert.Less(t, c, a, "doc ids are always UTC")
}
