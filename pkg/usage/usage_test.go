package usage

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltledger/voltledger/pkg/types"
)

func readingsAt(deviceID string, start time.Time, step time.Duration, energies ...float64) []types.Reading {
	out := make([]types.Reading, len(energies))
	for i, e := range energies {
		out[i] = types.Reading{
			DeviceID:  deviceID,
			Timestamp: start.Add(time.Duration(i) * step),
			EnergyKWH: e,
		}
	}
	return out
}

func TestCompute(t *testing.T) {
	t0 := time.Date(2025, 12, 27, 8, 0, 0, 0, time.UTC)

	t.Run("meter reset contributes zero", func(t *testing.T) {
		rs := readingsAt("d1", t0, time.Minute, 10.0, 10.5, 9.0, 9.8)
		res := Compute(rs, t0, t0.Add(3*time.Minute))
		assert.InDelta(t, 1.3, res.KWH, 1e-9)
		assert.Equal(t, 3, res.Pairs)
		assert.Equal(t, 0, res.Skipped)
	})

	t.Run("empty and single", func(t *testing.T) {
		assert.Equal(t, 0.0, ComputeUsageKWH(nil, time.Time{}, time.Time{}))
		assert.Equal(t, 0.0, ComputeUsageKWH(readingsAt("d1", t0, time.Minute, 42), time.Time{}, time.Time{}))
	})

	t.Run("unsorted input is sorted", func(t *testing.T) {
		rs := readingsAt("d1", t0, time.Minute, 1, 2, 4)
		shuffled := []types.Reading{rs[2], rs[0], rs[1]}
		assert.InDelta(t, 3.0, ComputeUsageKWH(shuffled, time.Time{}, time.Time{}), 1e-9)
		// input untouched
		assert.Equal(t, 4.0, shuffled[0].EnergyKWH)
	})

	t.Run("duplicates and stalls", func(t *testing.T) {
		rs := readingsAt("d1", t0, time.Minute, 5, 5, 5, 6)
		rs = append(rs, types.Reading{DeviceID: "d1", Timestamp: rs[3].Timestamp, EnergyKWH: 6})
		assert.InDelta(t, 1.0, ComputeUsageKWH(rs, time.Time{}, time.Time{}), 1e-9)
	})

	t.Run("malformed pairs are skipped", func(t *testing.T) {
		rs := readingsAt("d1", t0, time.Minute, 1, math.NaN(), 3, 4, math.Inf(1), 7)
		res := Compute(rs, time.Time{}, time.Time{})
		// only 3->4 survives
		assert.InDelta(t, 1.0, res.KWH, 1e-9)
		assert.Equal(t, 5, res.Pairs)
		assert.Equal(t, 4, res.Skipped)
	})

	t.Run("window is inclusive", func(t *testing.T) {
		rs := readingsAt("d1", t0, time.Hour, 0, 1, 3, 6, 10)
		assert.InDelta(t, 5.0, ComputeUsageKWH(rs, t0.Add(time.Hour), t0.Add(3*time.Hour)), 1e-9)
		assert.InDelta(t, 10.0, ComputeUsageKWH(rs, time.Time{}, time.Time{}), 1e-9)
	})

	t.Run("never negative", func(t *testing.T) {
		rs := readingsAt("d1", t0, time.Minute, 100, 50, 20, 10, 0)
		assert.Equal(t, 0.0, ComputeUsageKWH(rs, time.Time{}, time.Time{}))
	})

	t.Run("reset and duplicate skips are equivalent", func(t *testing.T) {
		reset := readingsAt("d1", t0, time.Minute, 10, 12, 3, 5)
		stall := readingsAt("d1", t0, time.Minute, 10, 12, 12, 14)
		assert.InDelta(t, ComputeUsageKWH(reset, time.Time{}, time.Time{}), ComputeUsageKWH(stall, time.Time{}, time.Time{}), 1e-9)
	})
}

func TestHomeTotal(t *testing.T) {
	t0 := time.Date(2025, 12, 27, 8, 0, 0, 0, time.UTC)
	a := readingsAt("a", t0, time.Minute, 100, 101, 103)
	b := readingsAt("b", t0.Add(30*time.Second), time.Minute, 5, 6, 0.5)

	res := HomeTotal(map[string][]types.Reading{"a": a, "b": b}, time.Time{}, time.Time{})
	want := ComputeUsageKWH(a, time.Time{}, time.Time{}) + ComputeUsageKWH(b, time.Time{}, time.Time{})
	assert.InDelta(t, want, res.KWH, 1e-9)
	assert.InDelta(t, 4.0, res.KWH, 1e-9)

	// a merged stream would alternate between the two counters and produce
	// a very different (wrong) number
	merged := append(append([]types.Reading{}, a...), b...)
	assert.NotEqual(t, res.KWH, ComputeUsageKWH(merged, time.Time{}, time.Time{}))
}

func TestBuckets(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)

	t.Run("daily", func(t *testing.T) {
		start := time.Date(2025, 3, 1, 0, 0, 0, 0, loc)
		rs := []types.Reading{
			{Timestamp: start.Add(1 * time.Hour), EnergyKWH: 1},
			{Timestamp: start.Add(23 * time.Hour), EnergyKWH: 3},
			// crosses into the next day; the straddling pair is not counted
			{Timestamp: start.Add(25 * time.Hour), EnergyKWH: 4},
			{Timestamp: start.Add(26 * time.Hour), EnergyKWH: 4.5},
		}
		got, err := Buckets(rs, Grid{Start: start, End: start.AddDate(0, 0, 3), Granularity: Daily, Location: loc})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.InDelta(t, 2.0, got[0].KWH, 1e-9)
		assert.InDelta(t, 0.5, got[1].KWH, 1e-9)
		assert.Equal(t, 0.0, got[2].KWH)
		assert.True(t, got[1].Start.Equal(start.AddDate(0, 0, 1)))
	})

	t.Run("monthly boundaries are independent of data", func(t *testing.T) {
		g := Grid{
			Start:       time.Date(2025, 1, 15, 13, 0, 0, 0, loc),
			End:         time.Date(2025, 4, 1, 0, 0, 0, 0, loc),
			Granularity: Monthly,
			Location:    loc,
		}
		got, err := Buckets(nil, g)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), got[0].Start)
		assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, loc), got[0].End)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, loc), got[2].Start)
	})

	t.Run("hourly across DST uses wall clock midnight", func(t *testing.T) {
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		// 2025-03-09 is 23 hours long in New York
		g := Grid{
			Start:       time.Date(2025, 3, 9, 0, 0, 0, 0, ny),
			End:         time.Date(2025, 3, 10, 0, 0, 0, 0, ny),
			Granularity: Hourly,
			Location:    ny,
		}
		bs, err := g.Boundaries()
		require.NoError(t, err)
		assert.Len(t, bs, 23)
	})

	t.Run("invalid grid", func(t *testing.T) {
		_, err := Buckets(nil, Grid{Start: time.Now(), End: time.Now().Add(time.Hour), Granularity: Daily})
		assert.ErrorContains(t, err, "location")
		_, err = Buckets(nil, Grid{Start: time.Now(), End: time.Now().Add(-time.Hour), Granularity: Daily, Location: loc})
		assert.ErrorContains(t, err, "after start")
		_, err = Buckets(nil, Grid{Start: time.Now(), End: time.Now().Add(time.Hour), Granularity: "week", Location: loc})
		assert.ErrorContains(t, err, "unknown granularity")
	})

	t.Run("sum", func(t *testing.T) {
		a := []Bucket{{KWH: 1}, {KWH: 2}}
		b := []Bucket{{KWH: 0.5}, {KWH: 0.25}}
		sum := SumBuckets(a, b)
		assert.Equal(t, 1.5, sum[0].KWH)
		assert.Equal(t, 2.25, sum[1].KWH)
		assert.Equal(t, 1.0, a[0].KWH, "inputs are not modified")
		assert.Nil(t, SumBuckets())
	})
}

func TestSpread(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)
	start := time.Date(2025, 6, 14, 0, 0, 0, 0, loc)
	hourly := Grid{Start: start, End: start.AddDate(0, 0, 1), Granularity: Hourly, Location: loc}

	t.Run("hourly meter", func(t *testing.T) {
		// readings exactly on the hour: every pair spans a whole bucket
		rs := readingsAt("d1", start, time.Hour, 0, 2, 4, 6)
		got, err := Spread(rs, hourly)
		require.NoError(t, err)
		require.Len(t, got, 24)
		assert.InDelta(t, 2.0, got[0].KWH, 1e-9)
		assert.InDelta(t, 2.0, got[1].KWH, 1e-9)
		assert.InDelta(t, 2.0, got[2].KWH, 1e-9)
		assert.Zero(t, got[3].KWH)

		// Buckets never sees a pair inside one hour
		inside, err := Buckets(rs, hourly)
		require.NoError(t, err)
		assert.Zero(t, inside[0].KWH)
	})

	t.Run("half-hourly meter loses nothing", func(t *testing.T) {
		rs := readingsAt("d1", start, 30*time.Minute, 0, 1, 2, 3, 4)
		got, err := Spread(rs, hourly)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, got[0].KWH, 1e-9)
		assert.InDelta(t, 2.0, got[1].KWH, 1e-9)
	})

	t.Run("straddling pair is split by time", func(t *testing.T) {
		rs := []types.Reading{
			{Timestamp: start.Add(45 * time.Minute), EnergyKWH: 10},
			{Timestamp: start.Add(2*time.Hour + 15*time.Minute), EnergyKWH: 13},
		}
		got, err := Spread(rs, hourly)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, got[0].KWH, 1e-9)
		assert.InDelta(t, 2.0, got[1].KWH, 1e-9)
		assert.InDelta(t, 0.5, got[2].KWH, 1e-9)
	})

	t.Run("share outside the grid is dropped", func(t *testing.T) {
		rs := []types.Reading{
			{Timestamp: start.Add(-time.Hour), EnergyKWH: 0},
			{Timestamp: start.Add(time.Hour), EnergyKWH: 4},
		}
		got, err := Spread(rs, hourly)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, got[0].KWH, 1e-9)
		assert.Zero(t, got[1].KWH)
	})

	t.Run("resets and malformed pairs", func(t *testing.T) {
		rs := readingsAt("d1", start, time.Hour, 5, 1, math.NaN(), 3)
		got, err := Spread(rs, hourly)
		require.NoError(t, err)
		assert.Zero(t, got[0].KWH)
		assert.Zero(t, got[1].KWH)
		assert.Zero(t, got[2].KWH)
		assert.Equal(t, 1, got[1].Skipped)
		assert.Equal(t, 1, got[2].Skipped)
	})

	t.Run("input is not modified", func(t *testing.T) {
		rs := []types.Reading{
			{Timestamp: start.Add(time.Hour), EnergyKWH: 2},
			{Timestamp: start, EnergyKWH: 0},
		}
		got, err := Spread(rs, hourly)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, got[0].KWH, 1e-9)
		assert.Equal(t, 2.0, rs[0].EnergyKWH)
	})
}
