package solar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltledger/voltledger/pkg/types"
)

var (
	sunrise = time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	sunset  = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	noon    = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func TestEstimateKW(t *testing.T) {
	assert.Equal(t, 2.5, EstimateKW(4, 50, noon, sunrise, sunset))
	assert.Equal(t, 5.0, EstimateKW(5, 0, noon, sunrise, sunset))
	assert.Equal(t, 1.25, EstimateKW(5, 100, noon, sunrise, sunset))

	// sin(pi/6) = 0.5 at 08:00
	assert.Equal(t, 2.0, EstimateKW(4, 0, sunrise.Add(2*time.Hour), sunrise, sunset))

	t.Run("zero outside daylight", func(t *testing.T) {
		assert.Zero(t, EstimateKW(5, 0, sunrise.Add(-time.Minute), sunrise, sunset))
		assert.Zero(t, EstimateKW(5, 0, sunset.Add(time.Minute), sunrise, sunset))
		assert.Zero(t, EstimateKW(5, 0, sunrise, sunrise, sunset))
	})

	t.Run("zero for bad inputs", func(t *testing.T) {
		assert.Zero(t, EstimateKW(0, 0, noon, sunrise, sunset))
		assert.Zero(t, EstimateKW(-3, 0, noon, sunrise, sunset))
		assert.Zero(t, EstimateKW(5, 0, noon, sunset, sunrise))
	})

	t.Run("bounded by capacity", func(t *testing.T) {
		for h := 0; h <= 24; h++ {
			for _, cloud := range []float64{-10, 0, 33, 100, 150} {
				v := EstimateKW(3.3, cloud, sunrise.Add(-3*time.Hour).Add(time.Duration(h)*time.Hour), sunrise, sunset)
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 3.3)
			}
		}
	})
}

func TestGridImportKW(t *testing.T) {
	assert.Equal(t, 1.5, GridImportKW(4, 2.5))
	assert.Zero(t, GridImportKW(1, 2.5))
	assert.Zero(t, GridImportKW(0, 0))
}

func TestSavingsPKR(t *testing.T) {
	s := SavingsPKR(4, 2.5, types.RateOf(10))
	v, ok := s.Value()
	require.True(t, ok)
	assert.Equal(t, 25.0, v)

	// exported solar is not savings
	s = SavingsPKR(1, 2.5, types.RateOf(10))
	v, ok = s.Value()
	require.True(t, ok)
	assert.Equal(t, 10.0, v)

	assert.False(t, SavingsPKR(4, 2.5, types.UndefinedRate()).Defined())
}

func TestShiftDaylight(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)

	// 05:12 and 19:05 local
	rise := time.Date(2025, 6, 1, 0, 12, 0, 0, time.UTC)
	set := time.Date(2025, 6, 1, 14, 5, 0, 0, time.UTC)
	day := time.Date(2025, 3, 10, 20, 0, 0, 0, loc)

	r, s := ShiftDaylight(rise, set, day, loc)
	assert.Equal(t, time.Date(2025, 3, 10, 5, 12, 0, 0, loc), r)
	assert.Equal(t, time.Date(2025, 3, 10, 19, 5, 0, 0, loc), s)

	r, s = DefaultDaylight(day, loc)
	assert.Equal(t, time.Date(2025, 3, 10, 6, 0, 0, 0, loc), r)
	assert.Equal(t, time.Date(2025, 3, 10, 18, 0, 0, 0, loc), s)
}

func TestShouldSnapshot(t *testing.T) {
	assert.True(t, ShouldSnapshot(time.Time{}, noon))
	assert.False(t, ShouldSnapshot(noon.Add(-4*time.Minute), noon))
	assert.True(t, ShouldSnapshot(noon.Add(-5*time.Minute), noon))
}
