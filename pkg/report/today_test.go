package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/voltledger/voltledger/pkg/storage/storagemock"
	"github.com/voltledger/voltledger/pkg/types"
)

func TestTodaySummary(t *testing.T) {
	e := newTestEnv(t)
	fridge, _ := e.device(testOwner, "Fridge")
	ac, _ := e.device(testOwner, "AC")
	foreign, _ := e.device("owner-2", "Other")

	// yesterday's reading must not count
	e.reading(fridge.ID, e.at(6, 14, 23, 0), 0.5, 100)
	e.reading(fridge.ID, e.at(6, 15, 1, 0), 1.0, 100)
	e.reading(fridge.ID, e.at(6, 15, 2, 0), 1.5, 100)
	e.reading(fridge.ID, e.at(6, 15, 3, 0), 2.0, 100)
	// meter reset
	e.reading(fridge.ID, e.at(6, 15, 4, 0), 0.2, 100)
	e.reading(fridge.ID, e.at(6, 15, 5, 0), 1.0, 100)

	e.reading(ac.ID, e.at(6, 15, 6, 0), 0.25, 1500)
	e.reading(ac.ID, e.at(6, 15, 7, 0), 0.75, 1500)

	t.Run("undefined calculated tariff stays undefined", func(t *testing.T) {
		// two kWh this month with no history is below the first unprotected slab
		summary, err := e.svc.TodaySummary(e.ctx, testOwner, "")
		require.NoError(t, err)
		assert.Equal(t, types.TariffSourceCalculated, summary.TariffSource)
		assert.False(t, summary.Tariff.Defined())
		assert.False(t, summary.HomeTotalCostPKR.Defined())
		for _, d := range summary.Devices {
			assert.False(t, d.CostPKR.Defined())
		}
		assert.Equal(t, 2.3, summary.HomeTotalKWH)
	})

	e.manualTariff(testOwner, 40)

	t.Run("all devices", func(t *testing.T) {
		summary, err := e.svc.TodaySummary(e.ctx, testOwner, "")
		require.NoError(t, err)
		assert.Equal(t, "2025-06-15", summary.Date)
		assert.Equal(t, "Asia/Karachi", summary.Timezone)
		assert.Equal(t, types.TariffSourceManual, summary.TariffSource)
		assert.Equal(t, 40.0, rate(t, summary.Tariff))

		require.Len(t, summary.Devices, 2)
		byID := map[string]types.DeviceUsage{}
		for _, d := range summary.Devices {
			byID[d.DeviceID] = d
		}
		assert.Equal(t, 1.8, byID[fridge.ID].KWH)
		assert.Equal(t, 72.0, amount(t, byID[fridge.ID].CostPKR))
		assert.Equal(t, 0.5, byID[ac.ID].KWH)
		assert.Equal(t, 20.0, amount(t, byID[ac.ID].CostPKR))

		assert.Equal(t, 2.3, summary.HomeTotalKWH)
		assert.Equal(t, 92.0, amount(t, summary.HomeTotalCostPKR))
	})

	t.Run("single device", func(t *testing.T) {
		summary, err := e.svc.TodaySummary(e.ctx, testOwner, ac.ID)
		require.NoError(t, err)
		require.Len(t, summary.Devices, 1)
		assert.Equal(t, 0.5, summary.HomeTotalKWH)
	})

	t.Run("foreign device", func(t *testing.T) {
		_, err := e.svc.TodaySummary(e.ctx, testOwner, foreign.ID)
		assert.ErrorIs(t, err, ErrDeviceNotFound)
	})
}

func TestTodaySummaryStorageError(t *testing.T) {
	e := newTestEnv(t)
	db := &storagemock.MockDatabase{}
	db.On("ListDevices", mock.Anything, testOwner).Return(nil, errors.New("connection reset"))

	svc := New(db, e.weather, e.loc).WithClock(func() time.Time { return e.now })
	_, err := svc.TodaySummary(e.ctx, testOwner, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeviceNotFound)
	db.AssertExpectations(t)
}
