// Package solar estimates rooftop generation from installed capacity, cloud
// cover and the position of the sun between sunrise and sunset.
package solar

import (
	"math"
	"time"

	"github.com/voltledger/voltledger/pkg/common"
	"github.com/voltledger/voltledger/pkg/types"
)

const (
	// cloudAttenuation is the share of output lost under full overcast.
	cloudAttenuation = 0.75

	// SnapshotInterval is the minimum spacing between stored generation
	// records for one owner.
	SnapshotInterval = 5 * time.Minute
)

// EstimateKW returns the estimated instantaneous output. Output follows a
// half sine between sunrise and sunset and is reduced linearly by cloud
// cover, down to 25% of clear-sky output at 100% cloud.
func EstimateKW(capacityKW, cloudCoverPct float64, now, sunrise, sunset time.Time) float64 {
	if capacityKW <= 0 || !sunset.After(sunrise) {
		return 0
	}
	if now.Before(sunrise) || now.After(sunset) {
		return 0
	}
	total := sunset.Sub(sunrise).Seconds()
	elapsed := now.Sub(sunrise).Seconds()
	daylight := min(max(math.Sin(math.Pi*elapsed/total), 0), 1)
	if daylight <= 0 {
		return 0
	}
	cloud := min(max(cloudCoverPct, 0), 100)
	factor := max(0, 1-cloud/100*cloudAttenuation)
	return common.Round(capacityKW*daylight*factor, 2)
}

// GridImportKW is the part of the home load not covered by solar.
func GridImportKW(homeKW, solarKW float64) float64 {
	return common.Round(max(homeKW-solarKW, 0), 2)
}

// SelfConsumedKW is the part of solar output used by the home.
func SelfConsumedKW(homeKW, solarKW float64) float64 {
	return max(min(homeKW, solarKW), 0)
}

// SavingsPKR prices the self-consumed solar power at rate. Exported solar is
// never counted.
func SavingsPKR(homeKW, solarKW float64, rate types.Rate) types.Amount {
	v, ok := rate.Value()
	if !ok {
		return types.UndefinedAmount()
	}
	return types.AmountOf(common.Mul(SelfConsumedKW(homeKW, solarKW), v, 2))
}

// ShiftDaylight moves the local clock times of sunrise and sunset onto the
// local date of day.
func ShiftDaylight(sunrise, sunset, day time.Time, loc *time.Location) (time.Time, time.Time) {
	return onDate(sunrise, day, loc), onDate(sunset, day, loc)
}

func onDate(clock, day time.Time, loc *time.Location) time.Time {
	c := clock.In(loc)
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc)
}

// DefaultDaylight is used when no weather has ever been fetched: 06:00 to
// 18:00 local time on the date of day.
func DefaultDaylight(day time.Time, loc *time.Location) (time.Time, time.Time) {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 6, 0, 0, 0, loc),
		time.Date(d.Year(), d.Month(), d.Day(), 18, 0, 0, 0, loc)
}

// ShouldSnapshot reports whether a new generation record is due.
func ShouldSnapshot(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= SnapshotInterval
}
