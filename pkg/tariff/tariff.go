// Package tariff implements the tiered residential electricity schedule.
//
// A consumer is "protected" when every one of the trailing six calendar
// months stayed under ProtectedThresholdKWH. Protected consumers get lower
// slab rates, but a protected consumer crossing 200 kWh in a month has no
// defined rate (protection is forfeited) and the caller must surface that.
package tariff

import (
	"github.com/voltledger/voltledger/pkg/common"
	"github.com/voltledger/voltledger/pkg/types"
)

const (
	// ProtectedThresholdKWH is the exclusive monthly ceiling for protection.
	ProtectedThresholdKWH = 200.0
	// ProtectionMonths is the number of trailing calendar months considered.
	ProtectionMonths = 6
)

// slab is one row of the schedule. A nil rate means the slab is not
// applicable for that class of consumer.
type slab struct {
	upToKWH     float64
	protected   *float64
	unprotected *float64
}

func pkr(v float64) *float64 { return &v }

// schedule is ordered by upToKWH; the last slab is unbounded.
var schedule = []slab{
	{upToKWH: 50, protected: pkr(3.95), unprotected: nil},
	{upToKWH: 100, protected: pkr(7.74), unprotected: pkr(22.44)},
	{upToKWH: 200, protected: pkr(13.01), unprotected: pkr(28.91)},
	{upToKWH: 300, protected: nil, unprotected: pkr(33.10)},
	{upToKWH: -1, protected: pkr(33.10), unprotected: pkr(33.10)},
}

// Calculate returns the rate for a month's consumption. Slab upper bounds
// are inclusive.
func Calculate(monthlyKWH float64, protected bool) types.Rate {
	for _, s := range schedule {
		if s.upToKWH >= 0 && monthlyKWH > s.upToKWH {
			continue
		}
		r := s.unprotected
		if protected {
			r = s.protected
		}
		if r == nil {
			return types.UndefinedRate()
		}
		return types.RateOf(*r)
	}
	// unreachable: the last slab is unbounded
	return types.UndefinedRate()
}

// IsProtected reports whether a consumer qualifies for protected rates.
// It requires exactly ProtectionMonths of history; shorter histories are
// never protected.
func IsProtected(last6MonthsKWH []float64) bool {
	if len(last6MonthsKWH) < ProtectionMonths {
		return false
	}
	for _, kwh := range last6MonthsKWH[:ProtectionMonths] {
		if kwh >= ProtectedThresholdKWH {
			return false
		}
	}
	return true
}

// Cost prices kwh at rate, rounded to paisa precision. An undefined rate
// yields an undefined amount.
func Cost(kwh float64, rate types.Rate) types.Amount {
	v, ok := rate.Value()
	if !ok {
		return types.UndefinedAmount()
	}
	return types.AmountOf(common.Mul(kwh, v, 2))
}

// Effective picks the rate used for display and cost. A configured manual
// rate wins unless preferCalculated is set.
func Effective(settings types.UserSettings, calculated types.Rate, preferCalculated bool) (types.Rate, types.TariffSource) {
	if manual := settings.ManualRate(); manual.Defined() && !preferCalculated {
		return manual, types.TariffSourceManual
	}
	return calculated, types.TariffSourceCalculated
}
