package report

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/voltledger/voltledger/pkg/common"
	"github.com/voltledger/voltledger/pkg/tariff"
	"github.com/voltledger/voltledger/pkg/types"
	"github.com/voltledger/voltledger/pkg/usage"
)

// monthGrid covers the given months, which must be most recent first.
func (s *Service) monthGrid(months []tariff.Month) usage.Grid {
	return usage.Grid{
		Start:       months[len(months)-1].Start,
		End:         months[0].End,
		Granularity: usage.Monthly,
		Location:    s.loc,
	}
}

// TariffCalculation evaluates the owner's protection status over the
// trailing six calendar months and prices the current month.
func (s *Service) TariffCalculation(ctx context.Context, ownerID string) (types.TariffCalculation, error) {
	devices, err := s.db.ListDevices(ctx, ownerID)
	if err != nil {
		return types.TariffCalculation{}, fmt.Errorf("failed to list devices: %w", err)
	}
	return s.calculate(ctx, devices)
}

func (s *Service) calculate(ctx context.Context, devices []types.Device) (types.TariffCalculation, error) {
	now := s.now()
	calc := types.TariffCalculation{
		CalculatedTariff: types.UndefinedRate(),
		MonthlyUsage:     []types.MonthUsage{},
	}
	if len(devices) == 0 {
		calc.InsufficientHistory = true
		calc.Message = "No devices registered."
		return calc, nil
	}

	months := tariff.TrailingMonths(now, s.loc, tariff.ProtectionMonths)
	grid := s.monthGrid(months)
	readings, err := s.readingsByDevice(ctx, devices, grid.Start, now)
	if err != nil {
		return types.TariffCalculation{}, err
	}
	_, home, err := s.bucketsByDevice(ctx, devices, readings, grid)
	if err != nil {
		return types.TariffCalculation{}, err
	}

	first, err := s.firstReadingTime(ctx, devices)
	if err != nil {
		return types.TariffCalculation{}, err
	}
	calc.HistoryMonths = tariff.MonthsBetween(first, now, s.loc)
	calc.InsufficientHistory = calc.HistoryMonths < tariff.ProtectionMonths

	kwhs := make([]float64, len(home))
	for i, b := range home {
		kwhs[i] = common.Round(b.KWH, 2)
		calc.MonthlyUsage = append(calc.MonthlyUsage, types.MonthUsage{
			Month: b.Start.Format("2006-01"),
			KWH:   kwhs[i],
		})
	}
	calc.CurrentMonthKWH = kwhs[len(kwhs)-1]
	calc.IsProtected = !calc.InsufficientHistory && tariff.IsProtected(kwhs)
	calc.CalculatedTariff = tariff.Calculate(calc.CurrentMonthKWH, calc.IsProtected)
	calc.Message = tariffMessage(calc)
	return calc, nil
}

func tariffMessage(calc types.TariffCalculation) string {
	var parts []string
	if calc.InsufficientHistory {
		parts = append(parts, fmt.Sprintf("Only %d of %d months of history are available, so protected rates do not apply.", calc.HistoryMonths, tariff.ProtectionMonths))
	}
	if !calc.CalculatedTariff.Defined() {
		if calc.IsProtected {
			parts = append(parts, "Protected consumers using more than 200 kWh in a month lose protection; no rate is defined for this slab.")
		} else {
			parts = append(parts, "No unprotected rate is defined for usage up to 50 kWh in a month.")
		}
	}
	return strings.Join(parts, " ")
}

// effectiveRate returns the rate used to price usage now: the manual
// override when one is configured, otherwise the calculated tariff.
func (s *Service) effectiveRate(ctx context.Context, ownerID string, devices []types.Device) (types.Rate, types.TariffSource, error) {
	settings, err := s.db.GetUserSettings(ctx, ownerID)
	if err != nil {
		return types.Rate{}, "", fmt.Errorf("failed to get settings: %w", err)
	}
	if manual := settings.ManualRate(); manual.Defined() {
		r, src := tariff.Effective(settings, types.UndefinedRate(), false)
		return r, src, nil
	}
	calc, err := s.calculate(ctx, devices)
	if err != nil {
		return types.Rate{}, "", err
	}
	r, src := tariff.Effective(settings, calc.CalculatedTariff, false)
	return r, src, nil
}

// perMonthRates re-evaluates protection for each of the last n buckets of
// home using that month's own trailing window. home must be ascending and
// hold at least ProtectionMonths-1 extra leading months.
func perMonthRates(home []usage.Bucket, n int, first time.Time, loc *time.Location) []types.Rate {
	rates := make([]types.Rate, 0, n)
	for i := len(home) - n; i < len(home); i++ {
		lo := max(i-tariff.ProtectionMonths+1, 0)
		window := make([]float64, 0, tariff.ProtectionMonths)
		for _, b := range home[lo : i+1] {
			window = append(window, common.Round(b.KWH, 2))
		}
		slices.Reverse(window)
		history := tariff.MonthsBetween(first, home[i].Start, loc)
		protected := history >= tariff.ProtectionMonths && tariff.IsProtected(window)
		rates = append(rates, tariff.Calculate(common.Round(home[i].KWH, 2), protected))
	}
	return rates
}
