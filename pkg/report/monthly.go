package report

import (
	"context"
	"fmt"

	"github.com/voltledger/voltledger/pkg/common"
	"github.com/voltledger/voltledger/pkg/tariff"
	"github.com/voltledger/voltledger/pkg/types"
)

// ReportMonths is the number of calendar months in a monthly report.
const ReportMonths = 12

func roundAmount(a types.Amount, scale float64) types.Amount {
	v, ok := a.Value()
	if !ok {
		return types.UndefinedAmount()
	}
	return types.AmountOf(common.Round(v*scale, 2))
}

// MonthlyReports summarizes the last twelve calendar months, most recent
// first. By default every month is priced at today's effective rate. With
// reevaluate set, each month is priced by re-running the protection check
// on that month's own trailing window, and any manual override is ignored.
func (s *Service) MonthlyReports(ctx context.Context, ownerID string, reevaluate bool) (types.MonthlyReports, error) {
	devices, err := s.db.ListDevices(ctx, ownerID)
	if err != nil {
		return types.MonthlyReports{}, fmt.Errorf("failed to list devices: %w", err)
	}
	now := s.now()

	span := ReportMonths
	if reevaluate {
		span += tariff.ProtectionMonths - 1
	}
	grid := s.monthGrid(tariff.TrailingMonths(now, s.loc, span))
	readings, err := s.readingsByDevice(ctx, devices, grid.Start, now)
	if err != nil {
		return types.MonthlyReports{}, err
	}
	perDevice, home, err := s.bucketsByDevice(ctx, devices, readings, grid)
	if err != nil {
		return types.MonthlyReports{}, err
	}
	off := len(home) - ReportMonths

	out := types.MonthlyReports{
		MonthlyReports:  make([]types.MonthBucket, 0, ReportMonths),
		DeviceBreakdown: make([]types.DeviceUsage, 0, len(devices)),
	}
	rates := make([]types.Rate, ReportMonths)
	if reevaluate {
		first, err := s.firstReadingTime(ctx, devices)
		if err != nil {
			return types.MonthlyReports{}, err
		}
		rates = perMonthRates(home, ReportMonths, first, s.loc)
		out.Tariff = rates[ReportMonths-1]
		out.TariffSource = types.TariffSourceCalculated
		out.TariffPolicy = types.TariffPolicyPerMonth
	} else {
		rate, source, err := s.effectiveRate(ctx, ownerID, devices)
		if err != nil {
			return types.MonthlyReports{}, err
		}
		for i := range rates {
			rates[i] = rate
		}
		out.Tariff = rate
		out.TariffSource = source
		out.TariffPolicy = types.TariffPolicyCurrent
	}

	solarKWH, err := s.monthlySolarKWH(ctx, ownerID, devices, readings, home[off:], now)
	if err != nil {
		return types.MonthlyReports{}, err
	}

	var totalKWH, totalSolar float64
	totalCost := types.AmountOf(0)
	for i := ReportMonths - 1; i >= 0; i-- {
		b := home[off+i]
		kwh := common.Round(b.KWH, 2)
		solarPart := min(common.Round(solarKWH[i], 2), kwh)
		cost := tariff.Cost(kwh, rates[i])
		if kwh == 0 {
			// nothing consumed, nothing owed, even where no rate applies
			cost = types.AmountOf(0)
		}
		out.MonthlyReports = append(out.MonthlyReports, types.MonthBucket{
			Month:     b.Start.Format("2006-01"),
			MonthName: b.Start.Format("Jan 2006"),
			KWH:       kwh,
			CostPKR:   cost,
			Tariff:    rates[i],
			SolarKWH:  solarPart,
			GridKWH:   common.Round(kwh-solarPart, 2),
		})
		totalKWH += kwh
		totalSolar += solarPart
		totalCost = totalCost.Add(cost)
	}

	out.TotalKWH = common.Round(totalKWH, 2)
	out.TotalCostPKR = roundAmount(totalCost, 1)
	out.AverageMonthlyKWH = common.Round(totalKWH/ReportMonths, 2)
	out.AverageMonthlyCost = roundAmount(totalCost, 1.0/ReportMonths)
	out.SolarKWH = common.Round(totalSolar, 2)
	out.GridKWH = common.Round(max(totalKWH-totalSolar, 0), 2)

	for _, d := range devices {
		buckets := perDevice[d.ID][off:]
		var kwh float64
		cost := types.AmountOf(0)
		for i, b := range buckets {
			kwh += b.KWH
			if reevaluate && b.KWH > 0 {
				cost = cost.Add(tariff.Cost(b.KWH, rates[i]))
			}
		}
		if !reevaluate && kwh > 0 {
			cost = tariff.Cost(kwh, out.Tariff)
		}
		out.DeviceBreakdown = append(out.DeviceBreakdown, types.DeviceUsage{
			DeviceID: d.ID,
			Name:     d.Name,
			Room:     d.Room,
			KWH:      common.Round(kwh, 2),
			CostPKR:  roundAmount(cost, 1),
		})
	}
	return out, nil
}
