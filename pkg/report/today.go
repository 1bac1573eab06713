package report

import (
	"context"
	"fmt"

	"github.com/voltledger/voltledger/pkg/common"
	"github.com/voltledger/voltledger/pkg/tariff"
	"github.com/voltledger/voltledger/pkg/types"
	"github.com/voltledger/voltledger/pkg/usage"
)

// TodaySummary returns usage since local midnight for each of the owner's
// devices, or just deviceID when it is set.
func (s *Service) TodaySummary(ctx context.Context, ownerID, deviceID string) (types.TodaySummary, error) {
	devices, err := s.db.ListDevices(ctx, ownerID)
	if err != nil {
		return types.TodaySummary{}, fmt.Errorf("failed to list devices: %w", err)
	}
	rate, source, err := s.effectiveRate(ctx, ownerID, devices)
	if err != nil {
		return types.TodaySummary{}, err
	}

	selected := devices
	if deviceID != "" {
		d, err := s.ownedDevice(ctx, ownerID, deviceID)
		if err != nil {
			return types.TodaySummary{}, err
		}
		selected = []types.Device{d}
	}

	now := s.now()
	dayStart := usage.Truncate(now, usage.Daily, s.loc)
	summary := types.TodaySummary{
		Date:         dayStart.Format("2006-01-02"),
		Timezone:     s.loc.String(),
		Tariff:       rate,
		TariffSource: source,
		Devices:      make([]types.DeviceUsage, 0, len(selected)),
	}

	var total float64
	for _, d := range selected {
		readings, err := s.db.GetReadings(ctx, d.ID, dayStart, now)
		if err != nil {
			return types.TodaySummary{}, fmt.Errorf("failed to get readings for device %s: %w", d.ID, err)
		}
		res := usage.Compute(readings, dayStart, now)
		logSkipped(ctx, d.ID, res.Skipped)
		total += res.KWH
		summary.Devices = append(summary.Devices, types.DeviceUsage{
			DeviceID: d.ID,
			Name:     d.Name,
			Room:     d.Room,
			KWH:      common.Round(res.KWH, 4),
			CostPKR:  tariff.Cost(res.KWH, rate),
		})
	}
	summary.HomeTotalKWH = common.Round(total, 4)
	summary.HomeTotalCostPKR = tariff.Cost(total, rate)
	return summary, nil
}
