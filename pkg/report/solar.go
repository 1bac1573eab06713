package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/voltledger/voltledger/pkg/common"
	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/solar"
	"github.com/voltledger/voltledger/pkg/storage"
	"github.com/voltledger/voltledger/pkg/types"
	"github.com/voltledger/voltledger/pkg/usage"
	"github.com/voltledger/voltledger/pkg/weather"
)

// sky is the weather used for an estimate, with its provenance.
type sky struct {
	cloudCoverPct float64
	sunrise       time.Time
	sunset        time.Time
	known         bool
	source        types.SolarSource
}

// window returns sunrise and sunset on the local date of day.
func (k sky) window(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if !k.known {
		return solar.DefaultDaylight(day, loc)
	}
	return solar.ShiftDaylight(k.sunrise, k.sunset, day, loc)
}

// skyFor looks up the weather at the installation. Without any weather the
// estimate assumes a clear sky and a fixed daylight window.
func (s *Service) skyFor(ctx context.Context, cfg types.SolarConfig) sky {
	if s.weather == nil || cfg.Latitude == nil || cfg.Longitude == nil {
		return sky{source: types.SolarSourceNoWeather}
	}
	w, err := s.weather.Get(ctx, *cfg.Latitude, *cfg.Longitude)
	if err != nil {
		if !errors.Is(err, weather.ErrProviderUnavailable) {
			log.Ctx(ctx).ErrorContext(ctx, "unexpected weather error", slog.Any("error", err))
		} else {
			log.Ctx(ctx).WarnContext(ctx, "no weather available, assuming clear sky", slog.Any("error", err))
		}
		return sky{source: types.SolarSourceNoWeather}
	}
	k := sky{
		cloudCoverPct: w.CloudCoverPct,
		sunrise:       w.Sunrise,
		sunset:        w.Sunset,
		known:         true,
		source:        types.SolarSourceEstimated,
	}
	if w.Stale {
		k.source = types.SolarSourceStaleWeather
	}
	return k
}

func (s *Service) enabledSolarConfig(ctx context.Context, ownerID string) (types.SolarConfig, error) {
	cfg, err := s.db.GetSolarConfig(ctx, ownerID)
	if err != nil {
		return types.SolarConfig{}, fmt.Errorf("failed to get solar config: %w", err)
	}
	if !cfg.Enabled {
		return types.SolarConfig{}, ErrSolarNotEnabled
	}
	return cfg, nil
}

// currentHomeKW sums the latest power of every device, skipping devices
// whose latest reading is older than the home load max age.
func (s *Service) currentHomeKW(ctx context.Context, devices []types.Device, now time.Time) (float64, error) {
	var kw float64
	for _, d := range devices {
		r, err := s.db.GetLatestReading(ctx, d.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to get latest reading for device %s: %w", d.ID, err)
		}
		if now.Sub(r.Timestamp) > s.homeLoadMaxAge || !r.Valid() {
			continue
		}
		kw += r.PowerKW()
	}
	return common.Round(kw, 3), nil
}

// SolarStatus estimates current solar output against the live home load.
// It also appends a generation record at most once per snapshot interval;
// a failure to store it is logged and does not fail the call.
func (s *Service) SolarStatus(ctx context.Context, ownerID string) (types.SolarStatus, error) {
	cfg, err := s.enabledSolarConfig(ctx, ownerID)
	if errors.Is(err, ErrSolarNotEnabled) {
		return types.SolarStatus{Enabled: false, SavingsTodayPKR: types.AmountOf(0)}, nil
	}
	if err != nil {
		return types.SolarStatus{}, err
	}

	devices, err := s.db.ListDevices(ctx, ownerID)
	if err != nil {
		return types.SolarStatus{}, fmt.Errorf("failed to list devices: %w", err)
	}
	now := s.now()
	homeKW, err := s.currentHomeKW(ctx, devices, now)
	if err != nil {
		return types.SolarStatus{}, err
	}
	rate, _, err := s.effectiveRate(ctx, ownerID, devices)
	if err != nil {
		return types.SolarStatus{}, err
	}

	k := s.skyFor(ctx, cfg)
	sunrise, sunset := k.window(now, s.loc)
	solarKW := solar.EstimateKW(cfg.InstalledCapacityKW, k.cloudCoverPct, now, sunrise, sunset)
	status := types.SolarStatus{
		Enabled:         true,
		SolarKW:         solarKW,
		HomeKW:          homeKW,
		GridImportKW:    solar.GridImportKW(homeKW, solarKW),
		SavingsTodayPKR: solar.SavingsPKR(homeKW, solarKW, rate),
		CloudCoverPct:   k.cloudCoverPct,
		Source:          k.source,
	}

	s.snapshot(ctx, ownerID, now, status)
	return status, nil
}

func (s *Service) snapshot(ctx context.Context, ownerID string, now time.Time, status types.SolarStatus) {
	last, err := s.db.GetLatestSolarGenerationTime(ctx, ownerID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get latest solar generation time", slog.String("ownerID", ownerID), slog.Any("error", err))
		return
	}
	if !solar.ShouldSnapshot(last, now) {
		return
	}
	rec := types.SolarGenerationRecord{
		OwnerID:       ownerID,
		Timestamp:     now.UTC(),
		SolarKW:       status.SolarKW,
		HomeKW:        status.HomeKW,
		GridImportKW:  status.GridImportKW,
		CloudCoverPct: status.CloudCoverPct,
	}
	if err := s.db.InsertSolarGeneration(ctx, rec); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store solar generation", slog.String("ownerID", ownerID), slog.Any("error", err))
	}
}

// SolarHistory returns stored generation records in [from, to], ascending.
// Before any record exists it synthesizes points from the owner's readings
// and the current weather.
func (s *Service) SolarHistory(ctx context.Context, ownerID string, from, to time.Time, limit int) ([]types.SolarHistoryPoint, error) {
	cfg, err := s.enabledSolarConfig(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.now()
	}
	if !from.IsZero() && from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidRange)
	}
	limit = ClampLimit(limit)

	records, err := s.db.GetSolarGenerationHistory(ctx, ownerID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get solar generation history: %w", err)
	}
	if len(records) > 0 {
		points := make([]types.SolarHistoryPoint, 0, len(records))
		for _, r := range records {
			points = append(points, types.SolarHistoryPoint{
				Timestamp:    r.Timestamp,
				SolarKW:      r.SolarKW,
				HomeKW:       r.HomeKW,
				GridImportKW: r.GridImportKW,
			})
		}
		return points, nil
	}
	return s.synthesizeHistory(ctx, ownerID, cfg, from, to, limit)
}

func (s *Service) synthesizeHistory(ctx context.Context, ownerID string, cfg types.SolarConfig, from, to time.Time, limit int) ([]types.SolarHistoryPoint, error) {
	devices, err := s.db.ListDevices(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	var merged []types.Reading
	for _, d := range devices {
		readings, err := s.db.GetRecentReadings(ctx, d.ID, from, to, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to get readings for device %s: %w", d.ID, err)
		}
		merged = append(merged, readings...)
	}
	slices.SortStableFunc(merged, func(a, b types.Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}

	k := s.skyFor(ctx, cfg)
	latest := make(map[string]types.Reading, len(devices))
	points := make([]types.SolarHistoryPoint, 0, len(merged))
	for _, r := range merged {
		if r.Valid() {
			latest[r.DeviceID] = r
		}
		var homeKW float64
		for _, l := range latest {
			if r.Timestamp.Sub(l.Timestamp) <= s.homeLoadMaxAge {
				homeKW += l.PowerKW()
			}
		}
		homeKW = common.Round(homeKW, 3)
		sunrise, sunset := k.window(r.Timestamp, s.loc)
		solarKW := solar.EstimateKW(cfg.InstalledCapacityKW, k.cloudCoverPct, r.Timestamp, sunrise, sunset)
		points = append(points, types.SolarHistoryPoint{
			Timestamp:    r.Timestamp,
			SolarKW:      solarKW,
			HomeKW:       homeKW,
			GridImportKW: solar.GridImportKW(homeKW, solarKW),
		})
	}
	return points, nil
}

// monthlySolarKWH returns the self-consumed solar energy of each month in
// months (ascending). Months with stored generation records integrate them,
// each record covering at most one snapshot interval. Other months are
// estimated hour by hour from home usage when solar is enabled.
func (s *Service) monthlySolarKWH(ctx context.Context, ownerID string, devices []types.Device, readings map[string][]types.Reading, months []usage.Bucket, now time.Time) ([]float64, error) {
	out := make([]float64, len(months))
	if len(months) == 0 {
		return out, nil
	}
	cfg, err := s.db.GetSolarConfig(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get solar config: %w", err)
	}
	records, err := s.db.GetSolarGenerationHistory(ctx, ownerID, months[0].Start, now, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get solar generation history: %w", err)
	}
	if len(records) == 0 && !cfg.Enabled {
		return out, nil
	}

	covered := make([]bool, len(months))
	for i, rec := range records {
		m := monthIndex(months, rec.Timestamp)
		if m < 0 {
			continue
		}
		dt := solar.SnapshotInterval
		if i+1 < len(records) {
			dt = min(dt, records[i+1].Timestamp.Sub(rec.Timestamp))
		}
		dt = max(min(dt, now.Sub(rec.Timestamp)), 0)
		out[m] += solar.SelfConsumedKW(rec.HomeKW, rec.SolarKW) * dt.Hours()
		covered[m] = true
	}

	if cfg.Enabled {
		k := s.skyFor(ctx, cfg)
		for m, month := range months {
			if covered[m] || month.KWH <= 0 {
				continue
			}
			est, err := s.estimateMonthSolar(devices, readings, month, cfg, k, now)
			if err != nil {
				return nil, err
			}
			out[m] = est
		}
	}

	for m := range out {
		out[m] = min(out[m], months[m].KWH)
	}
	return out, nil
}

func monthIndex(months []usage.Bucket, t time.Time) int {
	for i, m := range months {
		if !t.Before(m.Start) && t.Before(m.End) {
			return i
		}
	}
	return -1
}

// estimateMonthSolar caps each hour's estimated solar output at that hour's
// home usage. Each reading pair's consumption is spread over the hours it
// covers, so meters reporting hourly or less often still count.
func (s *Service) estimateMonthSolar(devices []types.Device, readings map[string][]types.Reading, month usage.Bucket, cfg types.SolarConfig, k sky, now time.Time) (float64, error) {
	end := month.End
	if now.Before(end) {
		end = now
	}
	if !end.After(month.Start) {
		return 0, nil
	}
	grid := usage.Grid{Start: month.Start, End: end, Granularity: usage.Hourly, Location: s.loc}
	series := make([][]usage.Bucket, 0, len(devices))
	for _, d := range devices {
		b, err := usage.Spread(readings[d.ID], grid)
		if err != nil {
			return 0, fmt.Errorf("failed to spread readings: %w", err)
		}
		series = append(series, b)
	}
	var kwh float64
	for _, h := range usage.SumBuckets(series...) {
		if h.KWH <= 0 {
			continue
		}
		mid := h.Start.Add(h.End.Sub(h.Start) / 2)
		sunrise, sunset := k.window(mid, s.loc)
		solarKW := solar.EstimateKW(cfg.InstalledCapacityKW, k.cloudCoverPct, mid, sunrise, sunset)
		kwh += min(h.KWH, solarKW*h.End.Sub(h.Start).Hours())
	}
	return kwh, nil
}
