package usage

import (
	"fmt"
	"slices"
	"time"

	"github.com/voltledger/voltledger/pkg/types"
)

// Granularity is the width of a calendar bucket.
type Granularity string

const (
	Hourly  Granularity = "hour"
	Daily   Granularity = "day"
	Monthly Granularity = "month"
)

// Grid is a fixed calendar partition of [Start, End) in a billing location.
// Boundaries depend only on the grid, never on the readings, so bucket
// series from different devices line up.
type Grid struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
	Location    *time.Location
}

// Bucket is the consumption within one half-open [Start, End) interval.
type Bucket struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	KWH     float64   `json:"kwh"`
	Skipped int       `json:"-"`
}

// Truncate aligns t down to the start of its bucket in loc.
func Truncate(t time.Time, g Granularity, loc *time.Location) time.Time {
	t = t.In(loc)
	switch g {
	case Hourly:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	default:
		panic(fmt.Sprintf("unknown granularity: %s", g))
	}
}

// Next returns the start of the bucket following the one starting at t.
func Next(t time.Time, g Granularity) time.Time {
	switch g {
	case Hourly:
		return t.Add(time.Hour)
	case Daily:
		return t.AddDate(0, 0, 1)
	case Monthly:
		return t.AddDate(0, 1, 0)
	default:
		panic(fmt.Sprintf("unknown granularity: %s", g))
	}
}

// Boundaries returns the bucket intervals of the grid. The first bucket
// starts at Start aligned down to the granularity.
func (g Grid) Boundaries() ([]Bucket, error) {
	loc := g.Location
	if loc == nil {
		return nil, fmt.Errorf("grid location is required")
	}
	switch g.Granularity {
	case Hourly, Daily, Monthly:
	default:
		return nil, fmt.Errorf("unknown granularity: %q", g.Granularity)
	}
	if !g.End.After(g.Start) {
		return nil, fmt.Errorf("grid end must be after start")
	}
	var out []Bucket
	for t := Truncate(g.Start, g.Granularity, loc); t.Before(g.End); t = Next(t, g.Granularity) {
		out = append(out, Bucket{Start: t, End: Next(t, g.Granularity)})
	}
	return out, nil
}

// Buckets runs the delta algorithm separately for every bucket of the grid,
// using only readings inside each [start, end) interval.
func Buckets(readings []types.Reading, g Grid) ([]Bucket, error) {
	buckets, err := g.Boundaries()
	if err != nil {
		return nil, err
	}
	sorted := sortedWindow(readings, buckets[0].Start, buckets[len(buckets)-1].End, false)

	i := 0
	for b := range buckets {
		for i < len(sorted) && sorted[i].Timestamp.Before(buckets[b].Start) {
			i++
		}
		j := i
		for j < len(sorted) && sorted[j].Timestamp.Before(buckets[b].End) {
			j++
		}
		res := computeSorted(sorted[i:j])
		buckets[b].KWH = res.KWH
		buckets[b].Skipped = res.Skipped
		i = j
	}
	return buckets, nil
}

// Spread distributes the positive delta of every consecutive pair over the
// grid buckets its interval overlaps, pro rata by time. Unlike Buckets, a
// pair straddling a boundary is counted on both sides of it. The share of an
// interval lying outside the grid is dropped.
func Spread(readings []types.Reading, g Grid) ([]Bucket, error) {
	buckets, err := g.Boundaries()
	if err != nil {
		return nil, err
	}
	sorted := slices.Clone(readings)
	sortReadings(sorted)
	first, last := buckets[0].Start, buckets[len(buckets)-1].End

	b := 0
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if !cur.Timestamp.After(first) || !prev.Timestamp.Before(last) {
			continue
		}
		for b < len(buckets) && !buckets[b].End.After(prev.Timestamp) {
			b++
		}
		if !finite(prev.EnergyKWH) || !finite(cur.EnergyKWH) {
			buckets[b].Skipped++
			continue
		}
		delta := cur.EnergyKWH - prev.EnergyKWH
		span := cur.Timestamp.Sub(prev.Timestamp)
		if delta <= 0 || span <= 0 {
			continue
		}
		for j := b; j < len(buckets) && buckets[j].Start.Before(cur.Timestamp); j++ {
			from, to := buckets[j].Start, buckets[j].End
			if prev.Timestamp.After(from) {
				from = prev.Timestamp
			}
			if cur.Timestamp.Before(to) {
				to = cur.Timestamp
			}
			if to.After(from) {
				buckets[j].KWH += delta * float64(to.Sub(from)) / float64(span)
			}
		}
	}
	return buckets, nil
}

// SumBuckets adds bucket series computed on the same grid.
func SumBuckets(series ...[]Bucket) []Bucket {
	if len(series) == 0 {
		return nil
	}
	out := make([]Bucket, len(series[0]))
	copy(out, series[0])
	for _, s := range series[1:] {
		for i := range out {
			if i < len(s) {
				out[i].KWH += s[i].KWH
				out[i].Skipped += s[i].Skipped
			}
		}
	}
	return out
}
