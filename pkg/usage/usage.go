// Package usage converts cumulative-energy meter readings into consumption.
//
// Consumption is always the sum of positive deltas between consecutive
// readings of a single device. A drop in the cumulative counter (a meter
// reset), a stall or a duplicate timestamp contributes nothing.
package usage

import (
	"math"
	"slices"
	"time"

	"github.com/voltledger/voltledger/pkg/types"
)

// Result is the outcome of a usage computation.
type Result struct {
	KWH float64
	// Pairs is the number of consecutive reading pairs examined.
	Pairs int
	// Skipped is the number of pairs ignored because one side was malformed.
	Skipped int
}

// Compute returns the consumption of a single device's readings whose
// timestamps fall within [start, end]. A zero start or end leaves that side
// of the window open. The input does not need to be sorted and is not
// modified.
func Compute(readings []types.Reading, start, end time.Time) Result {
	return computeSorted(sortedWindow(readings, start, end, true))
}

// ComputeUsageKWH is Compute without the counters.
func ComputeUsageKWH(readings []types.Reading, start, end time.Time) float64 {
	return Compute(readings, start, end).KWH
}

// HomeTotal sums the consumption of each device computed independently.
// Readings are keyed by device ID; cumulative values are never combined
// across devices.
func HomeTotal(byDevice map[string][]types.Reading, start, end time.Time) Result {
	var total Result
	for _, readings := range byDevice {
		r := Compute(readings, start, end)
		total.KWH += r.KWH
		total.Pairs += r.Pairs
		total.Skipped += r.Skipped
	}
	return total
}

func computeSorted(readings []types.Reading) Result {
	var res Result
	for i := 1; i < len(readings); i++ {
		res.Pairs++
		prev, cur := readings[i-1].EnergyKWH, readings[i].EnergyKWH
		if !finite(prev) || !finite(cur) {
			res.Skipped++
			continue
		}
		if delta := cur - prev; delta > 0 {
			res.KWH += delta
		}
	}
	return res
}

// sortedWindow returns a time-sorted copy of the readings inside the window.
// When inclusiveEnd is false the window is [start, end).
func sortedWindow(readings []types.Reading, start, end time.Time, inclusiveEnd bool) []types.Reading {
	out := make([]types.Reading, 0, len(readings))
	for _, r := range readings {
		if !start.IsZero() && r.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() {
			if r.Timestamp.After(end) || (!inclusiveEnd && r.Timestamp.Equal(end)) {
				continue
			}
		}
		out = append(out, r)
	}
	sortReadings(out)
	return out
}

func sortReadings(readings []types.Reading) {
	slices.SortStableFunc(readings, func(a, b types.Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
