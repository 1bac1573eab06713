package tariff

import (
	"time"

	"github.com/voltledger/voltledger/pkg/usage"
)

// Month is a calendar month in the billing location.
type Month struct {
	Start time.Time
	End   time.Time
}

// Label returns the month as "2006-01".
func (m Month) Label() string {
	return m.Start.Format("2006-01")
}

// Name returns the month as "Jan 2006".
func (m Month) Name() string {
	return m.Start.Format("Jan 2006")
}

// TrailingMonths returns n calendar months ending with the month containing
// now, most recent first.
func TrailingMonths(now time.Time, loc *time.Location, n int) []Month {
	cur := usage.Truncate(now, usage.Monthly, loc)
	out := make([]Month, 0, n)
	for i := 0; i < n; i++ {
		start := cur.AddDate(0, -i, 0)
		out = append(out, Month{Start: start, End: start.AddDate(0, 1, 0)})
	}
	return out
}

// MonthsBetween returns the number of calendar months from the month of
// first to the month of last, inclusive. It returns 0 if first is zero or
// after last.
func MonthsBetween(first, last time.Time, loc *time.Location) int {
	if first.IsZero() {
		return 0
	}
	f := first.In(loc)
	l := last.In(loc)
	n := (l.Year()-f.Year())*12 + int(l.Month()) - int(f.Month()) + 1
	if n < 0 {
		return 0
	}
	return n
}
