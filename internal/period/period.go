// Package period computes ISO-8601 extraction periods and polling lookback
// windows for the data-sharing coordination protocol.
package period

import (
	"fmt"
	"time"
)

// Lookback is how far behind a reference instant the polling filter reaches,
// so that results arriving near a previous poll boundary are not missed.
const Lookback = time.Hour

// DefaultExtraction is the extraction period applied when no delivery date
// is known.
const DefaultExtraction = "P28D"

// Extraction computes the ISO-8601 period between start and end, aligned to
// end of calendar day, expressed largest-unit-first in years, months and
// days (e.g. "P1M", "P1Y2M3D"). Two timestamps on the same calendar day
// yield "P0D".
func Extraction(start, end time.Time) (string, error) {
	s := start.In(end.Location())
	sy, sm, sd := s.Date()
	ey, em, ed := end.Date()

	if dateAfter(sy, int(sm), sd, ey, int(em), ed) {
		return "", fmt.Errorf("start %s is after end %s", s.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	totalMonths := (ey-sy)*12 + int(em) - int(sm)
	days := ed - sd
	if days < 0 {
		totalMonths--
		// Count the days left after stepping the start date forward by the
		// whole months, clamping to month ends (Jan 31 plus one month is
		// Feb 28, not Mar 3).
		cy, cm, cd := addMonthsClamped(sy, int(sm), sd, totalMonths)
		days = daysBetween(cy, cm, cd, ey, int(em), ed)
	}

	return format(totalMonths/12, totalMonths%12, days), nil
}

// LookbackStart returns the inclusive lower bound of a polling window for
// the given reference instant.
func LookbackStart(reference time.Time) time.Time {
	return reference.Add(-Lookback)
}

func dateAfter(y1, m1, d1, y2, m2, d2 int) bool {
	if y1 != y2 {
		return y1 > y2
	}
	if m1 != m2 {
		return m1 > m2
	}
	return d1 > d2
}

func addMonthsClamped(year, month, day, months int) (int, int, int) {
	total := year*12 + (month - 1) + months
	y := total / 12
	m := total%12 + 1
	if last := lastDayOfMonth(y, m); day > last {
		day = last
	}
	return y, m, day
}

func lastDayOfMonth(year, month int) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysBetween(y1, m1, d1, y2, m2, d2 int) int {
	a := time.Date(y1, time.Month(m1), d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, time.Month(m2), d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}

func format(years, months, days int) string {
	if years == 0 && months == 0 && days == 0 {
		return "P0D"
	}
	out := "P"
	if years > 0 {
		out += fmt.Sprintf("%dY", years)
	}
	if months > 0 {
		out += fmt.Sprintf("%dM", months)
	}
	if days > 0 {
		out += fmt.Sprintf("%dD", days)
	}
	return out
}
