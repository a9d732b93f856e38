// Package timewindow resolves symbolic reporting windows to concrete
// half-open [start, end) date ranges. All functions are pure: the range is
// computed deterministically from the window and the supplied anchor time.
package timewindow

import (
	"fmt"
	"time"
)

// Window is a symbolic reporting period.
type Window string

const (
	WindowDay        Window = "day"
	WindowWeek       Window = "week"
	WindowMTD        Window = "mtd"
	WindowQTD        Window = "qtd"
	WindowYTD        Window = "ytd"
	WindowTrailing7  Window = "trailing_7"
	WindowTrailing30 Window = "trailing_30"
	WindowTrailing90 Window = "trailing_90"
)

// All lists every supported window, in display order.
func All() []Window {
	return []Window{
		WindowDay, WindowWeek, WindowMTD, WindowQTD, WindowYTD,
		WindowTrailing7, WindowTrailing30, WindowTrailing90,
	}
}

// Valid reports whether w is a supported window.
func Valid(w Window) bool {
	switch w {
	case WindowDay, WindowWeek, WindowMTD, WindowQTD, WindowYTD,
		WindowTrailing7, WindowTrailing30, WindowTrailing90:
		return true
	}
	return false
}

// Range is a half-open [Start, End) time range.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Compute resolves a window against the given anchor time. End is always the
// anchor; Start depends on the window:
//
//	day          start of the anchor's day
//	week         start of the anchor's week, Monday-anchored
//	mtd          first of the anchor's month
//	qtd          first of the anchor's quarter (months 1, 4, 7, 10)
//	ytd          January 1st of the anchor's year
//	trailing_N   anchor minus N days, at midnight
//
// An unknown window is a programming error and returns a non-nil error rather
// than a silently empty range.
func Compute(w Window, now time.Time) (Range, error) {
	start, err := startOf(w, now)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: start, End: now}, nil
}

func startOf(w Window, now time.Time) (time.Time, error) {
	y, m, d := now.Date()
	loc := now.Location()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch w {
	case WindowDay:
		return midnight, nil
	case WindowWeek:
		// Monday-anchored: Sunday counts as 6 days into the week.
		offset := (int(now.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset), nil
	case WindowMTD:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), nil
	case WindowQTD:
		quarterMonth := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, quarterMonth, 1, 0, 0, 0, 0, loc), nil
	case WindowYTD:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc), nil
	case WindowTrailing7:
		return midnight.AddDate(0, 0, -7), nil
	case WindowTrailing30:
		return midnight.AddDate(0, 0, -30), nil
	case WindowTrailing90:
		return midnight.AddDate(0, 0, -90), nil
	default:
		return time.Time{}, fmt.Errorf("unknown time window %q", w)
	}
}

// Label returns a human-readable name for the window, used in sync errors and
// anomaly messages.
func Label(w Window) string {
	switch w {
	case WindowDay:
		return "Today"
	case WindowWeek:
		return "This Week"
	case WindowMTD:
		return "Month to Date"
	case WindowQTD:
		return "Quarter to Date"
	case WindowYTD:
		return "Year to Date"
	case WindowTrailing7:
		return "Trailing 7 Days"
	case WindowTrailing30:
		return "Trailing 30 Days"
	case WindowTrailing90:
		return "Trailing 90 Days"
	default:
		return string(w)
	}
}
