package ledger

import (
	"time"
)

const (
	// DefaultAnchorHour starts the accounting day at 08:00 local time
	// rather than calendar midnight.
	DefaultAnchorHour = 8

	// DefaultDailyCapMinutes is the free allowance per anchor day.
	DefaultDailyCapMinutes = 120
)

// AnchorDateFor returns the calendar date (local midnight) of the
// anchor boundary at-or-before t: instants from 08:00 belong to today,
// earlier instants still belong to yesterday's accounting day.
func AnchorDateFor(t time.Time, anchorHour int, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, loc)
	boundary := time.Date(y, m, d, anchorHour, 0, 0, 0, loc)
	if local.Before(boundary) {
		return date.AddDate(0, 0, -1)
	}
	return date
}

// DateKey formats an anchor date as a storage key.
func DateKey(d time.Time) string {
	return d.Format("2006-01-02")
}

// Span is a half-open interval [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

// Minutes is the span length in whole minutes, a started minute
// counting as consumed.
func (s Span) Minutes() int {
	d := s.End.Sub(s.Start)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

// SliceByAnchorBoundary splits [start, end) at every anchor-day
// boundary it crosses. The slices are contiguous, non-overlapping, each
// lies within a single anchor day, and their union reconstructs the
// input exactly. An empty or inverted interval yields nil.
func SliceByAnchorBoundary(start, end time.Time, anchorHour int, loc *time.Location) []Span {
	if !end.After(start) {
		return nil
	}
	var spans []Span
	cur := start
	for cur.Before(end) {
		date := AnchorDateFor(cur, anchorHour, loc)
		next := time.Date(date.Year(), date.Month(), date.Day()+1, anchorHour, 0, 0, 0, loc)
		stop := next
		if end.Before(stop) {
			stop = end
		}
		spans = append(spans, Span{Start: cur, End: stop})
		cur = stop
	}
	return spans
}
