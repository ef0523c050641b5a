package rules

import (
	"fmt"
	"sort"
	"time"
)

// Kind says what a window imposes while it is active.
type Kind string

const (
	KindPaid      Kind = "paid"
	KindForbidden Kind = "forbidden"
)

// Scope distinguishes per-segment override windows from shared
// tariff-class windows.
type Scope string

const (
	ScopeOverride Scope = "override"
	ScopeTariff   Scope = "tariff"
)

// Side is the street side a segment or an override window applies to.
type Side string

const (
	SideBoth  Side = "both"
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ParkingType classifies a segment's base regime.
type ParkingType string

const (
	TypeFree       ParkingType = "free"
	TypePaid       ParkingType = "paid"
	TypePrivileged ParkingType = "privileged"
)

// Weekdays is a bitmask of weekdays; bit 0 is Sunday, matching
// time.Weekday numbering.
type Weekdays uint8

// EveryDay covers all seven weekdays.
const EveryDay Weekdays = 0x7F

// Days builds a mask from individual weekdays.
func Days(days ...time.Weekday) Weekdays {
	var m Weekdays
	for _, d := range days {
		m |= 1 << uint(d)
	}
	return m
}

// On reports whether the mask includes the given weekday.
func (m Weekdays) On(day time.Weekday) bool {
	return m&(1<<uint(day)) != 0
}

// MinuteOfDay counts minutes since local midnight, in [0, 1440).
type MinuteOfDay int

// MinutesPerDay is one calendar day in MinuteOfDay units.
const MinutesPerDay MinuteOfDay = 24 * 60

// MinuteOf extracts the minute-of-day from an instant already converted
// to the evaluation time zone.
func MinuteOf(t time.Time) MinuteOfDay {
	return MinuteOfDay(t.Hour()*60 + t.Minute())
}

// ParseMinute parses an "HH:MM" clock string.
func ParseMinute(s string) (MinuteOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return MinuteOfDay(t.Hour()*60 + t.Minute()), nil
}

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Window is a recurring rule window. A non-all-day window with
// End <= Start crosses midnight.
type Window struct {
	ID       int64       `json:"id"`
	Days     Weekdays    `json:"days"`
	AllDay   bool        `json:"all_day"`
	Start    MinuteOfDay `json:"start"`
	End      MinuteOfDay `json:"end"`
	Priority int         `json:"priority"`
	Enabled  bool        `json:"enabled"`
	Kind     Kind        `json:"kind"`
	Scope    Scope       `json:"scope"`
	Side     Side        `json:"side,omitempty"`
}

// ActiveOn reports whether the window recurs on the given weekday.
func (w Window) ActiveOn(day time.Weekday) bool {
	return w.Days.On(day)
}

// Contains reports whether a minute-of-day falls inside the window's
// daily range. For midnight-crossing windows (End <= Start) the range
// wraps: t >= Start OR t < End.
func (w Window) Contains(t MinuteOfDay) bool {
	if w.AllDay {
		return true
	}
	if w.End > w.Start {
		return t >= w.Start && t < w.End
	}
	return t >= w.Start || t < w.End
}

// CrossesMidnight reports whether the daily range wraps past 24:00.
func (w Window) CrossesMidnight() bool {
	return !w.AllDay && w.End <= w.Start
}

// MatchesSide reports whether an override window applies to a segment
// side. SideBoth matches everything, on either operand.
func (w Window) MatchesSide(side Side) bool {
	if w.Scope != ScopeOverride {
		return true
	}
	if w.Side == "" || w.Side == SideBoth || side == SideBoth {
		return true
	}
	return w.Side == side
}

// Validate rejects malformed windows. Callers run this at configuration
// load so evaluation never sees invalid data.
func (w Window) Validate() error {
	if w.Days == 0 {
		return fmt.Errorf("window %d: empty weekday set", w.ID)
	}
	switch w.Kind {
	case KindPaid, KindForbidden:
	default:
		return fmt.Errorf("window %d: unknown kind %q", w.ID, w.Kind)
	}
	switch w.Scope {
	case ScopeOverride, ScopeTariff:
	default:
		return fmt.Errorf("window %d: unknown scope %q", w.ID, w.Scope)
	}
	if w.Scope == ScopeTariff && w.Kind != KindPaid {
		return fmt.Errorf("window %d: tariff windows must be paid", w.ID)
	}
	if !w.AllDay {
		if w.Start < 0 || w.Start >= MinutesPerDay {
			return fmt.Errorf("window %d: start %d out of range", w.ID, w.Start)
		}
		if w.End < 0 || w.End >= MinutesPerDay {
			return fmt.Errorf("window %d: end %d out of range", w.ID, w.End)
		}
	}
	switch w.Side {
	case "", SideBoth, SideLeft, SideRight:
	default:
		return fmt.Errorf("window %d: unknown side %q", w.ID, w.Side)
	}
	return nil
}

// SortForEvaluation orders windows by priority descending, then by ID
// ascending. Equal-priority overlaps therefore resolve to the lowest
// window ID, independent of storage iteration order.
func SortForEvaluation(ws []Window) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Priority != ws[j].Priority {
			return ws[i].Priority > ws[j].Priority
		}
		return ws[i].ID < ws[j].ID
	})
}

// ValidateAll validates a window set and reports the first problem.
func ValidateAll(ws []Window) error {
	for _, w := range ws {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SegmentSnapshot is the immutable projection of a parking segment the
// evaluation core works with. Geometry and the rest of the segment
// record stay with the query collaborator.
type SegmentSnapshot struct {
	ID          string      `json:"id"`
	Side        Side        `json:"side"`
	ZoneCode    string      `json:"zone_code,omitempty"`
	TariffClass string      `json:"tariff_class,omitempty"`
	Type        ParkingType `json:"type"`
}
