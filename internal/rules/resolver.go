package rules

import (
	"time"
)

// Status is the raw regulatory state of a segment at an instant.
type Status string

const (
	StatusFree      Status = "free"
	StatusPaid      Status = "paid"
	StatusForbidden Status = "forbidden"
)

// DefaultHorizonDays bounds forward boundary scans to today plus seven
// days, so every scan terminates even for degenerate window sets.
const DefaultHorizonDays = 7

// Resolution is the outcome of a temporal status query.
type Resolution struct {
	// Status at the queried instant.
	Status Status
	// PaidScope says which rule source produced a Paid status.
	PaidScope Scope
	// NextChange is the earliest upcoming boundary: the active window's
	// end, or the next Forbidden/Paid start. Zero when nothing changes
	// within the scan horizon.
	NextChange time.Time
	// AvailableUntil is when legality (per the includePaid flag) ends.
	// Equal to the queried instant when parking is already unavailable;
	// zero when open-ended within the horizon.
	AvailableUntil time.Time
}

// Config carries the injected evaluation settings.
type Config struct {
	Location      *time.Location
	DefaultStatus Status
	HorizonDays   int
}

// Resolver merges segment override windows and tariff-class windows
// into a temporal status. It is a pure reader: all rule state arrives
// through arguments.
type Resolver struct {
	loc           *time.Location
	defaultStatus Status
	horizonDays   int
}

// NewResolver builds a resolver for the given local time zone.
func NewResolver(cfg Config) *Resolver {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	def := cfg.DefaultStatus
	if def == "" {
		def = StatusFree
	}
	horizon := cfg.HorizonDays
	if horizon <= 0 {
		horizon = DefaultHorizonDays
	}
	return &Resolver{loc: loc, defaultStatus: def, horizonDays: horizon}
}

// Resolve computes the status of a segment at an instant.
//
// Precedence: an active Forbidden override wins outright; then an
// active Paid override matching the segment side; then an active
// tariff-class window; otherwise Free. A segment without a tariff class
// resolves to the configured default status instead of erroring.
//
// includePaid controls AvailableUntil: when true, only a Forbidden
// start ends availability; when false, a Paid start does too.
func (r *Resolver) Resolve(seg SegmentSnapshot, overrides, tariff []Window, at time.Time, includePaid bool) Resolution {
	local := at.In(r.loc)
	day := local.Weekday()
	minute := MinuteOf(local)

	ovs := enabledSorted(overrides)
	tws := enabledSorted(tariff)

	for _, w := range ovs {
		if w.Kind != KindForbidden || !w.ActiveOn(day) || !w.Contains(minute) {
			continue
		}
		return Resolution{
			Status:         StatusForbidden,
			NextChange:     r.windowEnd(at, local, w),
			AvailableUntil: at,
		}
	}

	status := StatusFree
	var paidScope Scope
	var active *Window
	for i, w := range ovs {
		if w.Kind == KindPaid && w.ActiveOn(day) && w.Contains(minute) && w.MatchesSide(seg.Side) {
			status = StatusPaid
			paidScope = ScopeOverride
			active = &ovs[i]
			break
		}
	}
	if status == StatusFree {
		if seg.TariffClass == "" && len(tws) == 0 {
			status = r.defaultStatus
			if status == StatusPaid {
				paidScope = ScopeTariff
			}
		} else {
			for i, w := range tws {
				if w.ActiveOn(day) && w.Contains(minute) {
					status = StatusPaid
					paidScope = ScopeTariff
					active = &tws[i]
					break
				}
			}
		}
	}

	forbiddenStart := r.nextStart(at, local, ovs, func(w Window) bool {
		return w.Kind == KindForbidden
	})
	paidStart := r.nextPaidStart(seg, at, local, ovs, tws)

	var next time.Time
	if status == StatusPaid && active != nil {
		next = r.windowEnd(at, local, *active)
	} else if status != StatusPaid {
		next = paidStart
	}
	next = earliest(next, forbiddenStart)

	var until time.Time
	switch {
	case status == StatusPaid && !includePaid:
		until = at
	case includePaid:
		until = forbiddenStart
	default:
		until = earliest(forbiddenStart, paidStart)
	}

	return Resolution{
		Status:         status,
		PaidScope:      paidScope,
		NextChange:     next,
		AvailableUntil: until,
	}
}

// windowEnd returns the instant the active window w stops applying,
// seen from the active instant. All-day windows end at the first
// midnight whose day is outside the weekday mask, capped at the scan
// horizon.
func (r *Resolver) windowEnd(at, local time.Time, w Window) time.Time {
	if w.AllDay {
		for off := 1; off <= r.horizonDays; off++ {
			day := local.AddDate(0, 0, off)
			if !w.ActiveOn(day.Weekday()) {
				return r.clockAt(day, 0)
			}
		}
		return r.clockAt(local.AddDate(0, 0, r.horizonDays), 0)
	}
	if w.End > MinuteOf(local) {
		return r.clockAt(local, w.End)
	}
	return r.clockAt(local.AddDate(0, 0, 1), w.End)
}

// nextStart finds the earliest window start strictly after at, scanning
// forward day by day over the horizon.
func (r *Resolver) nextStart(at, local time.Time, ws []Window, match func(Window) bool) time.Time {
	for off := 0; off <= r.horizonDays; off++ {
		day := local.AddDate(0, 0, off)
		wd := day.Weekday()
		var best time.Time
		for _, w := range ws {
			if !match(w) || !w.ActiveOn(wd) {
				continue
			}
			start := w.Start
			if w.AllDay {
				start = 0
			}
			inst := r.clockAt(day, start)
			if !inst.After(at) {
				continue
			}
			if best.IsZero() || inst.Before(best) {
				best = inst
			}
		}
		if !best.IsZero() {
			return best
		}
	}
	return time.Time{}
}

func (r *Resolver) nextPaidStart(seg SegmentSnapshot, at, local time.Time, ovs, tws []Window) time.Time {
	fromOverrides := r.nextStart(at, local, ovs, func(w Window) bool {
		return w.Kind == KindPaid && w.MatchesSide(seg.Side)
	})
	fromTariff := r.nextStart(at, local, tws, func(w Window) bool {
		return w.Kind == KindPaid
	})
	return earliest(fromOverrides, fromTariff)
}

// clockAt pins a minute-of-day onto the calendar date of day, in the
// resolver's time zone.
func (r *Resolver) clockAt(day time.Time, m MinuteOfDay) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, int(m)/60, int(m)%60, 0, 0, r.loc)
}

func enabledSorted(ws []Window) []Window {
	out := make([]Window, 0, len(ws))
	for _, w := range ws {
		if w.Enabled {
			out = append(out, w)
		}
	}
	SortForEvaluation(out)
	return out
}

func earliest(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}
