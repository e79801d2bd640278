// Package schedule holds the pure scheduling arithmetic of the engine:
// delivery-window evaluation and sequence-step priority ordering. Nothing in
// this package touches storage; callers feed it model values and timestamps.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/sepehrad/broadcastd/models"
)

// maxWindowIterations bounds the search for a deliverable instant when the
// window has no end date. A weekday set that never matches any real weekday
// would otherwise loop forever.
const maxWindowIterations = 1000

// Window is the delivery window of one broadcast, resolved into comparable
// values. Build one with WindowOf; a malformed time or timezone string is an
// irrecoverable configuration failure surfaced as an error there.
type Window struct {
	FromDate *time.Time
	ToDate   *time.Time
	Weekdays map[time.Weekday]bool
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// TimeOfDay is a clock time without a date
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "15:04" or "15:04:05"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var layout string
	switch strings.Count(s, ":") {
	case 1:
		layout = "15:04"
	case 2:
		layout = "15:04:05"
	default:
		return TimeOfDay{}, fmt.Errorf("malformed time of day %q", s)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("malformed time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// Millis returns the time of day in milliseconds since midnight
func (t TimeOfDay) Millis() int64 {
	return int64(t.Hour)*3600000 + int64(t.Minute)*60000 + int64(t.Second)*1000
}

// On places the time of day on the calendar date of ref in loc
func (t TimeOfDay) On(ref time.Time, loc *time.Location) time.Time {
	local := ref.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, t.Second, 0, loc)
}

// WindowOf resolves a broadcast's window fields. Weekday names are matched
// case-insensitively; unknown names simply never match.
func WindowOf(b *models.Broadcast) (*Window, error) {
	loc := time.UTC
	if b.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(b.Timezone)
		if err != nil {
			return nil, fmt.Errorf("broadcast %d: invalid timezone %q: %w", b.ID, b.Timezone, err)
		}
	}

	start, err := ParseTimeOfDay(b.StartTime)
	if err != nil {
		return nil, fmt.Errorf("broadcast %d: start time: %w", b.ID, err)
	}
	end, err := ParseTimeOfDay(b.EndTime)
	if err != nil {
		return nil, fmt.Errorf("broadcast %d: end time: %w", b.ID, err)
	}

	var weekdays map[time.Weekday]bool
	if len(b.Weekdays) > 0 {
		weekdays = make(map[time.Weekday]bool, len(b.Weekdays))
		for _, name := range b.Weekdays {
			if wd, ok := ParseWeekday(name); ok {
				weekdays[wd] = true
			}
		}
	}

	return &Window{
		FromDate: b.FromDate,
		ToDate:   b.ToDate,
		Weekdays: weekdays,
		Start:    start,
		End:      end,
		Location: loc,
	}, nil
}

// ParseWeekday matches an English weekday name case-insensitively
func ParseWeekday(name string) (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), name) {
			return wd, true
		}
	}
	return 0, false
}

// InDateRange reports whether the instant falls inside the inclusive
// from/to date range. An absent bound is unrestricted.
func (w *Window) InDateRange(instant time.Time) bool {
	if w.FromDate != nil && instant.Before(*w.FromDate) {
		return false
	}
	if w.ToDate != nil && instant.After(*w.ToDate) {
		return false
	}
	return true
}

// OnAllowedWeekday reports whether the instant's weekday (in the window's
// timezone) belongs to the allowed set. An empty set allows every day.
func (w *Window) OnAllowedWeekday(instant time.Time) bool {
	if len(w.Weekdays) == 0 {
		return true
	}
	return w.Weekdays[instant.In(w.Location).Weekday()]
}

// WithinTimeOfDay reports whether the instant sits inside the daily window.
// Both boundaries count as inside. When End < Start the window wraps over
// midnight: the instant is inside iff it is after Start or before End.
func (w *Window) WithinTimeOfDay(instant time.Time) bool {
	start := w.Start.On(instant, w.Location)
	end := w.End.On(instant, w.Location)
	local := instant.In(w.Location)

	if local.Equal(start) || local.Equal(end) {
		return true
	}
	if end.Before(start) {
		return local.After(start) || local.Before(end)
	}
	return local.After(start) && local.Before(end)
}

// IsDeliverable reports whether the instant is a valid delivery moment:
// inside the date range, on an allowed weekday, and within the daily window.
func (w *Window) IsDeliverable(instant time.Time) bool {
	return w.InDateRange(instant) && w.OnAllowedWeekday(instant) && w.WithinTimeOfDay(instant)
}

// NextDeliverable returns the earliest valid delivery instant at or after
// candidate. Already-deliverable candidates come back unchanged, so the
// function is idempotent on its own output. cadenceDays is how far to jump
// when a whole day is ruled out: one day for immediate and scheduled steps,
// the step's repeat interval for recurring steps. The second return is false
// when no valid instant exists before the window's end date.
func (w *Window) NextDeliverable(candidate time.Time, cadenceDays int) (time.Time, bool) {
	if w.IsDeliverable(candidate) {
		return candidate, true
	}
	if cadenceDays < 1 {
		cadenceDays = 1
	}

	for i := 0; i < maxWindowIterations; i++ {
		if !w.InDateRange(candidate) {
			return time.Time{}, false
		}

		// Clamp into the current day's window
		start := w.Start.On(candidate, w.Location)
		end := w.End.On(candidate, w.Location)
		local := candidate.In(w.Location)
		if local.Before(start) {
			candidate = start
		} else if end.After(start) && local.After(end) {
			candidate = start.AddDate(0, 0, 1)
		}

		if w.IsDeliverable(candidate) {
			return candidate, true
		}
		if !w.InDateRange(candidate) {
			return time.Time{}, false
		}

		// Wrong weekday or otherwise ruled out for the whole day:
		// advance by the step cadence and restart at the window start.
		candidate = w.Start.On(candidate.AddDate(0, 0, cadenceDays), w.Location)
	}

	return time.Time{}, false
}
