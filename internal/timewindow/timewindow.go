// v2
// internal/timewindow/timewindow.go
package timewindow

import (
	"fmt"
	"time"
)

// The production day runs from local 20:00 to local 20:00 the next calendar
// day. All offset math lives in this package; nothing else in the module is
// allowed to do its own timezone arithmetic.

// DateKeyLayout is the canonical key for production days and shift records.
const DateKeyLayout = "2006-01-02"

// DayCutoverHour is the local hour at which a production day begins.
const DayCutoverHour = 20

// DayShiftStartHour is the local hour at which the day shift begins.
const DayShiftStartHour = 8

type ShiftKind string

const (
	DayShift   ShiftKind = "day"
	NightShift ShiftKind = "night"
)

// Valid reports whether k names a known shift.
func (k ShiftKind) Valid() bool { return k == DayShift || k == NightShift }

// Zone returns the fixed-offset location used for all local-time conversions.
func Zone(offsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}

// DayBounds returns the production-day window [start, end) containing t.
// If the local hour is before the 20:00 cutover the day started the previous
// calendar day.
func DayBounds(t time.Time, offsetHours int) (start, end time.Time) {
	lt := t.In(Zone(offsetHours))
	y, m, d := lt.Date()
	start = time.Date(y, m, d, DayCutoverHour, 0, 0, 0, lt.Location())
	if lt.Hour() < DayCutoverHour {
		start = start.AddDate(0, 0, -1)
	}
	return start.UTC(), start.Add(24 * time.Hour).UTC()
}

// DayKey returns the date key of the production day containing t, i.e. the
// calendar date on which the day's 20:00 start falls.
func DayKey(t time.Time, offsetHours int) string {
	start, _ := DayBounds(t, offsetHours)
	return start.In(Zone(offsetHours)).Format(DateKeyLayout)
}

// DayBoundsForKey returns the UTC window of the named production day.
func DayBoundsForKey(dateKey string, offsetHours int) (start, end time.Time, err error) {
	loc := Zone(offsetHours)
	d, err := time.ParseInLocation(DateKeyLayout, dateKey, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad date key %q: %w", dateKey, err)
	}
	start = time.Date(d.Year(), d.Month(), d.Day(), DayCutoverHour, 0, 0, 0, loc).UTC()
	return start, start.Add(24 * time.Hour), nil
}

// Shift classifies t into a shift and the calendar date that shift started on.
// Local [08:00, 20:00) is the day shift of the same calendar date. Everything
// else is the night shift, attributed to the date it began: a night-shift
// instant before 08:00 belongs to the previous date.
func Shift(t time.Time, offsetHours int) (ShiftKind, string) {
	lt := t.In(Zone(offsetHours))
	h := lt.Hour()
	if h >= DayShiftStartHour && h < DayCutoverHour {
		return DayShift, lt.Format(DateKeyLayout)
	}
	if h < DayShiftStartHour {
		lt = lt.AddDate(0, 0, -1)
	}
	return NightShift, lt.Format(DateKeyLayout)
}

// ShiftBounds returns the UTC window of the named shift. The day shift of
// date D is local [08:00 D, 20:00 D); the night shift of D is local
// [20:00 D, 08:00 D+1), crossing midnight.
func ShiftBounds(dateKey string, kind ShiftKind, offsetHours int) (start, end time.Time, err error) {
	if !kind.Valid() {
		return time.Time{}, time.Time{}, fmt.Errorf("unknown shift kind %q", kind)
	}
	loc := Zone(offsetHours)
	d, err := time.ParseInLocation(DateKeyLayout, dateKey, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad date key %q: %w", dateKey, err)
	}
	if kind == DayShift {
		start = time.Date(d.Year(), d.Month(), d.Day(), DayShiftStartHour, 0, 0, 0, loc)
		return start.UTC(), start.Add(12 * time.Hour).UTC(), nil
	}
	start = time.Date(d.Year(), d.Month(), d.Day(), DayCutoverHour, 0, 0, 0, loc)
	return start.UTC(), start.Add(12 * time.Hour).UTC(), nil
}

// MonthBounds returns the accounting month containing t, anchored to the
// production-day cutover rather than calendar midnight: the month starts at
// the production-day boundary at or before the 1st of the local month, i.e.
// 20:00 local on the last day of the previous month.
func MonthBounds(t time.Time, offsetHours int) (start, end time.Time) {
	loc := Zone(offsetHours)
	dayStart, _ := DayBounds(t, offsetHours)
	// the production day starting at 20:00 on the last calendar day of a
	// month already counts toward the next month, so anchor on dayKey+1
	anchor := dayStart.In(loc).AddDate(0, 0, 1)
	first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, loc)
	return cutoverBefore(first).UTC(), cutoverBefore(first.AddDate(0, 1, 0)).UTC()
}

// cutoverBefore returns the last production-day boundary at or before local
// midnight d, i.e. 20:00 on the preceding calendar day.
func cutoverBefore(d time.Time) time.Time {
	p := d.AddDate(0, 0, -1)
	return time.Date(p.Year(), p.Month(), p.Day(), DayCutoverHour, 0, 0, 0, d.Location())
}
