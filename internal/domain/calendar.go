package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxSpanDays bounds how many calendar days one count or offset may cover.
const DefaultMaxSpanDays = 3660

// workingDaysPerWeek is the number of working days in any 7 consecutive calendar days.
const workingDaysPerWeek = 5

// calendarDayLayouts lists accepted textual calendar-day encodings in match order.
var calendarDayLayouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	time.RFC3339,
}

// Calendar implements the organization's Sunday through Thursday working-day arithmetic.
//
// The work week itself is fixed; only the span guard is configurable. The zero value is ready to
// use and applies DefaultMaxSpanDays.
type Calendar struct {
	MaxSpanDays int
}

// DefaultCalendar is the calendar used by the package-level helpers.
var DefaultCalendar = Calendar{MaxSpanDays: DefaultMaxSpanDays}

// NewCalendar returns a calendar with the requested span guard.
func NewCalendar(maxSpanDays int) (Calendar, error) {
	if maxSpanDays <= 0 {
		return Calendar{}, ErrInvalidMaxSpanDays
	}
	return Calendar{MaxSpanDays: maxSpanDays}, nil
}

// NonWorkingDays returns the fixed non-working weekdays (Friday, Saturday).
func NonWorkingDays() []time.Weekday {
	return []time.Weekday{time.Friday, time.Saturday}
}

// isWorkingWeekday classifies one weekday against the fixed work week.
func isWorkingWeekday(day time.Weekday) bool {
	switch day {
	case time.Friday, time.Saturday:
		return false
	default:
		return true
	}
}

// IsWorkingDay reports whether t falls on Sunday through Thursday in its own location.
func IsWorkingDay(t time.Time) bool {
	return isWorkingWeekday(NormalizeDate(t).Weekday())
}

// NormalizeDate keeps the calendar day of t, as seen in t's location, at midnight UTC.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseCalendarDay parses a date-only or RFC3339 value into a normalized calendar day.
func ParseCalendarDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range calendarDayLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return NormalizeDate(parsed), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// FormatCalendarDay renders a calendar day as YYYY-MM-DD.
func FormatCalendarDay(t time.Time) string {
	return NormalizeDate(t).Format(time.DateOnly)
}

// CountWorkingDays counts working days with DefaultCalendar.
func CountWorkingDays(start, end time.Time) (int, error) {
	return DefaultCalendar.CountWorkingDays(start, end)
}

// AddWorkingDays offsets a date with DefaultCalendar.
func AddWorkingDays(t time.Time, n int) (time.Time, error) {
	return DefaultCalendar.AddWorkingDays(t, n)
}

// CountWorkingDays returns the signed number of working days traversed from start to end.
//
// The origin day is counted and the destination day is not, so the count covers every working
// day d with min(start, end) <= d < max(start, end). The sign follows the walk direction.
func (c Calendar) CountWorkingDays(start, end time.Time) (int, error) {
	if start.IsZero() || end.IsZero() {
		return 0, ErrInvalidDate
	}
	from := NormalizeDate(start)
	to := NormalizeDate(end)
	if from.Equal(to) {
		return 0, nil
	}
	sign := 1
	if to.Before(from) {
		from, to = to, from
		sign = -1
	}

	span := daysBetween(from, to)
	if limit := c.maxSpanDays(); span > limit {
		return 0, fmt.Errorf("%w: span of %d calendar days exceeds %d", ErrRangeTooLarge, span, limit)
	}

	weeks := span / 7
	count := weeks * workingDaysPerWeek
	for cursor := from.AddDate(0, 0, weeks*7); cursor.Before(to); cursor = cursor.AddDate(0, 0, 1) {
		if isWorkingWeekday(cursor.Weekday()) {
			count++
		}
	}
	return sign * count, nil
}

// AddWorkingDays moves t by n working days; negative n walks backward.
//
// Only days visited after t are classified, so a start on Friday or Saturday still moves to the
// n-th working day in the walk direction.
func (c Calendar) AddWorkingDays(t time.Time, n int) (time.Time, error) {
	if t.IsZero() {
		return time.Time{}, ErrInvalidDate
	}
	day := NormalizeDate(t)
	if n == 0 {
		return day, nil
	}
	// The magnitude is unsigned so math.MinInt has a representable size.
	step := 1
	remaining := uint(n)
	if n < 0 {
		step = -1
		remaining = uint(-(n + 1)) + 1
	}

	// Every 5 working days need at most 7 calendar days.
	limit := uint(c.maxSpanDays())
	if remaining > limit || ((remaining+workingDaysPerWeek-1)/workingDaysPerWeek)*7 > limit {
		return time.Time{}, fmt.Errorf("%w: %d working days exceeds span of %d calendar days", ErrRangeTooLarge, remaining, limit)
	}

	for remaining > workingDaysPerWeek {
		day = day.AddDate(0, 0, 7*step)
		remaining -= workingDaysPerWeek
	}
	for remaining > 0 {
		day = day.AddDate(0, 0, step)
		if isWorkingWeekday(day.Weekday()) {
			remaining--
		}
	}
	return day, nil
}

// maxSpanDays returns the effective span guard.
func (c Calendar) maxSpanDays() int {
	if c.MaxSpanDays <= 0 {
		return DefaultMaxSpanDays
	}
	return c.MaxSpanDays
}

// daysBetween returns whole calendar days between two normalized days, from <= to.
func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
