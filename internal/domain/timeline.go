package domain

import (
	"errors"
	"math"
	"slices"
	"strings"
	"time"
)

// HealthStatus classifies a task's schedule health.
type HealthStatus string

// HealthStatus values. These strings are the wire contract for health badges.
const (
	HealthOnTrack        HealthStatus = "on_track"
	HealthAtRisk         HealthStatus = "at_risk"
	HealthOverdue        HealthStatus = "overdue"
	HealthCompletedEarly HealthStatus = "completed_early"
)

var validHealthStatuses = []HealthStatus{HealthOnTrack, HealthAtRisk, HealthOverdue, HealthCompletedEarly}

// HealthStatuses returns every health status in display order.
func HealthStatuses() []HealthStatus {
	return append([]HealthStatus(nil), validHealthStatuses...)
}

// ParseHealthStatus validates one textual health status.
func ParseHealthStatus(raw string) (HealthStatus, bool) {
	status := HealthStatus(strings.TrimSpace(strings.ToLower(raw)))
	return status, slices.Contains(validHealthStatuses, status)
}

// TimelineRecord is the read-only set of dates the timeline engine consumes.
// Every field is optional; nil and zero values count as missing.
type TimelineRecord struct {
	ExpectedStartDate *time.Time
	ActualStartDate   *time.Time
	Deadline          *time.Time
	CompletedDate     *time.Time
	EstimateDays      *float64
}

// TimelineFields carries raw transport values before calendar-day parsing.
type TimelineFields struct {
	ExpectedStartDate string   `json:"expected_start_date,omitempty"`
	ActualStartDate   string   `json:"actual_start_date,omitempty"`
	Deadline          string   `json:"deadline,omitempty"`
	CompletedDate     string   `json:"completed_date,omitempty"`
	EstimateDays      *float64 `json:"estimate_days,omitempty"`
}

// TimelineResult holds derived schedule metrics; nil means not computable.
type TimelineResult struct {
	StartVariance      *int          `json:"start_variance"`
	CompletionVariance *int          `json:"completion_variance"`
	ExecutionVariance  *float64      `json:"execution_variance"`
	HealthStatus       *HealthStatus `json:"health_status"`
}

// ParseTimelineRecord converts raw fields into a record.
//
// Blank fields are missing. Fields that do not parse are dropped to nil and reported by JSON name so
// callers can surface them; they are never compared.
func ParseTimelineRecord(in TimelineFields) (TimelineRecord, []string) {
	var (
		rec     TimelineRecord
		invalid []string
	)
	parse := func(name, raw string) *time.Time {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		day, err := ParseCalendarDay(raw)
		if err != nil {
			invalid = append(invalid, name)
			return nil
		}
		return &day
	}
	rec.ExpectedStartDate = parse("expected_start_date", in.ExpectedStartDate)
	rec.ActualStartDate = parse("actual_start_date", in.ActualStartDate)
	rec.Deadline = parse("deadline", in.Deadline)
	rec.CompletedDate = parse("completed_date", in.CompletedDate)
	if in.EstimateDays != nil {
		if validEstimate(*in.EstimateDays) {
			estimate := *in.EstimateDays
			rec.EstimateDays = &estimate
		} else {
			invalid = append(invalid, "estimate_days")
		}
	}
	return rec, invalid
}

// TaskHealth classifies a record's schedule health as of now.
//
// A zero now means the current wall-clock day. The result is nil when there is no usable deadline.
func TaskHealth(rec TimelineRecord, now time.Time) *HealthStatus {
	deadline, ok := calendarDay(rec.Deadline)
	if !ok {
		return nil
	}
	if now.IsZero() {
		now = time.Now()
	}
	today := NormalizeDate(now)

	if completed, ok := calendarDay(rec.CompletedDate); ok {
		if completed.After(deadline) {
			return healthPtr(HealthOverdue)
		}
		return healthPtr(HealthCompletedEarly)
	}
	if today.After(deadline) {
		return healthPtr(HealthOverdue)
	}
	expected, hasExpected := calendarDay(rec.ExpectedStartDate)
	actual, hasActual := calendarDay(rec.ActualStartDate)
	if hasExpected && hasActual && actual.After(expected) {
		return healthPtr(HealthAtRisk)
	}
	return healthPtr(HealthOnTrack)
}

// ComputeTaskTimeline computes variances and health with DefaultCalendar.
func ComputeTaskTimeline(rec TimelineRecord, now time.Time) (TimelineResult, error) {
	return DefaultCalendar.ComputeTaskTimeline(rec, now)
}

// ComputeTaskTimeline derives start, completion, and execution variances plus health status.
//
// Missing inputs leave only the affected metric nil. A span beyond the calendar guard also leaves
// its metric nil, and the guard error is returned alongside the otherwise complete result.
func (c Calendar) ComputeTaskTimeline(rec TimelineRecord, now time.Time) (TimelineResult, error) {
	var (
		out  TimelineResult
		errs []error
	)

	expected, hasExpected := calendarDay(rec.ExpectedStartDate)
	actual, hasActual := calendarDay(rec.ActualStartDate)
	deadline, hasDeadline := calendarDay(rec.Deadline)
	completed, hasCompleted := calendarDay(rec.CompletedDate)

	if hasExpected && hasActual {
		variance, err := c.CountWorkingDays(expected, actual)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.StartVariance = &variance
		}
	}
	if hasDeadline && hasCompleted {
		variance, err := c.CountWorkingDays(deadline, completed)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.CompletionVariance = &variance
		}
	}
	if hasActual && hasCompleted && rec.EstimateDays != nil && validEstimate(*rec.EstimateDays) {
		duration, err := c.CountWorkingDays(actual, completed)
		if err != nil {
			errs = append(errs, err)
		} else {
			variance := float64(duration) - *rec.EstimateDays
			out.ExecutionVariance = &variance
		}
	}
	out.HealthStatus = TaskHealth(rec, now)
	return out, errors.Join(errs...)
}

// calendarDay returns the normalized day behind an optional date.
func calendarDay(t *time.Time) (time.Time, bool) {
	if t == nil || t.IsZero() {
		return time.Time{}, false
	}
	return NormalizeDate(*t), true
}

// validEstimate reports whether an estimate is a finite, non-negative number of days.
func validEstimate(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func healthPtr(status HealthStatus) *HealthStatus {
	return &status
}
