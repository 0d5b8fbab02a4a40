package domain

import (
	"slices"
	"time"
)

// ChangeOperation describes a persisted audit operation.
type ChangeOperation string

// ChangeOperation values used by the local audit ledger.
const (
	ChangeOperationCreate ChangeOperation = "create"
	ChangeOperationUpdate ChangeOperation = "update"
	ChangeOperationStatus ChangeOperation = "status"
	ChangeOperationDelete ChangeOperation = "delete"
)

// EntityType names the audited record kind.
type EntityType string

// EntityType values.
const (
	EntityProject  EntityType = "project"
	EntityTask     EntityType = "task"
	EntityResource EntityType = "resource"
	EntityComment  EntityType = "comment"
)

// DefaultActor is recorded when no caller identity is known.
const DefaultActor = "system"

// ChangeEvent represents a single audit-log entry.
type ChangeEvent struct {
	ID            int64
	ProjectID     string
	EntityType    EntityType
	EntityID      string
	Operation     ChangeOperation
	Actor         string
	ChangedFields []string
	Metadata      map[string]string
	OccurredAt    time.Time
}

// ChangedTaskFields lists the persisted task fields that differ between before and after.
func ChangedTaskFields(before, after Task) []string {
	var out []string
	add := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	add("resource_id", before.ResourceID != after.ResourceID)
	add("name", before.Name != after.Name)
	add("description", before.Description != after.Description)
	add("notes", before.Notes != after.Notes)
	add("status", before.Status != after.Status)
	add("priority", before.Priority != after.Priority)
	add("estimate_days", !equalFloatPtr(before.EstimateDays, after.EstimateDays))
	add("estimate_hours", before.EstimateHours != after.EstimateHours)
	add("actual_hours", before.ActualHours != after.ActualHours)
	add("expected_start_date", !equalDayPtr(before.ExpectedStartDate, after.ExpectedStartDate))
	add("actual_start_date", !equalDayPtr(before.ActualStartDate, after.ActualStartDate))
	add("deadline", !equalDayPtr(before.Deadline, after.Deadline))
	add("completed_date", !equalDayPtr(before.CompletedDate, after.CompletedDate))
	add("tags", !slices.Equal(before.Tags, after.Tags))
	return out
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalDayPtr(a, b *time.Time) bool {
	da, okA := calendarDay(a)
	db, okB := calendarDay(b)
	if !okA || !okB {
		return okA == okB
	}
	return da.Equal(db)
}
