package domain

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

var validPriorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

type Status string

const (
	StatusBacklog    Status = "Backlog"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
	StatusCancelled  Status = "Cancelled"
)

var validStatuses = []Status{StatusBacklog, StatusInProgress, StatusDone, StatusCancelled}

// statusTransitions lists the allowed next states; Done and Cancelled are terminal.
var statusTransitions = map[Status][]Status{
	StatusBacklog:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusDone, StatusCancelled},
	StatusDone:       {},
	StatusCancelled:  {},
}

var taskCodePattern = regexp.MustCompile(`^TSK-[A-Z0-9-]+$`)

const maxTaskNameLen = 200

type Task struct {
	ID                string
	Code              string
	ProjectID         string
	ResourceID        string
	Name              string
	Description       string
	Notes             string
	Status            Status
	Priority          Priority
	EstimateDays      *float64
	EstimateHours     float64
	ActualHours       float64
	ExpectedStartDate *time.Time
	ActualStartDate   *time.Time
	Deadline          *time.Time
	CompletedDate     *time.Time
	Tags              []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

type TaskInput struct {
	ID                string
	Code              string
	ProjectID         string
	ResourceID        string
	Name              string
	Description       string
	Notes             string
	Status            Status
	Priority          Priority
	EstimateDays      *float64
	EstimateHours     float64
	ActualHours       float64
	ExpectedStartDate *time.Time
	ActualStartDate   *time.Time
	Deadline          *time.Time
	CompletedDate     *time.Time
	Tags              []string
}

// TaskDetails holds the mutable, non-status fields of a task.
type TaskDetails struct {
	ResourceID        string
	Name              string
	Description       string
	Notes             string
	Priority          Priority
	EstimateDays      *float64
	EstimateHours     float64
	ActualHours       float64
	ExpectedStartDate *time.Time
	ActualStartDate   *time.Time
	Deadline          *time.Time
	CompletedDate     *time.Time
	Tags              []string
}

func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))

	if in.ID == "" || in.ProjectID == "" {
		return Task{}, ErrInvalidID
	}
	if !taskCodePattern.MatchString(in.Code) {
		return Task{}, ErrInvalidTaskCode
	}
	if in.Status == "" {
		in.Status = StatusBacklog
	}
	status, ok := ParseStatus(string(in.Status))
	if !ok {
		return Task{}, ErrInvalidStatus
	}
	if status == StatusDone && in.CompletedDate == nil {
		return Task{}, ErrCompletedDateReq
	}

	task := Task{
		ID:        in.ID,
		Code:      in.Code,
		ProjectID: in.ProjectID,
		Status:    status,
		CreatedAt: now.UTC(),
	}
	if err := task.UpdateDetails(TaskDetails{
		ResourceID:        in.ResourceID,
		Name:              in.Name,
		Description:       in.Description,
		Notes:             in.Notes,
		Priority:          in.Priority,
		EstimateDays:      in.EstimateDays,
		EstimateHours:     in.EstimateHours,
		ActualHours:       in.ActualHours,
		ExpectedStartDate: in.ExpectedStartDate,
		ActualStartDate:   in.ActualStartDate,
		Deadline:          in.Deadline,
		CompletedDate:     in.CompletedDate,
		Tags:              in.Tags,
	}, now); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (t *Task) UpdateDetails(in TaskDetails, now time.Time) error {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxTaskNameLen {
		return ErrInvalidName
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	priority, ok := ParsePriority(string(priority))
	if !ok {
		return ErrInvalidPriority
	}
	if in.EstimateDays != nil && (!validEstimate(*in.EstimateDays) || *in.EstimateDays == 0) {
		return ErrInvalidEstimate
	}
	if !validHours(in.EstimateHours) || !validHours(in.ActualHours) {
		return ErrInvalidHours
	}
	if t.Status == StatusDone && in.CompletedDate == nil {
		return ErrCompletedDateReq
	}

	t.ResourceID = strings.TrimSpace(in.ResourceID)
	t.Name = name
	t.Description = strings.TrimSpace(in.Description)
	t.Notes = strings.TrimSpace(in.Notes)
	t.Priority = priority
	t.EstimateDays = cloneFloat(in.EstimateDays)
	t.EstimateHours = in.EstimateHours
	t.ActualHours = in.ActualHours
	t.ExpectedStartDate = normalizeDay(in.ExpectedStartDate)
	t.ActualStartDate = normalizeDay(in.ActualStartDate)
	t.Deadline = normalizeDay(in.Deadline)
	t.CompletedDate = normalizeDay(in.CompletedDate)
	t.Tags = normalizeTags(in.Tags)
	t.UpdatedAt = now.UTC()
	return nil
}

// Details returns the task's mutable fields for read-modify-write updates.
func (t Task) Details() TaskDetails {
	return TaskDetails{
		ResourceID:        t.ResourceID,
		Name:              t.Name,
		Description:       t.Description,
		Notes:             t.Notes,
		Priority:          t.Priority,
		EstimateDays:      cloneFloat(t.EstimateDays),
		EstimateHours:     t.EstimateHours,
		ActualHours:       t.ActualHours,
		ExpectedStartDate: normalizeDay(t.ExpectedStartDate),
		ActualStartDate:   normalizeDay(t.ActualStartDate),
		Deadline:          normalizeDay(t.Deadline),
		CompletedDate:     normalizeDay(t.CompletedDate),
		Tags:              append([]string(nil), t.Tags...),
	}
}

// TransitionTo moves the task to next, enforcing the status graph and completion evidence.
func (t *Task) TransitionTo(next Status, now time.Time) error {
	next, ok := ParseStatus(string(next))
	if !ok {
		return ErrInvalidStatus
	}
	if t.DeletedAt != nil {
		return ErrTaskDeleted
	}
	if next == t.Status {
		return nil
	}
	if !CanTransition(t.Status, next) {
		return ErrInvalidTransition
	}
	if next == StatusDone {
		if t.CompletedDate == nil {
			return ErrCompletedDateReq
		}
		if t.ActualHours <= 0 {
			return ErrActualHoursReq
		}
	}
	t.Status = next
	t.UpdatedAt = now.UTC()
	return nil
}

// SoftDelete marks the task deleted and cancels it.
func (t *Task) SoftDelete(now time.Time) error {
	if t.DeletedAt != nil {
		return ErrTaskDeleted
	}
	ts := now.UTC()
	t.DeletedAt = &ts
	t.Status = StatusCancelled
	t.UpdatedAt = ts
	return nil
}

// IsOpen reports whether the task still carries remaining work.
func (t Task) IsOpen() bool {
	return t.DeletedAt == nil && (t.Status == StatusBacklog || t.Status == StatusInProgress)
}

// RemainingHours returns estimate minus actual hours, floored at zero.
func (t Task) RemainingHours() float64 {
	return max(0, t.EstimateHours-t.ActualHours)
}

// Timeline returns the dates the timeline engine needs.
func (t Task) Timeline() TimelineRecord {
	return TimelineRecord{
		ExpectedStartDate: normalizeDay(t.ExpectedStartDate),
		ActualStartDate:   normalizeDay(t.ActualStartDate),
		Deadline:          normalizeDay(t.Deadline),
		CompletedDate:     normalizeDay(t.CompletedDate),
		EstimateDays:      cloneFloat(t.EstimateDays),
	}
}

// AllowedTransitions returns the statuses reachable from current.
func AllowedTransitions(current Status) []Status {
	return append([]Status(nil), statusTransitions[current]...)
}

// CanTransition reports whether the status graph allows from -> to.
func CanTransition(from, to Status) bool {
	return slices.Contains(statusTransitions[from], to)
}

// ParseStatus canonicalizes status aliases such as "in-progress" or "done".
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "backlog", "todo":
		return StatusBacklog, true
	case "in progress", "in-progress", "in_progress", "progress":
		return StatusInProgress, true
	case "done", "complete", "completed":
		return StatusDone, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	default:
		return Status(strings.TrimSpace(raw)), false
	}
}

// ParsePriority canonicalizes priority names case-insensitively.
func ParsePriority(raw string) (Priority, bool) {
	for _, p := range validPriorities {
		if strings.EqualFold(string(p), strings.TrimSpace(raw)) {
			return p, true
		}
	}
	return Priority(raw), false
}

// Statuses returns every task status in workflow order.
func Statuses() []Status {
	return append([]Status(nil), validStatuses...)
}

func normalizeDay(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	day := NormalizeDate(*t)
	return &day
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func validHours(v float64) bool {
	return validEstimate(v)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}
