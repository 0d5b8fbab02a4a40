// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/qctl/internal/app"
	"github.com/hylla/qctl/internal/domain"
)

// ErrInvalidRequest and related errors classify failures for transport adapters.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrRangeTooLarge  = errors.New("range too large")
)

// Service is the contract shared by the HTTP and MCP adapters.
type Service interface {
	CountWorkingDays(context.Context, CountWorkingDaysRequest) (WorkingDaysCount, error)
	AddWorkingDays(context.Context, AddWorkingDaysRequest) (WorkingDaysAdd, error)
	CheckWorkingDay(context.Context, string) (WorkingDayCheck, error)
	ComputeTimeline(context.Context, TimelineRequest) (TimelineResponse, error)

	ListProjects(context.Context, bool) ([]Project, error)
	CreateProject(context.Context, CreateProjectRequest) (Project, error)
	GetProject(context.Context, string) (Project, error)
	ProjectHealth(context.Context, string) (app.ProjectHealth, error)
	ListProjectActivity(context.Context, string, int) ([]ChangeEvent, error)

	ListTasks(context.Context, ListTasksRequest) ([]Task, error)
	CreateTask(context.Context, CreateTaskRequest) (Task, error)
	GetTask(context.Context, string) (Task, error)
	UpdateTask(context.Context, UpdateTaskRequest) (Task, error)
	DeleteTask(context.Context, string) (Task, error)
	ListTaskActivity(context.Context, string, int) ([]ChangeEvent, error)
	ListTaskComments(context.Context, string, int) ([]Comment, error)
	AddTaskComment(context.Context, AddTaskCommentRequest) (Comment, error)
	DeleteTaskComment(context.Context, string, string) error

	ListResources(context.Context, bool) ([]Resource, error)
	CreateResource(context.Context, CreateResourceRequest) (Resource, error)
	GetResource(context.Context, string) (Resource, error)
	UpdateResource(context.Context, UpdateResourceRequest) (Resource, error)

	Dashboard(context.Context) (app.Dashboard, error)
}

// CountWorkingDaysRequest holds two calendar days in YYYY-MM-DD or RFC3339 form.
type CountWorkingDaysRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WorkingDaysCount is the result of a working-day count.
type WorkingDaysCount struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	WorkingDays int    `json:"working_days"`
}

// AddWorkingDaysRequest offsets Date by Days working days.
type AddWorkingDaysRequest struct {
	Date string `json:"date"`
	Days int    `json:"days"`
}

// WorkingDaysAdd is the result of a working-day offset.
type WorkingDaysAdd struct {
	Date   string `json:"date"`
	Days   int    `json:"days"`
	Result string `json:"result"`
}

// WorkingDayCheck reports whether one calendar day is a working day.
type WorkingDayCheck struct {
	Date       string `json:"date"`
	Weekday    string `json:"weekday"`
	WorkingDay bool   `json:"working_day"`
}

// TimelineRequest carries raw task dates for ad-hoc timeline computation.
type TimelineRequest = domain.TimelineFields

// TimelineResponse holds derived metrics plus the input fields that were ignored.
type TimelineResponse struct {
	domain.TimelineResult
	InvalidFields []string `json:"invalid_fields,omitempty"`
	Warning       string   `json:"warning,omitempty"`
}

// Project is the transport view of a project.
type Project struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// Task is the transport view of a task with its derived timeline.
type Task struct {
	ID                string                `json:"id"`
	Code              string                `json:"code"`
	ProjectID         string                `json:"project_id"`
	ResourceID        string                `json:"resource_id,omitempty"`
	Name              string                `json:"name"`
	Description       string                `json:"description,omitempty"`
	Notes             string                `json:"notes,omitempty"`
	Status            domain.Status         `json:"status"`
	Priority          domain.Priority       `json:"priority"`
	EstimateDays      *float64              `json:"estimate_days,omitempty"`
	EstimateHours     float64               `json:"estimate_hours"`
	ActualHours       float64               `json:"actual_hours"`
	ExpectedStartDate string                `json:"expected_start_date,omitempty"`
	ActualStartDate   string                `json:"actual_start_date,omitempty"`
	Deadline          string                `json:"deadline,omitempty"`
	CompletedDate     string                `json:"completed_date,omitempty"`
	Tags              []string              `json:"tags,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	DeletedAt         *time.Time            `json:"deleted_at,omitempty"`
	Timeline          domain.TimelineResult `json:"timeline"`
	Warning           string                `json:"warning,omitempty"`
}

// Resource is the transport view of a resource and its current workload.
type Resource struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Email             string              `json:"email,omitempty"`
	Role              string              `json:"role,omitempty"`
	WeeklyCapacityHrs float64             `json:"weekly_capacity_hrs"`
	Active            bool                `json:"active"`
	Utilization       *domain.Utilization `json:"utilization,omitempty"`
}

// ChangeEvent is the transport view of one audit ledger entry.
type ChangeEvent struct {
	ID            int64             `json:"id"`
	ProjectID     string            `json:"project_id,omitempty"`
	EntityType    string            `json:"entity_type"`
	EntityID      string            `json:"entity_id"`
	Operation     string            `json:"operation"`
	Actor         string            `json:"actor"`
	ChangedFields []string          `json:"changed_fields,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// Comment is one entry of a task's comment thread.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	ProjectID string    `json:"project_id"`
	Body      string    `json:"body"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// AddTaskCommentRequest appends Body to the thread of the task named by TaskID (id or code).
type AddTaskCommentRequest struct {
	TaskID string `json:"task_id"`
	Body   string `json:"body"`
}

// CreateProjectRequest holds the fields of a new project.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateTaskRequest holds the fields of a new task; dates are calendar-day strings.
type CreateTaskRequest struct {
	ProjectID         string   `json:"project_id"`
	Code              string   `json:"code"`
	ResourceID        string   `json:"resource_id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Notes             string   `json:"notes"`
	Status            string   `json:"status"`
	Priority          string   `json:"priority"`
	EstimateDays      *float64 `json:"estimate_days"`
	EstimateHours     float64  `json:"estimate_hours"`
	ActualHours       float64  `json:"actual_hours"`
	ExpectedStartDate string   `json:"expected_start_date"`
	ActualStartDate   string   `json:"actual_start_date"`
	Deadline          string   `json:"deadline"`
	CompletedDate     string   `json:"completed_date"`
	Tags              []string `json:"tags"`
}

// UpdateTaskRequest is a partial task update. A date pointer holding an empty string clears that date.
type UpdateTaskRequest struct {
	TaskID            string   `json:"-"`
	ResourceID        *string  `json:"resource_id"`
	Name              *string  `json:"name"`
	Description       *string  `json:"description"`
	Notes             *string  `json:"notes"`
	Priority          *string  `json:"priority"`
	Status            *string  `json:"status"`
	EstimateDays      *float64 `json:"estimate_days"`
	EstimateHours     *float64 `json:"estimate_hours"`
	ActualHours       *float64 `json:"actual_hours"`
	ExpectedStartDate *string  `json:"expected_start_date"`
	ActualStartDate   *string  `json:"actual_start_date"`
	Deadline          *string  `json:"deadline"`
	CompletedDate     *string  `json:"completed_date"`
	Tags              []string `json:"tags"`
	Clear             []string `json:"clear"`
}

// ListTasksRequest narrows task listings.
type ListTasksRequest struct {
	ProjectID      string   `json:"project_id"`
	ResourceID     string   `json:"resource_id"`
	Statuses       []string `json:"status"`
	Health         []string `json:"health"`
	Search         string   `json:"search"`
	IncludeDeleted bool     `json:"include_deleted"`
}

// CreateResourceRequest holds the fields of a new resource.
type CreateResourceRequest struct {
	Name              string  `json:"name"`
	Email             string  `json:"email"`
	Role              string  `json:"role"`
	WeeklyCapacityHrs float64 `json:"weekly_capacity_hrs"`
}

// UpdateResourceRequest is a partial resource update.
type UpdateResourceRequest struct {
	ResourceID        string   `json:"-"`
	Name              *string  `json:"name"`
	Email             *string  `json:"email"`
	Role              *string  `json:"role"`
	WeeklyCapacityHrs *float64 `json:"weekly_capacity_hrs"`
	Active            *bool    `json:"active"`
}
