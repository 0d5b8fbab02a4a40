package app

import (
	"context"
	"time"

	"github.com/hylla/qctl/internal/domain"
)

// Repository is the persistence port for projects, tasks, resources and the audit ledger.
//
// Every create, update and delete appends a change event in the same transaction as the write.
type Repository interface {
	CreateProject(context.Context, domain.Project) error
	UpdateProject(context.Context, domain.Project) error
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context, bool) ([]domain.Project, error)

	CreateTask(context.Context, domain.Task) error
	UpdateTask(context.Context, domain.Task) error
	GetTask(context.Context, string) (domain.Task, error)
	GetTaskByCode(context.Context, string) (domain.Task, error)
	ListTasks(context.Context, TaskFilter) ([]domain.Task, error)

	CreateResource(context.Context, domain.Resource) error
	UpdateResource(context.Context, domain.Resource) error
	GetResource(context.Context, string) (domain.Resource, error)
	ListResources(context.Context, bool) ([]domain.Resource, error)

	CreateComment(context.Context, domain.Comment) error
	ListComments(context.Context, CommentFilter) ([]domain.Comment, error)
	// DeleteComment removes one comment of one task; a mismatched pair is ErrNotFound.
	DeleteComment(ctx context.Context, taskID, commentID string, deletedAt time.Time) error

	ListChangeEvents(context.Context, ChangeEventFilter) ([]domain.ChangeEvent, error)
}

// TaskFilter narrows task listings. Zero values match everything except deleted tasks.
type TaskFilter struct {
	ProjectID      string
	ResourceID     string
	Statuses       []domain.Status
	Search         string
	IncludeDeleted bool
}

// ChangeEventFilter narrows audit ledger reads; results are newest first.
type ChangeEventFilter struct {
	ProjectID  string
	EntityType domain.EntityType
	EntityID   string
	Limit      int
}

// CommentFilter selects one task's thread; results are newest first. Limit <= 0 returns all.
type CommentFilter struct {
	TaskID string
	Limit  int
}
