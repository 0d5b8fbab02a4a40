package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hylla/qctl/internal/domain"
)

// Logger is the structured logging surface the service writes to.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Calendar                 domain.Calendar
	DeriveDeadline           bool
	DefaultWeeklyCapacityHrs float64
	Logger                   Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service coordinates domain rules, the timeline engine and persistence.
type Service struct {
	repo            Repository
	idGen           IDGenerator
	clock           Clock
	calendar        domain.Calendar
	deriveDeadline  bool
	defaultCapacity float64
	logger          Logger
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Calendar.MaxSpanDays <= 0 {
		cfg.Calendar = domain.DefaultCalendar
	}
	if cfg.DefaultWeeklyCapacityHrs <= 0 {
		cfg.DefaultWeeklyCapacityHrs = domain.DefaultWeeklyCapacityHours
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	return &Service{
		repo:            repo,
		idGen:           idGen,
		clock:           clock,
		calendar:        cfg.Calendar,
		deriveDeadline:  cfg.DeriveDeadline,
		defaultCapacity: cfg.DefaultWeeklyCapacityHrs,
		logger:          cfg.Logger,
	}
}

// Calendar returns the working-day calendar the service computes with.
func (s *Service) Calendar() domain.Calendar {
	return s.calendar
}

// CreateProject creates project.
func (s *Service) CreateProject(ctx context.Context, name, description string) (domain.Project, error) {
	project, err := domain.NewProject(s.idGen(), name, description, s.clock())
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	s.logger.Debug("project created", "project_id", project.ID, "slug", project.Slug)
	return project, nil
}

// UpdateProject renames a project and replaces its description.
func (s *Service) UpdateProject(ctx context.Context, projectID, name, description string) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := project.UpdateDetails(name, description, s.clock()); err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// ArchiveProject archives a project; its tasks stay readable.
func (s *Service) ArchiveProject(ctx context.Context, projectID string) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	project.Archive(s.clock())
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// RestoreProject clears a project's archived state.
func (s *Service) RestoreProject(ctx context.Context, projectID string) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	project.Restore(s.clock())
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// GetProject returns project.
func (s *Service) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	return s.repo.GetProject(ctx, strings.TrimSpace(projectID))
}

// ListProjects lists projects.
func (s *Service) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	return s.repo.ListProjects(ctx, includeArchived)
}

// ResolveProject finds a project by id or slug.
func (s *Service) ResolveProject(ctx context.Context, ref string) (domain.Project, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Project{}, domain.ErrInvalidID
	}
	project, err := s.repo.GetProject(ctx, ref)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Project{}, err
	}
	projects, err := s.repo.ListProjects(ctx, true)
	if err != nil {
		return domain.Project{}, err
	}
	for _, candidate := range projects {
		if candidate.Slug == strings.ToLower(ref) {
			return candidate, nil
		}
	}
	return domain.Project{}, ErrNotFound
}

// CreateTaskInput holds input values for create task operations.
type CreateTaskInput struct {
	ProjectID         string
	Code              string
	ResourceID        string
	Name              string
	Description       string
	Notes             string
	Status            domain.Status
	Priority          domain.Priority
	EstimateDays      *float64
	EstimateHours     float64
	ActualHours       float64
	ExpectedStartDate *time.Time
	ActualStartDate   *time.Time
	Deadline          *time.Time
	CompletedDate     *time.Time
	Tags              []string
}

// CreateTask validates and persists a new task.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	project, err := s.repo.GetProject(ctx, strings.TrimSpace(in.ProjectID))
	if err != nil {
		return domain.Task{}, fmt.Errorf("load project: %w", err)
	}
	if project.IsArchived() {
		return domain.Task{}, ErrProjectArchived
	}
	if err := s.ensureAssignable(ctx, in.ResourceID); err != nil {
		return domain.Task{}, err
	}
	if err := s.ensureCodeAvailable(ctx, in.Code, ""); err != nil {
		return domain.Task{}, err
	}

	deadline, err := s.deadlineFor(in.ExpectedStartDate, in.EstimateDays, in.Deadline)
	if err != nil {
		return domain.Task{}, err
	}
	task, err := domain.NewTask(domain.TaskInput{
		ID:                s.idGen(),
		Code:              in.Code,
		ProjectID:         project.ID,
		ResourceID:        in.ResourceID,
		Name:              in.Name,
		Description:       in.Description,
		Notes:             in.Notes,
		Status:            in.Status,
		Priority:          in.Priority,
		EstimateDays:      in.EstimateDays,
		EstimateHours:     in.EstimateHours,
		ActualHours:       in.ActualHours,
		ExpectedStartDate: in.ExpectedStartDate,
		ActualStartDate:   in.ActualStartDate,
		Deadline:          deadline,
		CompletedDate:     in.CompletedDate,
		Tags:              in.Tags,
	}, s.clock())
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.logger.Debug("task created", "task_id", task.ID, "code", task.Code, "project_id", task.ProjectID)
	return task, nil
}

// Task fields UpdateTaskInput.Clear can reset.
const (
	ClearResource          = "resource_id"
	ClearEstimateDays      = "estimate_days"
	ClearExpectedStartDate = "expected_start_date"
	ClearActualStartDate   = "actual_start_date"
	ClearDeadline          = "deadline"
	ClearCompletedDate     = "completed_date"
)

// UpdateTaskInput is a partial update; nil fields keep their current value.
// Status, when set, is applied after the field changes so completion evidence can arrive together.
type UpdateTaskInput struct {
	TaskID            string
	ResourceID        *string
	Name              *string
	Description       *string
	Notes             *string
	Priority          *domain.Priority
	EstimateDays      *float64
	EstimateHours     *float64
	ActualHours       *float64
	ExpectedStartDate *time.Time
	ActualStartDate   *time.Time
	Deadline          *time.Time
	CompletedDate     *time.Time
	Tags              []string
	Status            *domain.Status
	Clear             []string
}

// UpdateTask applies a partial update and optional status transition.
func (s *Service) UpdateTask(ctx context.Context, in UpdateTaskInput) (domain.Task, error) {
	task, err := s.GetTask(ctx, in.TaskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task.DeletedAt != nil {
		return domain.Task{}, domain.ErrTaskDeleted
	}

	details := task.Details()
	deadlineTouched := in.Deadline != nil
	for _, field := range in.Clear {
		switch strings.TrimSpace(field) {
		case ClearResource:
			details.ResourceID = ""
		case ClearEstimateDays:
			details.EstimateDays = nil
		case ClearExpectedStartDate:
			details.ExpectedStartDate = nil
		case ClearActualStartDate:
			details.ActualStartDate = nil
		case ClearDeadline:
			details.Deadline = nil
			deadlineTouched = true
		case ClearCompletedDate:
			details.CompletedDate = nil
		default:
			return domain.Task{}, fmt.Errorf("%w: %q", ErrInvalidClearField, field)
		}
	}
	if in.ResourceID != nil {
		if strings.TrimSpace(*in.ResourceID) != task.ResourceID {
			if err := s.ensureAssignable(ctx, *in.ResourceID); err != nil {
				return domain.Task{}, err
			}
		}
		details.ResourceID = *in.ResourceID
	}
	if in.Name != nil {
		details.Name = *in.Name
	}
	if in.Description != nil {
		details.Description = *in.Description
	}
	if in.Notes != nil {
		details.Notes = *in.Notes
	}
	if in.Priority != nil {
		details.Priority = *in.Priority
	}
	if in.EstimateDays != nil {
		details.EstimateDays = in.EstimateDays
	}
	if in.EstimateHours != nil {
		details.EstimateHours = *in.EstimateHours
	}
	if in.ActualHours != nil {
		details.ActualHours = *in.ActualHours
	}
	if in.ExpectedStartDate != nil {
		details.ExpectedStartDate = in.ExpectedStartDate
	}
	if in.ActualStartDate != nil {
		details.ActualStartDate = in.ActualStartDate
	}
	if in.Deadline != nil {
		details.Deadline = in.Deadline
	}
	if in.CompletedDate != nil {
		details.CompletedDate = in.CompletedDate
	}
	if in.Tags != nil {
		details.Tags = in.Tags
	}
	if !deadlineTouched {
		details.Deadline, err = s.deadlineFor(details.ExpectedStartDate, details.EstimateDays, details.Deadline)
		if err != nil {
			return domain.Task{}, err
		}
	}

	now := s.clock()
	if err := task.UpdateDetails(details, now); err != nil {
		return domain.Task{}, err
	}
	if in.Status != nil {
		from := task.Status
		if err := task.TransitionTo(*in.Status, now); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return domain.Task{}, fmt.Errorf("%w: %s -> %s", err, from, *in.Status)
			}
			return domain.Task{}, err
		}
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// SetTaskStatus transitions a task without changing other fields.
func (s *Service) SetTaskStatus(ctx context.Context, taskRef string, status domain.Status) (domain.Task, error) {
	return s.UpdateTask(ctx, UpdateTaskInput{TaskID: taskRef, Status: &status})
}

// DeleteTask soft-deletes a task, cancelling it.
func (s *Service) DeleteTask(ctx context.Context, taskRef string) (domain.Task, error) {
	task, err := s.GetTask(ctx, taskRef)
	if err != nil {
		return domain.Task{}, err
	}
	if err := task.SoftDelete(s.clock()); err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.logger.Debug("task deleted", "task_id", task.ID, "code", task.Code)
	return task, nil
}

// GetTask finds a task by id, falling back to its TSK- code.
func (s *Service) GetTask(ctx context.Context, ref string) (domain.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Task{}, domain.ErrInvalidID
	}
	task, err := s.repo.GetTask(ctx, ref)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return task, err
	}
	return s.repo.GetTaskByCode(ctx, strings.ToUpper(ref))
}

// ListTasks lists tasks matching filter.
func (s *Service) ListTasks(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	return s.repo.ListTasks(ctx, filter)
}

// CreateResourceInput holds input values for create resource operations.
type CreateResourceInput struct {
	Name              string
	Email             string
	Role              string
	WeeklyCapacityHrs float64
}

// CreateResource creates an active resource; zero capacity takes the configured default.
func (s *Service) CreateResource(ctx context.Context, in CreateResourceInput) (domain.Resource, error) {
	capacity := in.WeeklyCapacityHrs
	if capacity == 0 {
		capacity = s.defaultCapacity
	}
	resource, err := domain.NewResource(domain.ResourceInput{
		ID:                s.idGen(),
		Name:              in.Name,
		Email:             in.Email,
		Role:              in.Role,
		WeeklyCapacityHrs: capacity,
	}, s.clock())
	if err != nil {
		return domain.Resource{}, err
	}
	if err := s.repo.CreateResource(ctx, resource); err != nil {
		return domain.Resource{}, err
	}
	return resource, nil
}

// UpdateResourceInput is a partial update; nil fields keep their current value.
type UpdateResourceInput struct {
	ResourceID        string
	Name              *string
	Email             *string
	Role              *string
	WeeklyCapacityHrs *float64
	Active            *bool
}

// UpdateResource applies a partial resource update.
func (s *Service) UpdateResource(ctx context.Context, in UpdateResourceInput) (domain.Resource, error) {
	resource, err := s.repo.GetResource(ctx, strings.TrimSpace(in.ResourceID))
	if err != nil {
		return domain.Resource{}, err
	}
	name, email, role, capacity := resource.Name, resource.Email, resource.Role, resource.WeeklyCapacityHrs
	if in.Name != nil {
		name = *in.Name
	}
	if in.Email != nil {
		email = *in.Email
	}
	if in.Role != nil {
		role = *in.Role
	}
	if in.WeeklyCapacityHrs != nil {
		capacity = *in.WeeklyCapacityHrs
	}
	now := s.clock()
	if err := resource.UpdateDetails(name, email, role, capacity, now); err != nil {
		return domain.Resource{}, err
	}
	if in.Active != nil {
		resource.SetActive(*in.Active, now)
	}
	if err := s.repo.UpdateResource(ctx, resource); err != nil {
		return domain.Resource{}, err
	}
	return resource, nil
}

// DeactivateResource marks a resource inactive; existing assignments are kept.
func (s *Service) DeactivateResource(ctx context.Context, resourceID string) (domain.Resource, error) {
	inactive := false
	return s.UpdateResource(ctx, UpdateResourceInput{ResourceID: resourceID, Active: &inactive})
}

// GetResource returns resource.
func (s *Service) GetResource(ctx context.Context, resourceID string) (domain.Resource, error) {
	return s.repo.GetResource(ctx, strings.TrimSpace(resourceID))
}

// ListResources lists resources.
func (s *Service) ListResources(ctx context.Context, includeInactive bool) ([]domain.Resource, error) {
	return s.repo.ListResources(ctx, includeInactive)
}

// ListProjectActivity returns the newest audit events for a project.
func (s *Service) ListProjectActivity(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListChangeEvents(ctx, ChangeEventFilter{ProjectID: projectID, Limit: limit})
}

// ListTaskActivity returns the newest audit events for one task.
func (s *Service) ListTaskActivity(ctx context.Context, taskRef string, limit int) ([]domain.ChangeEvent, error) {
	task, err := s.GetTask(ctx, taskRef)
	if err != nil {
		return nil, err
	}
	return s.repo.ListChangeEvents(ctx, ChangeEventFilter{
		EntityType: domain.EntityTask,
		EntityID:   task.ID,
		Limit:      limit,
	})
}

// AddTaskComment appends a comment to a task's thread, attributed to the context actor.
func (s *Service) AddTaskComment(ctx context.Context, taskRef, body string) (domain.Comment, error) {
	task, err := s.GetTask(ctx, taskRef)
	if err != nil {
		return domain.Comment{}, err
	}
	if task.DeletedAt != nil {
		return domain.Comment{}, domain.ErrTaskDeleted
	}
	comment, err := domain.NewComment(domain.CommentInput{
		ID:        s.idGen(),
		TaskID:    task.ID,
		ProjectID: task.ProjectID,
		Body:      body,
		Actor:     ActorLabel(ctx),
	}, s.clock())
	if err != nil {
		return domain.Comment{}, err
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return domain.Comment{}, err
	}
	s.logger.Debug("task comment added", "task_id", task.ID, "comment_id", comment.ID, "actor", comment.Actor)
	return comment, nil
}

// ListTaskComments returns a task's thread, newest first.
func (s *Service) ListTaskComments(ctx context.Context, taskRef string, limit int) ([]domain.Comment, error) {
	task, err := s.GetTask(ctx, taskRef)
	if err != nil {
		return nil, err
	}
	return s.repo.ListComments(ctx, CommentFilter{TaskID: task.ID, Limit: limit})
}

// DeleteTaskComment removes one comment from a task's thread.
func (s *Service) DeleteTaskComment(ctx context.Context, taskRef, commentID string) error {
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return domain.ErrInvalidID
	}
	task, err := s.GetTask(ctx, taskRef)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteComment(ctx, task.ID, commentID, s.clock()); err != nil {
		return err
	}
	s.logger.Debug("task comment deleted", "task_id", task.ID, "comment_id", commentID)
	return nil
}

// deadlineFor derives a deadline from expected start and estimate when none is given.
func (s *Service) deadlineFor(expectedStart *time.Time, estimateDays *float64, deadline *time.Time) (*time.Time, error) {
	if deadline != nil || !s.deriveDeadline || expectedStart == nil || estimateDays == nil || *estimateDays <= 0 {
		return deadline, nil
	}
	if math.IsInf(*estimateDays, 0) || math.IsNaN(*estimateDays) {
		return nil, domain.ErrInvalidEstimate
	}
	derived, err := s.calendar.AddWorkingDays(*expectedStart, int(math.Ceil(*estimateDays)))
	if err != nil {
		return nil, fmt.Errorf("derive deadline: %w", err)
	}
	return &derived, nil
}

func (s *Service) ensureAssignable(ctx context.Context, resourceID string) error {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil
	}
	resource, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("load resource: %w", err)
	}
	if !resource.Active {
		return ErrResourceInactive
	}
	return nil
}

func (s *Service) ensureCodeAvailable(ctx context.Context, code, exceptTaskID string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.ErrInvalidTaskCode
	}
	existing, err := s.repo.GetTaskByCode(ctx, code)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == exceptTaskID:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrDuplicateTaskCode, code)
	}
}
