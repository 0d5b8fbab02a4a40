package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/qctl/internal/app"
	"github.com/hylla/qctl/internal/domain"
)

// AppServiceAdapter maps app-layer services into transport-facing contracts.
type AppServiceAdapter struct {
	service *app.Service
}

var _ Service = (*AppServiceAdapter)(nil)

// NewAppServiceAdapter constructs one adapter backed by app.Service.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// CountWorkingDays counts working days in [start, end).
func (a *AppServiceAdapter) CountWorkingDays(_ context.Context, in CountWorkingDaysRequest) (WorkingDaysCount, error) {
	if a == nil || a.service == nil {
		return WorkingDaysCount{}, errAdapterUnavailable
	}
	start, err := parseRequiredDay("start", in.Start)
	if err != nil {
		return WorkingDaysCount{}, err
	}
	end, err := parseRequiredDay("end", in.End)
	if err != nil {
		return WorkingDaysCount{}, err
	}
	n, err := a.service.CountWorkingDays(start, end)
	if err != nil {
		return WorkingDaysCount{}, mapAppError("count working days", err)
	}
	return WorkingDaysCount{
		Start:       domain.FormatCalendarDay(start),
		End:         domain.FormatCalendarDay(end),
		WorkingDays: n,
	}, nil
}

// AddWorkingDays offsets a calendar day by a signed number of working days.
func (a *AppServiceAdapter) AddWorkingDays(_ context.Context, in AddWorkingDaysRequest) (WorkingDaysAdd, error) {
	if a == nil || a.service == nil {
		return WorkingDaysAdd{}, errAdapterUnavailable
	}
	date, err := parseRequiredDay("date", in.Date)
	if err != nil {
		return WorkingDaysAdd{}, err
	}
	result, err := a.service.AddWorkingDays(date, in.Days)
	if err != nil {
		return WorkingDaysAdd{}, mapAppError("add working days", err)
	}
	return WorkingDaysAdd{
		Date:   domain.FormatCalendarDay(date),
		Days:   in.Days,
		Result: domain.FormatCalendarDay(result),
	}, nil
}

// CheckWorkingDay reports whether one calendar day is a working day.
func (a *AppServiceAdapter) CheckWorkingDay(_ context.Context, raw string) (WorkingDayCheck, error) {
	date, err := parseRequiredDay("date", raw)
	if err != nil {
		return WorkingDayCheck{}, err
	}
	return WorkingDayCheck{
		Date:       domain.FormatCalendarDay(date),
		Weekday:    date.Weekday().String(),
		WorkingDay: domain.IsWorkingDay(date),
	}, nil
}

// ComputeTimeline derives timeline metrics from raw dates.
//
// Unparseable dates are reported in InvalidFields rather than failing the call. A span beyond the
// calendar guard yields the partial result with a warning.
func (a *AppServiceAdapter) ComputeTimeline(_ context.Context, in TimelineRequest) (TimelineResponse, error) {
	if a == nil || a.service == nil {
		return TimelineResponse{}, errAdapterUnavailable
	}
	rec, invalid := domain.ParseTimelineRecord(in)
	result, err := a.service.ComputeTimeline(rec)
	out := TimelineResponse{TimelineResult: result, InvalidFields: invalid}
	if err != nil {
		if !errors.Is(err, domain.ErrRangeTooLarge) {
			return TimelineResponse{}, mapAppError("compute timeline", err)
		}
		out.Warning = err.Error()
	}
	return out, nil
}

// ListProjects lists projects, optionally including archived ones.
func (a *AppServiceAdapter) ListProjects(ctx context.Context, includeArchived bool) ([]Project, error) {
	if a == nil || a.service == nil {
		return nil, errAdapterUnavailable
	}
	projects, err := a.service.ListProjects(ctx, includeArchived)
	if err != nil {
		return nil, mapAppError("list projects", err)
	}
	out := make([]Project, 0, len(projects))
	for _, project := range projects {
		out = append(out, projectFromDomain(project))
	}
	return out, nil
}

// CreateProject creates one project.
func (a *AppServiceAdapter) CreateProject(ctx context.Context, in CreateProjectRequest) (Project, error) {
	if a == nil || a.service == nil {
		return Project{}, errAdapterUnavailable
	}
	project, err := a.service.CreateProject(ctx, in.Name, in.Description)
	if err != nil {
		return Project{}, mapAppError("create project", err)
	}
	return projectFromDomain(project), nil
}

// GetProject resolves one project by id or slug.
func (a *AppServiceAdapter) GetProject(ctx context.Context, ref string) (Project, error) {
	if a == nil || a.service == nil {
		return Project{}, errAdapterUnavailable
	}
	project, err := a.service.ResolveProject(ctx, ref)
	if err != nil {
		return Project{}, mapAppError("get project", err)
	}
	return projectFromDomain(project), nil
}

// ProjectHealth aggregates schedule health for one project resolved by id or slug.
func (a *AppServiceAdapter) ProjectHealth(ctx context.Context, ref string) (app.ProjectHealth, error) {
	if a == nil || a.service == nil {
		return app.ProjectHealth{}, errAdapterUnavailable
	}
	project, err := a.service.ResolveProject(ctx, ref)
	if err != nil {
		return app.ProjectHealth{}, mapAppError("project health", err)
	}
	health, err := a.service.ProjectHealth(ctx, project.ID)
	if err != nil {
		return app.ProjectHealth{}, mapAppError("project health", err)
	}
	return health, nil
}

// ListProjectActivity lists recent audit entries for one project.
func (a *AppServiceAdapter) ListProjectActivity(ctx context.Context, ref string, limit int) ([]ChangeEvent, error) {
	if a == nil || a.service == nil {
		return nil, errAdapterUnavailable
	}
	project, err := a.service.ResolveProject(ctx, ref)
	if err != nil {
		return nil, mapAppError("list project activity", err)
	}
	events, err := a.service.ListProjectActivity(ctx, project.ID, limit)
	if err != nil {
		return nil, mapAppError("list project activity", err)
	}
	return changeEventsFromDomain(events), nil
}

// ListTasks lists tasks with metrics.
func (a *AppServiceAdapter) ListTasks(ctx context.Context, in ListTasksRequest) ([]Task, error) {
	if a == nil || a.service == nil {
		return nil, errAdapterUnavailable
	}
	filter := app.TaskFilter{
		ResourceID:     strings.TrimSpace(in.ResourceID),
		Search:         strings.TrimSpace(in.Search),
		IncludeDeleted: in.IncludeDeleted,
	}
	if ref := strings.TrimSpace(in.ProjectID); ref != "" {
		project, err := a.service.ResolveProject(ctx, ref)
		if err != nil {
			return nil, mapAppError("list tasks", err)
		}
		filter.ProjectID = project.ID
	}
	for _, raw := range splitValues(in.Statuses) {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return nil, invalidRequest("status", fmt.Errorf("%w: %q", domain.ErrInvalidStatus, raw))
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	var health []domain.HealthStatus
	for _, raw := range splitValues(in.Health) {
		status, ok := domain.ParseHealthStatus(raw)
		if !ok {
			return nil, invalidRequest("health", fmt.Errorf("unknown health status %q", raw))
		}
		health = append(health, status)
	}
	items, err := a.service.ListTaskMetrics(ctx, filter, health...)
	if err != nil {
		return nil, mapAppError("list tasks", err)
	}
	out := make([]Task, 0, len(items))
	for _, item := range items {
		out = append(out, taskFromMetrics(item))
	}
	return out, nil
}

// CreateTask creates one task.
func (a *AppServiceAdapter) CreateTask(ctx context.Context, in CreateTaskRequest) (Task, error) {
	if a == nil || a.service == nil {
		return Task{}, errAdapterUnavailable
	}
	create := app.CreateTaskInput{
		Code:          in.Code,
		ResourceID:    strings.TrimSpace(in.ResourceID),
		Name:          in.Name,
		Description:   in.Description,
		Notes:         in.Notes,
		EstimateDays:  in.EstimateDays,
		EstimateHours: in.EstimateHours,
		ActualHours:   in.ActualHours,
		Tags:          in.Tags,
	}
	project, err := a.service.ResolveProject(ctx, in.ProjectID)
	if err != nil {
		return Task{}, mapAppError("create task", err)
	}
	create.ProjectID = project.ID
	if strings.TrimSpace(in.Status) != "" {
		status, ok := domain.ParseStatus(in.Status)
		if !ok {
			return Task{}, invalidRequest("status", domain.ErrInvalidStatus)
		}
		create.Status = status
	}
	if strings.TrimSpace(in.Priority) != "" {
		priority, ok := domain.ParsePriority(in.Priority)
		if !ok {
			return Task{}, invalidRequest("priority", domain.ErrInvalidPriority)
		}
		create.Priority = priority
	}
	dates := []struct {
		field string
		raw   string
		dst   **time.Time
	}{
		{"expected_start_date", in.ExpectedStartDate, &create.ExpectedStartDate},
		{"actual_start_date", in.ActualStartDate, &create.ActualStartDate},
		{"deadline", in.Deadline, &create.Deadline},
		{"completed_date", in.CompletedDate, &create.CompletedDate},
	}
	for _, d := range dates {
		parsed, err := parseOptionalDay(d.field, d.raw)
		if err != nil {
			return Task{}, err
		}
		*d.dst = parsed
	}

	task, err := a.service.CreateTask(ctx, create)
	if err != nil {
		return Task{}, mapAppError("create task", err)
	}
	return taskFromMetrics(a.service.TaskMetrics(task)), nil
}

// GetTask loads one task by id or code.
func (a *AppServiceAdapter) GetTask(ctx context.Context, ref string) (Task, error) {
	if a == nil || a.service == nil {
		return Task{}, errAdapterUnavailable
	}
	item, err := a.service.GetTaskMetrics(ctx, ref)
	if err != nil {
		return Task{}, mapAppError("get task", err)
	}
	return taskFromMetrics(item), nil
}

// UpdateTask applies a partial update and optional status transition.
func (a *AppServiceAdapter) UpdateTask(ctx context.Context, in UpdateTaskRequest) (Task, error) {
	if a == nil || a.service == nil {
		return Task{}, errAdapterUnavailable
	}
	update := app.UpdateTaskInput{
		TaskID:        in.TaskID,
		ResourceID:    in.ResourceID,
		Name:          in.Name,
		Description:   in.Description,
		Notes:         in.Notes,
		EstimateDays:  in.EstimateDays,
		EstimateHours: in.EstimateHours,
		ActualHours:   in.ActualHours,
		Tags:          in.Tags,
		Clear:         append([]string(nil), in.Clear...),
	}
	if in.Status != nil {
		status, ok := domain.ParseStatus(*in.Status)
		if !ok {
			return Task{}, invalidRequest("status", fmt.Errorf("%w: %q", domain.ErrInvalidStatus, *in.Status))
		}
		update.Status = &status
	}
	if in.Priority != nil {
		priority, ok := domain.ParsePriority(*in.Priority)
		if !ok {
			return Task{}, invalidRequest("priority", fmt.Errorf("%w: %q", domain.ErrInvalidPriority, *in.Priority))
		}
		update.Priority = &priority
	}
	dates := []struct {
		field string
		raw   *string
		dst   **time.Time
	}{
		{app.ClearExpectedStartDate, in.ExpectedStartDate, &update.ExpectedStartDate},
		{app.ClearActualStartDate, in.ActualStartDate, &update.ActualStartDate},
		{app.ClearDeadline, in.Deadline, &update.Deadline},
		{app.ClearCompletedDate, in.CompletedDate, &update.CompletedDate},
	}
	for _, d := range dates {
		if d.raw == nil {
			continue
		}
		if strings.TrimSpace(*d.raw) == "" {
			update.Clear = append(update.Clear, d.field)
			continue
		}
		parsed, err := parseRequiredDay(d.field, *d.raw)
		if err != nil {
			return Task{}, err
		}
		*d.dst = &parsed
	}

	task, err := a.service.UpdateTask(ctx, update)
	if err != nil {
		return Task{}, mapAppError("update task", err)
	}
	return taskFromMetrics(a.service.TaskMetrics(task)), nil
}

// DeleteTask soft-deletes one task.
func (a *AppServiceAdapter) DeleteTask(ctx context.Context, ref string) (Task, error) {
	if a == nil || a.service == nil {
		return Task{}, errAdapterUnavailable
	}
	task, err := a.service.DeleteTask(ctx, ref)
	if err != nil {
		return Task{}, mapAppError("delete task", err)
	}
	return taskFromMetrics(a.service.TaskMetrics(task)), nil
}

// ListTaskActivity lists recent audit entries for one task.
func (a *AppServiceAdapter) ListTaskActivity(ctx context.Context, ref string, limit int) ([]ChangeEvent, error) {
	if a == nil || a.service == nil {
		return nil, errAdapterUnavailable
	}
	events, err := a.service.ListTaskActivity(ctx, ref, limit)
	if err != nil {
		return nil, mapAppError("list task activity", err)
	}
	return changeEventsFromDomain(events), nil
}

// ListTaskComments returns a task's comment thread, newest first.
func (a *AppServiceAdapter) ListTaskComments(ctx context.Context, ref string, limit int) ([]Comment, error) {
	if a == nil || a.service == nil {
		return nil, errAdapterUnavailable
	}
	comments, err := a.service.ListTaskComments(ctx, ref, limit)
	if err != nil {
		return nil, mapAppError("list task comments", err)
	}
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentFromDomain(c))
	}
	return out, nil
}

// AddTaskComment appends one comment to a task's thread.
func (a *AppServiceAdapter) AddTaskComment(ctx context.Context, in AddTaskCommentRequest) (Comment, error) {
	if a == nil || a.service == nil {
		return Comment{}, errAdapterUnavailable
	}
	c, err := a.service.AddTaskComment(ctx, in.TaskID, in.Body)
	if err != nil {
		return Comment{}, mapAppError("add task comment", err)
	}
	return commentFromDomain(c), nil
}

// DeleteTaskComment removes one comment from a task's thread.
func (a *AppServiceAdapter) DeleteTaskComment(ctx context.Context, taskRef, commentID string) error {
	if a == nil || a.service == nil {
		return errAdapterUnavailable
	}
	return mapAppError("delete task comment", a.service.DeleteTaskComment(ctx, taskRef, commentID))
}

func commentFromDomain(c domain.Comment) Comment {
	return Comment{
		ID:        c.ID,
		TaskID:    c.TaskID,
		ProjectID: c.ProjectID,
		Body:      c.Body,
		Actor:     c.Actor,
		CreatedAt: c.CreatedAt,
	}
}

// ListResources lists resources with their utilization.
func (a *AppServiceAdapter) ListResources(ctx context.Context, includeInactive bool) ([]Resource, error) {
	if a == nil || a.service == nil {
		return nil, errAdapterUnavailable
	}
	items, err := a.service.ListResourceUtilization(ctx, includeInactive)
	if err != nil {
		return nil, mapAppError("list resources", err)
	}
	out := make([]Resource, 0, len(items))
	for _, item := range items {
		out = append(out, resourceFromDomain(item.Resource, &item.Utilization))
	}
	return out, nil
}

// CreateResource creates one resource.
func (a *AppServiceAdapter) CreateResource(ctx context.Context, in CreateResourceRequest) (Resource, error) {
	if a == nil || a.service == nil {
		return Resource{}, errAdapterUnavailable
	}
	resource, err := a.service.CreateResource(ctx, app.CreateResourceInput{
		Name:              in.Name,
		Email:             in.Email,
		Role:              in.Role,
		WeeklyCapacityHrs: in.WeeklyCapacityHrs,
	})
	if err != nil {
		return Resource{}, mapAppError("create resource", err)
	}
	return resourceFromDomain(resource, nil), nil
}

// GetResource loads one resource with its utilization.
func (a *AppServiceAdapter) GetResource(ctx context.Context, resourceID string) (Resource, error) {
	if a == nil || a.service == nil {
		return Resource{}, errAdapterUnavailable
	}
	item, err := a.service.ResourceUtilization(ctx, resourceID)
	if err != nil {
		return Resource{}, mapAppError("get resource", err)
	}
	return resourceFromDomain(item.Resource, &item.Utilization), nil
}

// UpdateResource applies a partial resource update.
func (a *AppServiceAdapter) UpdateResource(ctx context.Context, in UpdateResourceRequest) (Resource, error) {
	if a == nil || a.service == nil {
		return Resource{}, errAdapterUnavailable
	}
	resource, err := a.service.UpdateResource(ctx, app.UpdateResourceInput{
		ResourceID:        in.ResourceID,
		Name:              in.Name,
		Email:             in.Email,
		Role:              in.Role,
		WeeklyCapacityHrs: in.WeeklyCapacityHrs,
		Active:            in.Active,
	})
	if err != nil {
		return Resource{}, mapAppError("update resource", err)
	}
	return resourceFromDomain(resource, nil), nil
}

// Dashboard returns portfolio-wide aggregates.
func (a *AppServiceAdapter) Dashboard(ctx context.Context) (app.Dashboard, error) {
	if a == nil || a.service == nil {
		return app.Dashboard{}, errAdapterUnavailable
	}
	dashboard, err := a.service.Dashboard(ctx)
	if err != nil {
		return app.Dashboard{}, mapAppError("dashboard", err)
	}
	return dashboard, nil
}

var errAdapterUnavailable = errors.New("app service adapter is not configured")

// mapAppError maps app and domain errors into transport-level error classes.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, domain.ErrRangeTooLarge):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrRangeTooLarge, err))
	case errors.Is(err, app.ErrDuplicateTaskCode),
		errors.Is(err, app.ErrProjectArchived),
		errors.Is(err, app.ErrResourceInactive),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrTaskDeleted),
		errors.Is(err, domain.ErrCompletedDateReq),
		errors.Is(err, domain.ErrActualHoursReq):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidSlug),
		errors.Is(err, domain.ErrInvalidTaskCode),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidEstimate),
		errors.Is(err, domain.ErrInvalidHours),
		errors.Is(err, domain.ErrInvalidCapacity),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidMaxSpanDays),
		errors.Is(err, domain.ErrEmptyComment),
		errors.Is(err, domain.ErrCommentTooLong),
		errors.Is(err, app.ErrInvalidClearField),
		errors.Is(err, app.ErrInvalidSnapshot):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}

// invalidRequest wraps one field-level validation failure.
func invalidRequest(field string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidRequest, field, err)
}

// parseRequiredDay parses one mandatory calendar-day value.
func parseRequiredDay(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, invalidRequest(field, errors.New("value is required"))
	}
	day, err := domain.ParseCalendarDay(raw)
	if err != nil {
		return time.Time{}, invalidRequest(field, err)
	}
	return day, nil
}

// parseOptionalDay parses one calendar-day value where blank means unset.
func parseOptionalDay(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	day, err := parseRequiredDay(field, raw)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// splitValues flattens repeated and comma-separated filter values.
func splitValues(values []string) []string {
	var out []string
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func projectFromDomain(p domain.Project) Project {
	return Project{
		ID:          p.ID,
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		ArchivedAt:  p.ArchivedAt,
	}
}

func taskFromMetrics(item app.TaskWithMetrics) Task {
	t := item.Task
	return Task{
		ID:                t.ID,
		Code:              t.Code,
		ProjectID:         t.ProjectID,
		ResourceID:        t.ResourceID,
		Name:              t.Name,
		Description:       t.Description,
		Notes:             t.Notes,
		Status:            t.Status,
		Priority:          t.Priority,
		EstimateDays:      t.EstimateDays,
		EstimateHours:     t.EstimateHours,
		ActualHours:       t.ActualHours,
		ExpectedStartDate: formatDay(t.ExpectedStartDate),
		ActualStartDate:   formatDay(t.ActualStartDate),
		Deadline:          formatDay(t.Deadline),
		CompletedDate:     formatDay(t.CompletedDate),
		Tags:              t.Tags,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		DeletedAt:         t.DeletedAt,
		Timeline:          item.Timeline,
		Warning:           item.Warning,
	}
}

func resourceFromDomain(r domain.Resource, utilization *domain.Utilization) Resource {
	return Resource{
		ID:                r.ID,
		Name:              r.Name,
		Email:             r.Email,
		Role:              r.Role,
		WeeklyCapacityHrs: r.WeeklyCapacityHrs,
		Active:            r.Active,
		Utilization:       utilization,
	}
}

func changeEventsFromDomain(events []domain.ChangeEvent) []ChangeEvent {
	out := make([]ChangeEvent, 0, len(events))
	for _, event := range events {
		out = append(out, ChangeEvent{
			ID:            event.ID,
			ProjectID:     event.ProjectID,
			EntityType:    string(event.EntityType),
			EntityID:      event.EntityID,
			Operation:     string(event.Operation),
			Actor:         event.Actor,
			ChangedFields: event.ChangedFields,
			Metadata:      event.Metadata,
			OccurredAt:    event.OccurredAt,
		})
	}
	return out
}

func formatDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return domain.FormatCalendarDay(*t)
}
