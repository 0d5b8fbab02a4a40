package app

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/hylla/qctl/internal/domain"
)

// TaskWithMetrics pairs a task with its derived timeline metrics.
type TaskWithMetrics struct {
	Task     domain.Task
	Timeline domain.TimelineResult
	// Warning is set when a metric could not be derived, e.g. a span beyond the calendar guard.
	Warning string
}

// ProjectHealth summarizes schedule health and effort for one project.
type ProjectHealth struct {
	ProjectID                 string                      `json:"project_id"`
	ProjectName               string                      `json:"project_name"`
	TotalTasks                int                         `json:"total_tasks"`
	StatusCounts              map[domain.Status]int       `json:"status_counts"`
	HealthCounts              map[domain.HealthStatus]int `json:"health_counts"`
	Unscheduled               int                         `json:"unscheduled"`
	CompletionRatePct         float64                     `json:"completion_rate_pct"`
	EstimatedHours            float64                     `json:"estimated_hours"`
	ActualHours               float64                     `json:"actual_hours"`
	HoursVariance             float64                     `json:"hours_variance"`
	NextDeadline              *time.Time                  `json:"next_deadline,omitempty"`
	WorkingDaysToNextDeadline *int                        `json:"working_days_to_next_deadline,omitempty"`
	CalculatedAt              time.Time                   `json:"calculated_at"`
}

// Dashboard holds portfolio-wide task, hour and resource aggregates.
type Dashboard struct {
	TotalTasks               int                         `json:"total_tasks"`
	TasksDone                int                         `json:"tasks_done"`
	TasksInProgress          int                         `json:"tasks_in_progress"`
	TasksBacklog             int                         `json:"tasks_backlog"`
	TasksCancelled           int                         `json:"tasks_cancelled"`
	OverallCompletionRatePct float64                     `json:"overall_completion_rate_pct"`
	TotalEstimatedHrs        float64                     `json:"total_estimated_hrs"`
	TotalActualHrs           float64                     `json:"total_actual_hrs"`
	TotalHoursVariance       float64                     `json:"total_hours_variance"`
	TotalProjects            int                         `json:"total_projects"`
	ProjectsWithTasks        int                         `json:"projects_with_tasks"`
	ActiveResources          int                         `json:"active_resources"`
	OverallocatedResources   int                         `json:"overallocated_resources"`
	HealthCounts             map[domain.HealthStatus]int `json:"health_counts"`
	CalculatedAt             time.Time                   `json:"calculated_at"`
}

// ResourceWithUtilization pairs a resource with its current workload.
type ResourceWithUtilization struct {
	Resource    domain.Resource
	Utilization domain.Utilization
}

// CountWorkingDays counts working days in [start, end) with the configured calendar.
func (s *Service) CountWorkingDays(start, end time.Time) (int, error) {
	n, err := s.calendar.CountWorkingDays(start, end)
	if err != nil {
		s.logger.Warn("count working days rejected", "start", domain.FormatCalendarDay(start), "end", domain.FormatCalendarDay(end), "err", err)
	}
	return n, err
}

// AddWorkingDays steps n working days from t with the configured calendar.
func (s *Service) AddWorkingDays(t time.Time, n int) (time.Time, error) {
	out, err := s.calendar.AddWorkingDays(t, n)
	if err != nil {
		s.logger.Warn("add working days rejected", "from", domain.FormatCalendarDay(t), "n", n, "err", err)
	}
	return out, err
}

// ComputeTimeline derives timeline metrics as of the service clock.
// Metrics that hit the range guard stay nil and the guard error is returned with the partial result.
func (s *Service) ComputeTimeline(rec domain.TimelineRecord) (domain.TimelineResult, error) {
	out, err := s.calendar.ComputeTaskTimeline(rec, s.clock())
	if err != nil {
		s.logger.Warn("timeline partially computed", "err", err)
	}
	return out, err
}

// TaskMetrics computes metrics for one loaded task.
func (s *Service) TaskMetrics(task domain.Task) TaskWithMetrics {
	out := TaskWithMetrics{Task: task}
	timeline, err := s.calendar.ComputeTaskTimeline(task.Timeline(), s.clock())
	out.Timeline = timeline
	if err != nil {
		out.Warning = err.Error()
		s.logger.Warn("task metrics partially computed", "task_id", task.ID, "code", task.Code, "err", err)
	}
	return out
}

// GetTaskMetrics loads one task by id or code and computes its metrics.
func (s *Service) GetTaskMetrics(ctx context.Context, ref string) (TaskWithMetrics, error) {
	task, err := s.GetTask(ctx, ref)
	if err != nil {
		return TaskWithMetrics{}, err
	}
	return s.TaskMetrics(task), nil
}

// ListTaskMetrics lists tasks matching filter with metrics, optionally narrowed to health states.
func (s *Service) ListTaskMetrics(ctx context.Context, filter TaskFilter, health ...domain.HealthStatus) ([]TaskWithMetrics, error) {
	tasks, err := s.repo.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]TaskWithMetrics, 0, len(tasks))
	for _, task := range tasks {
		item := s.TaskMetrics(task)
		if len(health) > 0 && !matchesHealth(item.Timeline.HealthStatus, health) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// ProjectHealth aggregates status, health and hours across a project's live tasks.
func (s *Service) ProjectHealth(ctx context.Context, projectID string) (ProjectHealth, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return ProjectHealth{}, err
	}
	tasks, err := s.repo.ListTasks(ctx, TaskFilter{ProjectID: project.ID})
	if err != nil {
		return ProjectHealth{}, err
	}

	now := s.clock()
	out := ProjectHealth{
		ProjectID:    project.ID,
		ProjectName:  project.Name,
		TotalTasks:   len(tasks),
		StatusCounts: map[domain.Status]int{},
		HealthCounts: map[domain.HealthStatus]int{},
		CalculatedAt: now.UTC(),
	}
	for _, status := range domain.Statuses() {
		out.StatusCounts[status] = 0
	}
	for _, health := range domain.HealthStatuses() {
		out.HealthCounts[health] = 0
	}

	for _, task := range tasks {
		out.StatusCounts[task.Status]++
		out.EstimatedHours += task.EstimateHours
		out.ActualHours += task.ActualHours
		if health := domain.TaskHealth(task.Timeline(), now); health != nil {
			out.HealthCounts[*health]++
		} else {
			out.Unscheduled++
		}
		if task.IsOpen() && task.Deadline != nil {
			if out.NextDeadline == nil || task.Deadline.Before(*out.NextDeadline) {
				deadline := *task.Deadline
				out.NextDeadline = &deadline
			}
		}
	}
	out.HoursVariance = roundHundredths(out.ActualHours - out.EstimatedHours)
	out.CompletionRatePct = completionRate(out.StatusCounts[domain.StatusDone], out.TotalTasks)

	if out.NextDeadline != nil {
		days, err := s.calendar.CountWorkingDays(now, *out.NextDeadline)
		if err != nil {
			s.logger.Warn("next deadline distance skipped", "project_id", project.ID, "err", err)
		} else {
			out.WorkingDaysToNextDeadline = &days
		}
	}
	return out, nil
}

// ResourceUtilization computes workload for one resource.
func (s *Service) ResourceUtilization(ctx context.Context, resourceID string) (ResourceWithUtilization, error) {
	resource, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return ResourceWithUtilization{}, err
	}
	tasks, err := s.repo.ListTasks(ctx, TaskFilter{ResourceID: resource.ID})
	if err != nil {
		return ResourceWithUtilization{}, err
	}
	return ResourceWithUtilization{
		Resource:    resource,
		Utilization: domain.ComputeUtilization(resource, tasks),
	}, nil
}

// ListResourceUtilization computes workload for every listed resource.
func (s *Service) ListResourceUtilization(ctx context.Context, includeInactive bool) ([]ResourceWithUtilization, error) {
	resources, err := s.repo.ListResources(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	tasks, err := s.repo.ListTasks(ctx, TaskFilter{Statuses: []domain.Status{domain.StatusBacklog, domain.StatusInProgress}})
	if err != nil {
		return nil, err
	}
	out := make([]ResourceWithUtilization, 0, len(resources))
	for _, resource := range resources {
		out = append(out, ResourceWithUtilization{
			Resource:    resource,
			Utilization: domain.ComputeUtilization(resource, tasks),
		})
	}
	return out, nil
}

// Dashboard aggregates every live task, project and active resource.
//
// Tasks in archived projects are left out so task totals agree with TotalProjects.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	projects, err := s.repo.ListProjects(ctx, false)
	if err != nil {
		return Dashboard{}, err
	}
	tasks, err := s.repo.ListTasks(ctx, TaskFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	live := make(map[string]struct{}, len(projects))
	for _, project := range projects {
		live[project.ID] = struct{}{}
	}
	tasks = slices.DeleteFunc(tasks, func(task domain.Task) bool {
		_, ok := live[task.ProjectID]
		return !ok
	})
	utilization, err := s.ListResourceUtilization(ctx, false)
	if err != nil {
		return Dashboard{}, err
	}

	now := s.clock()
	out := Dashboard{
		TotalTasks:      len(tasks),
		TotalProjects:   len(projects),
		ActiveResources: len(utilization),
		HealthCounts:    map[domain.HealthStatus]int{},
		CalculatedAt:    now.UTC(),
	}
	for _, health := range domain.HealthStatuses() {
		out.HealthCounts[health] = 0
	}
	withTasks := map[string]struct{}{}
	for _, task := range tasks {
		withTasks[task.ProjectID] = struct{}{}
		switch task.Status {
		case domain.StatusDone:
			out.TasksDone++
		case domain.StatusInProgress:
			out.TasksInProgress++
		case domain.StatusBacklog:
			out.TasksBacklog++
		case domain.StatusCancelled:
			out.TasksCancelled++
		}
		out.TotalEstimatedHrs += task.EstimateHours
		out.TotalActualHrs += task.ActualHours
		if health := domain.TaskHealth(task.Timeline(), now); health != nil {
			out.HealthCounts[*health]++
		}
	}
	out.ProjectsWithTasks = len(withTasks)
	out.TotalHoursVariance = roundHundredths(out.TotalActualHrs - out.TotalEstimatedHrs)
	out.OverallCompletionRatePct = completionRate(out.TasksDone, out.TotalTasks)
	for _, item := range utilization {
		if item.Utilization.Overallocated {
			out.OverallocatedResources++
		}
	}
	return out, nil
}

func matchesHealth(status *domain.HealthStatus, want []domain.HealthStatus) bool {
	if status == nil {
		return false
	}
	return slices.Contains(want, *status)
}

// completionRate returns done/total as a percentage rounded to one decimal.
func completionRate(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(done)*1000/float64(total)) / 10
}

func roundHundredths(v float64) float64 {
	return math.Round(v*100) / 100
}
