package common

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/hylla/qctl/internal/adapters/storage/sqlite"
	"github.com/hylla/qctl/internal/app"
	"github.com/hylla/qctl/internal/domain"
)

// newAdapterFixture builds one adapter over an in-memory store with a Monday clock.
func newAdapterFixture(t *testing.T, cfg app.ServiceConfig) *AppServiceAdapter {
	t.Helper()

	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	nextID := 0
	idGen := func() string {
		nextID++
		return fmt.Sprintf("id-%03d", nextID)
	}
	clock := func() time.Time {
		return time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	}
	return NewAppServiceAdapter(app.NewService(repo, idGen, clock, cfg))
}

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestAppServiceAdapterWorkingDays(t *testing.T) {
	adapter := newAdapterFixture(t, app.ServiceConfig{})
	ctx := context.Background()

	count, err := adapter.CountWorkingDays(ctx, CountWorkingDaysRequest{Start: "2024-03-08", End: "2024-03-11"})
	if err != nil {
		t.Fatalf("CountWorkingDays() error = %v", err)
	}
	if count.WorkingDays != 1 {
		t.Fatalf("expected only Sunday counted Fri->Mon, got %d", count.WorkingDays)
	}

	added, err := adapter.AddWorkingDays(ctx, AddWorkingDaysRequest{Date: "2024-03-08", Days: 1})
	if err != nil {
		t.Fatalf("AddWorkingDays() error = %v", err)
	}
	if added.Result != "2024-03-10" {
		t.Fatalf("expected Sunday after Friday, got %q", added.Result)
	}

	check, err := adapter.CheckWorkingDay(ctx, "2024-03-09")
	if err != nil {
		t.Fatalf("CheckWorkingDay() error = %v", err)
	}
	if check.WorkingDay || check.Weekday != "Saturday" {
		t.Fatalf("unexpected check %#v", check)
	}

	if _, err := adapter.CountWorkingDays(ctx, CountWorkingDaysRequest{Start: "2024-02-30", End: "2024-03-01"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for impossible date, got %v", err)
	}
	if _, err := adapter.AddWorkingDays(ctx, AddWorkingDaysRequest{Days: 2}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for missing date, got %v", err)
	}
}

func TestAppServiceAdapterComputeTimeline(t *testing.T) {
	adapter := newAdapterFixture(t, app.ServiceConfig{})

	resp, err := adapter.ComputeTimeline(context.Background(), TimelineRequest{
		ExpectedStartDate: "2024-03-04",
		ActualStartDate:   "2024-03-05",
		Deadline:          "2024-03-08",
		CompletedDate:     "not-a-date",
	})
	if err != nil {
		t.Fatalf("ComputeTimeline() error = %v", err)
	}
	if resp.StartVariance == nil || *resp.StartVariance != 1 {
		t.Fatalf("expected start variance 1, got %v", resp.StartVariance)
	}
	if resp.CompletionVariance != nil {
		t.Fatalf("expected nil completion variance, got %v", *resp.CompletionVariance)
	}
	if resp.HealthStatus == nil || *resp.HealthStatus != domain.HealthOverdue {
		t.Fatalf("expected overdue health, got %v", resp.HealthStatus)
	}
	if !slices.Equal(resp.InvalidFields, []string{"completed_date"}) {
		t.Fatalf("unexpected invalid fields %#v", resp.InvalidFields)
	}
}

func TestAppServiceAdapterComputeTimelineRangeGuardWarns(t *testing.T) {
	calendar, err := domain.NewCalendar(30)
	if err != nil {
		t.Fatalf("NewCalendar() error = %v", err)
	}
	adapter := newAdapterFixture(t, app.ServiceConfig{Calendar: calendar})

	resp, err := adapter.ComputeTimeline(context.Background(), TimelineRequest{
		ExpectedStartDate: "2024-01-01",
		ActualStartDate:   "2024-03-04",
		Deadline:          "2024-03-20",
	})
	if err != nil {
		t.Fatalf("ComputeTimeline() error = %v", err)
	}
	if resp.StartVariance != nil || resp.Warning == "" {
		t.Fatalf("expected guarded start variance with warning, got %#v", resp)
	}
	if resp.HealthStatus == nil || *resp.HealthStatus != domain.HealthAtRisk {
		t.Fatalf("expected at_risk health, got %v", resp.HealthStatus)
	}

	if _, err := adapter.CountWorkingDays(context.Background(), CountWorkingDaysRequest{Start: "2024-01-01", End: "2024-06-01"}); !errors.Is(err, ErrRangeTooLarge) {
		t.Fatalf("expected ErrRangeTooLarge, got %v", err)
	}
}

func TestAppServiceAdapterTaskLifecycle(t *testing.T) {
	adapter := newAdapterFixture(t, app.ServiceConfig{DeriveDeadline: true})
	ctx := context.Background()

	project, err := adapter.CreateProject(ctx, CreateProjectRequest{Name: "Launch Plan"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if project.Slug != "launch-plan" {
		t.Fatalf("unexpected slug %q", project.Slug)
	}
	resource, err := adapter.CreateResource(ctx, CreateResourceRequest{Name: "Ada", WeeklyCapacityHrs: 20})
	if err != nil {
		t.Fatalf("CreateResource() error = %v", err)
	}

	task, err := adapter.CreateTask(ctx, CreateTaskRequest{
		ProjectID:         "launch-plan",
		Code:              "TSK-100",
		ResourceID:        resource.ID,
		Name:              "Wire billing",
		Priority:          "high",
		EstimateDays:      floatPtr(3),
		EstimateHours:     24,
		ExpectedStartDate: "2024-03-04",
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.Deadline != "2024-03-07" || task.Priority != domain.PriorityHigh || task.Status != domain.StatusBacklog {
		t.Fatalf("unexpected created task %#v", task)
	}
	if task.Timeline.HealthStatus == nil || *task.Timeline.HealthStatus != domain.HealthOverdue {
		t.Fatalf("expected overdue task, got %v", task.Timeline.HealthStatus)
	}

	if _, err := adapter.CreateTask(ctx, CreateTaskRequest{ProjectID: project.ID, Code: "tsk-100", Name: "dup"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected duplicate code conflict, got %v", err)
	}

	started, err := adapter.UpdateTask(ctx, UpdateTaskRequest{
		TaskID:          "tsk-100",
		Status:          strPtr("in progress"),
		ActualStartDate: strPtr("2024-03-05"),
	})
	if err != nil {
		t.Fatalf("UpdateTask(start) error = %v", err)
	}
	if started.Status != domain.StatusInProgress || started.Timeline.StartVariance == nil || *started.Timeline.StartVariance != 1 {
		t.Fatalf("unexpected started task %#v", started)
	}

	done, err := adapter.UpdateTask(ctx, UpdateTaskRequest{
		TaskID:        task.ID,
		Status:        strPtr("done"),
		CompletedDate: strPtr("2024-03-08"),
		ActualHours:   floatPtr(26),
	})
	if err != nil {
		t.Fatalf("UpdateTask(done) error = %v", err)
	}
	if done.Timeline.CompletionVariance == nil || *done.Timeline.CompletionVariance != 1 {
		t.Fatalf("expected completion variance 1, got %v", done.Timeline.CompletionVariance)
	}
	if done.Timeline.ExecutionVariance == nil || *done.Timeline.ExecutionVariance != 0 {
		t.Fatalf("expected execution variance 0, got %v", done.Timeline.ExecutionVariance)
	}

	if _, err := adapter.UpdateTask(ctx, UpdateTaskRequest{TaskID: task.ID, Status: strPtr("backlog")}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected transition conflict, got %v", err)
	}
	if _, err := adapter.UpdateTask(ctx, UpdateTaskRequest{TaskID: task.ID, Status: strPtr("paused")}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := adapter.GetTask(ctx, "TSK-404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	health, err := adapter.ProjectHealth(ctx, "launch-plan")
	if err != nil {
		t.Fatalf("ProjectHealth() error = %v", err)
	}
	if health.TotalTasks != 1 || health.CompletionRatePct != 100 || health.HoursVariance != 2 {
		t.Fatalf("unexpected health %#v", health)
	}
}

func TestAppServiceAdapterUpdateTaskClearsBlankDates(t *testing.T) {
	adapter := newAdapterFixture(t, app.ServiceConfig{})
	ctx := context.Background()
	project, err := adapter.CreateProject(ctx, CreateProjectRequest{Name: "Clearing"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	task, err := adapter.CreateTask(ctx, CreateTaskRequest{
		ProjectID: project.ID,
		Code:      "TSK-7",
		Name:      "Clear me",
		Deadline:  "2024-03-20",
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.Timeline.HealthStatus == nil || *task.Timeline.HealthStatus != domain.HealthOnTrack {
		t.Fatalf("expected on_track task, got %v", task.Timeline.HealthStatus)
	}

	updated, err := adapter.UpdateTask(ctx, UpdateTaskRequest{TaskID: task.ID, Deadline: strPtr(" ")})
	if err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if updated.Deadline != "" || updated.Timeline.HealthStatus != nil {
		t.Fatalf("expected cleared deadline, got %#v", updated)
	}
	if _, err := adapter.UpdateTask(ctx, UpdateTaskRequest{TaskID: task.ID, Clear: []string{"bogus"}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid clear field, got %v", err)
	}
}

func TestAppServiceAdapterListTasksFilters(t *testing.T) {
	adapter := newAdapterFixture(t, app.ServiceConfig{})
	ctx := context.Background()
	project, err := adapter.CreateProject(ctx, CreateProjectRequest{Name: "Filters"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	for _, in := range []CreateTaskRequest{
		{Code: "TSK-1", Name: "Late", Deadline: "2024-03-01"},
		{Code: "TSK-2", Name: "Fine", Deadline: "2024-04-01", Status: "in-progress"},
		{Code: "TSK-3", Name: "Loose"},
	} {
		in.ProjectID = project.ID
		if _, err := adapter.CreateTask(ctx, in); err != nil {
			t.Fatalf("CreateTask(%s) error = %v", in.Code, err)
		}
	}

	overdue, err := adapter.ListTasks(ctx, ListTasksRequest{ProjectID: "filters", Health: []string{"overdue"}})
	if err != nil {
		t.Fatalf("ListTasks(health) error = %v", err)
	}
	if len(overdue) != 1 || overdue[0].Code != "TSK-1" {
		t.Fatalf("unexpected overdue tasks %#v", overdue)
	}

	open, err := adapter.ListTasks(ctx, ListTasksRequest{Statuses: []string{"backlog,in_progress"}})
	if err != nil {
		t.Fatalf("ListTasks(status) error = %v", err)
	}
	if len(open) != 3 {
		t.Fatalf("expected 3 open tasks, got %d", len(open))
	}

	if _, err := adapter.ListTasks(ctx, ListTasksRequest{Health: []string{"sideways"}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid health filter, got %v", err)
	}
}

func TestAppServiceAdapterActivityCarriesActor(t *testing.T) {
	adapter := newAdapterFixture(t, app.ServiceConfig{})
	ctx := app.WithMutationActor(context.Background(), app.MutationActor{ActorID: "ops", Source: "HTTP"})
	project, err := adapter.CreateProject(ctx, CreateProjectRequest{Name: "Audit"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	task, err := adapter.CreateTask(ctx, CreateTaskRequest{ProjectID: project.ID, Code: "TSK-9", Name: "Audited"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := adapter.DeleteTask(ctx, task.Code); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}

	events, err := adapter.ListTaskActivity(ctx, task.ID, 10)
	if err != nil {
		t.Fatalf("ListTaskActivity() error = %v", err)
	}
	if len(events) != 2 || events[0].Operation != "delete" || events[0].Actor != "http:ops" {
		t.Fatalf("unexpected task activity %#v", events)
	}
	projectEvents, err := adapter.ListProjectActivity(ctx, "audit", 0)
	if err != nil {
		t.Fatalf("ListProjectActivity() error = %v", err)
	}
	if len(projectEvents) != 3 {
		t.Fatalf("expected 3 project events, got %d", len(projectEvents))
	}
}

func TestAppServiceAdapterResources(t *testing.T) {
	adapter := newAdapterFixture(t, app.ServiceConfig{})
	ctx := context.Background()
	resource, err := adapter.CreateResource(ctx, CreateResourceRequest{Name: "Lin", Email: "LIN@example.com"})
	if err != nil {
		t.Fatalf("CreateResource() error = %v", err)
	}
	if resource.WeeklyCapacityHrs != 40 || resource.Email != "lin@example.com" {
		t.Fatalf("unexpected resource %#v", resource)
	}
	if _, err := adapter.CreateResource(ctx, CreateResourceRequest{Name: "Over", WeeklyCapacityHrs: 120}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid capacity, got %v", err)
	}

	inactive := false
	if _, err := adapter.UpdateResource(ctx, UpdateResourceRequest{ResourceID: resource.ID, Active: &inactive}); err != nil {
		t.Fatalf("UpdateResource() error = %v", err)
	}
	active, err := adapter.ListResources(ctx, false)
	if err != nil {
		t.Fatalf("ListResources() error = %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active resources, got %#v", active)
	}
	got, err := adapter.GetResource(ctx, resource.ID)
	if err != nil {
		t.Fatalf("GetResource() error = %v", err)
	}
	if got.Active || got.Utilization == nil || got.Utilization.OpenTasks != 0 {
		t.Fatalf("unexpected resource detail %#v", got)
	}
}

func TestAppServiceAdapterTaskComments(t *testing.T) {
	adapter := newAdapterFixture(t, app.ServiceConfig{})
	ctx := app.WithMutationActor(context.Background(), app.MutationActor{ActorID: "qa", Source: "http"})
	project, err := adapter.CreateProject(ctx, CreateProjectRequest{Name: "Threads"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	task, err := adapter.CreateTask(ctx, CreateTaskRequest{ProjectID: project.ID, Code: "TSK-77", Name: "Verify build"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	added, err := adapter.AddTaskComment(ctx, AddTaskCommentRequest{TaskID: "tsk-77", Body: "build is green"})
	if err != nil {
		t.Fatalf("AddTaskComment() error = %v", err)
	}
	if added.TaskID != task.ID || added.ProjectID != project.ID || added.Actor != "http:qa" || added.CreatedAt.IsZero() {
		t.Fatalf("unexpected comment %#v", added)
	}
	if _, err := adapter.AddTaskComment(ctx, AddTaskCommentRequest{TaskID: task.ID, Body: " "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for empty comment, got %v", err)
	}
	if _, err := adapter.AddTaskComment(ctx, AddTaskCommentRequest{TaskID: "TSK-0", Body: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found task, got %v", err)
	}

	thread, err := adapter.ListTaskComments(ctx, task.Code, 0)
	if err != nil {
		t.Fatalf("ListTaskComments() error = %v", err)
	}
	if len(thread) != 1 || thread[0].Body != "build is green" {
		t.Fatalf("unexpected thread %#v", thread)
	}

	if err := adapter.DeleteTaskComment(ctx, task.Code, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found comment, got %v", err)
	}
	if err := adapter.DeleteTaskComment(ctx, task.Code, added.ID); err != nil {
		t.Fatalf("DeleteTaskComment() error = %v", err)
	}
	thread, err = adapter.ListTaskComments(ctx, task.Code, 0)
	if err != nil {
		t.Fatalf("ListTaskComments() error = %v", err)
	}
	if len(thread) != 0 {
		t.Fatalf("expected empty thread, got %#v", thread)
	}
}

func TestMapAppError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", app.ErrNotFound, ErrNotFound},
		{"range", domain.ErrRangeTooLarge, ErrRangeTooLarge},
		{"archived", app.ErrProjectArchived, ErrConflict},
		{"completed date", domain.ErrCompletedDateReq, ErrConflict},
		{"name", domain.ErrInvalidName, ErrInvalidRequest},
		{"date", fmt.Errorf("wrap: %w", domain.ErrInvalidDate), ErrInvalidRequest},
		{"empty comment", domain.ErrEmptyComment, ErrInvalidRequest},
		{"deleted task", domain.ErrTaskDeleted, ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapAppError("op", tc.err)
			if !errors.Is(got, tc.want) || !errors.Is(got, tc.err) {
				t.Fatalf("mapAppError() = %v, want class %v", got, tc.want)
			}
		})
	}
	if mapAppError("op", nil) != nil {
		t.Fatal("expected nil passthrough")
	}
	plain := errors.New("disk full")
	if got := mapAppError("op", plain); errors.Is(got, ErrInvalidRequest) || !errors.Is(got, plain) {
		t.Fatalf("expected unclassified passthrough, got %v", got)
	}
}
