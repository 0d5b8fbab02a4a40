package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hylla/qctl/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "qctl.snapshot.v1"

// Snapshot encodings accepted by EncodeSnapshot and DecodeSnapshot.
const (
	SnapshotFormatJSON = "json"
	SnapshotFormatYAML = "yaml"
)

// Snapshot represents snapshot data used by this package.
type Snapshot struct {
	Version    string             `json:"version" yaml:"version"`
	ExportedAt time.Time          `json:"exported_at" yaml:"exported_at"`
	Projects   []SnapshotProject  `json:"projects" yaml:"projects"`
	Resources  []SnapshotResource `json:"resources" yaml:"resources"`
	Tasks      []SnapshotTask     `json:"tasks" yaml:"tasks"`
}

// SnapshotProject represents snapshot project data used by this package.
type SnapshotProject struct {
	ID          string     `json:"id" yaml:"id"`
	Slug        string     `json:"slug" yaml:"slug"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty" yaml:"archived_at,omitempty"`
}

// SnapshotResource represents snapshot resource data used by this package.
type SnapshotResource struct {
	ID                string    `json:"id" yaml:"id"`
	Name              string    `json:"name" yaml:"name"`
	Email             string    `json:"email,omitempty" yaml:"email,omitempty"`
	Role              string    `json:"role,omitempty" yaml:"role,omitempty"`
	WeeklyCapacityHrs float64   `json:"weekly_capacity_hrs" yaml:"weekly_capacity_hrs"`
	Active            bool      `json:"active" yaml:"active"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"updated_at"`
}

// SnapshotTask stores calendar dates as YYYY-MM-DD strings.
type SnapshotTask struct {
	ID                string     `json:"id" yaml:"id"`
	Code              string     `json:"code" yaml:"code"`
	ProjectID         string     `json:"project_id" yaml:"project_id"`
	ResourceID        string     `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	Name              string     `json:"name" yaml:"name"`
	Description       string     `json:"description,omitempty" yaml:"description,omitempty"`
	Notes             string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	Status            string     `json:"status" yaml:"status"`
	Priority          string     `json:"priority" yaml:"priority"`
	EstimateDays      *float64   `json:"estimate_days,omitempty" yaml:"estimate_days,omitempty"`
	EstimateHours     float64    `json:"estimate_hours" yaml:"estimate_hours"`
	ActualHours       float64    `json:"actual_hours" yaml:"actual_hours"`
	ExpectedStartDate string     `json:"expected_start_date,omitempty" yaml:"expected_start_date,omitempty"`
	ActualStartDate   string     `json:"actual_start_date,omitempty" yaml:"actual_start_date,omitempty"`
	Deadline          string     `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	CompletedDate     string     `json:"completed_date,omitempty" yaml:"completed_date,omitempty"`
	Tags              []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt         time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" yaml:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// ExportSnapshot collects projects, resources and tasks. includeArchived also pulls archived
// projects, inactive resources and soft-deleted tasks.
func (s *Service) ExportSnapshot(ctx context.Context, includeArchived bool) (Snapshot, error) {
	projects, err := s.repo.ListProjects(ctx, includeArchived)
	if err != nil {
		return Snapshot{}, err
	}
	resources, err := s.repo.ListResources(ctx, includeArchived)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Projects:   make([]SnapshotProject, 0, len(projects)),
		Resources:  make([]SnapshotResource, 0, len(resources)),
		Tasks:      make([]SnapshotTask, 0),
	}
	for _, resource := range resources {
		snap.Resources = append(snap.Resources, snapshotResourceFromDomain(resource))
	}
	for _, project := range projects {
		snap.Projects = append(snap.Projects, snapshotProjectFromDomain(project))

		tasks, listErr := s.repo.ListTasks(ctx, TaskFilter{ProjectID: project.ID, IncludeDeleted: includeArchived})
		if listErr != nil {
			return Snapshot{}, listErr
		}
		for _, task := range tasks {
			snap.Tasks = append(snap.Tasks, snapshotTaskFromDomain(task))
		}
	}

	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every record in snap by id.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, project := range snap.Projects {
		if err := s.upsertProject(ctx, project.toDomain()); err != nil {
			return err
		}
	}
	for _, resource := range snap.Resources {
		if err := s.upsertResource(ctx, resource.toDomain()); err != nil {
			return err
		}
	}
	for i, task := range snap.Tasks {
		dt, err := task.toDomain()
		if err != nil {
			return fmt.Errorf("tasks[%d]: %w", i, err)
		}
		if err := s.upsertTask(ctx, dt); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}

	projectIDs := map[string]struct{}{}
	for i, p := range s.Projects {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: projects[%d].id is required", ErrInvalidSnapshot, i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: projects[%d].name is required", ErrInvalidSnapshot, i)
		}
		if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
			return fmt.Errorf("%w: projects[%d] timestamps are required", ErrInvalidSnapshot, i)
		}
		if _, exists := projectIDs[p.ID]; exists {
			return fmt.Errorf("%w: duplicate project id %q", ErrInvalidSnapshot, p.ID)
		}
		projectIDs[p.ID] = struct{}{}
	}

	resourceIDs := map[string]struct{}{}
	for i, r := range s.Resources {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("%w: resources[%d].id is required", ErrInvalidSnapshot, i)
		}
		if _, exists := resourceIDs[r.ID]; exists {
			return fmt.Errorf("%w: duplicate resource id %q", ErrInvalidSnapshot, r.ID)
		}
		if r.WeeklyCapacityHrs < domain.MinWeeklyCapacityHours || r.WeeklyCapacityHrs > domain.MaxWeeklyCapacityHours {
			return fmt.Errorf("%w: resources[%d].weekly_capacity_hrs out of range", ErrInvalidSnapshot, i)
		}
		resourceIDs[r.ID] = struct{}{}
	}

	taskIDs := map[string]struct{}{}
	codes := map[string]struct{}{}
	for i, t := range s.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("%w: tasks[%d].id is required", ErrInvalidSnapshot, i)
		}
		if _, exists := taskIDs[t.ID]; exists {
			return fmt.Errorf("%w: duplicate task id %q", ErrInvalidSnapshot, t.ID)
		}
		code := strings.ToUpper(strings.TrimSpace(t.Code))
		if _, exists := codes[code]; exists {
			return fmt.Errorf("%w: duplicate task code %q", ErrInvalidSnapshot, t.Code)
		}
		if _, ok := projectIDs[t.ProjectID]; !ok {
			return fmt.Errorf("%w: tasks[%d] references unknown project_id %q", ErrInvalidSnapshot, i, t.ProjectID)
		}
		if t.ResourceID != "" {
			if _, ok := resourceIDs[t.ResourceID]; !ok {
				return fmt.Errorf("%w: tasks[%d] references unknown resource_id %q", ErrInvalidSnapshot, i, t.ResourceID)
			}
		}
		taskIDs[t.ID] = struct{}{}
		codes[code] = struct{}{}
	}
	return nil
}

// EncodeSnapshot writes snap as indented JSON or YAML.
func EncodeSnapshot(w io.Writer, snap Snapshot, format string) error {
	switch normalizeSnapshotFormat(format) {
	case SnapshotFormatJSON:
		encoded, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot json: %w", err)
		}
		encoded = append(encoded, '\n')
		_, err = w.Write(encoded)
		return err
	case SnapshotFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// DecodeSnapshot reads a JSON or YAML snapshot.
func DecodeSnapshot(r io.Reader, format string) (Snapshot, error) {
	var snap Snapshot
	switch normalizeSnapshotFormat(format) {
	case SnapshotFormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("%w: decode json: %v", ErrInvalidSnapshot, err)
		}
	case SnapshotFormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("%w: decode yaml: %v", ErrInvalidSnapshot, err)
		}
	default:
		return Snapshot{}, fmt.Errorf("unsupported snapshot format %q", format)
	}
	return snap, nil
}

// SnapshotFormatForPath picks the encoding from a file extension, defaulting to JSON.
func SnapshotFormatForPath(path string) string {
	lower := strings.ToLower(strings.TrimSpace(path))
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return SnapshotFormatYAML
	}
	return SnapshotFormatJSON
}

func normalizeSnapshotFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return SnapshotFormatJSON
	case "yaml", "yml":
		return SnapshotFormatYAML
	default:
		return format
	}
}

// upsertProject handles upsert project.
func (s *Service) upsertProject(ctx context.Context, p domain.Project) error {
	if _, err := s.repo.GetProject(ctx, p.ID); err == nil {
		return s.repo.UpdateProject(ctx, p)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateProject(ctx, p)
}

func (s *Service) upsertResource(ctx context.Context, r domain.Resource) error {
	if _, err := s.repo.GetResource(ctx, r.ID); err == nil {
		return s.repo.UpdateResource(ctx, r)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateResource(ctx, r)
}

func (s *Service) upsertTask(ctx context.Context, t domain.Task) error {
	if _, err := s.repo.GetTask(ctx, t.ID); err == nil {
		return s.repo.UpdateTask(ctx, t)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateTask(ctx, t)
}

// sort orders records by id so exports are stable.
func (s *Snapshot) sort() {
	sort.Slice(s.Projects, func(i, j int) bool {
		return s.Projects[i].ID < s.Projects[j].ID
	})
	sort.Slice(s.Resources, func(i, j int) bool {
		return s.Resources[i].ID < s.Resources[j].ID
	})
	sort.Slice(s.Tasks, func(i, j int) bool {
		a := s.Tasks[i]
		b := s.Tasks[j]
		if a.ProjectID == b.ProjectID {
			return a.Code < b.Code
		}
		return a.ProjectID < b.ProjectID
	})
}

func snapshotProjectFromDomain(p domain.Project) SnapshotProject {
	return SnapshotProject{
		ID:          p.ID,
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
		ArchivedAt:  copyTimePtr(p.ArchivedAt),
	}
}

func snapshotResourceFromDomain(r domain.Resource) SnapshotResource {
	return SnapshotResource{
		ID:                r.ID,
		Name:              r.Name,
		Email:             r.Email,
		Role:              r.Role,
		WeeklyCapacityHrs: r.WeeklyCapacityHrs,
		Active:            r.Active,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func snapshotTaskFromDomain(t domain.Task) SnapshotTask {
	return SnapshotTask{
		ID:                t.ID,
		Code:              t.Code,
		ProjectID:         t.ProjectID,
		ResourceID:        t.ResourceID,
		Name:              t.Name,
		Description:       t.Description,
		Notes:             t.Notes,
		Status:            string(t.Status),
		Priority:          string(t.Priority),
		EstimateDays:      t.EstimateDays,
		EstimateHours:     t.EstimateHours,
		ActualHours:       t.ActualHours,
		ExpectedStartDate: formatDayPtr(t.ExpectedStartDate),
		ActualStartDate:   formatDayPtr(t.ActualStartDate),
		Deadline:          formatDayPtr(t.Deadline),
		CompletedDate:     formatDayPtr(t.CompletedDate),
		Tags:              append([]string(nil), t.Tags...),
		CreatedAt:         t.CreatedAt.UTC(),
		UpdatedAt:         t.UpdatedAt.UTC(),
		DeletedAt:         copyTimePtr(t.DeletedAt),
	}
}

func (p SnapshotProject) toDomain() domain.Project {
	slug := strings.TrimSpace(p.Slug)
	if slug == "" {
		slug = fallbackSlug(p.Name)
	}
	return domain.Project{
		ID:          strings.TrimSpace(p.ID),
		Slug:        slug,
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
		ArchivedAt:  copyTimePtr(p.ArchivedAt),
	}
}

func (r SnapshotResource) toDomain() domain.Resource {
	return domain.Resource{
		ID:                strings.TrimSpace(r.ID),
		Name:              strings.TrimSpace(r.Name),
		Email:             strings.ToLower(strings.TrimSpace(r.Email)),
		Role:              strings.TrimSpace(r.Role),
		WeeklyCapacityHrs: r.WeeklyCapacityHrs,
		Active:            r.Active,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

// toDomain rebuilds the task through domain validation, then restores stored timestamps.
func (t SnapshotTask) toDomain() (domain.Task, error) {
	dates := make([]*time.Time, 4)
	for i, raw := range []string{t.ExpectedStartDate, t.ActualStartDate, t.Deadline, t.CompletedDate} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		day, err := domain.ParseCalendarDay(raw)
		if err != nil {
			return domain.Task{}, err
		}
		dates[i] = &day
	}
	task, err := domain.NewTask(domain.TaskInput{
		ID:                t.ID,
		Code:              t.Code,
		ProjectID:         t.ProjectID,
		ResourceID:        t.ResourceID,
		Name:              t.Name,
		Description:       t.Description,
		Notes:             t.Notes,
		Status:            domain.Status(t.Status),
		Priority:          domain.Priority(t.Priority),
		EstimateDays:      t.EstimateDays,
		EstimateHours:     t.EstimateHours,
		ActualHours:       t.ActualHours,
		ExpectedStartDate: dates[0],
		ActualStartDate:   dates[1],
		Deadline:          dates[2],
		CompletedDate:     dates[3],
		Tags:              t.Tags,
	}, t.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	task.CreatedAt = t.CreatedAt.UTC()
	task.DeletedAt = copyTimePtr(t.DeletedAt)
	return task, nil
}

// fallbackSlug provides fallback slug.
func fallbackSlug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	return strings.Trim(name, "-")
}

func formatDayPtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return domain.FormatCalendarDay(*t)
}

// copyTimePtr copies time ptr.
func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	t := in.UTC().Truncate(time.Second)
	return &t
}
