package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/qctl/internal/app"
	"github.com/hylla/qctl/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// dsnPragmas apply per connection, so they ride on the DSN rather than a one-off PRAGMA statement.
const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Change event listing bounds.
const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// dayLayout stores calendar days without a time component.
const dayLayout = "2006-01-02"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

var _ app.Repository = (*Repository)(nil)

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, "file:"+path+"?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database. The pool is pinned to one connection so every
// query sees the same database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			weekly_capacity_hrs REAL NOT NULL DEFAULT 40 CHECK (weekly_capacity_hrs BETWEEN 1 AND 80),
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			project_id TEXT NOT NULL,
			resource_id TEXT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'Backlog',
			priority TEXT NOT NULL DEFAULT 'Medium',
			estimate_days REAL,
			estimate_hours REAL NOT NULL DEFAULT 0,
			actual_hours REAL NOT NULL DEFAULT 0,
			expected_start_date TEXT,
			actual_start_date TEXT,
			deadline TEXT,
			completed_date TEXT,
			tags_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE,
			FOREIGN KEY(resource_id) REFERENCES resources(id) ON DELETE SET NULL
		);`,
		// change_events.project_id is empty for resource events, so it is not a foreign key.
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL DEFAULT '',
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			actor TEXT NOT NULL,
			changed_fields_json TEXT NOT NULL DEFAULT '[]',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		// task_comments.project_id mirrors the task's project so project activity can join on it.
		`CREATE TABLE IF NOT EXISTS task_comments (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			body TEXT NOT NULL,
			actor TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_code ON tasks(project_id, code);`,
		`CREATE INDEX IF NOT EXISTS idx_task_comments_task ON task_comments(task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_resource_status ON tasks(resource_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_project_created_at ON change_events(project_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_entity ON change_events(entity_type, entity_id, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}

	// Columns added after the first schema; older databases gain them in place.
	additive := []string{
		`ALTER TABLE tasks ADD COLUMN notes TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE resources ADD COLUMN role TEXT NOT NULL DEFAULT ''`,
	}
	for _, stmt := range additive {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil && !isDuplicateColumnErr(err) {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateProject creates project.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects(id, slug, name, description, created_at, updated_at, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Slug, p.Name, p.Description, ts(p.CreatedAt), ts(p.UpdatedAt), nullableTS(p.ArchivedAt)); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  p.ID,
			EntityType: domain.EntityProject,
			EntityID:   p.ID,
			Operation:  domain.ChangeOperationCreate,
			Actor:      app.ActorLabel(ctx),
			Metadata:   map[string]string{"name": p.Name},
			OccurredAt: p.CreatedAt,
		})
	})
}

// UpdateProject updates state for the requested operation.
func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := scanProject(tx.QueryRowContext(ctx, projectSelect+` WHERE id = ?`, p.ID))
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE projects
			SET slug = ?, name = ?, description = ?, updated_at = ?, archived_at = ?
			WHERE id = ?
		`, p.Slug, p.Name, p.Description, ts(p.UpdatedAt), nullableTS(p.ArchivedAt), p.ID)
		if err != nil {
			return err
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:     p.ID,
			EntityType:    domain.EntityProject,
			EntityID:      p.ID,
			Operation:     domain.ChangeOperationUpdate,
			Actor:         app.ActorLabel(ctx),
			ChangedFields: changedProjectFields(prev, p),
			Metadata:      map[string]string{"archived": strconv.FormatBool(p.ArchivedAt != nil)},
			OccurredAt:    p.UpdatedAt,
		})
	})
}

const projectSelect = `
	SELECT id, slug, name, description, created_at, updated_at, archived_at
	FROM projects`

// GetProject returns project.
func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.db.QueryRowContext(ctx, projectSelect+` WHERE id = ?`, id))
}

// ListProjects lists projects.
func (r *Repository) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	query := projectSelect
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const taskColumns = `
	id, code, project_id, resource_id, name, description, notes, status, priority, estimate_days, estimate_hours,
	actual_hours, expected_start_date, actual_start_date, deadline, completed_date, tags_json, created_at, updated_at, deleted_at`

// CreateTask creates task.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	tagsJSON, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID,
			t.Code,
			t.ProjectID,
			nullableString(t.ResourceID),
			t.Name,
			t.Description,
			t.Notes,
			string(t.Status),
			string(t.Priority),
			nullableFloat(t.EstimateDays),
			t.EstimateHours,
			t.ActualHours,
			nullableDay(t.ExpectedStartDate),
			nullableDay(t.ActualStartDate),
			nullableDay(t.Deadline),
			nullableDay(t.CompletedDate),
			tagsJSON,
			ts(t.CreatedAt),
			ts(t.UpdatedAt),
			nullableTS(t.DeletedAt),
		)
		if err != nil {
			return translateUniqueCode(err)
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  t.ProjectID,
			EntityType: domain.EntityTask,
			EntityID:   t.ID,
			Operation:  domain.ChangeOperationCreate,
			Actor:      app.ActorLabel(ctx),
			Metadata: map[string]string{
				"code":   t.Code,
				"name":   t.Name,
				"status": string(t.Status),
			},
			OccurredAt: t.CreatedAt,
		})
	})
}

// UpdateTask updates state for the requested operation.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) error {
	tagsJSON, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := getTaskByID(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET code = ?, resource_id = ?, name = ?, description = ?, notes = ?, status = ?, priority = ?, estimate_days = ?,
			    estimate_hours = ?, actual_hours = ?, expected_start_date = ?, actual_start_date = ?, deadline = ?,
			    completed_date = ?, tags_json = ?, updated_at = ?, deleted_at = ?
			WHERE id = ?
		`,
			t.Code,
			nullableString(t.ResourceID),
			t.Name,
			t.Description,
			t.Notes,
			string(t.Status),
			string(t.Priority),
			nullableFloat(t.EstimateDays),
			t.EstimateHours,
			t.ActualHours,
			nullableDay(t.ExpectedStartDate),
			nullableDay(t.ActualStartDate),
			nullableDay(t.Deadline),
			nullableDay(t.CompletedDate),
			tagsJSON,
			ts(t.UpdatedAt),
			nullableTS(t.DeletedAt),
			t.ID,
		)
		if err != nil {
			return translateUniqueCode(err)
		}
		if err := translateNoRows(res); err != nil {
			return err
		}

		op, metadata := classifyTaskTransition(prev, t)
		occurred := t.UpdatedAt
		if op == domain.ChangeOperationDelete && t.DeletedAt != nil {
			occurred = *t.DeletedAt
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:     t.ProjectID,
			EntityType:    domain.EntityTask,
			EntityID:      t.ID,
			Operation:     op,
			Actor:         app.ActorLabel(ctx),
			ChangedFields: domain.ChangedTaskFields(prev, t),
			Metadata:      metadata,
			OccurredAt:    occurred,
		})
	})
}

// GetTask returns task.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTaskByID(ctx, r.db, id)
}

// GetTaskByCode returns the task carrying a TSK- code.
func (r *Repository) GetTaskByCode(ctx context.Context, code string) (domain.Task, error) {
	return scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE code = ?`, code))
}

// ListTasks lists tasks.
func (r *Repository) ListTasks(ctx context.Context, filter app.TaskFilter) ([]domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeDeleted {
		where = append(where, `deleted_at IS NULL`)
	}
	if id := strings.TrimSpace(filter.ProjectID); id != "" {
		where = append(where, `project_id = ?`)
		args = append(args, id)
	}
	if id := strings.TrimSpace(filter.ResourceID); id != "" {
		where = append(where, `resource_id = ?`)
		args = append(args, id)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		where = append(where, `status IN (`+strings.Join(placeholders, ", ")+`)`)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Search)); q != "" {
		where = append(where, `(LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR LOWER(description) LIKE ?)`)
		pattern := "%" + q + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY code ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

const resourceSelect = `
	SELECT id, name, email, role, weekly_capacity_hrs, is_active, created_at, updated_at
	FROM resources`

// CreateResource creates resource.
func (r *Repository) CreateResource(ctx context.Context, res domain.Resource) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO resources(id, name, email, role, weekly_capacity_hrs, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, res.ID, res.Name, res.Email, res.Role, res.WeeklyCapacityHrs, res.Active, ts(res.CreatedAt), ts(res.UpdatedAt)); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntityResource,
			EntityID:   res.ID,
			Operation:  domain.ChangeOperationCreate,
			Actor:      app.ActorLabel(ctx),
			Metadata:   map[string]string{"name": res.Name},
			OccurredAt: res.CreatedAt,
		})
	})
}

// UpdateResource updates state for the requested operation.
func (r *Repository) UpdateResource(ctx context.Context, res domain.Resource) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := scanResource(tx.QueryRowContext(ctx, resourceSelect+` WHERE id = ?`, res.ID))
		if err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE resources
			SET name = ?, email = ?, role = ?, weekly_capacity_hrs = ?, is_active = ?, updated_at = ?
			WHERE id = ?
		`, res.Name, res.Email, res.Role, res.WeeklyCapacityHrs, res.Active, ts(res.UpdatedAt), res.ID)
		if err != nil {
			return err
		}
		if err := translateNoRows(result); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType:    domain.EntityResource,
			EntityID:      res.ID,
			Operation:     domain.ChangeOperationUpdate,
			Actor:         app.ActorLabel(ctx),
			ChangedFields: changedResourceFields(prev, res),
			Metadata:      map[string]string{"active": strconv.FormatBool(res.Active)},
			OccurredAt:    res.UpdatedAt,
		})
	})
}

// GetResource returns resource.
func (r *Repository) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	return scanResource(r.db.QueryRowContext(ctx, resourceSelect+` WHERE id = ?`, id))
}

// ListResources lists resources.
func (r *Repository) ListResources(ctx context.Context, includeInactive bool) ([]domain.Resource, error) {
	query := resourceSelect
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

const commentSelect = `
	SELECT id, task_id, project_id, body, actor, created_at
	FROM task_comments`

// CreateComment appends one comment to a task thread.
func (r *Repository) CreateComment(ctx context.Context, c domain.Comment) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_comments(id, task_id, project_id, body, actor, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.ID, c.TaskID, c.ProjectID, c.Body, c.Actor, ts(c.CreatedAt)); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  c.ProjectID,
			EntityType: domain.EntityComment,
			EntityID:   c.ID,
			Operation:  domain.ChangeOperationCreate,
			Actor:      c.Actor,
			Metadata:   map[string]string{"task_id": c.TaskID},
			OccurredAt: c.CreatedAt,
		})
	})
}

// ListComments lists a task's comments, newest first.
func (r *Repository) ListComments(ctx context.Context, filter app.CommentFilter) ([]domain.Comment, error) {
	// rowid follows insertion order; RFC3339Nano text does not sort within one second.
	query := commentSelect + ` WHERE task_id = ? ORDER BY rowid DESC`
	args := []any{strings.TrimSpace(filter.TaskID)}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteComment removes a comment only when it belongs to taskID.
func (r *Repository) DeleteComment(ctx context.Context, taskID, commentID string, deletedAt time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		c, err := scanComment(tx.QueryRowContext(ctx, commentSelect+` WHERE id = ? AND task_id = ?`, commentID, taskID))
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM task_comments WHERE id = ?`, c.ID)
		if err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  c.ProjectID,
			EntityType: domain.EntityComment,
			EntityID:   c.ID,
			Operation:  domain.ChangeOperationDelete,
			Actor:      app.ActorLabel(ctx),
			Metadata:   map[string]string{"task_id": c.TaskID, "author": c.Actor},
			OccurredAt: deletedAt,
		})
	})
}

// ListChangeEvents lists recent audit events, newest first.
func (r *Repository) ListChangeEvents(ctx context.Context, filter app.ChangeEventFilter) ([]domain.ChangeEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	limit = min(limit, maxEventLimit)

	var (
		where []string
		args  []any
	)
	if id := strings.TrimSpace(filter.ProjectID); id != "" {
		where = append(where, `project_id = ?`)
		args = append(args, id)
	}
	if filter.EntityType != "" {
		where = append(where, `entity_type = ?`)
		args = append(args, string(filter.EntityType))
	}
	if id := strings.TrimSpace(filter.EntityID); id != "" {
		where = append(where, `entity_id = ?`)
		args = append(args, id)
	}
	query := `
		SELECT id, project_id, entity_type, entity_id, operation, actor, changed_fields_json, metadata_json, created_at
		FROM change_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			entityType  string
			opRaw       string
			fieldsRaw   string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.ProjectID, &entityType, &event.EntityID, &opRaw, &event.Actor, &fieldsRaw, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.EntityType = domain.EntityType(entityType)
		event.Operation = normalizeChangeOperation(opRaw)
		event.OccurredAt = parseTS(createdRaw)
		if err := decodeJSONColumn(fieldsRaw, "[]", &event.ChangedFields); err != nil {
			return nil, fmt.Errorf("decode change_events.changed_fields_json: %w", err)
		}
		if err := decodeJSONColumn(metadataRaw, "{}", &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// queryRower represents a query-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func getTaskByID(ctx context.Context, q queryRower, id string) (domain.Task, error) {
	return scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	fields := event.ChangedFields
	if fields == nil {
		fields = []string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode change event fields: %w", err)
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	actor := strings.TrimSpace(event.Actor)
	if actor == "" {
		actor = domain.DefaultActor
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(project_id, entity_type, entity_id, operation, actor, changed_fields_json, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ProjectID,
		string(event.EntityType),
		event.EntityID,
		string(event.Operation),
		actor,
		string(fieldsJSON),
		string(metadataJSON),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// classifyTaskTransition derives the operation category and metadata for a task update.
func classifyTaskTransition(prev, next domain.Task) (domain.ChangeOperation, map[string]string) {
	metadata := map[string]string{"code": next.Code}
	if prev.Status != next.Status {
		metadata["from_status"] = string(prev.Status)
		metadata["to_status"] = string(next.Status)
	}
	switch {
	case prev.DeletedAt == nil && next.DeletedAt != nil:
		return domain.ChangeOperationDelete, metadata
	case prev.Status != next.Status:
		return domain.ChangeOperationStatus, metadata
	default:
		return domain.ChangeOperationUpdate, metadata
	}
}

func changedProjectFields(prev, next domain.Project) []string {
	var changed []string
	if prev.Name != next.Name {
		changed = append(changed, "name")
	}
	if prev.Description != next.Description {
		changed = append(changed, "description")
	}
	if (prev.ArchivedAt == nil) != (next.ArchivedAt == nil) {
		changed = append(changed, "archived_at")
	}
	return changed
}

func changedResourceFields(prev, next domain.Resource) []string {
	var changed []string
	if prev.Name != next.Name {
		changed = append(changed, "name")
	}
	if prev.Email != next.Email {
		changed = append(changed, "email")
	}
	if prev.Role != next.Role {
		changed = append(changed, "role")
	}
	if prev.WeeklyCapacityHrs != next.WeeklyCapacityHrs {
		changed = append(changed, "weekly_capacity_hrs")
	}
	if prev.Active != next.Active {
		changed = append(changed, "is_active")
	}
	return changed
}

// normalizeChangeOperation canonicalizes persisted operation values.
func normalizeChangeOperation(raw string) domain.ChangeOperation {
	switch op := domain.ChangeOperation(strings.TrimSpace(strings.ToLower(raw))); op {
	case domain.ChangeOperationCreate, domain.ChangeOperationUpdate, domain.ChangeOperationStatus, domain.ChangeOperationDelete:
		return op
	default:
		return domain.ChangeOperationUpdate
	}
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (domain.Project, error) {
	var (
		p          domain.Project
		createdRaw string
		updatedRaw string
		archived   sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &createdRaw, &updatedRaw, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, app.ErrNotFound
		}
		return domain.Project{}, err
	}
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	p.ArchivedAt = parseNullTS(archived)
	return p, nil
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t            domain.Task
		resourceID   sql.NullString
		status       string
		priority     string
		estimateDays sql.NullFloat64
		expectedRaw  sql.NullString
		actualRaw    sql.NullString
		deadlineRaw  sql.NullString
		completedRaw sql.NullString
		tagsRaw      string
		createdRaw   string
		updatedRaw   string
		deletedRaw   sql.NullString
	)
	if err := s.Scan(
		&t.ID,
		&t.Code,
		&t.ProjectID,
		&resourceID,
		&t.Name,
		&t.Description,
		&t.Notes,
		&status,
		&priority,
		&estimateDays,
		&t.EstimateHours,
		&t.ActualHours,
		&expectedRaw,
		&actualRaw,
		&deadlineRaw,
		&completedRaw,
		&tagsRaw,
		&createdRaw,
		&updatedRaw,
		&deletedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	t.ResourceID = resourceID.String
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)
	if estimateDays.Valid {
		v := estimateDays.Float64
		t.EstimateDays = &v
	}
	t.ExpectedStartDate = parseNullDay(expectedRaw)
	t.ActualStartDate = parseNullDay(actualRaw)
	t.Deadline = parseNullDay(deadlineRaw)
	t.CompletedDate = parseNullDay(completedRaw)
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	t.DeletedAt = parseNullTS(deletedRaw)
	if err := decodeJSONColumn(tagsRaw, "[]", &t.Tags); err != nil {
		return domain.Task{}, fmt.Errorf("decode tags_json: %w", err)
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	return t, nil
}

func scanResource(s scanner) (domain.Resource, error) {
	var (
		res        domain.Resource
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&res.ID, &res.Name, &res.Email, &res.Role, &res.WeeklyCapacityHrs, &res.Active, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Resource{}, app.ErrNotFound
		}
		return domain.Resource{}, err
	}
	res.CreatedAt = parseTS(createdRaw)
	res.UpdatedAt = parseTS(updatedRaw)
	return res, nil
}

func scanComment(s scanner) (domain.Comment, error) {
	var (
		c          domain.Comment
		createdRaw string
	)
	if err := s.Scan(&c.ID, &c.TaskID, &c.ProjectID, &c.Body, &c.Actor, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Comment{}, app.ErrNotFound
		}
		return domain.Comment{}, err
	}
	c.CreatedAt = parseTS(createdRaw)
	return c, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// translateUniqueCode maps the tasks.code constraint to app.ErrDuplicateTaskCode.
func translateUniqueCode(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: tasks.code") {
		return fmt.Errorf("%w: %v", app.ErrDuplicateTaskCode, err)
	}
	return err
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(encoded), nil
}

func decodeJSONColumn(raw, empty string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		raw = empty
	}
	return json.Unmarshal([]byte(raw), dst)
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}

func nullableDay(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return domain.FormatCalendarDay(*t)
}

// parseNullDay reads a stored calendar day; unparseable values read as missing.
func parseNullDay(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	day, err := time.Parse(dayLayout, strings.TrimSpace(v.String))
	if err != nil {
		return nil
	}
	return &day
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// isDuplicateColumnErr reports whether the expected condition is satisfied.
func isDuplicateColumnErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
