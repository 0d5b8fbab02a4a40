package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/app"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// statusEnum lists the accepted task status spellings for tool schemas.
var statusEnum = []string{"backlog", "in_progress", "done", "cancelled"}

// registerProjectTools registers project listing, creation, health, and activity tools.
func registerProjectTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"qctl.list_projects",
			mcp.WithDescription("List projects."),
			mcp.WithBoolean("include_archived", mcp.Description("Include archived projects")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := service.ListProjects(ctx, req.GetBool("include_archived", false))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"projects": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_projects result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.create_project",
			mcp.WithDescription("Create one project."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("description", mcp.Description("Project description")),
			mcp.WithString("actor", mcp.Description("Caller identity recorded in the audit ledger")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			project, err := service.CreateProject(withToolActor(ctx, req), common.CreateProjectRequest{
				Name:        name,
				Description: req.GetString("description", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(project)
			if err != nil {
				return nil, fmt.Errorf("encode create_project result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.project_health",
			mcp.WithDescription("Summarize status, schedule health, and hours for one project."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project id or slug")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ref, err := req.RequireString("project")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			health, err := service.ProjectHealth(ctx, ref)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(health)
			if err != nil {
				return nil, fmt.Errorf("encode project_health result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.list_project_activity",
			mcp.WithDescription("List recent audit entries for one project, newest first."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project id or slug")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ref, err := req.RequireString("project")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rows, err := service.ListProjectActivity(ctx, ref, req.GetInt("limit", 25))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"events": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_project_activity result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.dashboard",
			mcp.WithDescription("Return portfolio-wide task, hour, and resource aggregates."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			dashboard, err := service.Dashboard(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(dashboard)
			if err != nil {
				return nil, fmt.Errorf("encode dashboard result: %w", err)
			}
			return result, nil
		},
	)
}

// registerTaskTools registers task query and mutation tools.
func registerTaskTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"qctl.list_tasks",
			mcp.WithDescription("List tasks with derived timeline metrics."),
			mcp.WithString("project_id", mcp.Description("Project id or slug")),
			mcp.WithString("resource_id", mcp.Description("Assigned resource id")),
			mcp.WithArray("status", mcp.Description("Status filter"), mcp.WithStringItems()),
			mcp.WithArray("health", mcp.Description("Health filter: on_track|at_risk|overdue|completed_early"), mcp.WithStringItems()),
			mcp.WithString("search", mcp.Description("Substring match on code, name, or description")),
			mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted tasks")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.ListTasksRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			rows, err := service.ListTasks(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"tasks": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_tasks result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.get_task",
			mcp.WithDescription("Load one task by id or TSK- code with its timeline metrics."),
			mcp.WithString("task", mcp.Required(), mcp.Description("Task id or code")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ref, err := req.RequireString("task")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			task, err := service.GetTask(ctx, ref)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(task)
			if err != nil {
				return nil, fmt.Errorf("encode get_task result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.create_task",
			mcp.WithDescription("Create one task. Dates are YYYY-MM-DD."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id or slug")),
			mcp.WithString("code", mcp.Required(), mcp.Description("Unique task code, e.g. TSK-101")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Task name")),
			mcp.WithString("resource_id", mcp.Description("Assigned resource id")),
			mcp.WithString("description", mcp.Description("Task description")),
			mcp.WithString("notes", mcp.Description("Markdown notes")),
			mcp.WithString("status", mcp.Description("Initial status"), mcp.Enum(statusEnum...)),
			mcp.WithString("priority", mcp.Description("High|Medium|Low")),
			mcp.WithNumber("estimate_days", mcp.Description("Estimated working days")),
			mcp.WithNumber("estimate_hours", mcp.Description("Estimated effort hours")),
			mcp.WithNumber("actual_hours", mcp.Description("Recorded effort hours")),
			mcp.WithString("expected_start_date", mcp.Description("Planned start")),
			mcp.WithString("actual_start_date", mcp.Description("Actual start")),
			mcp.WithString("deadline", mcp.Description("Deadline; derived from start and estimate when enabled")),
			mcp.WithString("completed_date", mcp.Description("Completion date")),
			mcp.WithArray("tags", mcp.Description("Optional tags"), mcp.WithStringItems()),
			mcp.WithString("actor", mcp.Description("Caller identity recorded in the audit ledger")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				common.CreateTaskRequest
				Actor string `json:"actor"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.ProjectID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "project_id" not found`), nil
			}
			task, err := service.CreateTask(withActor(ctx, args.Actor), args.CreateTaskRequest)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(task)
			if err != nil {
				return nil, fmt.Errorf("encode create_task result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.update_task",
			mcp.WithDescription("Partially update one task and optionally transition its status. An empty date string clears that date."),
			mcp.WithString("task", mcp.Required(), mcp.Description("Task id or code")),
			mcp.WithString("name", mcp.Description("Task name")),
			mcp.WithString("resource_id", mcp.Description("Assigned resource id")),
			mcp.WithString("description", mcp.Description("Task description")),
			mcp.WithString("notes", mcp.Description("Markdown notes")),
			mcp.WithString("status", mcp.Description("Target status"), mcp.Enum(statusEnum...)),
			mcp.WithString("priority", mcp.Description("High|Medium|Low")),
			mcp.WithNumber("estimate_days", mcp.Description("Estimated working days")),
			mcp.WithNumber("estimate_hours", mcp.Description("Estimated effort hours")),
			mcp.WithNumber("actual_hours", mcp.Description("Recorded effort hours")),
			mcp.WithString("expected_start_date", mcp.Description("Planned start")),
			mcp.WithString("actual_start_date", mcp.Description("Actual start")),
			mcp.WithString("deadline", mcp.Description("Deadline")),
			mcp.WithString("completed_date", mcp.Description("Completion date")),
			mcp.WithArray("tags", mcp.Description("Replacement tags"), mcp.WithStringItems()),
			mcp.WithArray("clear", mcp.Description("Fields to reset"), mcp.WithStringItems()),
			mcp.WithString("actor", mcp.Description("Caller identity recorded in the audit ledger")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				common.UpdateTaskRequest
				Task  string `json:"task"`
				Actor string `json:"actor"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.Task) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "task" not found`), nil
			}
			args.TaskID = args.Task
			task, err := service.UpdateTask(withActor(ctx, args.Actor), args.UpdateTaskRequest)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(task)
			if err != nil {
				return nil, fmt.Errorf("encode update_task result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.delete_task",
			mcp.WithDescription("Soft-delete one task; it is cancelled and hidden from health aggregates."),
			mcp.WithString("task", mcp.Required(), mcp.Description("Task id or code")),
			mcp.WithString("actor", mcp.Description("Caller identity recorded in the audit ledger")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ref, err := req.RequireString("task")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			task, err := service.DeleteTask(withToolActor(ctx, req), ref)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(task)
			if err != nil {
				return nil, fmt.Errorf("encode delete_task result: %w", err)
			}
			return result, nil
		},
	)

	registerTaskCommentTools(srv, service)
}

// registerTaskCommentTools registers the task comment thread tools.
func registerTaskCommentTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"qctl.list_task_comments",
			mcp.WithDescription("List one task's comment thread, newest first."),
			mcp.WithString("task", mcp.Required(), mcp.Description("Task id or code")),
			mcp.WithNumber("limit", mcp.Description("Maximum comments to return; 0 returns all")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ref, err := req.RequireString("task")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rows, err := service.ListTaskComments(ctx, ref, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"comments": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_task_comments result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.add_task_comment",
			mcp.WithDescription("Append one markdown comment to a task's thread."),
			mcp.WithString("task", mcp.Required(), mcp.Description("Task id or code")),
			mcp.WithString("body", mcp.Required(), mcp.Description("Markdown comment body")),
			mcp.WithString("actor", mcp.Description("Caller identity recorded as the comment author")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ref, err := req.RequireString("task")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			body, err := req.RequireString("body")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			comment, err := service.AddTaskComment(withToolActor(ctx, req), common.AddTaskCommentRequest{
				TaskID: ref,
				Body:   body,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(comment)
			if err != nil {
				return nil, fmt.Errorf("encode add_task_comment result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.delete_task_comment",
			mcp.WithDescription("Delete one comment from a task's thread."),
			mcp.WithString("task", mcp.Required(), mcp.Description("Task id or code")),
			mcp.WithString("comment_id", mcp.Required(), mcp.Description("Comment id")),
			mcp.WithString("actor", mcp.Description("Caller identity recorded in the audit ledger")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ref, err := req.RequireString("task")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			commentID, err := req.RequireString("comment_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := service.DeleteTaskComment(withToolActor(ctx, req), ref, commentID); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"deleted": commentID})
			if err != nil {
				return nil, fmt.Errorf("encode delete_task_comment result: %w", err)
			}
			return result, nil
		},
	)
}

// registerResourceTools registers resource listing and utilization tools.
func registerResourceTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"qctl.list_resources",
			mcp.WithDescription("List resources with remaining open hours against weekly capacity."),
			mcp.WithBoolean("include_inactive", mcp.Description("Include deactivated resources")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := service.ListResources(ctx, req.GetBool("include_inactive", false))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"resources": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_resources result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.create_resource",
			mcp.WithDescription("Create one resource."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Resource name")),
			mcp.WithString("email", mcp.Description("Contact email")),
			mcp.WithString("role", mcp.Description("Role label")),
			mcp.WithNumber("weekly_capacity_hrs", mcp.Description("Weekly capacity in hours, 1-80")),
			mcp.WithString("actor", mcp.Description("Caller identity recorded in the audit ledger")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			resource, err := service.CreateResource(withToolActor(ctx, req), common.CreateResourceRequest{
				Name:              name,
				Email:             req.GetString("email", ""),
				Role:              req.GetString("role", ""),
				WeeklyCapacityHrs: req.GetFloat("weekly_capacity_hrs", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(resource)
			if err != nil {
				return nil, fmt.Errorf("encode create_resource result: %w", err)
			}
			return result, nil
		},
	)
}

// withToolActor attributes mutations to the optional `actor` argument.
func withToolActor(ctx context.Context, req mcp.CallToolRequest) context.Context {
	return withActor(ctx, req.GetString("actor", ""))
}

// withActor attaches one MCP caller identity when present.
func withActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return app.WithMutationActor(ctx, app.MutationActor{ActorID: actor, Source: "mcp"})
}
