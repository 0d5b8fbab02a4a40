package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	servercommon "github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/spf13/cobra"
)

// taskCommand groups task CRUD, status transitions and activity.
func (c *cli) taskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Manage tasks and inspect their timelines",
	}
	cmd.AddCommand(
		c.taskAddCommand(),
		c.taskListCommand(),
		c.taskShowCommand(),
		c.taskUpdateCommand(),
		c.taskStatusCommand(),
		c.taskDeleteCommand(),
		c.taskActivityCommand(),
		c.taskCommentCommand(),
	)
	return cmd
}

func (c *cli) taskAddCommand() *cobra.Command {
	var (
		in           servercommon.CreateTaskRequest
		estimateDays float64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("estimate-days") {
				in.EstimateDays = &estimateDays
			}
			return c.withService(cmd, "task add", func(ctx context.Context) error {
				task, err := c.adapter.CreateTask(ctx, in)
				if err != nil {
					return err
				}
				return c.printTaskDetail(task)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.ProjectID, "project", "", "project id or slug")
	flags.StringVar(&in.Code, "code", "", "unique task code, e.g. TSK-12")
	flags.StringVar(&in.Name, "name", "", "task name")
	flags.StringVar(&in.Description, "description", "", "task description")
	flags.StringVar(&in.Notes, "notes", "", "markdown notes")
	flags.StringVar(&in.Status, "status", "", "initial status (default Backlog)")
	flags.StringVar(&in.Priority, "priority", "", "priority: high, medium or low (default medium)")
	flags.Float64Var(&estimateDays, "estimate-days", 0, "estimated working days")
	flags.Float64Var(&in.EstimateHours, "estimate-hours", 0, "estimated hours")
	flags.StringVar(&in.ExpectedStartDate, "expected-start", "", "expected start day (YYYY-MM-DD)")
	flags.StringVar(&in.Deadline, "deadline", "", "deadline day (YYYY-MM-DD)")
	flags.StringVar(&in.ResourceID, "resource", "", "assigned resource id")
	flags.StringSliceVar(&in.Tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) taskListCommand() *cobra.Command {
	var in servercommon.ListTasksRequest
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with timeline metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, "task list", func(ctx context.Context) error {
				tasks, err := c.adapter.ListTasks(ctx, in)
				if err != nil {
					return err
				}
				return c.printTasks(tasks)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.ProjectID, "project", "", "project id or slug")
	flags.StringVar(&in.ResourceID, "resource", "", "assigned resource id")
	flags.StringSliceVar(&in.Statuses, "status", nil, "status filter (repeatable or comma-separated)")
	flags.StringSliceVar(&in.Health, "health", nil, "health filter: on_track, at_risk, overdue, completed_early")
	flags.StringVar(&in.Search, "search", "", "match code, name or description")
	flags.BoolVar(&in.IncludeDeleted, "include-deleted", false, "include soft-deleted tasks")
	return cmd
}

func (c *cli) taskShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task>",
		Short: "Show one task by id or code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "task show", func(ctx context.Context) error {
				task, err := c.adapter.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return c.printTaskDetail(task)
			})
		},
	}
}

func (c *cli) taskUpdateCommand() *cobra.Command {
	var (
		name, description, notes, priority, resource string
		expectedStart, actualStart, deadline, done   string
		estimateDays, estimateHours, actualHours     float64
		tags, clearFields                            []string
	)
	cmd := &cobra.Command{
		Use:   "update <task>",
		Short: "Update task fields; only flags that are passed change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			in := servercommon.UpdateTaskRequest{TaskID: args[0], Clear: clearFields}
			strs := []struct {
				flag string
				val  *string
				dst  **string
			}{
				{"name", &name, &in.Name},
				{"description", &description, &in.Description},
				{"notes", &notes, &in.Notes},
				{"priority", &priority, &in.Priority},
				{"resource", &resource, &in.ResourceID},
				{"expected-start", &expectedStart, &in.ExpectedStartDate},
				{"actual-start", &actualStart, &in.ActualStartDate},
				{"deadline", &deadline, &in.Deadline},
				{"completed-date", &done, &in.CompletedDate},
			}
			for _, s := range strs {
				if flags.Changed(s.flag) {
					*s.dst = s.val
				}
			}
			nums := []struct {
				flag string
				val  *float64
				dst  **float64
			}{
				{"estimate-days", &estimateDays, &in.EstimateDays},
				{"estimate-hours", &estimateHours, &in.EstimateHours},
				{"actual-hours", &actualHours, &in.ActualHours},
			}
			for _, n := range nums {
				if flags.Changed(n.flag) {
					*n.dst = n.val
				}
			}
			if flags.Changed("tag") {
				in.Tags = append([]string{}, tags...)
			}
			return c.withService(cmd, "task update", func(ctx context.Context) error {
				task, err := c.adapter.UpdateTask(ctx, in)
				if err != nil {
					return err
				}
				return c.printTaskDetail(task)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "task name")
	flags.StringVar(&description, "description", "", "task description")
	flags.StringVar(&notes, "notes", "", "markdown notes")
	flags.StringVar(&priority, "priority", "", "priority: high, medium or low")
	flags.StringVar(&resource, "resource", "", "assigned resource id")
	flags.StringVar(&expectedStart, "expected-start", "", "expected start day; empty clears")
	flags.StringVar(&actualStart, "actual-start", "", "actual start day; empty clears")
	flags.StringVar(&deadline, "deadline", "", "deadline day; empty clears")
	flags.StringVar(&done, "completed-date", "", "completion day; empty clears")
	flags.Float64Var(&estimateDays, "estimate-days", 0, "estimated working days")
	flags.Float64Var(&estimateHours, "estimate-hours", 0, "estimated hours")
	flags.Float64Var(&actualHours, "actual-hours", 0, "actual hours spent")
	flags.StringSliceVar(&tags, "tag", nil, "replace tags (repeatable)")
	flags.StringSliceVar(&clearFields, "clear", nil, "fields to clear: resource_id, estimate_days, expected_start_date, actual_start_date, deadline, completed_date")
	return cmd
}

func (c *cli) taskStatusCommand() *cobra.Command {
	var (
		completedDate string
		actualHours   float64
	)
	cmd := &cobra.Command{
		Use:   "status <task> <status>",
		Short: "Move a task to a new status",
		Long:  "Move a task to Backlog, In Progress, Done or Cancelled. Done requires a completion day and actual hours, either already recorded or passed here.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := args[1]
			in := servercommon.UpdateTaskRequest{TaskID: args[0], Status: &status}
			if cmd.Flags().Changed("completed-date") {
				in.CompletedDate = &completedDate
			}
			if cmd.Flags().Changed("actual-hours") {
				in.ActualHours = &actualHours
			}
			return c.withService(cmd, "task status", func(ctx context.Context) error {
				task, err := c.adapter.UpdateTask(ctx, in)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, task)
				}
				_, err = fmt.Fprintf(c.stdout, "%s is now %s\n", task.Code, task.Status)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&completedDate, "completed-date", "", "completion day (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&actualHours, "actual-hours", 0, "actual hours spent")
	return cmd
}

func (c *cli) taskDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task>",
		Short: "Soft-delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "task delete", func(ctx context.Context) error {
				task, err := c.adapter.DeleteTask(ctx, args[0])
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, task)
				}
				_, err = fmt.Fprintf(c.stdout, "deleted %s\n", task.Code)
				return err
			})
		},
	}
}

func (c *cli) taskActivityCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity <task>",
		Short: "Show recent audit entries for one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "task activity", func(ctx context.Context) error {
				events, err := c.adapter.ListTaskActivity(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return c.printActivity(events)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	return cmd
}

// taskCommentCommand groups the comment thread of one task.
func (c *cli) taskCommentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "comment",
		Aliases: []string{"comments"},
		Short:   "Read and write a task's comment thread",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list <task>",
		Short: "List comments, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "task comment list", func(ctx context.Context) error {
				comments, err := c.adapter.ListTaskComments(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return c.printComments(comments)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "maximum comments to show; 0 shows all")

	add := &cobra.Command{
		Use:   "add <task> <body...>",
		Short: "Append a markdown comment",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "task comment add", func(ctx context.Context) error {
				comment, err := c.adapter.AddTaskComment(ctx, servercommon.AddTaskCommentRequest{
					TaskID: args[0],
					Body:   strings.Join(args[1:], " "),
				})
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(c.stdout, comment)
				}
				_, err = fmt.Fprintf(c.stdout, "added comment %s\n", comment.ID)
				return err
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <task> <comment-id>",
		Short: "Delete one comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "task comment delete", func(ctx context.Context) error {
				if err := c.adapter.DeleteTaskComment(ctx, args[0], args[1]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(c.stdout, "deleted comment %s\n", args[1])
				return err
			})
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func (c *cli) printComments(comments []servercommon.Comment) error {
	return emit(c.stdout, c.jsonOut, comments, func() *table.Table {
		t := newTable("When", "Actor", "ID", "Comment")
		for _, comment := range comments {
			t.Row(
				comment.CreatedAt.Local().Format("2006-01-02 15:04"),
				comment.Actor,
				comment.ID,
				comment.Body,
			)
		}
		return t
	})
}

func (c *cli) printTasks(tasks []servercommon.Task) error {
	return emit(c.stdout, c.jsonOut, tasks, func() *table.Table {
		t := newTable("Code", "Name", "Status", "Priority", "Deadline", "Health", "Start", "Compl.", "Exec.")
		for _, task := range tasks {
			t.Row(
				task.Code,
				task.Name,
				string(task.Status),
				string(task.Priority),
				textCell(task.Deadline),
				healthCell(task.Timeline.HealthStatus),
				intCell(task.Timeline.StartVariance),
				intCell(task.Timeline.CompletionVariance),
				floatCell(task.Timeline.ExecutionVariance),
			)
		}
		return t
	})
}

func (c *cli) printTaskDetail(task servercommon.Task) error {
	return emit(c.stdout, c.jsonOut, task, func() *table.Table {
		t := newTable("Field", "Value")
		t.Row("code", task.Code)
		t.Row("name", task.Name)
		t.Row("status", string(task.Status))
		t.Row("priority", string(task.Priority))
		t.Row("resource", textCell(task.ResourceID))
		t.Row("estimate", fmt.Sprintf("%s days / %s h", floatCell(task.EstimateDays), hours(task.EstimateHours)))
		t.Row("actual hours", hours(task.ActualHours))
		t.Row("expected start", textCell(task.ExpectedStartDate))
		t.Row("actual start", textCell(task.ActualStartDate))
		t.Row("deadline", textCell(task.Deadline))
		t.Row("completed", textCell(task.CompletedDate))
		t.Row("health", healthCell(task.Timeline.HealthStatus))
		t.Row("start variance", intCell(task.Timeline.StartVariance))
		t.Row("completion variance", intCell(task.Timeline.CompletionVariance))
		t.Row("execution variance", floatCell(task.Timeline.ExecutionVariance))
		if task.Warning != "" {
			t.Row("warning", task.Warning)
		}
		t.Row("id", task.ID)
		return t
	})
}
