package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss/table"
	servercommon "github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/domain"
	"github.com/spf13/cobra"
)

// projectCommand groups project lifecycle and reporting subcommands.
func (c *cli) projectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Manage projects and inspect their health",
	}
	cmd.AddCommand(
		c.projectAddCommand(),
		c.projectListCommand(),
		c.projectHealthCommand(),
		c.projectActivityCommand(),
		c.projectArchiveCommand(true),
		c.projectArchiveCommand(false),
	)
	return cmd
}

func (c *cli) projectAddCommand() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "project add", func(ctx context.Context) error {
				project, err := c.adapter.CreateProject(ctx, servercommon.CreateProjectRequest{
					Name:        args[0],
					Description: description,
				})
				if err != nil {
					return err
				}
				return c.printProjects([]servercommon.Project{project})
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "project description")
	return cmd
}

func (c *cli) projectListCommand() *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, "project list", func(ctx context.Context) error {
				projects, err := c.adapter.ListProjects(ctx, archived)
				if err != nil {
					return err
				}
				return c.printProjects(projects)
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived projects")
	return cmd
}

func (c *cli) projectHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health <project>",
		Short: "Summarize schedule health for one project (id or slug)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "project health", func(ctx context.Context) error {
				health, err := c.adapter.ProjectHealth(ctx, args[0])
				if err != nil {
					return err
				}
				return emit(c.stdout, c.jsonOut, health, func() *table.Table {
					t := newTable("Metric", "Value")
					t.Row("project", health.ProjectName)
					t.Row("total tasks", fmt.Sprint(health.TotalTasks))
					for _, status := range domain.Statuses() {
						t.Row(string(status), fmt.Sprint(health.StatusCounts[status]))
					}
					for _, h := range domain.HealthStatuses() {
						t.Row(string(h), fmt.Sprint(health.HealthCounts[h]))
					}
					t.Row("unscheduled", fmt.Sprint(health.Unscheduled))
					t.Row("completion rate", fmt.Sprintf("%.1f%%", health.CompletionRatePct))
					t.Row("estimated hours", hours(health.EstimatedHours))
					t.Row("actual hours", hours(health.ActualHours))
					t.Row("hours variance", hours(health.HoursVariance))
					next := "-"
					if health.NextDeadline != nil {
						next = domain.FormatCalendarDay(*health.NextDeadline)
					}
					t.Row("next deadline", next)
					t.Row("working days to deadline", intCell(health.WorkingDaysToNextDeadline))
					return t
				})
			})
		},
	}
}

func (c *cli) projectActivityCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity <project>",
		Short: "Show recent audit entries for one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "project activity", func(ctx context.Context) error {
				events, err := c.adapter.ListProjectActivity(ctx, args[0], limit)
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

// projectArchiveCommand builds either the archive or the restore subcommand.
func (c *cli) projectArchiveCommand(archive bool) *cobra.Command {
	use, short, name := "restore <project>", "Restore an archived project", "project restore"
	if archive {
		use, short, name = "archive <project>", "Archive a project", "project archive"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, name, func(ctx context.Context) error {
				project, err := c.svc.ResolveProject(ctx, args[0])
				if err != nil {
					return err
				}
				if archive {
					project, err = c.svc.ArchiveProject(ctx, project.ID)
				} else {
					project, err = c.svc.RestoreProject(ctx, project.ID)
				}
				if err != nil {
					return err
				}
				return c.printProjects([]servercommon.Project{{
					ID:          project.ID,
					Slug:        project.Slug,
					Name:        project.Name,
					Description: project.Description,
					CreatedAt:   project.CreatedAt,
					UpdatedAt:   project.UpdatedAt,
					ArchivedAt:  project.ArchivedAt,
				}})
			})
		},
	}
}

func (c *cli) printProjects(projects []servercommon.Project) error {
	return emit(c.stdout, c.jsonOut, projects, func() *table.Table {
		t := newTable("Slug", "Name", "Description", "Archived", "ID")
		for _, p := range projects {
			archived := "no"
			if p.ArchivedAt != nil {
				archived = domain.FormatCalendarDay(*p.ArchivedAt)
			}
			t.Row(p.Slug, p.Name, textCell(p.Description), archived, p.ID)
		}
		return t
	})
}

func (c *cli) printActivity(events []servercommon.ChangeEvent) error {
	return emit(c.stdout, c.jsonOut, events, func() *table.Table {
		t := newTable("When", "Actor", "Entity", "Operation", "Fields")
		for _, e := range events {
			t.Row(
				e.OccurredAt.Local().Format("2006-01-02 15:04"),
				e.Actor,
				e.EntityType+" "+shortID(e.EntityID),
				e.Operation,
				textCell(joinFields(e.ChangedFields)),
			)
		}
		return t
	})
}
