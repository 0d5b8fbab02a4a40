package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss/table"
	servercommon "github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/app"
	"github.com/hylla/qctl/internal/domain"
	"github.com/spf13/cobra"
)

// dashboardCommand prints portfolio-wide aggregates.
func (c *cli) dashboardCommand() *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show portfolio-wide task, hour and resource totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, "dashboard", func(ctx context.Context) error {
				dashboard, err := c.adapter.Dashboard(ctx)
				if err != nil {
					return err
				}
				if markdown && !c.jsonOut {
					rendered, err := glamour.Render(dashboardMarkdown(dashboard), "dark")
					if err != nil {
						return fmt.Errorf("render dashboard markdown: %w", err)
					}
					_, err = fmt.Fprint(c.stdout, rendered)
					return err
				}
				return emit(c.stdout, c.jsonOut, dashboard, func() *table.Table {
					t := newTable("Metric", "Value")
					for _, row := range dashboardRows(dashboard) {
						t.Row(row[0], row[1])
					}
					return t
				})
			})
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render as styled markdown")
	return cmd
}

// dashboardRows flattens a dashboard into label/value pairs in display order.
func dashboardRows(d app.Dashboard) [][2]string {
	rows := [][2]string{
		{"projects", fmt.Sprint(d.TotalProjects)},
		{"projects with tasks", fmt.Sprint(d.ProjectsWithTasks)},
		{"tasks", fmt.Sprint(d.TotalTasks)},
		{"backlog", fmt.Sprint(d.TasksBacklog)},
		{"in progress", fmt.Sprint(d.TasksInProgress)},
		{"done", fmt.Sprint(d.TasksDone)},
		{"cancelled", fmt.Sprint(d.TasksCancelled)},
		{"completion rate", fmt.Sprintf("%.1f%%", d.OverallCompletionRatePct)},
		{"estimated hours", hours(d.TotalEstimatedHrs)},
		{"actual hours", hours(d.TotalActualHrs)},
		{"hours variance", hours(d.TotalHoursVariance)},
		{"active resources", fmt.Sprint(d.ActiveResources)},
		{"overallocated resources", fmt.Sprint(d.OverallocatedResources)},
	}
	for _, h := range domain.HealthStatuses() {
		rows = append(rows, [2]string{string(h), fmt.Sprint(d.HealthCounts[h])})
	}
	return rows
}

func dashboardMarkdown(d app.Dashboard) string {
	var b strings.Builder
	b.WriteString("# Dashboard\n\n")
	b.WriteString("| Metric | Value |\n| --- | --- |\n")
	for _, row := range dashboardRows(d) {
		fmt.Fprintf(&b, "| %s | %s |\n", row[0], row[1])
	}
	fmt.Fprintf(&b, "\n_calculated %s_\n", d.CalculatedAt.Local().Format("2006-01-02 15:04"))
	return b.String()
}

// workdaysCommand exposes the Sunday-Thursday calendar arithmetic.
func (c *cli) workdaysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workdays",
		Aliases: []string{"wd"},
		Short:   "Working-day calendar arithmetic (Sunday-Thursday week)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "count <start> <end>",
			Short: "Count working days in [start, end)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withService(cmd, "workdays count", func(ctx context.Context) error {
					out, err := c.adapter.CountWorkingDays(ctx, servercommon.CountWorkingDaysRequest{Start: args[0], End: args[1]})
					if err != nil {
						return err
					}
					if c.jsonOut {
						return writeJSON(c.stdout, out)
					}
					_, err = fmt.Fprintf(c.stdout, "%d working days from %s to %s\n", out.WorkingDays, out.Start, out.End)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "add <date> <days>",
			Short: "Step a signed number of working days from date",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				days, err := strconv.Atoi(strings.TrimSpace(args[1]))
				if err != nil {
					return fmt.Errorf("parse days %q: %w", args[1], err)
				}
				return c.withService(cmd, "workdays add", func(ctx context.Context) error {
					out, err := c.adapter.AddWorkingDays(ctx, servercommon.AddWorkingDaysRequest{Date: args[0], Days: days})
					if err != nil {
						return err
					}
					if c.jsonOut {
						return writeJSON(c.stdout, out)
					}
					_, err = fmt.Fprintln(c.stdout, out.Result)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "check <date>",
			Short: "Report whether date is a working day",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withService(cmd, "workdays check", func(ctx context.Context) error {
					out, err := c.adapter.CheckWorkingDay(ctx, args[0])
					if err != nil {
						return err
					}
					if c.jsonOut {
						return writeJSON(c.stdout, out)
					}
					kind := "a working day"
					if !out.WorkingDay {
						kind = "not a working day"
					}
					_, err = fmt.Fprintf(c.stdout, "%s (%s) is %s\n", out.Date, out.Weekday, kind)
					return err
				})
			},
		},
	)
	return cmd
}

// timelineCommand computes timeline metrics for ad-hoc dates without storing a task.
func (c *cli) timelineCommand() *cobra.Command {
	var (
		in           servercommon.TimelineRequest
		estimateDays float64
	)
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Compute variances and health for raw task dates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("estimate-days") {
				in.EstimateDays = &estimateDays
			}
			return c.withService(cmd, "timeline", func(ctx context.Context) error {
				out, err := c.adapter.ComputeTimeline(ctx, in)
				if err != nil {
					return err
				}
				return emit(c.stdout, c.jsonOut, out, func() *table.Table {
					t := newTable("Metric", "Value")
					t.Row("start variance", intCell(out.StartVariance))
					t.Row("completion variance", intCell(out.CompletionVariance))
					t.Row("execution variance", floatCell(out.ExecutionVariance))
					t.Row("health", healthCell(out.HealthStatus))
					if len(out.InvalidFields) > 0 {
						t.Row("invalid fields", joinFields(out.InvalidFields))
					}
					if out.Warning != "" {
						t.Row("warning", out.Warning)
					}
					return t
				})
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.ExpectedStartDate, "expected-start", "", "expected start day")
	flags.StringVar(&in.ActualStartDate, "actual-start", "", "actual start day")
	flags.StringVar(&in.Deadline, "deadline", "", "deadline day")
	flags.StringVar(&in.CompletedDate, "completed-date", "", "completion day")
	flags.Float64Var(&estimateDays, "estimate-days", 0, "estimated working days")
	return cmd
}
