package tui

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/qctl/internal/app"
	"github.com/hylla/qctl/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	accentColor = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("241")
	dimColor    = lipgloss.Color("239")
	titleColor  = lipgloss.Color("252")
)

// healthColors maps each badge to its foreground color.
var healthColors = map[domain.HealthStatus]color.Color{
	domain.HealthOnTrack:        lipgloss.Color("42"),
	domain.HealthAtRisk:         lipgloss.Color("214"),
	domain.HealthOverdue:        lipgloss.Color("196"),
	domain.HealthCompletedEarly: lipgloss.Color("39"),
}

// View renders the dashboard.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

// render builds the full screen as a string.
func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready {
		return "loading..."
	}
	if m.mode == modeThread {
		return m.renderThread()
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(titleColor)
	helpStyle := lipgloss.NewStyle().Foreground(mutedColor)
	statusStyle := lipgloss.NewStyle().Foreground(dimColor)

	if len(m.projects) == 0 {
		return strings.Join([]string{
			titleStyle.Render("qctl"),
			"",
			"No projects yet.",
			"Create one with: qctl project add <name>",
			"Press r to reload or q to quit.",
			"",
			statusStyle.Render(m.status),
		}, "\n")
	}

	sections := []string{
		titleStyle.Render("qctl") + "  " + m.renderProjectTabs(),
		m.renderHealthSummary(),
		helpStyle.Render(m.renderFilterLine()),
		"",
		m.renderTaskTable(),
	}
	if m.detailOpen {
		if task, ok := m.currentTask(); ok {
			sections = append(sections, "", m.renderTaskDetail(task))
		}
	}
	if prompt := m.renderPrompt(); prompt != "" {
		sections = append(sections, "", prompt)
	}
	sections = append(sections, "", statusStyle.Render(m.status), m.help.View(m.keys))
	return strings.Join(sections, "\n")
}

// renderProjectTabs renders project names with the selection highlighted.
func (m Model) renderProjectTabs() string {
	active := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	inactive := lipgloss.NewStyle().Foreground(mutedColor)
	tabs := make([]string, 0, len(m.projects))
	for idx, project := range m.projects {
		if idx == m.selectedProject {
			tabs = append(tabs, active.Render("["+project.Name+"]"))
			continue
		}
		tabs = append(tabs, inactive.Render(project.Name))
	}
	return strings.Join(tabs, " ")
}

// renderHealthSummary renders the selected project's rollup line.
func (m Model) renderHealthSummary() string {
	h := m.health
	parts := []string{
		fmt.Sprintf("%d tasks", h.TotalTasks),
		fmt.Sprintf("%.1f%% done", h.CompletionRatePct),
	}
	for _, status := range domain.HealthStatuses() {
		if count := h.HealthCounts[status]; count > 0 {
			parts = append(parts, healthStyle(&status).Render(fmt.Sprintf("%d %s", count, strings.ToLower(healthLabel(&status)))))
		}
	}
	if h.Unscheduled > 0 {
		parts = append(parts, fmt.Sprintf("%d unscheduled", h.Unscheduled))
	}
	if m.display.ShowVariances {
		parts = append(parts, fmt.Sprintf("hours %s/%s (%s)",
			formatHours(h.ActualHours), formatHours(h.EstimatedHours), signedFloat(h.HoursVariance)))
	}
	if h.NextDeadline != nil {
		next := "next deadline " + domain.FormatCalendarDay(*h.NextDeadline)
		if h.WorkingDaysToNextDeadline != nil {
			next += fmt.Sprintf(" (%d wd)", *h.WorkingDaysToNextDeadline)
		}
		parts = append(parts, next)
	}
	return strings.Join(parts, " • ")
}

// renderFilterLine describes the active filters.
func (m Model) renderFilterLine() string {
	line := "health: " + m.healthFilterLabel()
	if m.searchQuery != "" {
		line += fmt.Sprintf(" • search: %q", m.searchQuery)
	}
	return line
}

// renderTaskTable renders one row per task with timeline columns.
func (m Model) renderTaskTable() string {
	if len(m.tasks) == 0 {
		return lipgloss.NewStyle().Foreground(mutedColor).Render("(no tasks match)")
	}
	nameWidth := m.nameColumnWidth()
	header := fmt.Sprintf("  %-12s %-*s %-12s %-16s %-10s", "CODE", nameWidth, "NAME", "STATUS", "HEALTH", "DEADLINE")
	if m.display.ShowVariances {
		header += fmt.Sprintf(" %6s %6s %6s", "START", "DONE", "EXEC")
	}
	rows := []string{lipgloss.NewStyle().Bold(true).Foreground(mutedColor).Render(header)}
	selected := lipgloss.NewStyle().Bold(true).Foreground(titleColor)
	for idx, item := range m.tasks {
		task := item.Task
		cursor := "  "
		if idx == m.selectedTask {
			cursor = "> "
		}
		row := fmt.Sprintf("%s%-12s %-*s %-12s ", cursor, truncate(task.Code, 12), nameWidth, truncate(task.Name, nameWidth), string(task.Status))
		row += healthStyle(item.Timeline.HealthStatus).Render(fmt.Sprintf("%-16s", healthLabel(item.Timeline.HealthStatus)))
		row += fmt.Sprintf(" %-10s", formatDay(task.Deadline))
		if m.display.ShowVariances {
			row += fmt.Sprintf(" %6s %6s %6s",
				formatDayVariance(item.Timeline.StartVariance),
				formatDayVariance(item.Timeline.CompletionVariance),
				formatExecVariance(item.Timeline.ExecutionVariance))
		}
		if idx == m.selectedTask {
			row = selected.Render(row)
		}
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}

// nameColumnWidth sizes the name column from the terminal width.
func (m Model) nameColumnWidth() int {
	fixed := 2 + 13 + 13 + 17 + 11
	if m.display.ShowVariances {
		fixed += 21
	}
	return clamp(m.width-fixed, 12, 48)
}

// renderTaskDetail renders the detail pane for one task.
func (m Model) renderTaskDetail(item app.TaskWithMetrics) string {
	task := item.Task
	label := lipgloss.NewStyle().Foreground(mutedColor)
	field := func(name, value string) string {
		return label.Render(fmt.Sprintf("%-16s", name)) + value
	}
	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render(task.Code + "  " + task.Name),
		field("status", fmt.Sprintf("%s • %s priority", task.Status, strings.ToLower(string(task.Priority)))),
		field("health", healthStyle(item.Timeline.HealthStatus).Render(healthLabel(item.Timeline.HealthStatus))),
		field("resource", fallback(task.ResourceID, "unassigned")),
		field("expected start", formatDay(task.ExpectedStartDate)),
		field("actual start", formatDay(task.ActualStartDate)),
		field("deadline", formatDay(task.Deadline)),
		field("completed", formatDay(task.CompletedDate)),
		field("estimate", formatEstimate(task)),
		field("actual hours", formatHours(task.ActualHours)),
	}
	if m.display.ShowVariances {
		lines = append(lines, field("variances", fmt.Sprintf("start %s • completion %s • execution %s",
			formatDayVariance(item.Timeline.StartVariance),
			formatDayVariance(item.Timeline.CompletionVariance),
			formatExecVariance(item.Timeline.ExecutionVariance))))
	}
	if len(task.Tags) > 0 {
		lines = append(lines, field("tags", strings.Join(task.Tags, ", ")))
	}
	if item.Warning != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(healthColors[domain.HealthAtRisk]).Render("warning: "+item.Warning))
	}
	if desc := strings.TrimSpace(task.Description); desc != "" {
		lines = append(lines, "", desc)
	}
	if m.display.ShowNotes && strings.TrimSpace(task.Notes) != "" {
		lines = append(lines, "", m.markdown.render(task.Notes, m.detailWidth()-4))
	}
	if m.activityTaskID == task.ID && len(m.activity) > 0 {
		lines = append(lines, "", label.Render("recent activity"))
		for _, event := range m.activity {
			lines = append(lines, fmt.Sprintf("%s  %-7s %-18s %s",
				event.OccurredAt.UTC().Format(time.DateTime),
				event.Operation,
				truncate(event.Actor, 18),
				strings.Join(event.ChangedFields, ", ")))
		}
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(m.detailWidth()).
		Render(strings.Join(lines, "\n"))
}

// detailWidth sizes the detail pane.
func (m Model) detailWidth() int {
	return clamp(m.width-2, 40, 120)
}

// renderPrompt renders the open input prompt, if any.
func (m Model) renderPrompt() string {
	switch m.mode {
	case modeSearch:
		return m.searchInput.View()
	case modeCompleteTask:
		code := ""
		if task, ok := m.currentTask(); ok {
			code = task.Task.Code
		}
		return "complete " + code + "  " + m.hoursInput.View() + "  (enter confirm • esc cancel)"
	case modeConfirmCancel:
		if task, ok := m.currentTask(); ok {
			return fmt.Sprintf("cancel %s? (y/enter confirm • any other key aborts)", task.Task.Code)
		}
	}
	return ""
}

// timelineSummary renders the one-line summary copied to the clipboard.
func timelineSummary(item app.TaskWithMetrics) string {
	task := item.Task
	parts := []string{
		task.Code + " " + task.Name,
		string(task.Status),
		"health " + healthLabel(item.Timeline.HealthStatus),
		"deadline " + formatDay(task.Deadline),
		"start " + formatDayVariance(item.Timeline.StartVariance),
		"completion " + formatDayVariance(item.Timeline.CompletionVariance),
		"execution " + formatExecVariance(item.Timeline.ExecutionVariance),
	}
	return strings.Join(parts, " | ")
}

// healthLabel renders a health status as a title-cased label.
func healthLabel(status *domain.HealthStatus) string {
	if status == nil {
		return "Unscheduled"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(*status), "_", " "))
}

// healthStyle returns the badge style for a health status.
func healthStyle(status *domain.HealthStatus) lipgloss.Style {
	if status == nil {
		return lipgloss.NewStyle().Foreground(mutedColor)
	}
	c, ok := healthColors[*status]
	if !ok {
		return lipgloss.NewStyle().Foreground(mutedColor)
	}
	return lipgloss.NewStyle().Foreground(c)
}

func formatDay(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return domain.FormatCalendarDay(*t)
}

// formatDayVariance renders a signed working-day variance.
func formatDayVariance(v *int) string {
	if v == nil {
		return "-"
	}
	if *v > 0 {
		return fmt.Sprintf("+%dd", *v)
	}
	return fmt.Sprintf("%dd", *v)
}

func formatExecVariance(v *float64) string {
	if v == nil {
		return "-"
	}
	return signedFloat(*v) + "d"
}

func formatEstimate(task domain.Task) string {
	days := "-"
	if task.EstimateDays != nil {
		days = strconv.FormatFloat(*task.EstimateDays, 'f', -1, 64) + "d"
	}
	return fmt.Sprintf("%s • %sh", days, formatHours(task.EstimateHours))
}

func formatHours(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func signedFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v > 0 {
		return "+" + s
	}
	return s
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// truncate shortens s to width runes with a trailing ellipsis.
func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}
