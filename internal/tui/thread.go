package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/qctl/internal/domain"
)

// threadLimit caps the comments loaded into the thread pane.
const threadLimit = 50

// threadLoadedMsg carries one task's comments, newest first.
type threadLoadedMsg struct {
	taskID   string
	comments []domain.Comment
	err      error
}

// threadActionMsg reports a posted or deleted comment.
type threadActionMsg struct {
	taskID string
	status string
	posted bool
	err    error
}

// openThread switches to the comment thread of the selected task.
func (m Model) openThread() (tea.Model, tea.Cmd) {
	task, ok := m.currentTask()
	if !ok {
		return m, nil
	}
	m.mode = modeThread
	m.threadTaskID = task.Task.ID
	m.threadTitle = task.Task.Code + "  " + task.Task.Name
	m.threadComments = nil
	m.threadSelected = 0
	m.threadConfirmDelete = false
	m.threadInput.SetValue("")
	m.status = "loading thread..."
	m.threadInput.Focus()
	return m, m.loadThread(task.Task.ID)
}

// closeThread returns to the dashboard.
func (m Model) closeThread() (tea.Model, tea.Cmd) {
	m.mode = modeNone
	m.threadInput.Blur()
	m.threadConfirmDelete = false
	m.status = "ready"
	return m, nil
}

// handleThreadKey handles keys while the thread pane is open.
func (m Model) handleThreadKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.deleteComment) {
		return m.deleteSelectedComment()
	}
	m.threadConfirmDelete = false

	switch msg.Code {
	case tea.KeyEscape:
		return m.closeThread()
	case tea.KeyUp:
		m.threadSelected = clamp(m.threadSelected-1, 0, len(m.threadComments)-1)
		return m, nil
	case tea.KeyDown:
		m.threadSelected = clamp(m.threadSelected+1, 0, len(m.threadComments)-1)
		return m, nil
	case tea.KeyEnter:
		body := strings.TrimSpace(m.threadInput.Value())
		if body == "" {
			m.status = "comment is empty"
			return m, nil
		}
		m.status = "posting..."
		return m, m.postComment(m.threadTaskID, body)
	}
	var cmd tea.Cmd
	m.threadInput, cmd = m.threadInput.Update(msg)
	return m, cmd
}

// deleteSelectedComment arms on the first press and deletes on the second.
func (m Model) deleteSelectedComment() (tea.Model, tea.Cmd) {
	if len(m.threadComments) == 0 {
		return m, nil
	}
	comment := m.threadComments[clamp(m.threadSelected, 0, len(m.threadComments)-1)]
	if !m.threadConfirmDelete {
		m.threadConfirmDelete = true
		m.status = fmt.Sprintf("press %s again to delete the comment by %s", m.keys.deleteComment.Help().Key, comment.Actor)
		return m, nil
	}
	m.threadConfirmDelete = false
	m.status = "deleting..."
	svc := m.svc
	ctx := m.mutationContext()
	taskID := m.threadTaskID
	return m, func() tea.Msg {
		if err := svc.DeleteTaskComment(ctx, taskID, comment.ID); err != nil {
			return threadActionMsg{taskID: taskID, err: fmt.Errorf("delete comment: %w", err)}
		}
		return threadActionMsg{taskID: taskID, status: "comment deleted"}
	}
}

// postComment returns a command appending body to one task's thread.
func (m Model) postComment(taskID, body string) tea.Cmd {
	svc := m.svc
	ctx := m.mutationContext()
	return func() tea.Msg {
		if _, err := svc.AddTaskComment(ctx, taskID, body); err != nil {
			return threadActionMsg{taskID: taskID, err: fmt.Errorf("post comment: %w", err)}
		}
		return threadActionMsg{taskID: taskID, status: "comment posted", posted: true}
	}
}

// loadThread fetches the newest comments for one task.
func (m Model) loadThread(taskID string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		comments, err := svc.ListTaskComments(context.Background(), taskID, threadLimit)
		return threadLoadedMsg{taskID: taskID, comments: comments, err: err}
	}
}

// applyThreadLoaded stores comments unless the thread has since changed.
func (m Model) applyThreadLoaded(msg threadLoadedMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeThread || msg.taskID != m.threadTaskID {
		return m, nil
	}
	if msg.err != nil {
		m.status = "thread unavailable: " + msg.err.Error()
		return m, nil
	}
	m.threadComments = msg.comments
	m.threadSelected = clamp(m.threadSelected, 0, len(m.threadComments)-1)
	if m.status == "loading thread..." {
		m.status = fmt.Sprintf("%d comments", len(msg.comments))
	}
	return m, nil
}

// applyThreadAction reloads the thread after a successful write.
func (m Model) applyThreadAction(msg threadActionMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.status = "error: " + msg.err.Error()
		return m, nil
	}
	m.status = msg.status
	if m.mode != modeThread || msg.taskID != m.threadTaskID {
		return m, nil
	}
	if msg.posted {
		m.threadInput.SetValue("")
		m.threadSelected = 0
	}
	return m, m.loadThread(msg.taskID)
}

// renderThread renders the full-screen comment thread.
func (m Model) renderThread() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(titleColor)
	hintStyle := lipgloss.NewStyle().Foreground(mutedColor)
	statusStyle := lipgloss.NewStyle().Foreground(dimColor)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)

	header := titleStyle.Render("qctl thread") + "  " + m.threadTitle
	before := []string{header, sectionStyle.Render(fmt.Sprintf("Comments (%d)", len(m.threadComments))), ""}

	in := m.threadInput
	in.SetWidth(max(20, m.width-18))
	after := []string{
		"",
		in.View(),
		hintStyle.Render(fmt.Sprintf("enter post • ↑/↓ select • %s delete • esc back", m.keys.deleteComment.Help().Key)),
		statusStyle.Render(m.status),
	}

	body, anchor := m.threadBodyLines(max(minMarkdownWrap, m.width-8), hintStyle)
	bodyHeight := 12
	if m.height > 0 {
		bodyHeight = max(6, m.height-len(before)-len(after))
	}
	top := clamp(anchor-bodyHeight/3, 0, max(0, len(body)-bodyHeight))
	visible := body[top:min(len(body), top+bodyHeight)]

	return strings.Join(append(append(before, visible...), after...), "\n")
}

// threadBodyLines renders the comments and returns the row where the selection starts.
func (m Model) threadBodyLines(width int, hintStyle lipgloss.Style) ([]string, int) {
	if len(m.threadComments) == 0 {
		return []string{hintStyle.Render("(no comments yet)")}, 0
	}
	selectedStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	var lines []string
	anchor := 0
	for idx, comment := range m.threadComments {
		cursor := "  "
		attribution := hintStyle
		if idx == m.threadSelected {
			cursor = "> "
			attribution = selectedStyle
			anchor = len(lines)
		}
		lines = append(lines, cursor+attribution.Render(fmt.Sprintf("%s • %s", comment.Actor, formatThreadTimestamp(comment.CreatedAt))))
		for _, line := range m.markdown.renderLines(comment.Body, width) {
			lines = append(lines, "    "+line)
		}
		if idx < len(m.threadComments)-1 {
			lines = append(lines, "")
		}
	}
	return lines, anchor
}

// formatThreadTimestamp formats comment timestamps for attribution rows.
func formatThreadTimestamp(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return at.UTC().Format("2006-01-02 15:04")
}
