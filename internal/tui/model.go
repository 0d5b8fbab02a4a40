package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/atotto/clipboard"
	"github.com/hylla/qctl/internal/app"
	"github.com/hylla/qctl/internal/domain"
)

// Service represents the application surface the dashboard reads and mutates.
type Service interface {
	ListProjects(context.Context, bool) ([]domain.Project, error)
	ProjectHealth(context.Context, string) (app.ProjectHealth, error)
	ListTaskMetrics(context.Context, app.TaskFilter, ...domain.HealthStatus) ([]app.TaskWithMetrics, error)
	UpdateTask(context.Context, app.UpdateTaskInput) (domain.Task, error)
	ListTaskActivity(context.Context, string, int) ([]domain.ChangeEvent, error)
	ListTaskComments(context.Context, string, int) ([]domain.Comment, error)
	AddTaskComment(context.Context, string, string) (domain.Comment, error)
	DeleteTaskComment(context.Context, string, string) error
}

// inputMode represents a selectable mode.
type inputMode int

const (
	modeNone inputMode = iota
	modeSearch
	modeCompleteTask
	modeConfirmCancel
	modeThread
)

// activityLimit caps the audit entries shown in the detail pane.
const activityLimit = 10

// actorSource attributes dashboard mutations in the audit ledger.
const actorSource = "tui"

// Model is the bubbletea model for the timeline health dashboard.
type Model struct {
	svc      Service
	keys     keyMap
	help     help.Model
	display  DisplayConfig
	markdown *markdownRenderer
	now      func() time.Time
	copyText func(string) error
	actorID  string

	ready  bool
	width  int
	height int
	status string
	err    error

	mode        inputMode
	searchInput textinput.Model
	hoursInput  textinput.Model

	projects        []domain.Project
	selectedProject int
	health          app.ProjectHealth
	tasks           []app.TaskWithMetrics
	selectedTask    int
	focusTaskID     string

	healthFilter int
	searchQuery  string

	detailOpen     bool
	activity       []domain.ChangeEvent
	activityTaskID string

	threadTaskID        string
	threadTitle         string
	threadComments      []domain.Comment
	threadSelected      int
	threadConfirmDelete bool
	threadInput         textinput.Model
}

// loadedMsg carries one project's dashboard data.
type loadedMsg struct {
	projects        []domain.Project
	selectedProject int
	health          app.ProjectHealth
	tasks           []app.TaskWithMetrics
	err             error
}

// actionMsg reports a completed mutation.
type actionMsg struct {
	err         error
	status      string
	focusTaskID string
	reload      bool
}

// activityLoadedMsg carries audit entries for one task.
type activityLoadedMsg struct {
	taskID string
	events []domain.ChangeEvent
	err    error
}

// NewModel constructs the dashboard model.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:         svc,
		keys:        newKeyMap(),
		help:        h,
		display:     DefaultDisplayConfig(),
		markdown:    &markdownRenderer{},
		now:         time.Now,
		copyText:    clipboard.WriteAll,
		actorID:     "local",
		status:      "loading...",
		searchInput: newModalInput("/ ", "code, name, description, notes", "", 120),
		hoursInput:  newModalInput("actual hours: ", "e.g. 6.5", "", 12),
		threadInput: newModalInput("comment: ", "markdown, enter to post", "", domain.MaxCommentBodyLen),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// WithActorID sets the actor id recorded for dashboard mutations.
func WithActorID(id string) Option {
	return func(m *Model) {
		if id = strings.TrimSpace(id); id != "" {
			m.actorID = id
		}
	}
}

// newModalInput builds one single-line prompt input.
func newModalInput(prompt, placeholder, value string, limit int) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	if value != "" {
		in.SetValue(value)
	}
	return in
}

// Init loads the first project.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		m.help.SetWidth(msg.Width)
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.projects = msg.projects
		m.selectedProject = msg.selectedProject
		m.health = msg.health
		m.tasks = msg.tasks
		m.selectedTask = clamp(m.selectedTask, 0, len(m.tasks)-1)
		if m.focusTaskID != "" {
			m.focusTask(m.focusTaskID)
			m.focusTaskID = ""
		}
		if m.status == "" || m.status == "loading..." || m.status == "reloading..." {
			m.status = "ready"
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
			return m, nil
		}
		if msg.status != "" {
			m.status = msg.status
		}
		if msg.focusTaskID != "" {
			m.focusTaskID = msg.focusTaskID
		}
		if msg.reload {
			m.activity = nil
			m.activityTaskID = ""
			return m, m.loadData
		}
		return m, nil

	case activityLoadedMsg:
		if msg.err != nil {
			m.status = "activity unavailable: " + msg.err.Error()
			return m, nil
		}
		m.activity = msg.events
		m.activityTaskID = msg.taskID
		m.detailOpen = true
		m.status = fmt.Sprintf("%d activity entries", len(msg.events))
		return m, nil

	case threadLoadedMsg:
		return m.applyThreadLoaded(msg)

	case threadActionMsg:
		return m.applyThreadAction(msg)

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleInputModeKey(msg)
		}
		return m.handleNormalModeKey(msg)

	case tea.MouseWheelMsg:
		if m.mode == modeThread {
			switch msg.Button {
			case tea.MouseWheelUp:
				m.threadSelected = clamp(m.threadSelected-1, 0, len(m.threadComments)-1)
			case tea.MouseWheelDown:
				m.threadSelected = clamp(m.threadSelected+1, 0, len(m.threadComments)-1)
			}
			return m, nil
		}
		if m.mode != modeNone || len(m.tasks) == 0 {
			return m, nil
		}
		switch msg.Button {
		case tea.MouseWheelUp:
			m.selectedTask = clamp(m.selectedTask-1, 0, len(m.tasks)-1)
		case tea.MouseWheelDown:
			m.selectedTask = clamp(m.selectedTask+1, 0, len(m.tasks)-1)
		}
		return m, nil

	default:
		return m, nil
	}
}

// handleNormalModeKey handles keys while no prompt is open.
func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case msg.Code == tea.KeyEscape:
		switch {
		case m.help.ShowAll:
			m.help.ShowAll = false
		case m.detailOpen:
			m.detailOpen = false
		case m.searchQuery != "" || m.healthFilter != 0:
			m.searchQuery = ""
			m.healthFilter = 0
			m.status = "filters cleared"
			return m, m.loadData
		}
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadData
	case key.Matches(msg, m.keys.moveUp):
		if m.selectedTask > 0 {
			m.selectedTask--
		}
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		if m.selectedTask < len(m.tasks)-1 {
			m.selectedTask++
		}
		return m, nil
	case key.Matches(msg, m.keys.prevProject):
		return m.switchProject(-1)
	case key.Matches(msg, m.keys.nextProject):
		return m.switchProject(1)
	case key.Matches(msg, m.keys.taskInfo):
		if _, ok := m.currentTask(); ok {
			m.detailOpen = !m.detailOpen
		}
		return m, nil
	case key.Matches(msg, m.keys.toggleVariances):
		m.display.ShowVariances = !m.display.ShowVariances
		return m, nil
	case key.Matches(msg, m.keys.toggleNotes):
		m.display.ShowNotes = !m.display.ShowNotes
		return m, nil
	case key.Matches(msg, m.keys.cycleHealth):
		m.healthFilter = (m.healthFilter + 1) % (len(domain.HealthStatuses()) + 1)
		m.selectedTask = 0
		m.status = "health filter: " + m.healthFilterLabel()
		return m, m.loadData
	case key.Matches(msg, m.keys.search):
		m.mode = modeSearch
		m.searchInput.SetValue(m.searchQuery)
		return m, m.searchInput.Focus()
	case key.Matches(msg, m.keys.copyTask):
		task, ok := m.currentTask()
		if !ok {
			return m, nil
		}
		if err := m.copyText(timelineSummary(task)); err != nil {
			m.status = "copy failed: " + err.Error()
			return m, nil
		}
		m.status = "copied " + task.Task.Code
		return m, nil
	case key.Matches(msg, m.keys.activity):
		task, ok := m.currentTask()
		if !ok {
			return m, nil
		}
		return m, m.loadActivity(task.Task.ID)
	case key.Matches(msg, m.keys.comments):
		return m.openThread()
	case key.Matches(msg, m.keys.advanceStatus):
		return m.advanceStatus()
	case key.Matches(msg, m.keys.cancelTask):
		task, ok := m.currentTask()
		if !ok {
			return m, nil
		}
		if !domain.CanTransition(task.Task.Status, domain.StatusCancelled) {
			m.status = task.Task.Code + " is already closed"
			return m, nil
		}
		m.mode = modeConfirmCancel
		return m, nil
	default:
		return m, nil
	}
}

// handleInputModeKey routes keys to the open prompt.
func (m Model) handleInputModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeSearch:
		switch msg.Code {
		case tea.KeyEscape:
			m.mode = modeNone
			m.searchInput.Blur()
			return m, nil
		case tea.KeyEnter:
			m.mode = modeNone
			m.searchInput.Blur()
			m.searchQuery = strings.TrimSpace(m.searchInput.Value())
			m.selectedTask = 0
			if m.searchQuery == "" {
				m.status = "search cleared"
			} else {
				m.status = fmt.Sprintf("search: %q", m.searchQuery)
			}
			return m, m.loadData
		}
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd

	case modeCompleteTask:
		switch msg.Code {
		case tea.KeyEscape:
			m.mode = modeNone
			m.hoursInput.Blur()
			m.status = "completion cancelled"
			return m, nil
		case tea.KeyEnter:
			task, ok := m.currentTask()
			if !ok {
				m.mode = modeNone
				return m, nil
			}
			hours, err := strconv.ParseFloat(strings.TrimSpace(m.hoursInput.Value()), 64)
			if err != nil || hours <= 0 {
				m.status = "actual hours must be a positive number"
				return m, nil
			}
			m.mode = modeNone
			m.hoursInput.Blur()
			return m, m.completeTask(task.Task, hours)
		}
		var cmd tea.Cmd
		m.hoursInput, cmd = m.hoursInput.Update(msg)
		return m, cmd

	case modeConfirmCancel:
		m.mode = modeNone
		task, ok := m.currentTask()
		if !ok || (msg.String() != "y" && msg.Code != tea.KeyEnter) {
			m.status = "cancel aborted"
			return m, nil
		}
		return m, m.transitionTask(task.Task, domain.StatusCancelled, app.UpdateTaskInput{})

	case modeThread:
		return m.handleThreadKey(msg)
	}
	m.mode = modeNone
	return m, nil
}

// switchProject moves the project selection and reloads.
func (m Model) switchProject(delta int) (tea.Model, tea.Cmd) {
	if len(m.projects) < 2 {
		return m, nil
	}
	next := clamp(m.selectedProject+delta, 0, len(m.projects)-1)
	if next == m.selectedProject {
		return m, nil
	}
	m.selectedProject = next
	m.selectedTask = 0
	m.detailOpen = false
	m.activity = nil
	m.activityTaskID = ""
	m.status = "loading..."
	return m, m.loadData
}

// advanceStatus starts backlog work or opens the completion prompt.
func (m Model) advanceStatus() (tea.Model, tea.Cmd) {
	task, ok := m.currentTask()
	if !ok {
		return m, nil
	}
	switch task.Task.Status {
	case domain.StatusBacklog:
		in := app.UpdateTaskInput{}
		if task.Task.ActualStartDate == nil {
			today := domain.NormalizeDate(m.now())
			in.ActualStartDate = &today
		}
		return m, m.transitionTask(task.Task, domain.StatusInProgress, in)
	case domain.StatusInProgress:
		m.mode = modeCompleteTask
		value := ""
		if task.Task.ActualHours > 0 {
			value = strconv.FormatFloat(task.Task.ActualHours, 'f', -1, 64)
		}
		m.hoursInput.SetValue(value)
		return m, m.hoursInput.Focus()
	default:
		m.status = task.Task.Code + " is already closed"
		return m, nil
	}
}

// completeTask records completion evidence and moves the task to Done.
func (m Model) completeTask(task domain.Task, hours float64) tea.Cmd {
	in := app.UpdateTaskInput{ActualHours: &hours}
	if task.CompletedDate == nil {
		today := domain.NormalizeDate(m.now())
		in.CompletedDate = &today
	}
	return m.transitionTask(task, domain.StatusDone, in)
}

// transitionTask returns a command applying fields plus one status change.
func (m Model) transitionTask(task domain.Task, next domain.Status, in app.UpdateTaskInput) tea.Cmd {
	svc := m.svc
	ctx := m.mutationContext()
	in.TaskID = task.ID
	in.Status = &next
	return func() tea.Msg {
		updated, err := svc.UpdateTask(ctx, in)
		if err != nil {
			return actionMsg{err: fmt.Errorf("%s -> %s: %w", task.Code, next, err)}
		}
		return actionMsg{
			status:      fmt.Sprintf("%s is now %s", updated.Code, updated.Status),
			focusTaskID: updated.ID,
			reload:      true,
		}
	}
}

// mutationContext attributes writes to the local dashboard user.
func (m Model) mutationContext() context.Context {
	return app.WithMutationActor(context.Background(), app.MutationActor{
		ActorID: m.actorID,
		Source:  actorSource,
	})
}

// loadActivity fetches recent audit entries for one task.
func (m Model) loadActivity(taskID string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		events, err := svc.ListTaskActivity(context.Background(), taskID, activityLimit)
		return activityLoadedMsg{taskID: taskID, events: events, err: err}
	}
}

// loadData loads the project list plus health and tasks for the selected project.
func (m Model) loadData() tea.Msg {
	if m.svc == nil {
		return loadedMsg{err: errors.New("dashboard service unavailable")}
	}
	ctx := context.Background()
	projects, err := m.svc.ListProjects(ctx, false)
	if err != nil {
		return loadedMsg{err: err}
	}
	if len(projects) == 0 {
		return loadedMsg{projects: projects}
	}

	projectIdx := clamp(m.selectedProject, 0, len(projects)-1)
	project := projects[projectIdx]
	health, err := m.svc.ProjectHealth(ctx, project.ID)
	if err != nil {
		return loadedMsg{err: fmt.Errorf("project health %s: %w", project.Slug, err)}
	}
	tasks, err := m.svc.ListTaskMetrics(ctx, app.TaskFilter{
		ProjectID: project.ID,
		Search:    m.searchQuery,
	}, m.healthFilters()...)
	if err != nil {
		return loadedMsg{err: fmt.Errorf("list tasks %s: %w", project.Slug, err)}
	}
	return loadedMsg{
		projects:        projects,
		selectedProject: projectIdx,
		health:          health,
		tasks:           tasks,
	}
}

// healthFilters returns the active health filter, if any.
func (m Model) healthFilters() []domain.HealthStatus {
	statuses := domain.HealthStatuses()
	if m.healthFilter <= 0 || m.healthFilter > len(statuses) {
		return nil
	}
	return []domain.HealthStatus{statuses[m.healthFilter-1]}
}

// healthFilterLabel describes the active health filter.
func (m Model) healthFilterLabel() string {
	filters := m.healthFilters()
	if len(filters) == 0 {
		return "all"
	}
	return healthLabel(&filters[0])
}

// currentTask returns the selected task, if any.
func (m Model) currentTask() (app.TaskWithMetrics, bool) {
	if len(m.tasks) == 0 {
		return app.TaskWithMetrics{}, false
	}
	return m.tasks[clamp(m.selectedTask, 0, len(m.tasks)-1)], true
}

// currentProject returns the selected project, if any.
func (m Model) currentProject() (domain.Project, bool) {
	if len(m.projects) == 0 {
		return domain.Project{}, false
	}
	return m.projects[clamp(m.selectedProject, 0, len(m.projects)-1)], true
}

// focusTask selects the task with id when it is still listed.
func (m *Model) focusTask(id string) {
	for idx, task := range m.tasks {
		if task.Task.ID == id {
			m.selectedTask = idx
			return
		}
	}
}

// clamp bounds v to [minV, maxV]; an empty range yields minV.
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	return min(max(v, minV), maxV)
}
