package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	serveradapter "github.com/hylla/qctl/internal/adapters/server"
	servercommon "github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/app"
	"github.com/hylla/qctl/internal/config"
	"github.com/hylla/qctl/internal/domain"
	"github.com/hylla/qctl/internal/tui"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("QCTL_DEV_MODE", "false")
	os.Exit(m.Run())
}

// fakeProgram stands in for the bubbletea program.
type fakeProgram struct {
	runErr error
}

// Run returns the configured error without touching the terminal.
func (f fakeProgram) Run() (tea.Model, error) {
	return nil, f.runErr
}

// testEnv holds per-test storage and config paths.
type testEnv struct {
	dir    string
	dbPath string
	cfg    string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	return testEnv{
		dir:    dir,
		dbPath: filepath.Join(dir, "qctl.db"),
		cfg:    filepath.Join(dir, "missing.toml"),
	}
}

// run executes args against the env database and returns stdout.
func (e testEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"--db", e.dbPath, "--config", e.cfg, "--actor", "tester"}, args...)
	if err := run(context.Background(), full, &out, io.Discard); err != nil {
		t.Fatalf("run(%v) error = %v", args, err)
	}
	return out.String()
}

func decodeJSON[T any](t *testing.T, raw string) T {
	t.Helper()
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("Unmarshal(%q) error = %v", raw, err)
	}
	return out
}

// TestRunVersion verifies the version flag output.
func TestRunVersion(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), "qctl") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

// TestRunStartsProgram verifies the bare command opens the TUI with a muted console.
func TestRunStartsProgram(t *testing.T) {
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })

	var started tea.Model
	programFactory = func(m tea.Model) program {
		started = m
		return fakeProgram{}
	}

	env := newTestEnv(t)
	var stderr bytes.Buffer
	if err := run(context.Background(), []string{"--db", env.dbPath, "--config", env.cfg}, io.Discard, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, ok := started.(tui.Model); !ok {
		t.Fatalf("expected tui.Model handed to program, got %T", started)
	}
	if got := strings.TrimSpace(stderr.String()); got != "" {
		t.Fatalf("expected no console logs in TUI mode, got %q", got)
	}
}

// TestRunProgramErrorPropagates verifies TUI failures surface as command errors.
func TestRunProgramErrorPropagates(t *testing.T) {
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })
	programFactory = func(_ tea.Model) program { return fakeProgram{runErr: io.ErrUnexpectedEOF} }

	env := newTestEnv(t)
	err := run(context.Background(), []string{"--db", env.dbPath, "--config", env.cfg, "tui"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "run tui program") {
		t.Fatalf("expected wrapped program error, got %v", err)
	}
}

// TestRunInvalidFlag verifies flag parse failures.
func TestRunInvalidFlag(t *testing.T) {
	if err := run(context.Background(), []string{"--unknown-flag"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected flag parse error")
	}
}

// TestRunUnknownCommand verifies unknown subcommands are rejected.
func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"unknown-command"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

// TestRunPathsCommand verifies path resolution output without opening storage.
func TestRunPathsCommand(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--app", "qctlx", "--dev", "--json", "paths"}, &out, io.Discard); err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	got := decodeJSON[map[string]any](t, out.String())
	if got["app"] != "qctlx" {
		t.Fatalf("expected app qctlx, got %#v", got["app"])
	}
	if got["dev_mode"] != true {
		t.Fatalf("expected dev_mode true, got %#v", got["dev_mode"])
	}
	if db, _ := got["db"].(string); !strings.Contains(db, "qctlx-dev") {
		t.Fatalf("expected dev db path, got %q", db)
	}
}

// TestRunProjectTaskFlow verifies create, transition and reporting through the CLI.
func TestRunProjectTaskFlow(t *testing.T) {
	env := newTestEnv(t)

	projects := decodeJSON[[]servercommon.Project](t, env.run(t, "--json", "project", "add", "Website Redesign", "--description", "public site"))
	if len(projects) != 1 || projects[0].Slug != "website-redesign" {
		t.Fatalf("unexpected project output %#v", projects)
	}

	task := decodeJSON[servercommon.Task](t, env.run(t, "--json", "task", "add",
		"--project", "website-redesign",
		"--code", "tsk-web-1",
		"--name", "Build landing page",
		"--expected-start", "2024-03-03",
		"--deadline", "2024-03-07",
		"--estimate-hours", "16",
		"--tag", "frontend",
	))
	if task.Code != "TSK-WEB-1" || task.Status != domain.StatusBacklog {
		t.Fatalf("unexpected task %#v", task)
	}

	out := env.run(t, "task", "status", "TSK-WEB-1", "in progress")
	if !strings.Contains(out, "TSK-WEB-1 is now In Progress") {
		t.Fatalf("unexpected status output %q", out)
	}

	done := decodeJSON[servercommon.Task](t, env.run(t, "--json", "task", "status", "TSK-WEB-1", "done",
		"--completed-date", "2024-03-06",
		"--actual-hours", "14",
	))
	if done.Status != domain.StatusDone || done.CompletedDate != "2024-03-06" {
		t.Fatalf("unexpected completed task %#v", done)
	}
	if done.Timeline.HealthStatus == nil {
		t.Fatal("expected health for a completed task with a deadline")
	}

	listed := decodeJSON[[]servercommon.Task](t, env.run(t, "--json", "task", "list", "--project", "website-redesign", "--status", "done"))
	if len(listed) != 1 || listed[0].Code != "TSK-WEB-1" {
		t.Fatalf("unexpected task list %#v", listed)
	}

	health := decodeJSON[app.ProjectHealth](t, env.run(t, "--json", "project", "health", "website-redesign"))
	if health.TotalTasks != 1 || health.StatusCounts[domain.StatusDone] != 1 {
		t.Fatalf("unexpected project health %#v", health)
	}
	if health.HoursVariance != -2 {
		t.Fatalf("expected hours variance -2, got %v", health.HoursVariance)
	}

	activity := decodeJSON[[]servercommon.ChangeEvent](t, env.run(t, "--json", "task", "activity", "TSK-WEB-1"))
	if len(activity) == 0 {
		t.Fatal("expected task activity entries")
	}
	if activity[0].Actor != "cli:tester" {
		t.Fatalf("expected cli actor attribution, got %q", activity[0].Actor)
	}

	table := env.run(t, "task", "list")
	if !strings.Contains(table, "TSK-WEB-1") || !strings.Contains(table, "Build landing page") {
		t.Fatalf("expected task row in table output, got %q", table)
	}

	dashboard := decodeJSON[app.Dashboard](t, env.run(t, "--json", "dashboard"))
	if dashboard.TotalTasks != 1 || dashboard.TasksDone != 1 || dashboard.TotalProjects != 1 {
		t.Fatalf("unexpected dashboard %#v", dashboard)
	}
}

// TestRunTaskCommentCommands verifies adding, listing, and deleting task comments.
func TestRunTaskCommentCommands(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, "project", "add", "Ops")
	env.run(t, "task", "add", "--project", "ops", "--code", "TSK-OPS-2", "--name", "Patch hosts")

	first := decodeJSON[servercommon.Comment](t, env.run(t, "--json", "task", "comment", "add", "tsk-ops-2", "waiting", "on", "vendor"))
	if first.Body != "waiting on vendor" || first.Actor != "cli:tester" {
		t.Fatalf("unexpected comment %#v", first)
	}
	env.run(t, "task", "comment", "add", "TSK-OPS-2", "patched staging")

	listed := decodeJSON[[]servercommon.Comment](t, env.run(t, "--json", "task", "comment", "list", "TSK-OPS-2"))
	if len(listed) != 2 || listed[1].ID != first.ID {
		t.Fatalf("unexpected comment list %#v", listed)
	}
	if out := env.run(t, "task", "comments", "list", "TSK-OPS-2", "--limit", "1"); !strings.Contains(out, "patched staging") || strings.Contains(out, "vendor") {
		t.Fatalf("unexpected limited table %q", out)
	}

	if out := env.run(t, "task", "comment", "delete", "TSK-OPS-2", first.ID); !strings.Contains(out, "deleted comment "+first.ID) {
		t.Fatalf("unexpected delete output %q", out)
	}
	full := []string{"--db", env.dbPath, "--config", env.cfg, "task", "comment", "add", "TSK-OPS-2", " "}
	if err := run(context.Background(), full, io.Discard, io.Discard); err == nil {
		t.Fatal("expected blank comment to be rejected")
	}
}

// TestRunTaskStatusRequiresCompletionFields verifies Done is rejected without completion data.
func TestRunTaskStatusRequiresCompletionFields(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, "project", "add", "Ops")
	env.run(t, "task", "add", "--project", "ops", "--code", "TSK-OPS-1", "--name", "Rotate keys")
	env.run(t, "task", "status", "TSK-OPS-1", "in-progress")

	full := []string{"--db", env.dbPath, "--config", env.cfg, "task", "status", "TSK-OPS-1", "done"}
	err := run(context.Background(), full, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "run task status command") {
		t.Fatalf("expected task status failure, got %v", err)
	}
}

// TestRunResourceCommands verifies resource registration and utilization listing.
func TestRunResourceCommands(t *testing.T) {
	env := newTestEnv(t)
	created := decodeJSON[[]servercommon.Resource](t, env.run(t, "--json", "resource", "add", "Dana", "--role", "engineer", "--capacity", "30"))
	if len(created) != 1 || created[0].WeeklyCapacityHrs != 30 || !created[0].Active {
		t.Fatalf("unexpected resource %#v", created)
	}

	listed := decodeJSON[[]servercommon.Resource](t, env.run(t, "--json", "resource", "list"))
	if len(listed) != 1 || listed[0].Utilization == nil {
		t.Fatalf("expected resource with utilization, got %#v", listed)
	}

	env.run(t, "resource", "deactivate", created[0].ID)
	listed = decodeJSON[[]servercommon.Resource](t, env.run(t, "--json", "resource", "list"))
	if len(listed) != 0 {
		t.Fatalf("expected inactive resource hidden, got %#v", listed)
	}
}

// TestRunWorkdaysCommands verifies calendar arithmetic output.
func TestRunWorkdaysCommands(t *testing.T) {
	env := newTestEnv(t)

	count := decodeJSON[servercommon.WorkingDaysCount](t, env.run(t, "--json", "workdays", "count", "2024-03-03", "2024-03-10"))
	if count.WorkingDays != 5 {
		t.Fatalf("expected 5 working days, got %d", count.WorkingDays)
	}

	if got := strings.TrimSpace(env.run(t, "workdays", "add", "2024-03-07", "1")); got != "2024-03-10" {
		t.Fatalf("expected Thursday + 1 to land on Sunday, got %q", got)
	}

	check := env.run(t, "workdays", "check", "2024-03-08")
	if !strings.Contains(check, "not a working day") {
		t.Fatalf("expected Friday reported as non-working, got %q", check)
	}

	full := []string{"--db", env.dbPath, "--config", env.cfg, "workdays", "add", "2024-03-07", "one"}
	if err := run(context.Background(), full, io.Discard, io.Discard); err == nil {
		t.Fatal("expected non-numeric day offset error")
	}
}

// TestRunTimelineCommandReportsInvalidFields verifies unparseable dates are surfaced, not fatal.
func TestRunTimelineCommandReportsInvalidFields(t *testing.T) {
	env := newTestEnv(t)
	out := decodeJSON[servercommon.TimelineResponse](t, env.run(t, "--json", "timeline",
		"--expected-start", "2024-03-03",
		"--actual-start", "2024-03-05",
		"--deadline", "not-a-date",
	))
	if out.StartVariance == nil || *out.StartVariance != 2 {
		t.Fatalf("expected start variance 2, got %v", out.StartVariance)
	}
	if len(out.InvalidFields) != 1 || out.InvalidFields[0] != "deadline" {
		t.Fatalf("expected deadline reported invalid, got %#v", out.InvalidFields)
	}
}

// TestRunExportImportRoundTrip verifies a YAML snapshot restores into a fresh database.
func TestRunExportImportRoundTrip(t *testing.T) {
	src := newTestEnv(t)
	src.run(t, "project", "add", "Migration")
	src.run(t, "task", "add", "--project", "migration", "--code", "TSK-MIG-7", "--name", "Copy tables", "--expected-start", "2024-03-04")

	snapPath := filepath.Join(src.dir, "out", "snapshot.yaml")
	src.run(t, "export", "--out", snapPath)
	content, err := os.ReadFile(snapPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), app.SnapshotVersion) {
		t.Fatalf("expected snapshot version in yaml, got %q", string(content))
	}

	dst := newTestEnv(t)
	out := dst.run(t, "import", "--in", snapPath)
	if !strings.Contains(out, "imported 1 projects, 0 resources, 1 tasks") {
		t.Fatalf("unexpected import output %q", out)
	}
	tasks := decodeJSON[[]servercommon.Task](t, dst.run(t, "--json", "task", "list"))
	if len(tasks) != 1 || tasks[0].Code != "TSK-MIG-7" || tasks[0].ExpectedStartDate != "2024-03-04" {
		t.Fatalf("unexpected imported tasks %#v", tasks)
	}
}

// TestRunExportToStdout verifies the default output target.
func TestRunExportToStdout(t *testing.T) {
	env := newTestEnv(t)
	snap := decodeJSON[app.Snapshot](t, env.run(t, "export"))
	if snap.Version != app.SnapshotVersion || len(snap.Projects) != 0 {
		t.Fatalf("unexpected empty snapshot %#v", snap)
	}
}

// TestRunImportRequiresInput verifies the import flag is mandatory.
func TestRunImportRequiresInput(t *testing.T) {
	env := newTestEnv(t)
	err := run(context.Background(), []string{"--db", env.dbPath, "--config", env.cfg, "import"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "required flag") {
		t.Fatalf("expected missing --in error, got %v", err)
	}
}

// TestRunServeUsesConfigAndFlags verifies serve wiring without binding a socket.
func TestRunServeUsesConfigAndFlags(t *testing.T) {
	origRunner := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = origRunner })

	var (
		gotCfg   serveradapter.Config
		readyErr error
		called   bool
	)
	serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
		called = true
		gotCfg = cfg
		if deps.Service == nil || deps.Ready == nil {
			t.Fatal("expected service and readiness dependencies")
		}
		readyErr = deps.Ready(ctx)
		return nil
	}

	env := newTestEnv(t)
	env.run(t, "serve", "--http", "127.0.0.1:9999")
	if !called {
		t.Fatal("expected serve runner call")
	}
	if gotCfg.HTTPBind != "127.0.0.1:9999" {
		t.Fatalf("expected flag bind, got %q", gotCfg.HTTPBind)
	}
	if gotCfg.APIEndpoint != "/api/v1" || gotCfg.MCPEndpoint != "/mcp" {
		t.Fatalf("expected config endpoints, got %#v", gotCfg)
	}
	if gotCfg.ServerName != "qctl" {
		t.Fatalf("expected server name qctl, got %q", gotCfg.ServerName)
	}
	if readyErr != nil {
		t.Fatalf("Ready() error = %v", readyErr)
	}
}

// TestRunConfigAndDBEnvOverrides verifies env paths take effect.
func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "env.db")
	cfgPath := filepath.Join(tmp, "env.toml")
	if err := os.WriteFile(cfgPath, []byte("[database]\npath = \"/tmp/ignore-me.db\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("QCTL_CONFIG", cfgPath)
	t.Setenv("QCTL_DB_PATH", dbPath)

	if err := run(context.Background(), []string{"workdays", "check", "2024-03-03"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(workdays with env paths) error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at env path, stat error %v", err)
	}
}

// TestRunRejectsInvalidLoggingLevelFromConfig verifies config validation errors surface.
func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "qctl.toml")
	if err := os.WriteFile(cfgPath, []byte("[logging]\nlevel = \"verbose\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	err := run(context.Background(), []string{"--db", filepath.Join(tmp, "qctl.db"), "--config", cfgPath, "dashboard"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "invalid logging.level") {
		t.Fatalf("expected logging level validation error, got %v", err)
	}
}

// TestRunDevModeCreatesWorkspaceLogFile verifies the dev file sink lands under the workspace root.
func TestRunDevModeCreatesWorkspaceLogFile(t *testing.T) {
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "go.mod"), []byte("module example.com/ws\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Chdir(workspace)

	args := []string{"--dev", "--db", filepath.Join(workspace, "qctl.db"), "--config", filepath.Join(workspace, "missing.toml"), "workdays", "check", "2024-03-03"}
	if err := run(context.Background(), args, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	logDir := filepath.Join(workspace, ".qctl", "log")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var logFile string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".log") {
			logFile = filepath.Join(logDir, entry.Name())
			break
		}
	}
	if logFile == "" {
		t.Fatalf("expected a .log file in %s, got %v", logDir, entries)
	}
	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "command flow complete") {
		t.Fatalf("expected command flow entry in dev log, got %q", string(content))
	}
}

// TestRuntimeLoggerCanMuteConsoleSink verifies the console toggle.
func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	cfg := config.Default("/tmp/qctl.db").Logging

	logger, err := newRuntimeLogger(&console, "qctl", false, cfg, "", func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	if logger.DevLogPath() != "" {
		t.Fatalf("expected no dev log outside dev mode, got %q", logger.DevLogPath())
	}

	logger.Info("before")
	logger.SetConsoleEnabled(false)
	logger.Info("during")
	logger.SetConsoleEnabled(true)
	logger.Info("after")

	out := console.String()
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Fatalf("expected console log to include before and after, got %q", out)
	}
	if strings.Contains(out, "during") {
		t.Fatalf("expected muted console log to omit 'during', got %q", out)
	}
}

// TestDevLogFilePath verifies per-day log naming and stem sanitizing.
func TestDevLogFilePath(t *testing.T) {
	now := time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	got := devLogFilePath("/var/log/qctl/", "team board:v2", now)
	want := filepath.Join("/var/log/qctl", "team-board-v2-20260223.log")
	if got != want {
		t.Fatalf("devLogFilePath() = %q, want %q", got, want)
	}
	if stem := sanitizeLogFileStem("  / "); stem != "qctl" {
		t.Fatalf("sanitizeLogFileStem() = %q, want qctl", stem)
	}
}

// TestParseBoolEnv verifies boolean env parsing.
func TestParseBoolEnv(t *testing.T) {
	t.Setenv("QCTL_BOOL_TEST", "true")
	got, ok := parseBoolEnv("QCTL_BOOL_TEST")
	if !ok || !got {
		t.Fatalf("expected true bool env parse, got value=%t ok=%t", got, ok)
	}

	t.Setenv("QCTL_BOOL_TEST", "not-bool")
	if _, ok := parseBoolEnv("QCTL_BOOL_TEST"); ok {
		t.Fatal("expected invalid bool env to return ok=false")
	}
}
