package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/qctl/internal/adapters/server"
	servercommon "github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/adapters/storage/sqlite"
	"github.com/hylla/qctl/internal/app"
	"github.com/hylla/qctl/internal/config"
	"github.com/hylla/qctl/internal/platform"
	"github.com/spf13/cobra"
)

// version is stamped at build time.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory builds the TUI program; tests swap it for a fake.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run executes the command tree with explicit arguments and writers.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// cli holds global flags plus the runtime opened for one command.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	dbPath     string
	appName    string
	devMode    bool
	jsonOut    bool
	actorID    string

	paths   platform.Paths
	cfg     config.Config
	logger  *runtimeLogger
	repo    *sqlite.Repository
	svc     *app.Service
	adapter *servercommon.AppServiceAdapter
}

// newRootCommand builds the qctl command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	c := &cli{stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("QCTL_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv("QCTL_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}
	defaultActor := strings.TrimSpace(os.Getenv("USER"))
	if defaultActor == "" {
		defaultActor = "local"
	}

	root := &cobra.Command{
		Use:           "qctl",
		Short:         "Working-day calendar and task timeline health",
		Long:          "qctl tracks projects, tasks and resources on a Sunday-Thursday working-day calendar and reports schedule health.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runTUI(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config TOML")
	flags.StringVar(&c.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&c.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&c.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.BoolVar(&c.jsonOut, "json", false, "print JSON instead of tables")
	flags.StringVar(&c.actorID, "actor", defaultActor, "actor id recorded in the audit log")

	root.AddCommand(
		c.pathsCommand(),
		c.serveCommand(),
		c.tuiCommand(),
		c.projectCommand(),
		c.taskCommand(),
		c.resourceCommand(),
		c.dashboardCommand(),
		c.workdaysCommand(),
		c.timelineCommand(),
		c.exportCommand(),
		c.importCommand(),
	)
	return root
}

// resolvePaths resolves platform paths for the selected app name and mode.
func (c *cli) resolvePaths() error {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: c.appName,
		DevMode: c.devMode,
	})
	if err != nil {
		return err
	}
	c.paths = paths
	if strings.TrimSpace(c.configPath) == "" {
		if envPath := strings.TrimSpace(os.Getenv("QCTL_CONFIG")); envPath != "" {
			c.configPath = envPath
		} else {
			c.configPath = paths.ConfigPath
		}
	}
	return nil
}

// open loads config, logging, storage and the application service for one command.
func (c *cli) open(command string) error {
	if err := c.resolvePaths(); err != nil {
		return err
	}
	dbPath := strings.TrimSpace(c.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("QCTL_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = c.paths.DBPath
		}
	}

	cfg, err := config.Load(c.configPath, config.Default(dbPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", c.configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	c.cfg = cfg

	logger, err := newRuntimeLogger(c.stderr, c.appName, c.devMode, cfg.Logging, c.paths.LogDir, time.Now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	c.logger = logger
	if command == "tui" {
		logger.SetConsoleEnabled(false)
	}

	logger.Info("startup configuration resolved", "app", c.appName, "dev_mode", c.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", c.configPath, "data_dir", c.paths.DataDir, "db_path", cfg.Database.Path)
	logger.Info("configuration loaded", "config_path", c.configPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	calendar, err := cfg.WorkCalendar()
	if err != nil {
		c.close()
		return fmt.Errorf("configure calendar: %w", err)
	}

	logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		c.close()
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	c.repo = repo
	logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")

	c.svc = app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		Calendar:                 calendar,
		DeriveDeadline:           cfg.Schedule.DeriveDeadline,
		DefaultWeeklyCapacityHrs: cfg.Resources.DefaultWeeklyCapacityHrs,
		Logger:                   logger,
	})
	c.adapter = servercommon.NewAppServiceAdapter(c.svc)
	logger.Debug("application service initialized", "max_span_days", calendar.MaxSpanDays, "derive_deadline", cfg.Schedule.DeriveDeadline)
	return nil
}

// close releases storage and log sinks opened by open.
func (c *cli) close() {
	if c.repo != nil {
		if err := c.repo.Close(); err != nil {
			c.logger.Warn("sqlite close failed", "db_path", c.cfg.Database.Path, "err", err)
		}
		c.repo = nil
	}
	if err := c.logger.Close(); err != nil && c.logger.ConsoleEnabled() {
		_, _ = fmt.Fprintf(c.stderr, "warning: close runtime log sink: %v\n", err)
	}
	c.logger = nil
}

// withService opens the runtime, runs fn with an actor-attributed context and logs the command flow.
func (c *cli) withService(cmd *cobra.Command, command string, fn func(context.Context) error) error {
	if err := c.open(command); err != nil {
		return err
	}
	defer c.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = app.WithMutationActor(ctx, app.MutationActor{ActorID: c.actorID, Source: "cli"})

	c.logger.Info("command flow start", "command", command)
	if err := fn(ctx); err != nil {
		c.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	c.logger.Info("command flow complete", "command", command)
	return nil
}

// parseBoolEnv parses one boolean environment variable; ok is false when unset or invalid.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
