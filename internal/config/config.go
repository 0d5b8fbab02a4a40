package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/qctl/internal/domain"
)

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Logging   LoggingConfig   `toml:"logging"`
	Server    ServerConfig    `toml:"server"`
	Calendar  CalendarConfig  `toml:"calendar"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	Resources ResourcesConfig `toml:"resources"`
	UI        UIConfig        `toml:"ui"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the logfmt file sink used in dev mode.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type CalendarConfig struct {
	MaxSpanDays int `toml:"max_span_days"`
}

type ScheduleConfig struct {
	// DeriveDeadline fills a missing deadline from expected start plus estimate.
	DeriveDeadline bool `toml:"derive_deadline"`
}

type ResourcesConfig struct {
	DefaultWeeklyCapacityHrs float64 `toml:"default_weekly_capacity_hrs"`
}

type UIConfig struct {
	ShowVariances bool `toml:"show_variances"`
	ShowNotes     bool `toml:"show_notes"`
}

var validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".qctl/log",
			},
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:5437",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Calendar: CalendarConfig{
			MaxSpanDays: domain.DefaultMaxSpanDays,
		},
		Schedule: ScheduleConfig{
			DeriveDeadline: true,
		},
		Resources: ResourcesConfig{
			DefaultWeeklyCapacityHrs: domain.DefaultWeeklyCapacityHours,
		},
		UI: UIConfig{
			ShowVariances: true,
			ShowNotes:     true,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if !isValidLogLevel(level) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when dev_file is enabled")
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		if !strings.HasPrefix(strings.TrimSpace(endpoint), "/") {
			return fmt.Errorf("%s must start with /: %q", name, endpoint)
		}
	}

	if c.Calendar.MaxSpanDays <= 0 {
		return fmt.Errorf("calendar.max_span_days must be > 0, got %d", c.Calendar.MaxSpanDays)
	}

	capacity := c.Resources.DefaultWeeklyCapacityHrs
	if capacity < domain.MinWeeklyCapacityHours || capacity > domain.MaxWeeklyCapacityHours {
		return fmt.Errorf("resources.default_weekly_capacity_hrs must be within %.0f..%.0f, got %v", domain.MinWeeklyCapacityHours, domain.MaxWeeklyCapacityHours, capacity)
	}

	return nil
}

// WorkCalendar builds the working-day calendar configured by [calendar].
func (c Config) WorkCalendar() (domain.Calendar, error) {
	return domain.NewCalendar(c.Calendar.MaxSpanDays)
}

func isValidLogLevel(level string) bool {
	return slices.Contains(validLogLevels, level)
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
