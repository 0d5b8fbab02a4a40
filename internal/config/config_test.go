package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hylla/qctl/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/qctl.db")
	if cfg.Database.Path != "/tmp/qctl.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.DevFile.Enabled {
		t.Fatalf("unexpected logging defaults %#v", cfg.Logging)
	}
	if cfg.Calendar.MaxSpanDays != domain.DefaultMaxSpanDays {
		t.Fatalf("unexpected max span days %d", cfg.Calendar.MaxSpanDays)
	}
	if !cfg.Schedule.DeriveDeadline {
		t.Fatal("expected deadline derivation enabled by default")
	}
	if cfg.Resources.DefaultWeeklyCapacityHrs != 40 {
		t.Fatalf("unexpected default capacity %v", cfg.Resources.DefaultWeeklyCapacityHrs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/qctl.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/qctl.db"

[logging]
level = "DEBUG"

[logging.dev_file]
enabled = false

[server]
http_bind = "0.0.0.0:9000"

[calendar]
max_span_days = 730

[schedule]
derive_deadline = false

[resources]
default_weekly_capacity_hrs = 32.5

[ui]
show_variances = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/qctl.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.DevFile.Enabled {
		t.Fatalf("unexpected logging config %#v", cfg.Logging)
	}
	if cfg.Server.HTTPBind != "0.0.0.0:9000" || cfg.Server.APIEndpoint != "/api/v1" {
		t.Fatalf("unexpected server config %#v", cfg.Server)
	}
	if cfg.Schedule.DeriveDeadline || cfg.UI.ShowVariances {
		t.Fatal("expected schedule and ui overrides to apply")
	}
	if cfg.Resources.DefaultWeeklyCapacityHrs != 32.5 {
		t.Fatalf("unexpected capacity %v", cfg.Resources.DefaultWeeklyCapacityHrs)
	}
	cal, err := cfg.WorkCalendar()
	if err != nil {
		t.Fatalf("WorkCalendar() error = %v", err)
	}
	if cal.MaxSpanDays != 730 {
		t.Fatalf("unexpected calendar span %d", cal.MaxSpanDays)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "log level", content: "[logging]\nlevel = \"loud\"\n", want: "logging.level"},
		{name: "span", content: "[calendar]\nmax_span_days = 0\n", want: "calendar.max_span_days"},
		{name: "capacity", content: "[resources]\ndefault_weekly_capacity_hrs = 120\n", want: "default_weekly_capacity_hrs"},
		{name: "endpoint", content: "[server]\nmcp_endpoint = \"mcp\"\n", want: "server.mcp_endpoint"},
		{name: "dev file dir", content: "[logging.dev_file]\nenabled = true\ndir = \" \"\n", want: "dev_file.dir"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			_, err := Load(path, Default("/tmp/default.db"))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[database\npath ="), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := Load(path, Default("/tmp/default.db"))
	if err == nil || !strings.Contains(err.Error(), "decode toml") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestWorkCalendarRejectsInvalidSpan(t *testing.T) {
	cfg := Default("/tmp/qctl.db")
	cfg.Calendar.MaxSpanDays = -1
	if _, err := cfg.WorkCalendar(); !errors.Is(err, domain.ErrInvalidMaxSpanDays) {
		t.Fatalf("expected ErrInvalidMaxSpanDays, got %v", err)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}
