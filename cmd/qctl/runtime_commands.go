package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	serveradapter "github.com/hylla/qctl/internal/adapters/server"
	"github.com/hylla/qctl/internal/tui"
	"github.com/spf13/cobra"
)

// pathsCommand prints resolved runtime paths without opening storage.
func (c *cli) pathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data and log paths",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := c.resolvePaths(); err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			dbPath := c.paths.DBPath
			if override := strings.TrimSpace(c.dbPath); override != "" {
				dbPath = override
			}
			out := map[string]any{
				"app":      c.appName,
				"dev_mode": c.devMode,
				"config":   c.configPath,
				"data_dir": c.paths.DataDir,
				"db":       dbPath,
				"log_dir":  c.paths.LogDir,
			}
			return emit(c.stdout, c.jsonOut, out, func() *table.Table {
				t := newTable("Key", "Value")
				t.Row("app", c.appName)
				t.Row("dev_mode", fmt.Sprint(c.devMode))
				t.Row("config", c.configPath)
				t.Row("data_dir", c.paths.DataDir)
				t.Row("db", dbPath)
				t.Row("log_dir", c.paths.LogDir)
				return t
			})
		},
	}
}

// serveCommand runs the HTTP API and MCP endpoints until the context ends.
func (c *cli) serveCommand() *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, "serve", func(ctx context.Context) error {
				cfg := serveradapter.Config{
					HTTPBind:      c.cfg.Server.HTTPBind,
					APIEndpoint:   c.cfg.Server.APIEndpoint,
					MCPEndpoint:   c.cfg.Server.MCPEndpoint,
					ServerName:    c.appName,
					ServerVersion: version,
				}
				if cmd.Flags().Changed("http") {
					cfg.HTTPBind = httpBind
				}
				if cmd.Flags().Changed("api-endpoint") {
					cfg.APIEndpoint = apiEndpoint
				}
				if cmd.Flags().Changed("mcp-endpoint") {
					cfg.MCPEndpoint = mcpEndpoint
				}
				return serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Service: c.adapter,
					Ready:   c.repo.Ping,
					Logger:  c.logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "REST API base path (default from config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP endpoint path (default from config)")
	return cmd
}

// tuiCommand starts the interactive dashboard explicitly.
func (c *cli) tuiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive timeline dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runTUI(cmd)
		},
	}
}

// runTUI opens the runtime and runs the bubbletea program until it quits.
func (c *cli) runTUI(cmd *cobra.Command) error {
	return c.withService(cmd, "tui", func(context.Context) error {
		m := tui.NewModel(c.svc,
			tui.WithDisplayConfig(tui.DisplayConfig{
				ShowVariances: c.cfg.UI.ShowVariances,
				ShowNotes:     c.cfg.UI.ShowNotes,
			}),
			tui.WithActorID(c.actorID),
		)
		if _, err := programFactory(m).Run(); err != nil {
			return fmt.Errorf("run tui program: %w", err)
		}
		return nil
	})
}
