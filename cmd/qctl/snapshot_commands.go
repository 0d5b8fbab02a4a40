package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hylla/qctl/internal/app"
	"github.com/spf13/cobra"
)

// exportCommand writes a portable snapshot of projects, resources and tasks.
func (c *cli) exportCommand() *cobra.Command {
	var (
		outPath         string
		format          string
		includeArchived bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a JSON or YAML snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, "export", func(ctx context.Context) error {
				snap, err := c.svc.ExportSnapshot(ctx, includeArchived)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				if strings.TrimSpace(format) == "" {
					format = app.SnapshotFormatForPath(outPath)
				}
				if outPath == "" || outPath == "-" {
					return app.EncodeSnapshot(c.stdout, snap, format)
				}
				if err := writeSnapshotFile(outPath, snap, format); err != nil {
					return err
				}
				c.logger.Info("snapshot exported", "path", outPath, "projects", len(snap.Projects), "tasks", len(snap.Tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output path or - for stdout")
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from --out extension)")
	cmd.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived projects, inactive resources and deleted tasks")
	return cmd
}

// importCommand upserts a snapshot by record id.
func (c *cli) importCommand() *cobra.Command {
	var (
		inPath string
		format string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON or YAML snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, "import", func(ctx context.Context) error {
				if strings.TrimSpace(format) == "" {
					format = app.SnapshotFormatForPath(inPath)
				}
				var r io.Reader = cmd.InOrStdin()
				if inPath != "-" {
					f, err := os.Open(inPath)
					if err != nil {
						return fmt.Errorf("open snapshot %q: %w", inPath, err)
					}
					defer func() { _ = f.Close() }()
					r = f
				}
				snap, err := app.DecodeSnapshot(r, format)
				if err != nil {
					return err
				}
				if err := c.svc.ImportSnapshot(ctx, snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				c.logger.Info("snapshot imported", "path", inPath, "projects", len(snap.Projects), "tasks", len(snap.Tasks))
				_, err = fmt.Fprintf(c.stdout, "imported %d projects, %d resources, %d tasks\n", len(snap.Projects), len(snap.Resources), len(snap.Tasks))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "snapshot path or - for stdin")
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from --in extension)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func writeSnapshotFile(path string, snap app.Snapshot, format string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot %q: %w", path, err)
	}
	if err := app.EncodeSnapshot(f, snap, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
