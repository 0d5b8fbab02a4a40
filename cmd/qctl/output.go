package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hylla/qctl/internal/domain"
)

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	encoded = append(encoded, '\n')
	_, err = w.Write(encoded)
	return err
}

// newTable returns a rounded table with a bold header row.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("62"))).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == 0 {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// writeTable renders t followed by a newline.
func writeTable(w io.Writer, t *table.Table) error {
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// emit prints v as JSON when asJSON is set, otherwise renders the table built by tableFn.
func emit(w io.Writer, asJSON bool, v any, tableFn func() *table.Table) error {
	if asJSON {
		return writeJSON(w, v)
	}
	return writeTable(w, tableFn())
}

func intCell(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func floatCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func hours(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func healthCell(h *domain.HealthStatus) string {
	if h == nil {
		return "unscheduled"
	}
	return string(*h)
}

func textCell(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// shortID trims uuids to their first block for table display.
func shortID(id string) string {
	if head, _, ok := strings.Cut(id, "-"); ok && head != "" {
		return head
	}
	return id
}

func joinFields(fields []string) string {
	return strings.Join(fields, ", ")
}
