package tui

import "time"

// Option configures the dashboard model.
type Option func(*Model)

// DisplayConfig toggles optional dashboard columns and panes.
type DisplayConfig struct {
	ShowVariances bool
	ShowNotes     bool
}

// DefaultDisplayConfig returns the display defaults.
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		ShowVariances: true,
		ShowNotes:     true,
	}
}

// WithDisplayConfig applies display toggles.
func WithDisplayConfig(cfg DisplayConfig) Option {
	return func(m *Model) {
		m.display = cfg
	}
}

// WithClock overrides the clock used for completion dates.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// WithClipboard overrides the clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}
