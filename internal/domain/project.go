package domain

import (
	"strings"
	"time"
	"unicode"
)

// Project groups tasks; its slug is the human-facing reference used by the CLI and transports.
type Project struct {
	ID          string
	Slug        string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ArchivedAt  *time.Time
}

// NewProject validates name and derives the slug from it.
func NewProject(id, name, description string, now time.Time) (Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Project{}, ErrInvalidID
	}
	p := Project{ID: id, CreatedAt: now.UTC()}
	if err := p.UpdateDetails(name, description, now); err != nil {
		return Project{}, err
	}
	return p, nil
}

// UpdateDetails renames the project, re-deriving its slug, and replaces its description.
func (p *Project) UpdateDetails(name, description string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	slug := slugify(name)
	if slug == "" {
		return ErrInvalidSlug
	}
	p.Name = name
	p.Slug = slug
	p.Description = strings.TrimSpace(description)
	p.UpdatedAt = now.UTC()
	return nil
}

// IsArchived reports whether the project is closed to new tasks.
func (p Project) IsArchived() bool {
	return p.ArchivedAt != nil
}

// Archive closes the project to new tasks. Archiving twice keeps the first timestamp.
func (p *Project) Archive(now time.Time) {
	ts := now.UTC()
	if p.ArchivedAt == nil {
		p.ArchivedAt = &ts
	}
	p.UpdatedAt = ts
}

// Restore reopens an archived project.
func (p *Project) Restore(now time.Time) {
	p.ArchivedAt = nil
	p.UpdatedAt = now.UTC()
}

// slugify lowercases letters and digits and collapses every other run of runes into one dash.
func slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
