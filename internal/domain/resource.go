package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Weekly capacity bounds, in hours.
const (
	DefaultWeeklyCapacityHours = 40.0
	MinWeeklyCapacityHours     = 1.0
	MaxWeeklyCapacityHours     = 80.0
)

// Resource represents a person tasks can be assigned to.
type Resource struct {
	ID                string
	Name              string
	Email             string
	Role              string
	WeeklyCapacityHrs float64
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ResourceInput struct {
	ID                string
	Name              string
	Email             string
	Role              string
	WeeklyCapacityHrs float64
}

// NewResource validates input and returns an active resource. Zero capacity means the default.
func NewResource(in ResourceInput, now time.Time) (Resource, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Resource{}, ErrInvalidID
	}
	r := Resource{
		ID:        in.ID,
		Active:    true,
		CreatedAt: now.UTC(),
	}
	if err := r.UpdateDetails(in.Name, in.Email, in.Role, in.WeeklyCapacityHrs, now); err != nil {
		return Resource{}, err
	}
	return r, nil
}

func (r *Resource) UpdateDetails(name, email, role string, weeklyCapacityHrs float64, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	email = strings.TrimSpace(email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return ErrInvalidEmail
		}
	}
	if weeklyCapacityHrs == 0 {
		weeklyCapacityHrs = DefaultWeeklyCapacityHours
	}
	if !validEstimate(weeklyCapacityHrs) || weeklyCapacityHrs < MinWeeklyCapacityHours || weeklyCapacityHrs > MaxWeeklyCapacityHours {
		return ErrInvalidCapacity
	}
	r.Name = name
	r.Email = strings.ToLower(email)
	r.Role = strings.TrimSpace(role)
	r.WeeklyCapacityHrs = weeklyCapacityHrs
	r.UpdatedAt = now.UTC()
	return nil
}

func (r *Resource) SetActive(active bool, now time.Time) {
	r.Active = active
	r.UpdatedAt = now.UTC()
}

// Utilization summarizes the open workload assigned to one resource.
type Utilization struct {
	ResourceID     string  `json:"resource_id"`
	OpenTasks      int     `json:"open_tasks"`
	RemainingHours float64 `json:"remaining_hours"`
	CapacityHours  float64 `json:"capacity_hours"`
	Percent        float64 `json:"percent"`
	Overallocated  bool    `json:"overallocated"`
}

// ComputeUtilization measures remaining hours of r's open tasks against its weekly capacity.
// Tasks assigned to other resources are ignored.
func ComputeUtilization(r Resource, tasks []Task) Utilization {
	out := Utilization{
		ResourceID:    r.ID,
		CapacityHours: r.WeeklyCapacityHrs,
	}
	for _, task := range tasks {
		if task.ResourceID != r.ID || !task.IsOpen() {
			continue
		}
		out.OpenTasks++
		out.RemainingHours += task.RemainingHours()
	}
	if out.CapacityHours > 0 {
		out.Percent = out.RemainingHours * 100 / out.CapacityHours
	}
	out.Overallocated = out.Percent > 100
	return out
}
