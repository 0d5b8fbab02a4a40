package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateTaskCode = errors.New("task code already exists")
	ErrProjectArchived   = errors.New("project is archived")
	ErrResourceInactive  = errors.New("resource is inactive")
	ErrInvalidClearField = errors.New("invalid clear field")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
)
