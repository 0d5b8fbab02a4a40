package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidSlug        = errors.New("name must contain a letter or digit")
	ErrInvalidTaskCode    = errors.New("invalid task code")
	ErrInvalidPriority    = errors.New("invalid priority")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrCompletedDateReq   = errors.New("completed date is required when marking task as done")
	ErrActualHoursReq     = errors.New("actual hours must be recorded before marking task as done")
	ErrInvalidEstimate    = errors.New("invalid estimate")
	ErrInvalidHours       = errors.New("invalid hours")
	ErrInvalidCapacity    = errors.New("invalid weekly capacity")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrTaskDeleted        = errors.New("task already deleted")
	ErrInvalidDate        = errors.New("invalid calendar date")
	ErrRangeTooLarge      = errors.New("working-day range too large")
	ErrInvalidMaxSpanDays = errors.New("invalid max span days")
	ErrEmptyComment       = errors.New("comment cannot be empty")
	ErrCommentTooLong     = errors.New("comment is too long")
)
