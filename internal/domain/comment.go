package domain

import (
	"strings"
	"time"
)

// MaxCommentBodyLen bounds one comment body in bytes.
const MaxCommentBodyLen = 10000

// Comment is one append-only, actor-attributed note in a task's thread.
type Comment struct {
	ID        string
	TaskID    string
	ProjectID string
	Body      string
	Actor     string
	CreatedAt time.Time
}

// CommentInput holds input values for comment creation.
type CommentInput struct {
	ID        string
	TaskID    string
	ProjectID string
	Body      string
	Actor     string
}

// NewComment constructs a normalized comment. Bodies are markdown and keep inner whitespace.
func NewComment(in CommentInput, now time.Time) (Comment, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.TaskID = strings.TrimSpace(in.TaskID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ID == "" || in.TaskID == "" || in.ProjectID == "" {
		return Comment{}, ErrInvalidID
	}

	body := strings.TrimSpace(in.Body)
	if body == "" {
		return Comment{}, ErrEmptyComment
	}
	if len(body) > MaxCommentBodyLen {
		return Comment{}, ErrCommentTooLong
	}

	actor := strings.TrimSpace(in.Actor)
	if actor == "" {
		actor = DefaultActor
	}
	return Comment{
		ID:        in.ID,
		TaskID:    in.TaskID,
		ProjectID: in.ProjectID,
		Body:      body,
		Actor:     actor,
		CreatedAt: now.UTC(),
	}, nil
}
