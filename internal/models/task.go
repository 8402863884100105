package models

import (
	"time"

	"github.com/google/uuid"
)

// Task lifecycle states. under_review sits between submitted and the
// completion decision; the decision endpoint currently accepts tasks in
// either state.
const (
	TaskStatusOpen        = "open"
	TaskStatusInProgress  = "in_progress"
	TaskStatusSubmitted   = "submitted"
	TaskStatusUnderReview = "under_review"
	TaskStatusCompleted   = "completed"
	TaskStatusIncomplete  = "incomplete"
)

type Task struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	CategoryID  *uuid.UUID   `json:"category_id,omitempty"`
	BudgetPaise int64        `json:"budget_paise"`
	PostedBy    uuid.UUID    `json:"posted_by"`
	AssignedTo  *uuid.UUID   `json:"assigned_to,omitempty"`
	Status      string       `json:"status"`
	BidCloseAt  time.Time    `json:"bid_close_at"`
	DeadlineAt  time.Time    `json:"deadline_at"`
	Submissions []Submission `json:"submissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Submission is an opaque work-file reference; the core never interprets
// the URL, only stores and timestamps it.
type Submission struct {
	ID          uuid.UUID `json:"id"`
	TaskID      uuid.UUID `json:"task_id"`
	FileURL     string    `json:"file_url"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Terminal reports whether no further lifecycle transitions are possible.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusIncomplete
}
