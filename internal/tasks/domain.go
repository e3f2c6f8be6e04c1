package tasks

import (
	"fmt"
	"time"

	"github.com/logiflow/logiflow/internal/platform/httpx"
)

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid reports whether the priority is known.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status tracks task completion.
type Status string

const (
	StatusPending   Status = "pending"   // open, awaiting validation
	StatusCompleted Status = "completed" // validated by a manager or above
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusCompleted
}

var (
	// ErrNotFound indicates the task does not exist.
	ErrNotFound = fmt.Errorf("%w: task", httpx.ErrNotFound)
	// ErrAlreadyValidated is returned when validating a completed task.
	ErrAlreadyValidated = fmt.Errorf("%w: task already validated", httpx.ErrConflict)
	// ErrCompleteViaValidate rejects completing a task through a plain edit.
	ErrCompleteViaValidate = fmt.Errorf("%w: tasks are completed through validation", httpx.ErrValidation)
)

// Task is a unit of store work assigned to an employee.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssignedTo  *int64     `json:"assigned_to,omitempty"`
	StoreID     string     `json:"store_id,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ValidatedBy *int64     `json:"validated_by,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask carries the fields for task creation.
type NewTask struct {
	Title       string
	Description string
	AssignedTo  *int64
	StoreID     string
	Priority    Priority
	DueDate     *time.Time
	CreatedBy   int64
}

// Changes lists optional edits; nil fields are left untouched. Reopen resets
// a completed task to pending and clears its validation stamp.
type Changes struct {
	Title       *string
	Description *string
	AssignedTo  *int64
	StoreID     *string
	Priority    *Priority
	DueDate     *time.Time
	Reopen      bool
}

// ListFilter narrows task listings.
type ListFilter struct {
	Status     Status
	AssignedTo int64
	StoreID    string
	Limit      int
	Offset     int
}
