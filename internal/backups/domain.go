package backups

import (
	"fmt"
	"time"

	"github.com/logiflow/logiflow/internal/platform/httpx"
)

// RunStatus tracks the lifecycle of a backup run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Active reports whether the run has not reached a terminal state.
func (s RunStatus) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

var (
	// ErrNotFound indicates the run does not exist.
	ErrNotFound = fmt.Errorf("%w: backup run", httpx.ErrNotFound)
	// ErrRunInProgress rejects a request while another run is active.
	ErrRunInProgress = fmt.Errorf("%w: a backup run is already in progress", httpx.ErrConflict)
	// ErrRunActive rejects deleting a run that has not finished.
	ErrRunActive = fmt.Errorf("%w: backup run has not finished", httpx.ErrConflict)
)

// Run is one execution of the backup job. IDs are ULIDs so runs sort by
// creation time.
type Run struct {
	ID          string           `json:"id"`
	Status      RunStatus        `json:"status"`
	Trigger     Trigger          `json:"trigger"`
	RequestedBy *int64           `json:"requested_by,omitempty"`
	Tables      map[string]int64 `json:"tables,omitempty"`
	SizeBytes   int64            `json:"size_bytes"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Snapshot is the result of reading the business tables.
type Snapshot struct {
	Tables    map[string]int64
	SizeBytes int64
}

// snapshotTables lists the tables captured by every run.
var snapshotTables = []string{"users", "tasks", "audit_logs", "user_sessions"}
