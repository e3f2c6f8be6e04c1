package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBackupCreate executes a backup run requested through the API.
	TaskBackupCreate = "backup:create"
	// TaskBackupNightly starts a scheduled run when the schedule is enabled.
	TaskBackupNightly = "backup:nightly"
)

// BackupPayload identifies the run a backup task executes.
type BackupPayload struct {
	RunID string `json:"run_id"`
}

// NewBackupTask constructs the task executing run runID.
func NewBackupTask(runID string) (*asynq.Task, error) {
	if runID == "" {
		return nil, errors.New("jobs: backup run id required")
	}
	body, err := json.Marshal(BackupPayload{RunID: runID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBackupCreate, body, asynq.Queue(QueueDefault), asynq.MaxRetry(2)), nil
}

// NewNightlyBackupTask constructs the cron task for scheduled backups.
func NewNightlyBackupTask() *asynq.Task {
	return asynq.NewTask(TaskBackupNightly, nil, asynq.Queue(QueueDefault))
}
