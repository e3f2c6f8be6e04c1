package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/logiflow/logiflow/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BackupRunner executes backup runs stored by the backups service.
type BackupRunner interface {
	// ExecuteRun snapshots the database for runID and returns its size.
	ExecuteRun(ctx context.Context, runID string) (int64, error)
	// StartScheduledRun records a new run on behalf of the scheduler.
	StartScheduledRun(ctx context.Context) (string, error)
}

// ScheduleChecker reports whether nightly backups are switched on.
type ScheduleChecker interface {
	Enabled(ctx context.Context) (bool, error)
}

// BackupRunJob handles backup tasks.
type BackupRunJob struct {
	Runner   BackupRunner
	Schedule ScheduleChecker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewBackupRunJob constructs the job handler.
func NewBackupRunJob(runner BackupRunner, schedule ScheduleChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *BackupRunJob {
	return &BackupRunJob{Runner: runner, Schedule: schedule, Logger: logger, Metrics: metrics}
}

// Handle executes a TaskBackupCreate task.
func (j *BackupRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("backup run: dependencies not configured")
	}
	var payload BackupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.RunID == "" {
		return asynq.SkipRetry
	}
	return j.execute(ctx, payload.RunID)
}

// HandleNightly executes a TaskBackupNightly task. It is a no-op while the
// schedule is disabled.
func (j *BackupRunJob) HandleNightly(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Runner == nil || j.Schedule == nil {
		return errors.New("backup run: dependencies not configured")
	}
	enabled, err := j.Schedule.Enabled(ctx)
	if err != nil {
		j.log().Error("read backup schedule", slog.Any("error", err))
		return err
	}
	if !enabled {
		j.log().Info("nightly backup skipped, schedule disabled")
		return nil
	}
	runID, err := j.Runner.StartScheduledRun(ctx)
	if err != nil {
		j.log().Error("start scheduled backup", slog.Any("error", err))
		return err
	}
	return j.execute(ctx, runID)
}

func (j *BackupRunJob) execute(ctx context.Context, runID string) error {
	tracker := j.metrics().Track(TaskBackupCreate)
	start := time.Now()
	size, err := j.Runner.ExecuteRun(ctx, runID)
	if err != nil {
		j.log().Error("backup run failed", slog.String("run_id", runID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().SetLastBackupSize(size)
	j.log().Info("backup run completed",
		slog.String("run_id", runID),
		slog.Int64("size_bytes", size),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

func (j *BackupRunJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BackupRunJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBackupCreate))
	}
	return slog.Default().With(slog.String("job", TaskBackupCreate))
}
