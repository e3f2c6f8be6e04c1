package backups

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/shared"
)

const listLimit = 50

// RepositoryPort defines data access methods for backup runs.
type RepositoryPort interface {
	Create(ctx context.Context, run Run) (Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
	Get(ctx context.Context, id string) (Run, error)
	HasActive(ctx context.Context) (bool, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string, snap Snapshot) error
	MarkFailed(ctx context.Context, id, reason string) error
	Snapshot(ctx context.Context) (Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// Enqueuer hands a run to the background worker.
type Enqueuer interface {
	EnqueueBackup(ctx context.Context, runID string) error
}

// Schedule reads and writes the nightly backup switch.
type Schedule interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// Service coordinates backup runs between the API and the worker.
type Service struct {
	repo     RepositoryPort
	queue    Enqueuer
	schedule Schedule
	audit    shared.Auditor
	logger   *slog.Logger
	newID    func() string
}

// NewService constructs Service. queue may be nil in the worker process.
func NewService(repo RepositoryPort, queue Enqueuer, schedule Schedule, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		queue:    queue,
		schedule: schedule,
		audit:    audit,
		logger:   logger,
		newID:    func() string { return ulid.Make().String() },
	}
}

// ListRuns returns the latest runs, newest first.
func (s *Service) ListRuns(ctx context.Context) ([]Run, error) {
	return s.repo.List(ctx, listLimit)
}

// GetRun returns one run.
func (s *Service) GetRun(ctx context.Context, id string) (Run, error) {
	return s.repo.Get(ctx, id)
}

// RequestBackup records a manual run and enqueues it. Only one run may be
// active at a time.
func (s *Service) RequestBackup(ctx context.Context, actorID int64) (Run, error) {
	if s.queue == nil {
		return Run{}, fmt.Errorf("backups: queue not configured")
	}
	run, err := s.start(ctx, TriggerManual, &actorID)
	if err != nil {
		return Run{}, err
	}
	if err := s.queue.EnqueueBackup(ctx, run.ID); err != nil {
		if markErr := s.repo.MarkFailed(ctx, run.ID, "enqueue failed"); markErr != nil {
			s.logger.Warn("mark backup failed", slog.String("run_id", run.ID), slog.Any("error", markErr))
		}
		return Run{}, fmt.Errorf("backups: enqueue run: %w", err)
	}
	s.record(ctx, actorID, permissions.ActionCreate, run.ID, nil)
	return run, nil
}

// StartScheduledRun records a run on behalf of the nightly schedule.
func (s *Service) StartScheduledRun(ctx context.Context) (string, error) {
	run, err := s.start(ctx, TriggerScheduled, nil)
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

func (s *Service) start(ctx context.Context, trigger Trigger, requestedBy *int64) (Run, error) {
	active, err := s.repo.HasActive(ctx)
	if err != nil {
		return Run{}, err
	}
	if active {
		return Run{}, ErrRunInProgress
	}
	return s.repo.Create(ctx, Run{ID: s.newID(), Status: StatusPending, Trigger: trigger, RequestedBy: requestedBy})
}

// ExecuteRun snapshots the database for a pending run and stores the result.
// A run left running by an interrupted attempt is picked up again; finished
// runs are left untouched.
func (s *Service) ExecuteRun(ctx context.Context, runID string) (int64, error) {
	started, err := s.repo.MarkRunning(ctx, runID)
	if err != nil {
		return 0, err
	}
	if !started {
		run, err := s.repo.Get(ctx, runID)
		if err != nil {
			return 0, err
		}
		s.logger.Info("backup run already handled", slog.String("run_id", runID), slog.String("status", string(run.Status)))
		return run.SizeBytes, nil
	}
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, runID, err.Error()); markErr != nil {
			s.logger.Warn("mark backup failed", slog.String("run_id", runID), slog.Any("error", markErr))
		}
		return 0, fmt.Errorf("backups: snapshot: %w", err)
	}
	if err := s.repo.MarkCompleted(ctx, runID, snap); err != nil {
		if markErr := s.repo.MarkFailed(ctx, runID, err.Error()); markErr != nil {
			s.logger.Warn("mark backup failed", slog.String("run_id", runID), slog.Any("error", markErr))
		}
		return 0, fmt.Errorf("backups: complete run: %w", err)
	}
	return snap.SizeBytes, nil
}

// DeleteRun removes a finished run.
func (s *Service) DeleteRun(ctx context.Context, actorID int64, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, permissions.ActionDelete, id, nil)
	return nil
}

// ScheduleEnabled reports the nightly backup switch.
func (s *Service) ScheduleEnabled(ctx context.Context) (bool, error) {
	return s.schedule.Enabled(ctx)
}

// SetSchedule switches nightly backups on or off.
func (s *Service) SetSchedule(ctx context.Context, actorID int64, enabled bool) error {
	if err := s.schedule.SetEnabled(ctx, enabled); err != nil {
		return err
	}
	s.record(ctx, actorID, permissions.ActionManage, "schedule", map[string]any{"enabled": enabled})
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action permissions.Action, id string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Module:   string(permissions.ModuleBackups),
		Action:   string(action),
		EntityID: id,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("backups audit", slog.String("entity_id", id), slog.Any("error", err))
	}
}
