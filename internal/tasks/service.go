package tasks

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/shared"
)

// RepositoryPort defines data access methods for tasks.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Task, int, error)
	Get(ctx context.Context, id int64) (Task, error)
	Create(ctx context.Context, in NewTask) (Task, error)
	Update(ctx context.Context, id int64, c Changes) (Task, error)
	Validate(ctx context.Context, id, validatorID int64) (Task, error)
	Delete(ctx context.Context, id int64) error
}

// Service implements the task workflow. Callers are authorized by the rbac
// middleware before reaching it.
type Service struct {
	repo   RepositoryPort
	audit  shared.Auditor
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateInput is the payload for a new task.
type CreateInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=4000"`
	AssignedTo  *int64     `json:"assigned_to" validate:"omitempty,gt=0"`
	StoreID     string     `json:"store_id" validate:"max=64"`
	Priority    Priority   `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateInput is the payload for task edits. Status only accepts "pending",
// which reopens a completed task.
type UpdateInput struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=4000"`
	AssignedTo  *int64     `json:"assigned_to" validate:"omitempty,gt=0"`
	StoreID     *string    `json:"store_id" validate:"omitempty,max=64"`
	Priority    *Priority  `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status      *Status    `json:"status" validate:"omitempty,oneof=pending completed"`
	DueDate     *time.Time `json:"due_date"`
}

// ListTasks returns a page of tasks with pagination metadata.
func (s *Service) ListTasks(ctx context.Context, filter ListFilter, page, perPage int) ([]Task, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	filter.Limit, filter.Offset = p.PerPage, p.Offset()
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, id int64) (Task, error) {
	return s.repo.Get(ctx, id)
}

// CreateTask stores a pending task. Priority defaults to medium.
func (s *Service) CreateTask(ctx context.Context, actorID int64, in CreateInput) (Task, error) {
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	task, err := s.repo.Create(ctx, NewTask{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		AssignedTo:  in.AssignedTo,
		StoreID:     strings.TrimSpace(in.StoreID),
		Priority:    priority,
		DueDate:     in.DueDate,
		CreatedBy:   actorID,
	})
	if err != nil {
		return Task{}, err
	}
	s.record(ctx, actorID, permissions.ActionCreate, task.ID, map[string]any{"priority": string(priority)})
	return task, nil
}

// UpdateTask edits a task. Completion goes through ValidateTask only.
func (s *Service) UpdateTask(ctx context.Context, actorID, id int64, in UpdateInput) (Task, error) {
	changes := Changes{
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
		StoreID:     in.StoreID,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		changes.Title = &title
	}
	if in.Status != nil {
		if *in.Status == StatusCompleted {
			return Task{}, ErrCompleteViaValidate
		}
		changes.Reopen = true
	}
	task, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		return Task{}, err
	}
	s.record(ctx, actorID, permissions.ActionEdit, id, map[string]any{"reopened": changes.Reopen})
	return task, nil
}

// ValidateTask completes a pending task on behalf of validatorID.
func (s *Service) ValidateTask(ctx context.Context, validatorID, id int64) (Task, error) {
	task, err := s.repo.Validate(ctx, id, validatorID)
	if err != nil {
		return Task{}, err
	}
	s.record(ctx, validatorID, permissions.ActionValidate, id, nil)
	return task, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, permissions.ActionDelete, id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action permissions.Action, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Module:   string(permissions.ModuleTasks),
		Action:   string(action),
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("tasks audit", slog.Int64("task_id", id), slog.Any("error", err))
	}
}
