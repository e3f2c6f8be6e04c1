package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logiflow/logiflow/internal/platform/db"
)

// Repository persists tasks in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, title, description, assigned_to, store_id, priority, status, due_date,
validated_by, validated_at, created_by, created_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var (
		t       Task
		storeID *string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.AssignedTo, &storeID, &t.Priority, &t.Status, &t.DueDate,
		&t.ValidatedBy, &t.ValidatedAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	if storeID != nil {
		t.StoreID = *storeID
	}
	return t, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// List returns a page of tasks and the total number matching the filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Task, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AssignedTo > 0 {
		args = append(args, filter.AssignedTo)
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if filter.StoreID != "" {
		args = append(args, filter.StoreID)
		where = append(where, fmt.Sprintf("store_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tasks%s ORDER BY status, due_date NULLS LAST, id DESC LIMIT $%d OFFSET $%d`,
		taskColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// Get fetches a single task.
func (r *Repository) Get(ctx context.Context, id int64) (Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// Create inserts a pending task.
func (r *Repository) Create(ctx context.Context, in NewTask) (Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `INSERT INTO tasks (title, description, assigned_to, store_id, priority, status, due_date, created_by)
VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7) RETURNING `+taskColumns,
		in.Title, in.Description, in.AssignedTo, nullable(in.StoreID), string(in.Priority), in.DueDate, in.CreatedBy))
}

// Update applies changes under a row lock.
func (r *Repository) Update(ctx context.Context, id int64, c Changes) (Task, error) {
	var out Task
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		applyChanges(&current, c)
		out, err = scanTask(tx.QueryRow(ctx, `UPDATE tasks SET title = $2, description = $3, assigned_to = $4, store_id = $5,
priority = $6, status = $7, due_date = $8, validated_by = $9, validated_at = $10, updated_at = NOW()
WHERE id = $1 RETURNING `+taskColumns,
			id, current.Title, current.Description, current.AssignedTo, nullable(current.StoreID),
			string(current.Priority), string(current.Status), current.DueDate, current.ValidatedBy, current.ValidatedAt))
		return err
	})
	return out, err
}

func applyChanges(t *Task, c Changes) {
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.AssignedTo != nil {
		t.AssignedTo = c.AssignedTo
	}
	if c.StoreID != nil {
		t.StoreID = *c.StoreID
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.DueDate != nil {
		t.DueDate = c.DueDate
	}
	if c.Reopen {
		t.Status = StatusPending
		t.ValidatedBy = nil
		t.ValidatedAt = nil
	}
}

// Validate marks a pending task completed, stamping the validator.
func (r *Repository) Validate(ctx context.Context, id, validatorID int64) (Task, error) {
	var out Task
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status Status
		if err := tx.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1 FOR UPDATE`, id).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if status == StatusCompleted {
			return ErrAlreadyValidated
		}
		var err error
		out, err = scanTask(tx.QueryRow(ctx, `UPDATE tasks SET status = 'completed', validated_by = $2, validated_at = NOW(), updated_at = NOW()
WHERE id = $1 RETURNING `+taskColumns, id, validatorID))
		return err
	})
	return out, err
}

// Delete removes a task.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
