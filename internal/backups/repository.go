package backups

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logiflow/logiflow/internal/platform/db"
)

// Repository persists backup runs in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const runColumns = `id, status, trigger, requested_by, tables, size_bytes, error, created_at, started_at, completed_at`

func scanRun(row pgx.Row) (Run, error) {
	var (
		run    Run
		tables []byte
		errMsg *string
	)
	if err := row.Scan(&run.ID, &run.Status, &run.Trigger, &run.RequestedBy, &tables, &run.SizeBytes, &errMsg,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt); err != nil {
		return Run{}, err
	}
	if len(tables) > 0 {
		if err := json.Unmarshal(tables, &run.Tables); err != nil {
			return Run{}, err
		}
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	return run, nil
}

// Create inserts a pending run. A concurrent active run trips the
// backup_runs_single_active index.
func (r *Repository) Create(ctx context.Context, run Run) (Run, error) {
	out, err := scanRun(r.pool.QueryRow(ctx, `INSERT INTO backup_runs (id, status, trigger, requested_by)
VALUES ($1, $2, $3, $4) RETURNING `+runColumns, run.ID, string(run.Status), string(run.Trigger), run.RequestedBy))
	if db.IsUniqueViolation(err) {
		return Run{}, ErrRunInProgress
	}
	return out, err
}

// List returns the most recent runs first.
func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM backup_runs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get fetches a run.
func (r *Repository) Get(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM backup_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// HasActive reports whether a pending or running run exists.
func (r *Repository) HasActive(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM backup_runs WHERE status IN ('pending', 'running'))`).Scan(&exists)
	return exists, err
}

// MarkRunning claims a pending or interrupted running run. It reports false
// when the run has already finished.
func (r *Repository) MarkRunning(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE backup_runs SET status = 'running', started_at = NOW() WHERE id = $1 AND status IN ('pending', 'running')`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted stores the snapshot of a finished run.
func (r *Repository) MarkCompleted(ctx context.Context, id string, snap Snapshot) error {
	tables, err := json.Marshal(snap.Tables)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `UPDATE backup_runs SET status = 'completed', tables = $2, size_bytes = $3, completed_at = NOW() WHERE id = $1`,
		id, tables, snap.SizeBytes)
	return err
}

// MarkFailed records the failure reason.
func (r *Repository) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE backup_runs SET status = 'failed', error = $2, completed_at = NOW() WHERE id = $1`, id, reason)
	return err
}

// Snapshot counts the rows of every snapshot table and sums their on-disk
// size inside one repeatable-read transaction.
func (r *Repository) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Tables: make(map[string]int64, len(snapshotTables))}
	err := db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		for _, table := range snapshotTables {
			ident := pgx.Identifier{table}.Sanitize()
			var count, size int64
			if err := tx.QueryRow(ctx, `SELECT COUNT(*), pg_total_relation_size('`+ident+`') FROM `+ident).Scan(&count, &size); err != nil {
				return err
			}
			snap.Tables[table] = count
			snap.SizeBytes += size
		}
		return nil
	})
	return snap, err
}

// Delete removes a finished run.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM backup_runs WHERE id = $1 AND status NOT IN ('pending', 'running')`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrRunActive
}

var _ RepositoryPort = (*Repository)(nil)
