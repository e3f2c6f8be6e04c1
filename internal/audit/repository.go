package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WindowParams are the bound arguments of a timeline query. Invalid fields
// disable their filter.
type WindowParams struct {
	FromAt  pgtype.Timestamptz
	ToAt    pgtype.Timestamptz
	ActorID pgtype.Int8
	Module  pgtype.Text
	Action  pgtype.Text
	Offset  int32
	Limit   int32
}

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineWindow = `SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.username, ''), a.module, a.action, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR a.occurred_at < $2)
  AND ($3::bigint IS NULL OR a.actor_id = $3)
  AND ($4::text IS NULL OR a.module = $4)
  AND ($5::text IS NULL OR a.action = $5)
ORDER BY a.occurred_at DESC, a.id DESC
OFFSET $6 LIMIT $7`

// TimelineWindow returns one window of audit rows, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineWindow, arg.FromAt, arg.ToAt, arg.ActorID, arg.Module, arg.Action, arg.Offset, arg.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			at   time.Time
			meta []byte
		)
		if err := row.Scan(&out.ID, &at, &out.ActorID, &out.Actor, &out.Module, &out.Action, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		out.At = at
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return TimelineRow{}, err
			}
		}
		return out, nil
	})
}
