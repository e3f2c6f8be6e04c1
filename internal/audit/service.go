package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/platform/httpx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxRange bounds a single timeline query.
	maxRange = 92 * 24 * time.Hour
)

var (
	// ErrInvalidRange rejects from > to or windows above maxRange.
	ErrInvalidRange = fmt.Errorf("%w: invalid date range", httpx.ErrValidation)
	// ErrInvalidModule rejects filters on modules outside the matrix.
	ErrInvalidModule = fmt.Errorf("%w: unknown module", httpx.ErrValidation)
)

// Repository provides timeline windows.
type Repository interface {
	TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error)
}

// Service pages through audit_logs.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit rows. It reads one row past the page to
// learn whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	if !filters.From.IsZero() && !filters.To.IsZero() {
		if filters.From.After(filters.To) || filters.To.Sub(filters.From) > maxRange {
			return Result{}, ErrInvalidRange
		}
	}
	params := WindowParams{
		FromAt: toPgTime(filters.From),
		ToAt:   toPgTime(endOfDay(filters.To)),
		Action: optionalText(strings.ToLower(filters.Action)),
		Offset: int32((page - 1) * pageSize),
		Limit:  int32(pageSize + 1),
	}
	if filters.ActorID > 0 {
		params.ActorID = pgtype.Int8{Int64: filters.ActorID, Valid: true}
	}
	if strings.TrimSpace(filters.Module) != "" {
		m, ok := permissions.ParseModule(filters.Module)
		if !ok {
			return Result{}, ErrInvalidModule
		}
		params.Module = pgtype.Text{String: string(m), Valid: true}
	}

	rows, err := s.repo.TimelineWindow(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = make([]TimelineRow, 0)
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Truncate(24 * time.Hour).Add(24 * time.Hour)
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
