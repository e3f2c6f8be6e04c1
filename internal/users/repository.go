package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logiflow/logiflow/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, email, name, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		u     User
		email pgtype.Text
	)
	if err := row.Scan(&u.ID, &u.Username, &email, &u.Name, &u.RoleName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Email = email.String
	return u, nil
}

// List returns users matching the filter ordered by username.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]User, error) {
	var (
		where []string
		args  []any
	)
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		where = append(where, fmt.Sprintf("lower(role) = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY username`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Get fetches a single user.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, in NewUser) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `INSERT INTO users (username, email, name, password_hash, role, is_active)
VALUES ($1, $2, $3, $4, $5, TRUE) RETURNING `+userColumns,
		in.Username, pgtype.Text{String: in.Email, Valid: in.Email != ""}, in.Name, in.PasswordHash, string(in.Role)))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrUsernameTaken
		}
		return User{}, err
	}
	return u, nil
}

// Update applies changes inside a transaction and returns the stored row.
func (r *Repository) Update(ctx context.Context, id int64, c Changes) (User, error) {
	var out User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if c.Name != nil {
			current.Name = *c.Name
		}
		if c.Email != nil {
			current.Email = *c.Email
		}
		if c.Role != nil {
			current.RoleName = string(*c.Role)
		}
		if c.IsActive != nil {
			current.IsActive = *c.IsActive
		}
		if c.PasswordHash != nil {
			if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, *c.PasswordHash); err != nil {
				return err
			}
		}
		out, err = scanUser(tx.QueryRow(ctx, `UPDATE users SET name = $2, email = $3, role = $4, is_active = $5, updated_at = NOW()
WHERE id = $1 RETURNING `+userColumns,
			id, current.Name, pgtype.Text{String: current.Email, Valid: current.Email != ""}, current.RoleName, current.IsActive))
		return err
	})
	return out, err
}

// Delete removes a user.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
