package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/logiflow/logiflow/internal/auth"
	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/rbac"
	"github.com/logiflow/logiflow/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, in NewUser) (User, error)
	Update(ctx context.Context, id int64, c Changes) (User, error)
	Delete(ctx context.Context, id int64) error
}

// Service handles user business logic.
type Service struct {
	repo    RepositoryPort
	audit   shared.Auditor
	logger  *slog.Logger
	lookups singleflight.Group
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateInput is the validated payload for a new account.
type CreateInput struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanumunicode"`
	Email    string `json:"email" validate:"omitempty,email"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8,max=200"`
	Role     string `json:"role" validate:"required"`
}

// UpdateInput is the validated payload for account changes.
type UpdateInput struct {
	Name     *string `json:"name" validate:"omitempty,max=120"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password" validate:"omitempty,min=8,max=200"`
}

// ListUsers returns users, optionally narrowed to a role.
func (s *Service) ListUsers(ctx context.Context, role string, active *bool) ([]User, error) {
	filter := ListFilter{Active: active}
	if strings.TrimSpace(role) != "" {
		parsed, ok := permissions.ParseRole(role)
		if !ok {
			return nil, ErrInvalidRole
		}
		filter.Role = parsed
	}
	return s.repo.List(ctx, filter)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// CreateUser stores a new account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, actorID int64, in CreateInput) (User, error) {
	role, ok := permissions.ParseRole(in.Role)
	if !ok {
		return User{}, ErrInvalidRole
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	user, err := s.repo.Create(ctx, NewUser{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.TrimSpace(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, permissions.ActionCreate, user.ID, map[string]any{"role": string(role)})
	return user, nil
}

// UpdateUser applies changes. Role changes take effect on the next request of
// the affected user since roles are never cached in sessions.
func (s *Service) UpdateUser(ctx context.Context, actorID, id int64, in UpdateInput) (User, error) {
	changes := Changes{Name: in.Name, Email: in.Email, IsActive: in.IsActive}
	if in.Role != nil {
		role, ok := permissions.ParseRole(*in.Role)
		if !ok {
			return User{}, ErrInvalidRole
		}
		changes.Role = &role
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return User{}, fmt.Errorf("users: hash password: %w", err)
		}
		changes.PasswordHash = &hash
	}
	if id == actorID && in.IsActive != nil && !*in.IsActive {
		return User{}, ErrSelfDeactivate
	}
	user, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		return User{}, err
	}
	meta := map[string]any{}
	if changes.Role != nil {
		meta["role"] = string(*changes.Role)
	}
	if changes.IsActive != nil {
		meta["is_active"] = *changes.IsActive
	}
	s.record(ctx, actorID, permissions.ActionEdit, id, meta)
	return user, nil
}

// DeleteUser removes an account other than the actor's own.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrSelfDelete
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, permissions.ActionDelete, id, nil)
	return nil
}

// ResolvePrincipal implements rbac.PrincipalResolver. Inactive and missing
// accounts are reported as unknown users. Concurrent lookups of the same user
// share one query.
func (s *Service) ResolvePrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	// The shared lookup must outlive any single caller's cancellation.
	lookupCtx := context.WithoutCancel(ctx)
	ch := s.lookups.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		return s.repo.Get(lookupCtx, userID)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return rbac.Principal{}, ctx.Err()
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rbac.Principal{}, rbac.ErrUnknownUser
		}
		return rbac.Principal{}, err
	}
	user := v.(User)
	if !user.IsActive {
		return rbac.Principal{}, rbac.ErrUnknownUser
	}
	return rbac.Principal{UserID: user.ID, Username: user.Username, Role: user.Role()}, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action permissions.Action, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Module:   string(permissions.ModuleAdmin),
		Action:   string(action),
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("users audit", slog.Int64("user_id", id), slog.Any("error", err))
	}
}

var _ rbac.PrincipalResolver = (*Service)(nil)
