package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/logiflow/logiflow/internal/shared"
)

// dummyHash keeps the cost of a failed lookup equal to a failed comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("logiflow-timing-guard"), bcrypt.DefaultCost)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Authenticate validates username/password credentials. Accounts still on a
// legacy hash format are upgraded to bcrypt after a successful check.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	scheme, ok := VerifyPassword(user.PasswordHash, password)
	if !ok {
		return nil, shared.ErrInvalidCredentials
	}
	if NeedsRehash(scheme) {
		s.upgradeHash(ctx, user, password, scheme)
	}
	return user, nil
}

func (s *Service) upgradeHash(ctx context.Context, user *User, password string, scheme Scheme) {
	hash, err := HashPassword(password)
	if err != nil {
		s.logger.Warn("auth rehash", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.logger.Warn("auth store rehash", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return
	}
	user.PasswordHash = hash
	s.logger.Info("auth password hash upgraded", slog.Int64("user_id", user.ID), slog.String("from", string(scheme)))
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
