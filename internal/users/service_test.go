package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/logiflow/logiflow/internal/auth"
	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/platform/httpx"
	"github.com/logiflow/logiflow/internal/rbac"
)

func seedUsers() []User {
	return []User{
		{ID: 1, Username: "root", Name: "Admin", RoleName: "admin", IsActive: true},
		{ID: 2, Username: "dir", Name: "Directeur", RoleName: "Directeur", IsActive: true},
		{ID: 3, Username: "emp", Name: "Employe", RoleName: "employee", IsActive: false},
		{ID: 4, Username: "old", Name: "Legacy", RoleName: "superviseur", IsActive: true},
	}
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingAuditor) {
	t.Helper()
	auth.BcryptCost = bcrypt.MinCost
	repo := newMemoryRepo(seedUsers()...)
	audit := &recordingAuditor{}
	return NewService(repo, audit, nil), repo, audit
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, repo, audit := newTestService(t)
	user, err := svc.CreateUser(context.Background(), 1, CreateInput{
		Username: "magasin", Name: "Chef", Password: "s3cretpass", Role: "MANAGER",
	})
	require.NoError(t, err)
	assert.Equal(t, "manager", user.RoleName)
	assert.Equal(t, permissions.RoleManager, user.Role())

	hash := repo.hashes[user.ID]
	assert.Equal(t, auth.SchemeBcrypt, auth.DetectScheme(hash))
	_, ok := auth.VerifyPassword(hash, "s3cretpass")
	assert.True(t, ok)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "admin", audit.logs[0].Module)
	assert.Equal(t, "create", audit.logs[0].Action)
	assert.Equal(t, int64(1), audit.logs[0].ActorID)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateUser(context.Background(), 1, CreateInput{Username: "x1x", Name: "X", Password: "password1", Role: "superuser"})
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateUserDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateUser(context.Background(), 1, CreateInput{Username: "ROOT", Name: "X", Password: "password1", Role: "admin"})
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestUpdateUserChangesRole(t *testing.T) {
	svc, _, audit := newTestService(t)
	role := "manager"
	user, err := svc.UpdateUser(context.Background(), 1, 2, UpdateInput{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleManager, user.Role())
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "manager", audit.logs[0].Meta["role"])

	p, err := svc.ResolvePrincipal(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, p.Can(permissions.ModuleReconciliation, permissions.ActionView))
}

func TestUpdateUserGuards(t *testing.T) {
	svc, _, _ := newTestService(t)
	off := false
	_, err := svc.UpdateUser(context.Background(), 1, 1, UpdateInput{IsActive: &off})
	assert.ErrorIs(t, err, ErrSelfDeactivate)

	bad := "root"
	_, err = svc.UpdateUser(context.Background(), 1, 2, UpdateInput{Role: &bad})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.UpdateUser(context.Background(), 1, 99, UpdateInput{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUser(t *testing.T) {
	svc, repo, audit := newTestService(t)
	assert.ErrorIs(t, svc.DeleteUser(context.Background(), 1, 1), ErrSelfDelete)
	require.NoError(t, svc.DeleteUser(context.Background(), 1, 2))
	_, ok := repo.users[2]
	assert.False(t, ok)
	assert.Len(t, audit.logs, 1)
	assert.ErrorIs(t, svc.DeleteUser(context.Background(), 1, 2), ErrNotFound)
}

func TestListUsersFilters(t *testing.T) {
	svc, _, _ := newTestService(t)
	all, err := svc.ListUsers(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	dirs, err := svc.ListUsers(context.Background(), "directeur", nil)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "dir", dirs[0].Username)

	active := true
	live, err := svc.ListUsers(context.Background(), "", &active)
	require.NoError(t, err)
	assert.Len(t, live, 3)

	_, err = svc.ListUsers(context.Background(), "boss", nil)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestResolvePrincipal(t *testing.T) {
	svc, _, _ := newTestService(t)

	p, err := svc.ResolvePrincipal(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleDirecteur, p.Role)

	_, err = svc.ResolvePrincipal(context.Background(), 3)
	assert.ErrorIs(t, err, rbac.ErrUnknownUser, "inactive")

	_, err = svc.ResolvePrincipal(context.Background(), 42)
	assert.ErrorIs(t, err, rbac.ErrUnknownUser, "missing")

	p, err = svc.ResolvePrincipal(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, permissions.Role(""), p.Role)
	assert.False(t, p.Can(permissions.ModuleDashboard, permissions.ActionView))
}

type failingRepo struct{ *memoryRepo }

func (failingRepo) Get(context.Context, int64) (User, error) { return User{}, errors.New("db down") }

func TestResolvePrincipalPropagatesFailures(t *testing.T) {
	svc := NewService(failingRepo{newMemoryRepo()}, nil, nil)
	_, err := svc.ResolvePrincipal(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, rbac.ErrUnknownUser)
}

type gatedRepo struct {
	*memoryRepo
	entered chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (g gatedRepo) Get(ctx context.Context, id int64) (User, error) {
	g.entered <- struct{}{}
	<-g.release
	g.ctxErr <- ctx.Err()
	return g.memoryRepo.Get(ctx, id)
}

func TestResolvePrincipalSurvivesCallerCancel(t *testing.T) {
	repo := gatedRepo{
		memoryRepo: newMemoryRepo(seedUsers()...),
		entered:    make(chan struct{}, 2),
		release:    make(chan struct{}),
		ctxErr:     make(chan error, 2),
	}
	svc := NewService(repo, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := svc.ResolvePrincipal(ctx, 2)
		errs <- err
	}()
	<-repo.entered
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)

	done := make(chan rbac.Principal, 1)
	go func() {
		p, err := svc.ResolvePrincipal(context.Background(), 2)
		assert.NoError(t, err)
		done <- p
	}()
	close(repo.release)
	assert.NoError(t, <-repo.ctxErr, "shared lookup must not see the caller's cancellation")
	assert.Equal(t, permissions.RoleDirecteur, (<-done).Role)
}
