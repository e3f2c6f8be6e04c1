package users

import (
	"fmt"
	"time"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = httpx.ErrNotFound
	// ErrUsernameTaken indicates a duplicate username.
	ErrUsernameTaken = fmt.Errorf("%w: username already taken", httpx.ErrDuplicate)
	// ErrSelfDelete prevents an administrator from removing their own account.
	ErrSelfDelete = fmt.Errorf("%w: cannot delete own account", httpx.ErrConflict)
	// ErrSelfDeactivate prevents an administrator from disabling their own account.
	ErrSelfDeactivate = fmt.Errorf("%w: cannot deactivate own account", httpx.ErrConflict)
	// ErrInvalidRole indicates a role outside the known set.
	ErrInvalidRole = fmt.Errorf("%w: unknown role", httpx.ErrValidation)
)

// User represents a user account for management. Role is kept as stored;
// use Role() for the parsed value.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name"`
	RoleName  string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role parses the stored role. Unknown values yield the empty role.
func (u User) Role() permissions.Role {
	role, _ := permissions.ParseRole(u.RoleName)
	return role
}

// NewUser carries the fields for account creation.
type NewUser struct {
	Username     string
	Email        string
	Name         string
	PasswordHash string
	Role         permissions.Role
}

// Changes lists optional updates; nil fields are left untouched.
type Changes struct {
	Name         *string
	Email        *string
	Role         *permissions.Role
	IsActive     *bool
	PasswordHash *string
}

// ListFilter narrows user listings.
type ListFilter struct {
	Role   permissions.Role
	Active *bool
}
