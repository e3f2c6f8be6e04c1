package auth

import "time"

// User represents an account able to sign in.
type User struct {
	ID           int64
	Username     string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
