package users

import (
	"errors"
	"time"
)

// User is a principal account. Privilege lives in IsAdmin and RoleID and is
// read by the access decision point on every check.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	RoleID       *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput registers a principal.
type CreateInput struct {
	Username string `validate:"required,min=3,max=64"`
	Password string `validate:"required,min=8,max=72"`
	IsAdmin  bool
	RoleID   *int64 `validate:"omitempty,gt=0"`
}

// PrivilegesInput replaces the privilege fields of a principal.
type PrivilegesInput struct {
	IsAdmin bool
	RoleID  *int64 `validate:"omitempty,gt=0"`
}

var (
	// ErrNotFound indicates a missing principal.
	ErrNotFound = errors.New("users: not found")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("users: invalid input")
	// ErrDuplicateUsername rejects a username that is already taken.
	ErrDuplicateUsername = errors.New("users: username already exists")
	// ErrSelfDelete prevents a principal from deleting its own account.
	ErrSelfDelete = errors.New("users: cannot delete own account")
)
