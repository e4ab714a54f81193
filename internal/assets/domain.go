package assets

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a tracked asset.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusDeployed  Status = "DEPLOYED"
	StatusPending   Status = "PENDING"
	StatusOverdue   Status = "OVERDUE"
	StatusArchived  Status = "ARCHIVED"
)

// Assigned reports whether the status carries an active assignment.
func (s Status) Assigned() bool {
	return s == StatusDeployed || s == StatusOverdue
}

// Asset is an individually tracked resource.
type Asset struct {
	ID              int64
	Tag             string
	Name            string
	Status          Status
	AssignedTo      *int64
	CheckoutAt      *time.Time
	ExpectedCheckin *time.Time
	IdentityTag     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateInput registers a new asset in AVAILABLE state.
type CreateInput struct {
	Tag     string `validate:"required,max=64"`
	Name    string `validate:"max=255"`
	ActorID int64
}

// CheckoutInput requests AVAILABLE -> DEPLOYED.
type CheckoutInput struct {
	AssetID         int64 `validate:"required,gt=0"`
	AssigneeID      int64 `validate:"required,gt=0"`
	ExpectedCheckin *time.Time
	ActorID         int64
	Note            string `validate:"max=1000"`
}

// CheckinInput requests DEPLOYED|OVERDUE -> AVAILABLE.
type CheckinInput struct {
	AssetID int64 `validate:"required,gt=0"`
	ActorID int64
	Note    string `validate:"max=1000"`
}

// TagInput attaches an external identity tag to an asset.
type TagInput struct {
	AssetID int64  `validate:"required,gt=0"`
	Tag     string `validate:"required,max=128"`
	ActorID int64
}

// DeleteInput removes an asset.
type DeleteInput struct {
	AssetID int64 `validate:"required,gt=0"`
	ActorID int64
}

var (
	// ErrNotFound indicates a missing asset.
	ErrNotFound = errors.New("assets: not found")
	// ErrDuplicateTag indicates the asset tag is already taken.
	ErrDuplicateTag = errors.New("assets: tag already in use")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("assets: invalid input")
)
