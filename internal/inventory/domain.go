package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PoolKind enumerates resources tracked by count.
type PoolKind string

const (
	// KindEquipment represents interchangeable equipment units.
	KindEquipment PoolKind = "equipment"
	// KindConsumable represents consumable stock.
	KindConsumable PoolKind = "consumable"
	// KindLicense represents license seats.
	KindLicense PoolKind = "license"
)

// Pool is a quantity-accounted resource. AssignedQty always equals the sum
// of quantities of its ASSIGNED assignments and never exceeds TotalQty.
type Pool struct {
	ID          int64
	Kind        PoolKind
	Name        string
	TotalQty    int
	AssignedQty int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available returns the unassigned quantity.
func (p Pool) Available() int {
	return p.TotalQty - p.AssignedQty
}

// AssignmentStatus is the state of an assignment record.
type AssignmentStatus string

const (
	// AssignmentAssigned marks an active assignment.
	AssignmentAssigned AssignmentStatus = "ASSIGNED"
	// AssignmentReturned marks a returned assignment.
	AssignmentReturned AssignmentStatus = "RETURNED"
)

// Assignment binds a quantity of a pool to an external identity.
type Assignment struct {
	ID         int64
	PoolID     int64
	AssignedTo string
	Qty        int
	Status     AssignmentStatus
	AssignedAt time.Time
	ReturnedAt *time.Time
	BatchID    uuid.UUID
	Note       string
}

// CreatePoolInput registers a new pool.
type CreatePoolInput struct {
	Kind     PoolKind `validate:"required,oneof=equipment consumable license"`
	Name     string   `validate:"required,max=255"`
	TotalQty int      `validate:"gte=0"`
	ActorID  int64
}

// AdjustTotalInput changes the capacity of a pool.
type AdjustTotalInput struct {
	PoolID   int64 `validate:"required,gt=0"`
	TotalQty int   `validate:"gte=0"`
	ActorID  int64
}

// AssignInput requests a single assignment. Qty defaults to 1.
type AssignInput struct {
	PoolID     int64  `validate:"required,gt=0"`
	AssignedTo string `validate:"required,max=255"`
	Qty        int    `validate:"gte=0"`
	ActorID    int64
	Note       string `validate:"max=1000"`
}

// AssignItem is one line of a bulk assignment. Qty defaults to 1.
type AssignItem struct {
	AssignedTo string `validate:"required,max=255"`
	Qty        int    `validate:"gte=0"`
	Note       string `validate:"max=1000"`
}

// BulkAssignInput requests several assignments validated as a whole.
// RequestKey, when set, makes retries of the same batch idempotent.
type BulkAssignInput struct {
	PoolID     int64        `validate:"required,gt=0"`
	Items      []AssignItem `validate:"required,min=1,dive"`
	ActorID    int64
	RequestKey string `validate:"max=128"`
}

// UnassignInput returns an assignment.
type UnassignInput struct {
	AssignmentID int64 `validate:"required,gt=0"`
	ActorID      int64
	Note         string `validate:"max=1000"`
}

var (
	// ErrNotFound indicates a missing pool or assignment.
	ErrNotFound = errors.New("inventory: not found")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("inventory: invalid input")
	// ErrInsufficientCapacity is matched by every *InsufficientCapacityError.
	ErrInsufficientCapacity = errors.New("inventory: insufficient capacity")
	// ErrTotalBelowAssigned rejects capacity changes under the assigned quantity.
	ErrTotalBelowAssigned = errors.New("inventory: total quantity below assigned quantity")
	// ErrDuplicateRequest reports a bulk request key that was already processed.
	ErrDuplicateRequest = errors.New("inventory: request already processed")
)

// InsufficientCapacityError reports a rejected assignment. No state was
// changed when it is returned.
type InsufficientCapacityError struct {
	PoolID    int64
	Requested int
	Available int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("inventory: pool %d has %d available, %d requested", e.PoolID, e.Available, e.Requested)
}

// Is lets errors.Is match ErrInsufficientCapacity.
func (e *InsufficientCapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}
