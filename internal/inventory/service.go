package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

const idempotencyModule = "inventory"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreatePool(ctx context.Context, pool Pool) (Pool, error)
	GetPool(ctx context.Context, id int64) (Pool, error)
	GetAssignment(ctx context.Context, id int64) (Assignment, error)
	ListAssignments(ctx context.Context, poolID int64, status AssignmentStatus) ([]Assignment, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry)
}

// IdempotencyPort guards bulk requests against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CapacityObserver is notified of rejected assignments.
type CapacityObserver interface {
	ObserveCapacityRejection(kind string)
}

// Service coordinates pooled assignments.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	observer    CapacityObserver
	validate    *validator.Validate
	now         func() time.Time
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Idempotency IdempotencyPort
	Observer    CapacityObserver
}

// NewService builds Service.
func NewService(repo RepositoryPort, recorder AuditPort, cfg ServiceConfig) *Service {
	return &Service{
		repo:        repo,
		audit:       recorder,
		idempotency: cfg.Idempotency,
		observer:    cfg.Observer,
		validate:    validator.New(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreatePool registers a pool with nothing assigned.
func (s *Service) CreatePool(ctx context.Context, input CreatePoolInput) (Pool, error) {
	if err := s.validate.Struct(input); err != nil {
		return Pool{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	pool, err := s.repo.CreatePool(ctx, Pool{Kind: input.Kind, Name: input.Name, TotalQty: input.TotalQty})
	if err != nil {
		return Pool{}, err
	}
	s.record(ctx, audit.ActionCreate, pool.ID, input.ActorID, fmt.Sprintf("%s pool %q with %d units", pool.Kind, pool.Name, pool.TotalQty))
	return pool, nil
}

// GetPool fetches a pool.
func (s *Service) GetPool(ctx context.Context, id int64) (Pool, error) {
	return s.repo.GetPool(ctx, id)
}

// GetAssignment fetches an assignment.
func (s *Service) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	return s.repo.GetAssignment(ctx, id)
}

// ListAssignments lists assignments of a pool, optionally by status.
func (s *Service) ListAssignments(ctx context.Context, poolID int64, status AssignmentStatus) ([]Assignment, error) {
	return s.repo.ListAssignments(ctx, poolID, status)
}

// AdjustTotal changes the capacity of a pool. Totals below the assigned
// quantity are rejected.
func (s *Service) AdjustTotal(ctx context.Context, input AdjustTotalInput) (Pool, error) {
	if err := s.validate.Struct(input); err != nil {
		return Pool{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var (
		pool     Pool
		previous int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPoolForUpdate(ctx, input.PoolID)
		if err != nil {
			return err
		}
		previous = current.TotalQty
		updated, ok, err := tx.SetTotal(ctx, input.PoolID, input.TotalQty)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTotalBelowAssigned
		}
		pool = updated
		return nil
	})
	if err != nil {
		return Pool{}, err
	}
	s.record(ctx, audit.ActionAdjust, pool.ID, input.ActorID, fmt.Sprintf("total %d -> %d", previous, pool.TotalQty))
	return pool, nil
}

// Assign binds input.Qty units of a pool. When the pool lacks capacity an
// *InsufficientCapacityError is returned and nothing is written. The
// assignment row and counter increment commit together.
func (s *Service) Assign(ctx context.Context, input AssignInput) (Assignment, error) {
	if err := s.validate.Struct(input); err != nil {
		return Assignment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	requested := quantity(input.Qty)
	var (
		created Assignment
		kind    PoolKind
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pool, err := s.reserve(ctx, tx, input.PoolID, requested)
		kind = pool.Kind
		if err != nil {
			return err
		}
		created, err = tx.InsertAssignment(ctx, Assignment{
			PoolID:     pool.ID,
			AssignedTo: input.AssignedTo,
			Qty:        requested,
			Status:     AssignmentAssigned,
			AssignedAt: s.now(),
			Note:       input.Note,
		})
		return err
	})
	if err != nil {
		s.observeRejection(err, kind)
		return Assignment{}, err
	}
	s.record(ctx, audit.ActionAssign, created.PoolID, input.ActorID, assignmentNote(created))
	return created, nil
}

// BulkAssign validates the summed quantity of all items against the pool
// before creating any record. Either every item is assigned or none is.
func (s *Service) BulkAssign(ctx context.Context, input BulkAssignInput) ([]Assignment, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	total := 0
	for _, item := range input.Items {
		total += quantity(item.Qty)
	}

	key := ""
	if input.RequestKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("bulk_assign:%d:%s", input.PoolID, input.RequestKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, ErrDuplicateRequest
			}
			return nil, err
		}
	}

	batchID := uuid.New()
	var (
		created []Assignment
		kind    PoolKind
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pool, err := s.reserve(ctx, tx, input.PoolID, total)
		kind = pool.Kind
		if err != nil {
			return err
		}
		now := s.now()
		created = make([]Assignment, 0, len(input.Items))
		for _, item := range input.Items {
			a, err := tx.InsertAssignment(ctx, Assignment{
				PoolID:     pool.ID,
				AssignedTo: item.AssignedTo,
				Qty:        quantity(item.Qty),
				Status:     AssignmentAssigned,
				AssignedAt: now,
				BatchID:    batchID,
				Note:       item.Note,
			})
			if err != nil {
				return err
			}
			created = append(created, a)
		}
		return nil
	})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(ctx, key)
		}
		s.observeRejection(err, kind)
		return nil, err
	}
	for _, a := range created {
		s.record(ctx, audit.ActionAssign, a.PoolID, input.ActorID, assignmentNote(a)+" batch "+batchID.String())
	}
	return created, nil
}

// Unassign marks an assignment RETURNED and releases its quantity, never
// taking the pool counter below zero. Returning an already returned
// assignment changes nothing and reports false.
func (s *Service) Unassign(ctx context.Context, input UnassignInput) (Assignment, bool, error) {
	if err := s.validate.Struct(input); err != nil {
		return Assignment{}, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var (
		returned Assignment
		applied  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, ok, err := tx.MarkReturned(ctx, input.AssignmentID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			current, err := tx.GetAssignment(ctx, input.AssignmentID)
			if err != nil {
				return err
			}
			returned = current
			return nil
		}
		if _, err := tx.ReleaseCapacity(ctx, a.PoolID, a.Qty); err != nil {
			return err
		}
		returned, applied = a, true
		return nil
	})
	if err != nil {
		return Assignment{}, false, err
	}
	if applied {
		note := assignmentNote(returned)
		if input.Note != "" {
			note += ": " + input.Note
		}
		s.record(ctx, audit.ActionUnassign, returned.PoolID, input.ActorID, note)
	}
	return returned, applied, nil
}

// reserve locks the pool, checks capacity and increments the counter with a
// conditional update.
func (s *Service) reserve(ctx context.Context, tx TxRepository, poolID int64, qty int) (Pool, error) {
	pool, err := tx.GetPoolForUpdate(ctx, poolID)
	if err != nil {
		return Pool{}, err
	}
	if qty > pool.Available() {
		return pool, &InsufficientCapacityError{PoolID: pool.ID, Requested: qty, Available: pool.Available()}
	}
	updated, ok, err := tx.ReserveCapacity(ctx, poolID, qty)
	if err != nil {
		return pool, err
	}
	if !ok {
		available := pool.Available()
		if latest, err := tx.GetPoolForUpdate(ctx, poolID); err == nil {
			available = latest.Available()
		}
		return pool, &InsufficientCapacityError{PoolID: pool.ID, Requested: qty, Available: available}
	}
	return updated, nil
}

func (s *Service) observeRejection(err error, kind PoolKind) {
	if s.observer == nil || !errors.Is(err, ErrInsufficientCapacity) {
		return
	}
	s.observer.ObserveCapacityRejection(string(kind))
}

func (s *Service) record(ctx context.Context, action audit.Action, poolID, actorID int64, notes string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		Action:   action,
		ItemType: audit.ItemPool,
		ItemID:   poolID,
		UserID:   audit.Actor(actorID),
		Notes:    notes,
	})
}

func assignmentNote(a Assignment) string {
	return fmt.Sprintf("assignment %d: %d to %s", a.ID, a.Qty, a.AssignedTo)
}

func quantity(qty int) int {
	if qty <= 0 {
		return 1
	}
	return qty
}
