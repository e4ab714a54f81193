package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-assets/internal/platform/db"
)

const (
	poolColumns       = `id, kind, name, total_qty, assigned_qty, created_at, updated_at`
	assignmentColumns = `id, pool_id, assigned_to, qty, status, assigned_at, returned_at, batch_id, note`
)

// Repository persists pools and assignments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetPoolForUpdate(ctx context.Context, id int64) (Pool, error)
	// ReserveCapacity increments assigned_qty only while it stays within total_qty.
	ReserveCapacity(ctx context.Context, poolID int64, qty int) (Pool, bool, error)
	// ReleaseCapacity decrements assigned_qty, flooring at zero.
	ReleaseCapacity(ctx context.Context, poolID int64, qty int) (Pool, error)
	SetTotal(ctx context.Context, poolID int64, total int) (Pool, bool, error)
	InsertAssignment(ctx context.Context, a Assignment) (Assignment, error)
	// MarkReturned flips an ASSIGNED row to RETURNED and reports false otherwise.
	MarkReturned(ctx context.Context, id int64, at time.Time) (Assignment, bool, error)
	GetAssignment(ctx context.Context, id int64) (Assignment, error)
}

// queryer is satisfied by both pgxpool.Pool and pgx.Tx.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type txRepo struct {
	q queryer
}

// WithTx executes the callback inside a read-committed transaction. Pool rows
// are locked with SELECT ... FOR UPDATE so concurrent assignments serialise.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.LockingTx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// CreatePool inserts a pool with nothing assigned.
func (r *Repository) CreatePool(ctx context.Context, pool Pool) (Pool, error) {
	return scanPool(r.pool.QueryRow(ctx, `INSERT INTO pools (kind, name, total_qty, assigned_qty)
VALUES ($1, $2, $3, 0) RETURNING `+poolColumns, string(pool.Kind), pool.Name, pool.TotalQty))
}

// GetPool loads a pool.
func (r *Repository) GetPool(ctx context.Context, id int64) (Pool, error) {
	return scanPool(r.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id))
}

// GetAssignment loads an assignment.
func (r *Repository) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	return (&txRepo{q: r.pool}).GetAssignment(ctx, id)
}

// ListAssignments lists assignments of a pool, newest first. An empty status
// returns every assignment.
func (r *Repository) ListAssignments(ctx context.Context, poolID int64, status AssignmentStatus) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM pool_assignments
WHERE pool_id = $1 AND ($2 = '' OR status = $2)
ORDER BY assigned_at DESC, id DESC`, poolID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *txRepo) GetPoolForUpdate(ctx context.Context, id int64) (Pool, error) {
	return scanPool(t.q.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) ReserveCapacity(ctx context.Context, poolID int64, qty int) (Pool, bool, error) {
	row := t.q.QueryRow(ctx, `UPDATE pools SET assigned_qty = assigned_qty + $2, updated_at = NOW()
WHERE id = $1 AND assigned_qty + $2 <= total_qty
RETURNING `+poolColumns, poolID, qty)
	return conditionalPool(scanPool(row))
}

func (t *txRepo) ReleaseCapacity(ctx context.Context, poolID int64, qty int) (Pool, error) {
	return scanPool(t.q.QueryRow(ctx, `UPDATE pools SET assigned_qty = GREATEST(assigned_qty - $2, 0), updated_at = NOW()
WHERE id = $1
RETURNING `+poolColumns, poolID, qty))
}

func (t *txRepo) SetTotal(ctx context.Context, poolID int64, total int) (Pool, bool, error) {
	row := t.q.QueryRow(ctx, `UPDATE pools SET total_qty = $2, updated_at = NOW()
WHERE id = $1 AND assigned_qty <= $2
RETURNING `+poolColumns, poolID, total)
	return conditionalPool(scanPool(row))
}

func (t *txRepo) InsertAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	batch := pgtype.UUID{Bytes: a.BatchID, Valid: a.BatchID != uuid.Nil}
	return scanAssignment(t.q.QueryRow(ctx, `INSERT INTO pool_assignments (pool_id, assigned_to, qty, status, assigned_at, batch_id, note)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+assignmentColumns, a.PoolID, a.AssignedTo, a.Qty, string(a.Status), a.AssignedAt, batch, a.Note))
}

func (t *txRepo) MarkReturned(ctx context.Context, id int64, at time.Time) (Assignment, bool, error) {
	row := t.q.QueryRow(ctx, `UPDATE pool_assignments SET status = 'RETURNED', returned_at = $2
WHERE id = $1 AND status = 'ASSIGNED'
RETURNING `+assignmentColumns, id, at)
	a, err := scanAssignment(row)
	if errors.Is(err, ErrNotFound) {
		return Assignment{}, false, nil
	}
	if err != nil {
		return Assignment{}, false, err
	}
	return a, true, nil
}

func (t *txRepo) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	return scanAssignment(t.q.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM pool_assignments WHERE id = $1`, id))
}

func scanPool(row pgx.Row) (Pool, error) {
	var (
		p         Pool
		kind      string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &kind, &p.Name, &p.TotalQty, &p.AssignedQty, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pool{}, ErrNotFound
		}
		return Pool{}, err
	}
	p.Kind = PoolKind(kind)
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return p, nil
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var (
		a          Assignment
		status     string
		assignedAt pgtype.Timestamptz
		returnedAt pgtype.Timestamptz
		batch      pgtype.UUID
		note       pgtype.Text
	)
	if err := row.Scan(&a.ID, &a.PoolID, &a.AssignedTo, &a.Qty, &status, &assignedAt, &returnedAt, &batch, &note); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, err
	}
	a.Status = AssignmentStatus(status)
	a.AssignedAt = assignedAt.Time
	if returnedAt.Valid {
		t := returnedAt.Time
		a.ReturnedAt = &t
	}
	if batch.Valid {
		a.BatchID = uuid.UUID(batch.Bytes)
	}
	a.Note = note.String
	return a, nil
}

// conditionalPool maps a missing row from a guarded UPDATE to a declined
// result. Callers already hold the pool lock, so absence means the guard failed.
func conditionalPool(p Pool, err error) (Pool, bool, error) {
	if errors.Is(err, ErrNotFound) {
		return Pool{}, false, nil
	}
	if err != nil {
		return Pool{}, false, err
	}
	return p, true, nil
}

var _ RepositoryPort = (*Repository)(nil)
