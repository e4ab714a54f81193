package assets

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

const assetColumns = `id, tag, name, status, assigned_to, checkout_at, expected_checkin, identity_tag, created_at, updated_at`

// Repository persists assets in PostgreSQL. Every transition is a single
// conditional UPDATE so concurrent callers cannot both pass the state check.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts an asset.
func (r *Repository) Create(ctx context.Context, asset Asset) (Asset, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO assets (tag, name, status) VALUES ($1, $2, $3) RETURNING `+assetColumns,
		asset.Tag, asset.Name, string(asset.Status))
	created, err := scanAsset(row)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Asset{}, ErrDuplicateTag
		}
		return Asset{}, err
	}
	return created, nil
}

// Get loads an asset by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Asset, error) {
	return scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id))
}

// Checkout deploys an AVAILABLE asset.
func (r *Repository) Checkout(ctx context.Context, id, assignee int64, at time.Time, expected *time.Time, identityTag *string) (Asset, bool, error) {
	row := r.pool.QueryRow(ctx, `UPDATE assets
SET status = 'DEPLOYED', assigned_to = $2, checkout_at = $3, expected_checkin = $4,
    identity_tag = COALESCE($5, identity_tag), updated_at = NOW()
WHERE id = $1 AND status = 'AVAILABLE'
RETURNING `+assetColumns, id, assignee, at, toTimestamptz(expected), toText(identityTag))
	return conditional(scanAsset(row))
}

// Checkin returns a DEPLOYED or OVERDUE asset to AVAILABLE.
func (r *Repository) Checkin(ctx context.Context, id int64) (Asset, bool, error) {
	row := r.pool.QueryRow(ctx, `UPDATE assets
SET status = 'AVAILABLE', assigned_to = NULL, checkout_at = NULL, expected_checkin = NULL,
    identity_tag = NULL, updated_at = NOW()
WHERE id = $1 AND status IN ('DEPLOYED', 'OVERDUE')
RETURNING `+assetColumns, id)
	return conditional(scanAsset(row))
}

// SetIdentityTag replaces the identity tag of an assigned asset.
func (r *Repository) SetIdentityTag(ctx context.Context, id int64, tag string) (Asset, bool, error) {
	row := r.pool.QueryRow(ctx, `UPDATE assets
SET identity_tag = $2, updated_at = NOW()
WHERE id = $1 AND status IN ('DEPLOYED', 'OVERDUE')
RETURNING `+assetColumns, id, tag)
	return conditional(scanAsset(row))
}

// MarkOverdue flags deployed assets past their expected checkin.
func (r *Repository) MarkOverdue(ctx context.Context, now time.Time) ([]Asset, error) {
	rows, err := r.pool.Query(ctx, `UPDATE assets
SET status = 'OVERDUE', updated_at = NOW()
WHERE status = 'DEPLOYED' AND expected_checkin IS NOT NULL AND expected_checkin < $1
RETURNING `+assetColumns, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Asset, error) {
		return scanAsset(row)
	})
}

// Delete removes an asset row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func conditional(asset Asset, err error) (Asset, bool, error) {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Asset{}, false, nil
		}
		return Asset{}, false, err
	}
	return asset, true, nil
}

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a          Asset
		status     string
		assignedTo pgtype.Int8
		checkoutAt pgtype.Timestamptz
		expected   pgtype.Timestamptz
		identity   pgtype.Text
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.Tag, &a.Name, &status, &assignedTo, &checkoutAt, &expected, &identity, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrNotFound
		}
		return Asset{}, err
	}
	a.Status = Status(status)
	if assignedTo.Valid {
		v := assignedTo.Int64
		a.AssignedTo = &v
	}
	if checkoutAt.Valid {
		v := checkoutAt.Time
		a.CheckoutAt = &v
	}
	if expected.Valid {
		v := expected.Time
		a.ExpectedCheckin = &v
	}
	if identity.Valid {
		v := identity.String
		a.IdentityTag = &v
	}
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return a, nil
}

func toTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func toText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

var _ RepositoryPort = (*Repository)(nil)
