package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
	"github.com/odyssey-erp/odyssey-assets/internal/platform/db"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

const userColumns = `id, username, password_hash, is_admin, role_id, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a principal.
func (r *Repository) Create(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO principals (username, password_hash, is_admin, role_id)
VALUES ($1, $2, $3, $4) RETURNING `+userColumns, user.Username, user.PasswordHash, user.IsAdmin, toInt8(user.RoleID))
	created, err := scanUser(row)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return User{}, ErrDuplicateUsername
		}
		return User{}, err
	}
	return created, nil
}

// Get loads a principal by ID.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM principals WHERE id = $1`, id))
}

// FindByUsername loads a principal by its folded username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM principals WHERE username = $1`, username))
}

// List returns all principals ordered by username.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM principals ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetPrivileges updates the admin flag and role of a principal.
func (r *Repository) SetPrivileges(ctx context.Context, id int64, isAdmin bool, roleID *int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `UPDATE principals SET is_admin = $2, role_id = $3, updated_at = NOW()
WHERE id = $1 RETURNING `+userColumns, id, isAdmin, toInt8(roleID)))
}

// DeleteAnonymized locks the principal, detaches its activity rows and
// deletes it in one transaction. A failure at any step leaves both the
// principal and its history untouched.
func (r *Repository) DeleteAnonymized(ctx context.Context, id int64, username string) (int64, error) {
	var detached int64
	err := db.WithTx(ctx, r.pool, db.LockingTx, func(tx pgx.Tx) error {
		var locked int64
		if err := tx.QueryRow(ctx, `SELECT id FROM principals WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		n, err := audit.AnonymizeActor(ctx, tx, id, username)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM principals WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		detached = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return detached, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u         User
		roleID    pgtype.Int8
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &roleID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if roleID.Valid {
		v := roleID.Int64
		u.RoleID = &v
	}
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time
	return u, nil
}

func toInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

var _ RepositoryPort = (*Repository)(nil)
