package roles

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-assets/internal/rbac"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

const roleColumns = `id, name, description, permissions, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new role.
func (r *Repository) Create(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	perms, err := encodeMatrix(role.Permissions)
	if err != nil {
		return rbac.Role{}, err
	}
	created, err := rbac.ScanRole(r.pool.QueryRow(ctx, `INSERT INTO roles (name, description, permissions)
VALUES ($1, $2, $3) RETURNING `+roleColumns, role.Name, role.Description, perms))
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return rbac.Role{}, ErrDuplicateName
		}
		return rbac.Role{}, err
	}
	return created, nil
}

// Get loads a role.
func (r *Repository) Get(ctx context.Context, id int64) (rbac.Role, error) {
	return rbac.ScanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// List returns all roles ordered by name.
func (r *Repository) List(ctx context.Context) ([]rbac.Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rbac.Role
	for rows.Next() {
		role, err := rbac.ScanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// UpdatePermissions stores a new matrix for a role.
func (r *Repository) UpdatePermissions(ctx context.Context, id int64, matrix rbac.Matrix) (rbac.Role, error) {
	perms, err := encodeMatrix(matrix)
	if err != nil {
		return rbac.Role{}, err
	}
	return rbac.ScanRole(r.pool.QueryRow(ctx, `UPDATE roles SET permissions = $2, updated_at = NOW()
WHERE id = $1 RETURNING `+roleColumns, id, perms))
}

// Delete removes a role. principals.role_id is cleared by ON DELETE SET NULL.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// encodeMatrix returns nil for a nil matrix so the column stays NULL.
func encodeMatrix(m rbac.Matrix) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m.Raw())
}

var _ RepositoryPort = (*Repository)(nil)
