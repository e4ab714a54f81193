package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads principals and roles from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPrincipal loads the privilege columns of a principal.
func (r *Repository) GetPrincipal(ctx context.Context, id int64) (Principal, error) {
	var (
		p      Principal
		roleID pgtype.Int8
	)
	err := r.pool.QueryRow(ctx, `SELECT id, username, is_admin, role_id FROM principals WHERE id = $1`, id).
		Scan(&p.ID, &p.Username, &p.IsAdmin, &roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, err
	}
	if roleID.Valid {
		v := roleID.Int64
		p.RoleID = &v
	}
	return p, nil
}

// GetRole loads a role and decodes its permission matrix.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, description, permissions, created_at, updated_at FROM roles WHERE id = $1`, id)
	return ScanRole(row)
}

// ScanRole decodes a roles row selected as
// id, name, description, permissions, created_at, updated_at.
func ScanRole(row pgx.Row) (Role, error) {
	var (
		role      Role
		rawPerms  []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &rawPerms, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	role.CreatedAt = createdAt.Time
	role.UpdatedAt = updatedAt.Time
	if len(rawPerms) == 0 || string(rawPerms) == "null" {
		return role, nil
	}
	var raw map[string]map[string]bool
	if err := json.Unmarshal(rawPerms, &raw); err != nil {
		return Role{}, fmt.Errorf("rbac: decode permissions of role %d: %w", role.ID, err)
	}
	matrix, err := ParseMatrix(raw)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: role %d: %w", role.ID, err)
	}
	role.Permissions = matrix
	return role, nil
}

var _ RepositoryPort = (*Repository)(nil)
