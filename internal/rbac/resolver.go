package rbac

import (
	"context"
	"errors"
)

// RoleReader loads roles by ID.
type RoleReader interface {
	GetRole(ctx context.Context, id int64) (Role, error)
}

// Resolver derives the effective permission matrix of a principal.
type Resolver struct {
	roles RoleReader
}

// NewResolver builds a Resolver over the given role source.
func NewResolver(roles RoleReader) *Resolver {
	return &Resolver{roles: roles}
}

// Resolve returns the matrix for p. Admins receive FullMatrix; principals
// without a resolvable role receive nil (deny-all). Results are never cached,
// so role edits apply to the next call.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (Matrix, error) {
	if p.IsAdmin {
		return FullMatrix(), nil
	}
	if p.RoleID == nil || r.roles == nil {
		return nil, nil
	}
	role, err := r.roles.GetRole(ctx, *p.RoleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return role.Permissions, nil
}
