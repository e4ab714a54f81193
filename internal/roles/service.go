package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
	"github.com/odyssey-erp/odyssey-assets/internal/rbac"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	Create(ctx context.Context, role rbac.Role) (rbac.Role, error)
	Get(ctx context.Context, id int64) (rbac.Role, error)
	List(ctx context.Context) ([]rbac.Role, error)
	UpdatePermissions(ctx context.Context, id int64, matrix rbac.Matrix) (rbac.Role, error)
	Delete(ctx context.Context, id int64) error
}

// AuditPort records activity entries.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service handles role administration. Nothing is cached: a saved matrix is
// what the next authorization check reads.
type Service struct {
	repo     RepositoryPort
	authz    rbac.Authorizer
	audit    AuditPort
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz rbac.Authorizer, recorder AuditPort) *Service {
	return &Service{repo: repo, authz: authz, audit: recorder, validate: validator.New()}
}

// List returns all roles. Requires roles/view.
func (s *Service) List(ctx context.Context, actorID int64) ([]rbac.Role, error) {
	if err := rbac.Enforce(ctx, s.authz, actorID, rbac.ResourceRoles, rbac.ActionView); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// Get returns a role. Requires roles/view.
func (s *Service) Get(ctx context.Context, actorID, id int64) (rbac.Role, error) {
	if err := rbac.Enforce(ctx, s.authz, actorID, rbac.ResourceRoles, rbac.ActionView); err != nil {
		return rbac.Role{}, err
	}
	return s.repo.Get(ctx, id)
}

// Create stores a role after validating its matrix. Requires roles/add.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (rbac.Role, error) {
	if err := rbac.Enforce(ctx, s.authz, actorID, rbac.ResourceRoles, rbac.ActionAdd); err != nil {
		return rbac.Role{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate.Struct(input); err != nil {
		return rbac.Role{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	matrix, err := rbac.ParseMatrix(input.Permissions)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	role, err := s.repo.Create(ctx, rbac.Role{Name: input.Name, Description: input.Description, Permissions: matrix})
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, audit.ActionCreate, role, actorID)
	return role, nil
}

// UpdatePermissions replaces the matrix of a role. A nil matrix leaves
// holders of the role with no permissions at all. Requires roles/edit.
func (s *Service) UpdatePermissions(ctx context.Context, actorID, id int64, input UpdateInput) (rbac.Role, error) {
	if err := rbac.Enforce(ctx, s.authz, actorID, rbac.ResourceRoles, rbac.ActionEdit); err != nil {
		return rbac.Role{}, err
	}
	matrix, err := rbac.ParseMatrix(input.Permissions)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	role, err := s.repo.UpdatePermissions(ctx, id, matrix)
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, audit.ActionUpdate, role, actorID)
	return role, nil
}

// Delete removes a role. Principals holding it are left without a role.
// Requires roles/delete.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := rbac.Enforce(ctx, s.authz, actorID, rbac.ResourceRoles, rbac.ActionDelete); err != nil {
		return err
	}
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, audit.ActionDelete, role, actorID)
	return nil
}

func (s *Service) record(ctx context.Context, action audit.Action, role rbac.Role, actorID int64) {
	if s.audit == nil {
		return
	}
	notes := "role " + role.Name
	if action != audit.ActionDelete {
		if grants := role.Permissions.Grants(); len(grants) > 0 {
			notes += ": " + strings.Join(grants, ", ")
		} else {
			notes += ": no permissions"
		}
	}
	s.audit.Record(ctx, audit.Entry{
		Action:   action,
		ItemType: audit.ItemRole,
		ItemID:   role.ID,
		UserID:   audit.Actor(actorID),
		Notes:    notes,
	})
}
