package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
	"github.com/odyssey-erp/odyssey-assets/internal/rbac"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

// RepositoryPort defines data access methods for principals.
type RepositoryPort interface {
	Create(ctx context.Context, user User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	List(ctx context.Context) ([]User, error)
	SetPrivileges(ctx context.Context, id int64, isAdmin bool, roleID *int64) (User, error)
	// DeleteAnonymized detaches the activity of a principal and removes it
	// atomically. It reports how many activity rows were detached.
	DeleteAnonymized(ctx context.Context, id int64, username string) (int64, error)
}

// AuditPort records activity.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service handles principal administration and credential checks.
type Service struct {
	repo     RepositoryPort
	authz    rbac.Authorizer
	audit    AuditPort
	validate *validator.Validate
	cost     int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz rbac.Authorizer, recorder AuditPort) *Service {
	return &Service{
		repo:     repo,
		authz:    authz,
		audit:    recorder,
		validate: validator.New(),
		cost:     bcrypt.DefaultCost,
	}
}

// NormalizeUsername folds case so lookups ignore it.
func NormalizeUsername(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.FindByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("users: find principal: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// List returns every principal. Requires users/view.
func (s *Service) List(ctx context.Context, actorID int64) ([]User, error) {
	if err := rbac.Enforce(ctx, s.authz, actorID, rbac.ResourceUsers, rbac.ActionView); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// Create registers a principal. Requires users/add.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (User, error) {
	if err := rbac.Enforce(ctx, s.authz, actorID, rbac.ResourceUsers, rbac.ActionAdd); err != nil {
		return User{}, err
	}
	input.Username = NormalizeUsername(input.Username)
	if err := s.validate.Struct(input); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := HashPassword(input.Password, s.cost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Create(ctx, User{
		Username:     input.Username,
		PasswordHash: hash,
		IsAdmin:      input.IsAdmin,
		RoleID:       input.RoleID,
	})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, audit.ActionCreate, user.ID, actorID, "principal "+user.Username+" "+privilegeNote(user))
	return user, nil
}

// SetPrivileges replaces the admin flag and role of a principal. The change
// applies to the next authorization check. Requires users/edit.
func (s *Service) SetPrivileges(ctx context.Context, actorID, id int64, input PrivilegesInput) (User, error) {
	if err := rbac.Enforce(ctx, s.authz, actorID, rbac.ResourceUsers, rbac.ActionEdit); err != nil {
		return User{}, err
	}
	if err := s.validate.Struct(input); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	user, err := s.repo.SetPrivileges(ctx, id, input.IsAdmin, input.RoleID)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, audit.ActionPrivilege, user.ID, actorID, privilegeNote(user))
	return user, nil
}

// Delete removes a principal. Activity rows naming it are anonymized and
// kept, in the same transaction as the removal. Requires users/delete.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := rbac.Enforce(ctx, s.authz, actorID, rbac.ResourceUsers, rbac.ActionDelete); err != nil {
		return err
	}
	if actorID == id {
		return ErrSelfDelete
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.repo.DeleteAnonymized(ctx, user.ID, user.Username); err != nil {
		return err
	}
	s.record(ctx, audit.ActionDelete, user.ID, actorID, "principal "+user.Username)
	return nil
}

func (s *Service) record(ctx context.Context, action audit.Action, userID, actorID int64, notes string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		Action:   action,
		ItemType: audit.ItemPrincipal,
		ItemID:   userID,
		UserID:   audit.Actor(actorID),
		Notes:    notes,
	})
}

func privilegeNote(u User) string {
	switch {
	case u.IsAdmin:
		return "admin"
	case u.RoleID != nil:
		return fmt.Sprintf("role %d", *u.RoleID)
	default:
		return "no role"
	}
}
