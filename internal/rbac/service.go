package rbac

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// PrincipalReader loads the persisted privilege fields of a principal.
type PrincipalReader interface {
	GetPrincipal(ctx context.Context, id int64) (Principal, error)
}

// RepositoryPort is the storage surface needed by Service.
type RepositoryPort interface {
	PrincipalReader
	RoleReader
}

// DecisionObserver receives every authorization outcome.
type DecisionObserver interface {
	ObserveDecision(resource, action string, allowed bool)
}

// Service is the access decision point.
type Service struct {
	principals PrincipalReader
	resolver   *Resolver
	observer   DecisionObserver
}

// NewService constructs a Service. observer may be nil.
func NewService(repo RepositoryPort, observer DecisionObserver) *Service {
	return &Service{principals: repo, resolver: NewResolver(repo), observer: observer}
}

// Authorize decides whether principalID may perform action on resource.
// Privilege is always re-read from storage; only storage faults are returned
// as errors, refusals are carried by the Decision.
func (s *Service) Authorize(ctx context.Context, principalID int64, resource Resource, action Action) (Decision, error) {
	decision, err := s.decide(ctx, principalID, resource, action)
	if err != nil {
		return Decision{}, err
	}
	if s.observer != nil {
		s.observer.ObserveDecision(string(resource), string(action), decision.Allowed)
	}
	return decision, nil
}

func (s *Service) decide(ctx context.Context, principalID int64, resource Resource, action Action) (Decision, error) {
	principal, err := s.principals.GetPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Deny(DenyUnknownPrincipal), nil
		}
		return Decision{}, fmt.Errorf("rbac: load principal %d: %w", principalID, err)
	}
	if principal.IsAdmin {
		return Allow(), nil
	}
	matrix, err := s.resolver.Resolve(ctx, principal)
	if err != nil {
		return Decision{}, fmt.Errorf("rbac: resolve role: %w", err)
	}
	if matrix == nil {
		return Deny(DenyNoRolePermissions), nil
	}
	set, ok := matrix[resource]
	if !ok {
		return Deny(DenyResourceNotPermitted), nil
	}
	if !set.Allows(action) {
		return Deny(DenyActionNotPermitted), nil
	}
	return Allow(), nil
}

// EffectiveMatrix returns the current matrix of principalID.
func (s *Service) EffectiveMatrix(ctx context.Context, principalID int64) (Matrix, error) {
	principal, err := s.principals.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, principal)
}
