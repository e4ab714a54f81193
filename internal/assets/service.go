package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
)

// RepositoryPort abstracts asset persistence. Transition methods are
// conditional on the source state and report false when the row was not in
// an eligible state at write time.
type RepositoryPort interface {
	Create(ctx context.Context, asset Asset) (Asset, error)
	Get(ctx context.Context, id int64) (Asset, error)
	Checkout(ctx context.Context, id, assignee int64, at time.Time, expected *time.Time, identityTag *string) (Asset, bool, error)
	Checkin(ctx context.Context, id int64) (Asset, bool, error)
	SetIdentityTag(ctx context.Context, id int64, tag string) (Asset, bool, error)
	MarkOverdue(ctx context.Context, now time.Time) ([]Asset, error)
	Delete(ctx context.Context, id int64) error
}

// AuditPort records activity entries.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// SystemPrincipalID receives implicit checkouts made by tag attachment.
	SystemPrincipalID int64
}

// Service implements the asset lifecycle.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	validate *validator.Validate
	systemID int64
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, recorder AuditPort, cfg ServiceConfig) *Service {
	return &Service{
		repo:     repo,
		audit:    recorder,
		validate: validator.New(),
		systemID: cfg.SystemPrincipalID,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create registers an AVAILABLE asset.
func (s *Service) Create(ctx context.Context, input CreateInput) (Asset, error) {
	if err := s.validate.Struct(input); err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	asset, err := s.repo.Create(ctx, Asset{Tag: input.Tag, Name: input.Name, Status: StatusAvailable})
	if err != nil {
		return Asset{}, err
	}
	s.record(ctx, audit.ActionCreate, asset.ID, input.ActorID, fmt.Sprintf("tag %s", asset.Tag))
	return asset, nil
}

// Get fetches an asset.
func (s *Service) Get(ctx context.Context, id int64) (Asset, error) {
	return s.repo.Get(ctx, id)
}

// Checkout moves an AVAILABLE asset to DEPLOYED under input.AssigneeID. Any
// other source state leaves the asset untouched and reports false.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (Asset, bool, error) {
	if err := s.validate.Struct(input); err != nil {
		return Asset{}, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	asset, ok, err := s.repo.Checkout(ctx, input.AssetID, input.AssigneeID, s.now(), input.ExpectedCheckin, nil)
	if err != nil {
		return Asset{}, false, err
	}
	if !ok {
		return s.declined(ctx, input.AssetID)
	}
	note := fmt.Sprintf("checked out to principal %d", input.AssigneeID)
	if input.Note != "" {
		note += ": " + input.Note
	}
	s.record(ctx, audit.ActionCheckout, asset.ID, input.ActorID, note)
	return asset, true, nil
}

// Checkin returns a DEPLOYED or OVERDUE asset to AVAILABLE, clearing the
// assignment and its identity tag.
func (s *Service) Checkin(ctx context.Context, input CheckinInput) (Asset, bool, error) {
	if err := s.validate.Struct(input); err != nil {
		return Asset{}, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	asset, ok, err := s.repo.Checkin(ctx, input.AssetID)
	if err != nil {
		return Asset{}, false, err
	}
	if !ok {
		return s.declined(ctx, input.AssetID)
	}
	s.record(ctx, audit.ActionCheckin, asset.ID, input.ActorID, input.Note)
	return asset, true, nil
}

// AttachIdentityTag binds an external identity tag to the asset's current
// assignment. An AVAILABLE asset is implicitly checked out to the system
// principal; an assigned asset under the same tag is left unchanged.
func (s *Service) AttachIdentityTag(ctx context.Context, input TagInput) (Asset, bool, error) {
	if err := s.validate.Struct(input); err != nil {
		return Asset{}, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	current, err := s.repo.Get(ctx, input.AssetID)
	if err != nil {
		return Asset{}, false, err
	}
	switch {
	case current.Status.Assigned() && current.IdentityTag != nil && *current.IdentityTag == input.Tag:
		return current, false, nil
	case current.Status == StatusAvailable:
		if s.systemID == 0 {
			return Asset{}, false, errors.New("assets: system principal not configured")
		}
		tag := input.Tag
		asset, ok, err := s.repo.Checkout(ctx, current.ID, s.systemID, s.now(), nil, &tag)
		if err != nil {
			return Asset{}, false, err
		}
		if !ok {
			return s.declined(ctx, current.ID)
		}
		s.record(ctx, audit.ActionCheckout, asset.ID, input.ActorID, fmt.Sprintf("implicit checkout to system principal %d for identity tag %s", s.systemID, tag))
		return asset, true, nil
	case current.Status.Assigned():
		asset, ok, err := s.repo.SetIdentityTag(ctx, current.ID, input.Tag)
		if err != nil {
			return Asset{}, false, err
		}
		if !ok {
			return s.declined(ctx, current.ID)
		}
		s.record(ctx, audit.ActionTag, asset.ID, input.ActorID, "identity tag "+input.Tag)
		return asset, true, nil
	default:
		return current, false, nil
	}
}

// Delete removes the asset from any state. The activity record is written
// before the row is removed.
func (s *Service) Delete(ctx context.Context, input DeleteInput) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	current, err := s.repo.Get(ctx, input.AssetID)
	if err != nil {
		return err
	}
	s.record(ctx, audit.ActionDelete, current.ID, input.ActorID, fmt.Sprintf("tag %s deleted from %s", current.Tag, current.Status))
	return s.repo.Delete(ctx, current.ID)
}

// MarkOverdue flags DEPLOYED assets whose expected checkin has passed.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	flagged, err := s.repo.MarkOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, asset := range flagged {
		note := "expected checkin passed"
		if asset.ExpectedCheckin != nil {
			note = "expected checkin " + asset.ExpectedCheckin.Format(time.RFC3339) + " passed"
		}
		s.record(ctx, audit.ActionOverdue, asset.ID, 0, note)
	}
	return len(flagged), nil
}

func (s *Service) declined(ctx context.Context, id int64) (Asset, bool, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Asset{}, false, err
	}
	return current, false, nil
}

func (s *Service) record(ctx context.Context, action audit.Action, assetID, actorID int64, notes string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		Action:   action,
		ItemType: audit.ItemAsset,
		ItemID:   assetID,
		UserID:   audit.Actor(actorID),
		Notes:    notes,
	})
}
