package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
	"github.com/odyssey-erp/odyssey-assets/internal/audit/audittest"
	"github.com/odyssey-erp/odyssey-assets/internal/rbac"
)

type memoryRepo struct {
	roles      map[int64]rbac.Role
	principals map[int64]rbac.Principal
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{roles: make(map[int64]rbac.Role), principals: make(map[int64]rbac.Principal)}
}

func (m *memoryRepo) Create(_ context.Context, role rbac.Role) (rbac.Role, error) {
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return rbac.Role{}, ErrDuplicateName
		}
	}
	m.nextID++
	role.ID = m.nextID
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (rbac.Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return role, nil
}

func (m *memoryRepo) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) List(_ context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	return out, nil
}

func (m *memoryRepo) UpdatePermissions(_ context.Context, id int64, matrix rbac.Matrix) (rbac.Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	role.Permissions = matrix
	m.roles[id] = role
	return role, nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.roles[id]; !ok {
		return rbac.ErrNotFound
	}
	delete(m.roles, id)
	for pid, p := range m.principals {
		if p.RoleID != nil && *p.RoleID == id {
			p.RoleID = nil
			m.principals[pid] = p
		}
	}
	return nil
}

func (m *memoryRepo) GetPrincipal(_ context.Context, id int64) (rbac.Principal, error) {
	p, ok := m.principals[id]
	if !ok {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	return p, nil
}

const adminID = 1

func newTestService(t *testing.T) (*Service, *memoryRepo, *rbac.Service, *audittest.Memory) {
	t.Helper()
	repo := newMemoryRepo()
	repo.principals[adminID] = rbac.Principal{ID: adminID, Username: "root", IsAdmin: true}
	authz := rbac.NewService(repo, nil)
	log := audittest.New()
	return NewService(repo, authz, audit.NewRecorder(log, nil)), repo, authz, log
}

func TestRoleEditAppliesToNextCheck(t *testing.T) {
	svc, repo, authz, _ := newTestService(t)
	ctx := context.Background()

	role, err := svc.Create(ctx, adminID, CreateInput{
		Name:        "Asset Manager",
		Permissions: map[string]map[string]bool{"assets": {"view": true, "edit": true}},
	})
	require.NoError(t, err)
	roleID := role.ID
	repo.principals[2] = rbac.Principal{ID: 2, Username: "manager", RoleID: &roleID}

	d, err := authz.Authorize(ctx, 2, rbac.ResourceAssets, rbac.ActionEdit)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	_, err = svc.UpdatePermissions(ctx, adminID, role.ID, UpdateInput{
		Permissions: map[string]map[string]bool{"assets": {"view": true}},
	})
	require.NoError(t, err)

	d, err = authz.Authorize(ctx, 2, rbac.ResourceAssets, rbac.ActionEdit)
	require.NoError(t, err)
	require.Equal(t, rbac.Deny(rbac.DenyActionNotPermitted), d)

	_, err = svc.UpdatePermissions(ctx, adminID, role.ID, UpdateInput{})
	require.NoError(t, err)
	d, err = authz.Authorize(ctx, 2, rbac.ResourceAssets, rbac.ActionView)
	require.NoError(t, err)
	require.Equal(t, rbac.Deny(rbac.DenyNoRolePermissions), d)
}

func TestCreateRejectsUnknownPermissions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, adminID, CreateInput{
		Name:        "typo",
		Permissions: map[string]map[string]bool{"asets": {"view": true}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, adminID, CreateInput{
		Name:        "typo",
		Permissions: map[string]map[string]bool{"assets": {"approve": true}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, adminID, CreateInput{Name: "  "})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRoleAdministrationIsGated(t *testing.T) {
	svc, repo, _, log := newTestService(t)
	ctx := context.Background()
	viewer, err := svc.Create(ctx, adminID, CreateInput{
		Name:        "Role Viewer",
		Permissions: map[string]map[string]bool{"roles": {"view": true}},
	})
	require.NoError(t, err)
	viewerRole := viewer.ID
	repo.principals[3] = rbac.Principal{ID: 3, Username: "auditor", RoleID: &viewerRole}
	recorded := len(log.Records())

	list, err := svc.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.Create(ctx, 3, CreateInput{Name: "escalate"})
	var denied *rbac.DeniedError
	require.True(t, errors.As(err, &denied))
	require.Equal(t, rbac.ResourceRoles, denied.Resource)
	require.Equal(t, rbac.ActionAdd, denied.Action)

	err = svc.Delete(ctx, 4, viewer.ID)
	require.True(t, errors.As(err, &denied))
	require.Equal(t, rbac.DenyUnknownPrincipal, denied.Decision.Reason)

	require.Len(t, log.Records(), recorded, "refused calls leave no activity")
}

func TestDeleteRoleLeavesHoldersWithoutPermissions(t *testing.T) {
	svc, repo, authz, log := newTestService(t)
	ctx := context.Background()
	role, err := svc.Create(ctx, adminID, CreateInput{
		Name:        "Clerk",
		Permissions: map[string]map[string]bool{"licenses": {"view": true}},
	})
	require.NoError(t, err)
	roleID := role.ID
	repo.principals[5] = rbac.Principal{ID: 5, Username: "clerk", RoleID: &roleID}

	require.NoError(t, svc.Delete(ctx, adminID, role.ID))

	d, err := authz.Authorize(ctx, 5, rbac.ResourceLicenses, rbac.ActionView)
	require.NoError(t, err)
	require.Equal(t, rbac.Deny(rbac.DenyNoRolePermissions), d)

	records := log.Records()
	last := records[len(records)-1]
	require.Equal(t, audit.ActionDelete, last.Action)
	require.Equal(t, audit.ItemRole, last.ItemType)
	require.Equal(t, role.ID, last.ItemID)
}
