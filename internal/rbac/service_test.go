package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	principals map[int64]Principal
	roles      map[int64]Role
	err        error
	roleReads  int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{principals: make(map[int64]Principal), roles: make(map[int64]Role)}
}

func (m *memoryRepo) GetPrincipal(_ context.Context, id int64) (Principal, error) {
	if m.err != nil {
		return Principal{}, m.err
	}
	p, ok := m.principals[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetRole(_ context.Context, id int64) (Role, error) {
	m.roleReads++
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

type decisionLog struct {
	allowed, denied int
}

func (d *decisionLog) ObserveDecision(_, _ string, allowed bool) {
	if allowed {
		d.allowed++
		return
	}
	d.denied++
}

func roleID(v int64) *int64 { return &v }

func TestAuthorizeEditorCannotAdd(t *testing.T) {
	repo := newMemoryRepo()
	editor, err := ParseMatrix(map[string]map[string]bool{"assets": {"view": true, "edit": true, "add": false}})
	require.NoError(t, err)
	repo.roles[1] = Role{ID: 1, Name: "editor", Permissions: editor}
	repo.principals[10] = Principal{ID: 10, Username: "ed", RoleID: roleID(1)}
	svc := NewService(repo, nil)
	ctx := context.Background()

	d, err := svc.Authorize(ctx, 10, ResourceAssets, ActionAdd)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, "action not permitted", d.Message())

	d, err = svc.Authorize(ctx, 10, ResourceAssets, ActionEdit)
	require.NoError(t, err)
	require.Equal(t, Allow(), d)
}

func TestAuthorizeDenyReasons(t *testing.T) {
	repo := newMemoryRepo()
	repo.roles[1] = Role{ID: 1, Name: "licenses", Permissions: Matrix{ResourceLicenses: {View: true}}}
	repo.roles[2] = Role{ID: 2, Name: "empty"}
	repo.principals[1] = Principal{ID: 1, RoleID: roleID(1)}
	repo.principals[2] = Principal{ID: 2, RoleID: roleID(2)}
	repo.principals[3] = Principal{ID: 3}
	repo.principals[4] = Principal{ID: 4, RoleID: roleID(99)}
	svc := NewService(repo, nil)

	cases := []struct {
		name      string
		principal int64
		resource  Resource
		action    Action
		want      Decision
	}{
		{"unknown principal", 404, ResourceAssets, ActionView, Deny(DenyUnknownPrincipal)},
		{"resource missing from matrix", 1, ResourceAssets, ActionView, Deny(DenyResourceNotPermitted)},
		{"action not granted", 1, ResourceLicenses, ActionDelete, Deny(DenyActionNotPermitted)},
		{"granted", 1, ResourceLicenses, ActionView, Allow()},
		{"role without matrix", 2, ResourceLicenses, ActionView, Deny(DenyNoRolePermissions)},
		{"no role", 3, ResourceActivity, ActionView, Deny(DenyNoRolePermissions)},
		{"dangling role", 4, ResourceActivity, ActionView, Deny(DenyNoRolePermissions)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := svc.Authorize(context.Background(), tc.principal, tc.resource, tc.action)
			require.NoError(t, err)
			require.Equal(t, tc.want, d)
		})
	}
}

func TestAdminBypassesMatrix(t *testing.T) {
	repo := newMemoryRepo()
	repo.roles[1] = Role{ID: 1, Name: "nothing", Permissions: Matrix{}}
	repo.principals[1] = Principal{ID: 1, IsAdmin: true, RoleID: roleID(1)}
	svc := NewService(repo, nil)

	for _, r := range Resources() {
		for _, a := range Actions() {
			d, err := svc.Authorize(context.Background(), 1, r, a)
			require.NoError(t, err)
			require.True(t, d.Allowed, "%s.%s", r, a)
		}
	}
	require.Zero(t, repo.roleReads, "admin checks never read the role")
}

func TestAuthorizeReadsPrivilegeEveryCall(t *testing.T) {
	repo := newMemoryRepo()
	repo.roles[1] = Role{ID: 1, Permissions: Matrix{ResourceAssets: {View: true}}}
	repo.principals[1] = Principal{ID: 1, RoleID: roleID(1)}
	observer := &decisionLog{}
	svc := NewService(repo, observer)
	ctx := context.Background()

	d, err := svc.Authorize(ctx, 1, ResourceAssets, ActionDelete)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	repo.roles[1] = Role{ID: 1, Permissions: Matrix{ResourceAssets: {View: true, Delete: true}}}
	d, err = svc.Authorize(ctx, 1, ResourceAssets, ActionDelete)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	repo.principals[1] = Principal{ID: 1}
	d, err = svc.Authorize(ctx, 1, ResourceAssets, ActionView)
	require.NoError(t, err)
	require.Equal(t, Deny(DenyNoRolePermissions), d)

	repo.principals[1] = Principal{ID: 1, IsAdmin: true}
	d, err = svc.Authorize(ctx, 1, ResourceUsers, ActionDelete)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	require.Equal(t, 2, observer.allowed)
	require.Equal(t, 2, observer.denied)
}

func TestAuthorizeSurfacesStorageFaults(t *testing.T) {
	repo := newMemoryRepo()
	repo.err = errors.New("connection refused")
	observer := &decisionLog{}
	svc := NewService(repo, observer)

	_, err := svc.Authorize(context.Background(), 1, ResourceAssets, ActionView)
	require.ErrorIs(t, err, repo.err)
	require.Zero(t, observer.allowed+observer.denied)
}

func TestEnforceReturnsDeniedError(t *testing.T) {
	repo := newMemoryRepo()
	repo.principals[1] = Principal{ID: 1}
	svc := NewService(repo, nil)

	err := Enforce(context.Background(), svc, 1, ResourceRoles, ActionEdit)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	require.Equal(t, DenyNoRolePermissions, denied.Decision.Reason)
	require.Contains(t, err.Error(), "no role permissions configured")
}

func TestEffectiveMatrix(t *testing.T) {
	repo := newMemoryRepo()
	repo.roles[1] = Role{ID: 1, Permissions: Matrix{ResourceEquipment: {View: true, Add: true}}}
	repo.principals[1] = Principal{ID: 1, RoleID: roleID(1)}
	repo.principals[2] = Principal{ID: 2, IsAdmin: true}
	svc := NewService(repo, nil)

	m, err := svc.EffectiveMatrix(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"equipment.add", "equipment.view"}, m.Grants())

	m, err = svc.EffectiveMatrix(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, m.Grants(), len(Resources())*len(Actions()))
}
