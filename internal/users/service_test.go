package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
	"github.com/odyssey-erp/odyssey-assets/internal/audit/audittest"
	"github.com/odyssey-erp/odyssey-assets/internal/rbac"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

// memoryStore backs both the users repository and the rbac lookups so
// privilege changes are visible to the next authorization check. It shares
// the activity log with the recorder so principal deletion can detach rows
// the way the PostgreSQL transaction does. Failed deletes leave no trace.
type memoryStore struct {
	mu         sync.Mutex
	users      map[int64]User
	roles      map[int64]rbac.Role
	nextID     int64
	log        *audittest.Memory
	findErr    error
	failDelete error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[int64]User), roles: make(map[int64]rbac.Role)}
}

func (m *memoryStore) Create(_ context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return User{}, ErrDuplicateUsername
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryStore) Get(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memoryStore) FindByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return User{}, m.findErr
	}
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memoryStore) List(_ context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryStore) SetPrivileges(_ context.Context, id int64, isAdmin bool, roleID *int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.IsAdmin = isAdmin
	u.RoleID = roleID
	m.users[id] = u
	return u, nil
}

func (m *memoryStore) DeleteAnonymized(ctx context.Context, id int64, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return 0, ErrNotFound
	}
	if m.failDelete != nil {
		return 0, m.failDelete
	}
	n, err := m.log.AnonymizeActor(ctx, id, username)
	if err != nil {
		return 0, err
	}
	delete(m.users, id)
	return n, nil
}

func (m *memoryStore) GetPrincipal(_ context.Context, id int64) (rbac.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	return rbac.Principal{ID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin, RoleID: u.RoleID}, nil
}

func (m *memoryStore) GetRole(_ context.Context, id int64) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return r, nil
}

func (m *memoryStore) seed(u User) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = u
	return u
}

type fixture struct {
	svc   *Service
	store *memoryStore
	log   *audittest.Memory
	admin User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := newMemoryStore()
	log := audittest.New()
	store.log = log
	svc := NewService(store, rbac.NewService(store, nil), audit.NewRecorder(log, nil))
	svc.cost = bcrypt.MinCost
	admin := store.seed(User{Username: "root", IsAdmin: true})
	return fixture{svc: svc, store: store, log: log, admin: admin}
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateFoldsUsernameAndHashesPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Create(ctx, f.admin.ID, CreateInput{Username: "  Alice.Smith ", Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, "alice.smith", user.Username)
	require.NotEqual(t, "correct horse", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse")))

	_, err = f.svc.Create(ctx, f.admin.ID, CreateInput{Username: "ALICE.SMITH", Password: "another pass"})
	require.ErrorIs(t, err, ErrDuplicateUsername)

	got, err := f.svc.Authenticate(ctx, "Alice.Smith", "correct horse")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = f.svc.Authenticate(ctx, "alice.smith", "wrong password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, "nobody", "whatever1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestCreateRequiresUsersAdd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.roles[1] = rbac.Role{ID: 1, Name: "viewer", Permissions: rbac.Matrix{rbac.ResourceUsers: {View: true}}}
	viewer := f.store.seed(User{Username: "viewer", RoleID: int64Ptr(1)})

	_, err := f.svc.Create(ctx, viewer.ID, CreateInput{Username: "bob", Password: "password1"})
	var denied *rbac.DeniedError
	require.True(t, errors.As(err, &denied))
	require.Equal(t, rbac.DenyActionNotPermitted, denied.Decision.Reason)

	list, err := f.svc.List(ctx, viewer.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestSetPrivilegesTakesEffectImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	authz := rbac.NewService(f.store, nil)
	f.store.roles[7] = rbac.Role{ID: 7, Name: "asset clerk", Permissions: rbac.Matrix{rbac.ResourceAssets: {View: true, Edit: true}}}
	user, err := f.svc.Create(ctx, f.admin.ID, CreateInput{Username: "clerk", Password: "password1"})
	require.NoError(t, err)

	d, err := authz.Authorize(ctx, user.ID, rbac.ResourceAssets, rbac.ActionEdit)
	require.NoError(t, err)
	require.Equal(t, rbac.Deny(rbac.DenyNoRolePermissions), d)

	_, err = f.svc.SetPrivileges(ctx, f.admin.ID, user.ID, PrivilegesInput{RoleID: int64Ptr(7)})
	require.NoError(t, err)

	d, err = authz.Authorize(ctx, user.ID, rbac.ResourceAssets, rbac.ActionEdit)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	_, err = f.svc.SetPrivileges(ctx, f.admin.ID, user.ID, PrivilegesInput{})
	require.NoError(t, err)
	d, err = authz.Authorize(ctx, user.ID, rbac.ResourceAssets, rbac.ActionEdit)
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestDeleteAnonymizesActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	recorder := audit.NewRecorder(f.log, nil)
	user, err := f.svc.Create(ctx, f.admin.ID, CreateInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	recorder.Record(ctx, audit.Entry{Action: audit.ActionCheckout, ItemType: audit.ItemAsset, ItemID: 10, UserID: &user.ID, Notes: "laptop"})
	recorder.Record(ctx, audit.Entry{Action: audit.ActionCheckin, ItemType: audit.ItemAsset, ItemID: 10, UserID: &user.ID})
	before := len(f.log.Records())

	require.NoError(t, f.svc.Delete(ctx, f.admin.ID, user.ID))

	_, err = f.store.Get(ctx, user.ID)
	require.ErrorIs(t, err, ErrNotFound)

	records := f.log.Records()
	require.Len(t, records, before+1, "rows are anonymized, never removed")
	for _, rec := range records {
		if rec.UserID != nil {
			require.NotEqual(t, user.ID, *rec.UserID)
		}
		if rec.ItemType == audit.ItemAsset {
			require.Nil(t, rec.UserID)
			require.True(t, strings.HasSuffix(rec.Notes, "[User deleted: alice]"), rec.Notes)
		}
	}
}

func TestDeleteSelfRejected(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Delete(context.Background(), f.admin.ID, f.admin.ID)
	require.ErrorIs(t, err, ErrSelfDelete)
}

func TestDeleteAbortsWhenAnonymizeFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.svc.Create(ctx, f.admin.ID, CreateInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	f.log.FailWrites = true
	err = f.svc.Delete(ctx, f.admin.ID, user.ID)
	require.ErrorIs(t, err, audittest.ErrWriteFailed)

	_, err = f.store.Get(ctx, user.ID)
	require.NoError(t, err, "principal survives a failed anonymization")
}

func TestDeleteFailureKeepsHistoryAttached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	recorder := audit.NewRecorder(f.log, nil)
	user, err := f.svc.Create(ctx, f.admin.ID, CreateInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	recorder.Record(ctx, audit.Entry{Action: audit.ActionCheckout, ItemType: audit.ItemAsset, ItemID: 10, UserID: &user.ID, Notes: "laptop"})

	dbDown := errors.New("db down")
	f.store.failDelete = dbDown
	err = f.svc.Delete(ctx, f.admin.ID, user.ID)
	require.ErrorIs(t, err, dbDown)

	_, err = f.store.Get(ctx, user.ID)
	require.NoError(t, err)
	for _, rec := range f.log.Records() {
		if rec.ItemType != audit.ItemAsset {
			continue
		}
		require.NotNil(t, rec.UserID, "history stays attached to a live principal")
		require.Equal(t, user.ID, *rec.UserID)
		require.Equal(t, "laptop", rec.Notes)
	}
	for _, rec := range f.log.Records() {
		require.NotEqual(t, audit.ActionDelete, rec.Action)
	}
}

func TestAuthenticateSurfacesStorageErrors(t *testing.T) {
	f := newFixture(t)
	dbDown := errors.New("db down")
	f.store.findErr = dbDown

	_, err := f.svc.Authenticate(context.Background(), "root", "whatever1")
	require.ErrorIs(t, err, dbDown)
	require.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.admin.ID, CreateInput{Username: "al", Password: "short"})
	require.ErrorIs(t, err, ErrInvalidInput)
}
