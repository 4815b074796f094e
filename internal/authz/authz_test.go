package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicsync/internal/model"
	"clinicsync/internal/restapi"
)

// fakePermissionStore is an in-memory role_permissions collection with the
// remote store's uniqueness constraint on role+permission.
type fakePermissionStore struct {
	mu   sync.Mutex
	rows []restapi.RolePermissionRow

	failWrites bool
}

func (f *fakePermissionStore) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.URL.Path != "/role_permissions" {
			http.NotFound(w, r)
			return
		}

		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(f.rows)

		case http.MethodPost:
			if f.failWrites {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			var row restapi.RolePermissionRow
			json.NewDecoder(r.Body).Decode(&row)
			for _, existing := range f.rows {
				if existing.Role == row.Role && existing.Permission == row.Permission {
					http.Error(w, "duplicate key", http.StatusConflict)
					return
				}
			}
			f.rows = append(f.rows, row)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode([]restapi.RolePermissionRow{row})

		case http.MethodDelete:
			if f.failWrites {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			role := r.URL.Query().Get("role")
			perm := r.URL.Query().Get("permission")
			kept := f.rows[:0]
			var deleted []restapi.RolePermissionRow
			for _, row := range f.rows {
				if "eq."+row.Role == role && "eq."+row.Permission == perm {
					deleted = append(deleted, row)
					continue
				}
				kept = append(kept, row)
			}
			f.rows = kept
			json.NewEncoder(w).Encode(deleted)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (f *fakePermissionStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func newTestEngine(t *testing.T, store *fakePermissionStore) *Engine {
	t.Helper()
	srv := httptest.NewServer(store.handler())
	t.Cleanup(srv.Close)

	client := restapi.NewClient(srv.URL, "test-key")
	client.SetAccessToken("test-token")
	return NewEngine(client)
}

func TestHasPermissionNoUser(t *testing.T) {
	e := newTestEngine(t, &fakePermissionStore{})
	assert.False(t, e.HasPermission(nil, model.PermBillingView))
}

func TestHasPermissionElevatedRolesAlwaysAllowed(t *testing.T) {
	// roleConfigs content is irrelevant for OWNER/MANAGER, even before Init.
	e := newTestEngine(t, &fakePermissionStore{})

	for _, role := range []string{"OWNER", "owner", "Manager", "MANAGER"} {
		user := &model.User{ID: "u1", Role: role}
		for _, perm := range []model.Permission{
			model.PermInventoryManage, model.PermBillingView, model.PermSettingsManage,
		} {
			assert.True(t, e.HasPermission(user, perm), "role %s must hold %s", role, perm)
		}
	}
}

func TestHasPermissionOverrideReplacesRoleSet(t *testing.T) {
	store := &fakePermissionStore{}
	e := newTestEngine(t, store)
	require.NoError(t, e.Init(context.Background()))

	// FRONT_DESK's seeded config does not matter once an override exists.
	user := &model.User{
		ID:          "u1",
		Role:        "FRONT_DESK",
		Permissions: []model.Permission{model.PermBillingView},
	}
	assert.True(t, e.HasPermission(user, model.PermBillingView))
	assert.False(t, e.HasPermission(user, model.PermInventoryManage))
	// Even a permission the role config grants is denied when the override
	// omits it: override replaces, it does not union.
	assert.False(t, e.HasPermission(user, model.PermInventoryView))
}

func TestHasPermissionRoleLookup(t *testing.T) {
	store := &fakePermissionStore{}
	e := newTestEngine(t, store)
	require.NoError(t, e.Init(context.Background()))

	nurse := &model.User{ID: "u1", Role: "nurse"}
	assert.True(t, e.HasPermission(nurse, model.PermInventoryManage))
	assert.False(t, e.HasPermission(nurse, model.PermPettyCashManage))

	unknown := &model.User{ID: "u2", Role: "JANITOR"}
	assert.False(t, e.HasPermission(unknown, model.PermInventoryView))
}

func TestInitSeedsEmptyStore(t *testing.T) {
	store := &fakePermissionStore{}
	e := newTestEngine(t, store)

	assert.Equal(t, StateUnseeded, e.State())
	require.NoError(t, e.Init(context.Background()))
	assert.Equal(t, StateReady, e.State())

	want := 0
	for _, rc := range model.DefaultRolePermissions() {
		want += len(rc.Permissions)
	}
	assert.Equal(t, want, store.count())
}

func TestInitIsIdempotent(t *testing.T) {
	store := &fakePermissionStore{}

	first := newTestEngine(t, store)
	require.NoError(t, first.Init(context.Background()))
	seeded := store.count()
	configs := first.RoleConfigs()

	// A second initialization (another process, a restart) must not change
	// the permission set.
	require.NoError(t, first.Init(context.Background()))
	assert.Equal(t, seeded, store.count())
	assert.Equal(t, configs, first.RoleConfigs())

	// An engine pointed at the already-seeded store loads the same table
	// without writing anything.
	second := newTestEngine(t, store)
	require.NoError(t, second.Init(context.Background()))
	assert.Equal(t, seeded, store.count())
	assert.Equal(t, configs, second.RoleConfigs())
}

func TestInitLoadsExistingRowsWithoutSeeding(t *testing.T) {
	store := &fakePermissionStore{rows: []restapi.RolePermissionRow{
		{Role: "FRONT_DESK", Permission: "billing.view"},
	}}
	e := newTestEngine(t, store)

	require.NoError(t, e.Init(context.Background()))
	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, 1, store.count(), "a populated store must not be reseeded")

	user := &model.User{ID: "u1", Role: "front_desk"}
	assert.True(t, e.HasPermission(user, model.PermBillingView))
	assert.False(t, e.HasPermission(user, model.PermInventoryView))
}

func TestToggleRolePermissionAddAndRemove(t *testing.T) {
	store := &fakePermissionStore{}
	e := newTestEngine(t, store)
	require.NoError(t, e.Init(context.Background()))

	user := &model.User{ID: "u1", Role: "FRONT_DESK"}
	require.False(t, e.HasPermission(user, model.PermReportsView))

	require.NoError(t, e.ToggleRolePermission(context.Background(), model.RoleFrontDesk, model.PermReportsView))
	assert.True(t, e.HasPermission(user, model.PermReportsView))

	require.NoError(t, e.ToggleRolePermission(context.Background(), model.RoleFrontDesk, model.PermReportsView))
	assert.False(t, e.HasPermission(user, model.PermReportsView))
}

func TestToggleKeepsLocalStateWhenRemoteFails(t *testing.T) {
	store := &fakePermissionStore{}
	e := newTestEngine(t, store)
	require.NoError(t, e.Init(context.Background()))
	store.failWrites = true

	user := &model.User{ID: "u1", Role: "FRONT_DESK"}
	err := e.ToggleRolePermission(context.Background(), model.RoleFrontDesk, model.PermReportsView)
	require.Error(t, err, "remote failure must be surfaced")
	assert.True(t, e.HasPermission(user, model.PermReportsView),
		"local toggle applies regardless of the remote outcome")
}
