// internal/authz/authz.go
package authz

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"clinicsync/internal/logger"
	"clinicsync/internal/model"
	"clinicsync/internal/restapi"
)

// State is the permission data lifecycle. There is no way back to Unseeded.
type State string

const (
	StateUnseeded State = "unseeded"
	StateSeeding  State = "seeding"
	StateReady    State = "ready"
)

// Engine answers permission checks for the current user. Role and permission
// comparison happens here and nowhere else; everything arrives as free-form
// strings from the wire and is normalized at the boundary.
type Engine struct {
	client *restapi.Client
	api    restapi.Collection[restapi.RolePermissionRow]

	mu      sync.RWMutex
	configs map[model.Role]map[model.Permission]bool
	state   State
}

func NewEngine(client *restapi.Client) *Engine {
	return &Engine{
		client:  client,
		api:     restapi.NewRolePermissionsAPI(client),
		configs: make(map[model.Role]map[model.Permission]bool),
		state:   StateUnseeded,
	}
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Init loads the persisted role->permission rows. An empty store is seeded
// from the static default table, one row per role+permission pair. Running
// Init against an already-seeded store changes nothing; the store's
// uniqueness constraint on role+permission absorbs concurrent seeding, and
// membership tests are set-based so a stray duplicate row is harmless.
func (e *Engine) Init(ctx context.Context) error {
	rows, err := e.api.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load role permissions: %w", err)
	}

	if len(rows) > 0 {
		e.mu.Lock()
		e.configs = aggregate(rows)
		e.state = StateReady
		e.mu.Unlock()
		logger.LogInfo("Loaded %d role permission rows", len(rows))
		return nil
	}

	e.mu.Lock()
	e.state = StateSeeding
	e.mu.Unlock()
	logger.LogInfo("Role permission store is empty, seeding defaults")

	defaults := model.DefaultRolePermissions()
	for _, rc := range defaults {
		for _, perm := range rc.Permissions {
			row := restapi.RolePermissionRow{
				Role:       string(rc.Role),
				Permission: string(perm),
			}
			if _, err := e.api.Create(ctx, row); err != nil {
				// A conflict from a concurrent seeder is fine; the local
				// adoption below is what Init guarantees.
				logger.LogWarn("Seeding %s/%s failed: %v", rc.Role, perm, err)
			}
		}
	}

	configs := make(map[model.Role]map[model.Permission]bool, len(defaults))
	for _, rc := range defaults {
		set := make(map[model.Permission]bool, len(rc.Permissions))
		for _, perm := range rc.Permissions {
			set[model.NormalizePermission(string(perm))] = true
		}
		configs[model.NormalizeRole(string(rc.Role))] = set
	}

	e.mu.Lock()
	e.configs = configs
	e.state = StateReady
	e.mu.Unlock()
	return nil
}

// HasPermission decides whether the user may perform the action guarded by
// perm. Rules, in order:
//
//  1. no user: denied
//  2. OWNER or MANAGER: allowed, unconditionally
//  3. a non-empty per-user override list replaces the role-derived set
//  4. otherwise, membership in the user's role config; unknown role: denied
func (e *Engine) HasPermission(user *model.User, perm model.Permission) bool {
	if user == nil {
		return false
	}

	role := model.NormalizeRole(user.Role)
	if role.IsElevated() {
		return true
	}

	want := model.NormalizePermission(string(perm))

	if len(user.Permissions) > 0 {
		for _, p := range user.Permissions {
			if model.NormalizePermission(string(p)) == want {
				return true
			}
		}
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	set, ok := e.configs[role]
	if !ok {
		return false
	}
	return set[want]
}

// ToggleRolePermission flips perm in role's set: add if absent, remove if
// present. The local cache reflects the toggle immediately; the remote write
// follows and its failure is reported but never rolled back locally. Caches
// in other processes converge on their next load.
func (e *Engine) ToggleRolePermission(ctx context.Context, role model.Role, perm model.Permission) error {
	r := model.NormalizeRole(string(role))
	p := model.NormalizePermission(string(perm))

	e.mu.Lock()
	set, ok := e.configs[r]
	if !ok {
		set = make(map[model.Permission]bool)
		e.configs[r] = set
	}
	nowPresent := !set[p]
	set[p] = nowPresent
	if !nowPresent {
		delete(set, p)
	}
	e.mu.Unlock()

	var err error
	if nowPresent {
		_, err = e.api.Create(ctx, restapi.RolePermissionRow{Role: string(r), Permission: string(p)})
	} else {
		err = restapi.DeleteRolePermission(ctx, e.client, string(r), string(p))
	}
	if err != nil {
		logger.LogError("Remote toggle of %s/%s failed, local cache kept: %v", r, p, err)
		return fmt.Errorf("failed to persist permission toggle: %w", err)
	}
	return nil
}

// RoleConfigs returns a sorted snapshot of the cached table.
func (e *Engine) RoleConfigs() []model.RoleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.RoleConfig, 0, len(e.configs))
	for role, set := range e.configs {
		perms := make([]model.Permission, 0, len(set))
		for p := range set {
			perms = append(perms, p)
		}
		sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
		out = append(out, model.RoleConfig{Role: role, Permissions: perms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

func aggregate(rows []restapi.RolePermissionRow) map[model.Role]map[model.Permission]bool {
	configs := make(map[model.Role]map[model.Permission]bool)
	for _, row := range rows {
		role := model.NormalizeRole(row.Role)
		set, ok := configs[role]
		if !ok {
			set = make(map[model.Permission]bool)
			configs[role] = set
		}
		set[model.NormalizePermission(row.Permission)] = true
	}
	return configs
}
