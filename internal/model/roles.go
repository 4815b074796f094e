// internal/model/roles.go
package model

import "strings"

// Role and Permission are typed strings internally even though the wire
// format is free-form text. All comparisons go through NormalizeRole /
// NormalizePermission so case handling lives in exactly one place.
type Role string

type Permission string

const (
	RoleOwner      Role = "OWNER"
	RoleManager    Role = "MANAGER"
	RoleDoctor     Role = "DOCTOR"
	RoleNurse      Role = "NURSE"
	RoleFrontDesk  Role = "FRONT_DESK"
	RoleAccountant Role = "ACCOUNTANT"
)

const (
	PermInventoryView   Permission = "inventory.view"
	PermInventoryManage Permission = "inventory.manage"
	PermOrdersView      Permission = "orders.view"
	PermOrdersManage    Permission = "orders.manage"
	PermBillingView     Permission = "billing.view"
	PermBillingManage   Permission = "billing.manage"
	PermReportsView     Permission = "reports.view"
	PermReportsManage   Permission = "reports.manage"
	PermPettyCashView   Permission = "pettycash.view"
	PermPettyCashManage Permission = "pettycash.manage"
	PermAuditView       Permission = "audit.view"
	PermSettingsManage  Permission = "settings.manage"
)

func NormalizeRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

func NormalizePermission(s string) Permission {
	return Permission(strings.ToLower(strings.TrimSpace(s)))
}

// IsElevated reports whether the role bypasses permission checks entirely.
func (r Role) IsElevated() bool {
	switch NormalizeRole(string(r)) {
	case RoleOwner, RoleManager:
		return true
	}
	return false
}

// DefaultRolePermissions is the static seed table used when the remote
// role_permissions collection is empty on first load. OWNER and MANAGER are
// absent on purpose: elevated roles never consult the table.
func DefaultRolePermissions() []RoleConfig {
	return []RoleConfig{
		{Role: RoleDoctor, Permissions: []Permission{
			PermInventoryView, PermOrdersView, PermBillingView, PermBillingManage,
			PermReportsView, PermReportsManage,
		}},
		{Role: RoleNurse, Permissions: []Permission{
			PermInventoryView, PermInventoryManage, PermOrdersView, PermReportsView,
		}},
		{Role: RoleFrontDesk, Permissions: []Permission{
			PermInventoryView, PermBillingView, PermPettyCashView,
		}},
		{Role: RoleAccountant, Permissions: []Permission{
			PermBillingView, PermReportsView, PermReportsManage,
			PermPettyCashView, PermPettyCashManage, PermAuditView,
		}},
	}
}
