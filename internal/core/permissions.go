package core

// Role is a team member's role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleViewer     Role = "viewer"
	RoleAssistant  Role = "assistant"
)

// Roles lists every role in display order.
var Roles = []Role{RoleAdmin, RoleAccountant, RoleViewer, RoleAssistant}

// Permission is a key of the role permission matrix.
type Permission string

const (
	PermManageTeam       Permission = "can_manage_team"
	PermInviteUsers      Permission = "can_invite_users"
	PermRemoveUsers      Permission = "can_remove_users"
	PermChangeRoles      Permission = "can_change_roles"
	PermDeleteTeam       Permission = "can_delete_team"
	PermViewInvoices     Permission = "can_view_invoices"
	PermEditInvoices     Permission = "can_edit_invoices"
	PermDeleteInvoices   Permission = "can_delete_invoices"
	PermManageQuickBooks Permission = "can_manage_quickbooks"
	PermUseAITools       Permission = "can_use_ai_tools"
)

// Permissions lists every permission key.
var Permissions = []Permission{
	PermManageTeam, PermInviteUsers, PermRemoveUsers, PermChangeRoles, PermDeleteTeam,
	PermViewInvoices, PermEditInvoices, PermDeleteInvoices, PermManageQuickBooks, PermUseAITools,
}

// RolePermissions is the static permission matrix. Keys absent from a role's map are false.
var RolePermissions = map[Role]map[Permission]bool{
	RoleAdmin: {
		PermManageTeam:       true,
		PermInviteUsers:      true,
		PermRemoveUsers:      true,
		PermChangeRoles:      true,
		PermDeleteTeam:       true,
		PermViewInvoices:     true,
		PermEditInvoices:     true,
		PermDeleteInvoices:   true,
		PermManageQuickBooks: true,
		PermUseAITools:       true,
	},
	RoleAccountant: {
		PermViewInvoices:     true,
		PermEditInvoices:     true,
		PermDeleteInvoices:   true,
		PermManageQuickBooks: true,
		PermUseAITools:       true,
	},
	RoleViewer: {
		PermViewInvoices: true,
	},
	RoleAssistant: {
		PermViewInvoices: true,
		PermEditInvoices: true,
		PermUseAITools:   true,
	},
}

func ValidRole(r Role) bool {
	_, ok := RolePermissions[r]
	return ok
}

// HasPermission reports whether role grants perm. Unknown roles grant nothing.
func HasPermission(role Role, perm Permission) bool {
	return RolePermissions[role][perm]
}

// RolesWithPermission returns the roles granting perm, in Roles order.
func RolesWithPermission(perm Permission) []Role {
	var out []Role
	for _, r := range Roles {
		if RolePermissions[r][perm] {
			out = append(out, r)
		}
	}
	return out
}

// PermissionsFor returns the full permission map for role, every key present.
func PermissionsFor(role Role) map[Permission]bool {
	out := make(map[Permission]bool, len(Permissions))
	for _, p := range Permissions {
		out[p] = HasPermission(role, p)
	}
	return out
}
