package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermStatusRead   Permission = "status:read"
	PermPumpOperate  Permission = "pump:operate"
	PermAutoManage   Permission = "auto:manage"
	PermHistoryRead  Permission = "history:read"
	PermUserManage   Permission = "user:manage"
	PermDeviceManage Permission = "device:manage"
	PermAuditRead    Permission = "audit:read"
	PermSystemAdmin  Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermStatusRead,
		PermPumpOperate,
		PermAutoManage,
		PermHistoryRead,
	},
	RoleAdmin: {
		PermStatusRead,
		PermPumpOperate,
		PermAutoManage,
		PermHistoryRead,
		PermUserManage,
		PermDeviceManage,
		PermAuditRead,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
