package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleUser, PermStatusRead, true},
		{RoleUser, PermPumpOperate, true},
		{RoleUser, PermAutoManage, true},
		{RoleUser, PermHistoryRead, true},
		{RoleUser, PermUserManage, false},
		{RoleUser, PermDeviceManage, false},
		{RoleUser, PermAuditRead, false},
		{RoleAdmin, PermUserManage, true},
		{RoleAdmin, PermDeviceManage, true},
		{RoleAdmin, PermAuditRead, true},
		{RoleAdmin, PermSystemAdmin, true},
		{Role("panel"), PermStatusRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleUser)
	if len(perms) == 0 {
		t.Fatal("PermissionsForRole(user) is empty")
	}
	perms[0] = PermSystemAdmin
	if HasPermission(RoleUser, PermSystemAdmin) {
		t.Error("mutating the returned slice changed the role mapping")
	}
	if PermissionsForRole(Role("ghost")) != nil {
		t.Error("unknown role should have no permissions")
	}
}

func TestIsValidUsername(t *testing.T) {
	for _, ok := range []string{"admin", "farm.east", "plot_9", "a-b"} {
		if !IsValidUsername(ok) {
			t.Errorf("IsValidUsername(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "with space", "semi;colon", string(make([]byte, 65))} {
		if IsValidUsername(bad) {
			t.Errorf("IsValidUsername(%q) = true", bad)
		}
	}
}
