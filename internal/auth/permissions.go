package auth

import (
	"fmt"
	"strings"
)

// Builtin permission codes, one per ability × resource.
const (
	PermCreateUser       = "CREATE_USER"
	PermReadUser         = "READ_USER"
	PermUpdateUser       = "UPDATE_USER"
	PermDeleteUser       = "DELETE_USER"
	PermCreatePermission = "CREATE_PERMISSION"
	PermReadPermission   = "READ_PERMISSION"
	PermUpdatePermission = "UPDATE_PERMISSION"
	PermDeletePermission = "DELETE_PERMISSION"
	PermCreateRole       = "CREATE_ROLE"
	PermReadRole         = "READ_ROLE"
	PermUpdateRole       = "UPDATE_ROLE"
	PermDeleteRole       = "DELETE_ROLE"
)

// Builtin role codes.
const (
	RoleSuperuser = "SUPERUSER"
	RoleAdmin     = "ADMIN"
)

// BuiltinPermissions enumerates every seeded permission.
func BuiltinPermissions() []Permission {
	resources := []string{"user", "permission", "role"}
	abilities := []string{"create", "read", "update", "delete"}
	out := make([]Permission, 0, len(resources)*len(abilities))
	for _, resource := range resources {
		for _, ability := range abilities {
			out = append(out, Permission{
				Code: strings.ToUpper(fmt.Sprintf("%s_%s", ability, resource)),
				Name: strings.ToLower(fmt.Sprintf("%s %s", ability, resource)),
			})
		}
	}
	return out
}

// BuiltinRoles enumerates every seeded role.
func BuiltinRoles() []Role {
	codes := []string{RoleSuperuser, RoleAdmin}
	out := make([]Role, 0, len(codes))
	for _, code := range codes {
		out = append(out, Role{Code: code, Name: strings.ToLower(code)})
	}
	return out
}
