package authz

import "ricauth/internal/models"

// Role types.
const (
	RoleDefaultNormalUser = 0
	RoleNormalUser        = 1
	RoleAdminUser         = 2
)

// Permission codes carried by role permissions.
const (
	PermReadOverallResult        = 11112
	PermReadUserRegistrationInfo = 21222
	PermEditUserRegistrationInfo = 21223
)

// Allows reports whether perms grant code. An explicit deny on any role wins
// over allows from other roles.
func Allows(perms []models.RolePermission, code int) bool {
	allowed := false
	for _, p := range perms {
		if p.Permission != code {
			continue
		}
		if !p.Allow {
			return false
		}
		allowed = true
	}
	return allowed
}

// IsAdmin reports whether any of the roles is an admin role.
func IsAdmin(roles []models.Role) bool {
	for _, r := range roles {
		if r.RoleType == RoleAdminUser {
			return true
		}
	}
	return false
}
