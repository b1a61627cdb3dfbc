package auth

import "strings"

// UserRole is one of the three flat roles an account can hold.
type UserRole string

const (
	RoleUser       UserRole = "user"
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "superAdmin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if the role is at least the minimum required role
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	return r.level() >= minRole.level() && minRole.IsValid()
}

func (r UserRole) level() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// GetAllRoles returns all valid roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{RoleUser, RoleAdmin, RoleSuperAdmin}
}

// ParseRole resolves a role name, matching case insensitively.
func ParseRole(roleStr string) (UserRole, bool) {
	roleStr = strings.TrimSpace(roleStr)
	for _, role := range GetAllRoles() {
		if strings.EqualFold(string(role), roleStr) {
			return role, true
		}
	}
	return "", false
}
