package auth

import "strings"

// Principal is the authenticated caller: the user, the role in effect for
// this request, and the permission set granted through that role.
type Principal struct {
	User        User
	Role        Role
	Permissions map[string]struct{}
}

// NewPrincipal builds a principal from a resolved user, role and grants.
func NewPrincipal(user User, role Role, perms []Permission) Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		key := strings.TrimSpace(p.Key)
		if key == "" {
			key = PermissionKey(p.Resource, p.Action)
		}
		set[key] = struct{}{}
	}
	return Principal{User: user, Role: role, Permissions: set}
}

// HasPermission reports whether the principal holds the exact grant.
// Grants are flat: no wildcards, no role hierarchy.
func (p Principal) HasPermission(key string) bool {
	if len(p.Permissions) == 0 {
		return false
	}
	_, ok := p.Permissions[strings.TrimSpace(key)]
	return ok
}

// HasRole reports whether the effective role matches name (case-insensitive).
func (p Principal) HasRole(name string) bool {
	return strings.EqualFold(strings.TrimSpace(p.Role.Name), strings.TrimSpace(name))
}
