package auth

// Builtin role names. Roles created at runtime are first-class; these
// only receive default grants during seeding.
const (
	RoleAdmin     = "admin"
	RoleTeacher   = "teacher"
	RoleStudent   = "student"
	RoleDeveloper = "developer"
	RoleModerator = "moderator"
)

// PermRoleManage gates the role/permission management endpoints.
const PermRoleManage = "role:manage"

// BuiltinPermissions is the seed catalog. EnsureBuiltins inserts missing
// entries and never touches existing ones, so operators can edit
// descriptions in place.
var BuiltinPermissions = []Permission{
	{Key: "user:create", Resource: "user", Action: "create", Description: "Create user accounts"},
	{Key: "user:read", Resource: "user", Action: "read", Description: "View user accounts"},
	{Key: "user:update", Resource: "user", Action: "update", Description: "Edit user accounts"},
	{Key: "user:delete", Resource: "user", Action: "delete", Description: "Deactivate user accounts"},
	{Key: "role:manage", Resource: "role", Action: "manage", Description: "Manage roles and grants"},
	{Key: "module:create", Resource: "module", Action: "create", Description: "Author learning modules"},
	{Key: "module:read", Resource: "module", Action: "read", Description: "View learning modules"},
	{Key: "module:update", Resource: "module", Action: "update", Description: "Edit learning modules"},
	{Key: "module:delete", Resource: "module", Action: "delete", Description: "Remove learning modules"},
	{Key: "ticket:create", Resource: "ticket", Action: "create", Description: "Open support tickets"},
	{Key: "ticket:read", Resource: "ticket", Action: "read", Description: "View support tickets"},
	{Key: "ticket:update", Resource: "ticket", Action: "update", Description: "Work support tickets"},
	{Key: "ticket:delete", Resource: "ticket", Action: "delete", Description: "Close support tickets"},
	{Key: "profile:read", Resource: "profile", Action: "read", Description: "View own profile"},
	{Key: "profile:update", Resource: "profile", Action: "update", Description: "Edit own profile"},
}

// DefaultRoleGrants maps builtin roles to their initial permission keys.
// Grants stay flat: a role holds exactly what is listed here until an
// operator changes it.
var DefaultRoleGrants = map[string][]string{
	RoleAdmin: {
		"user:create", "user:read", "user:update", "user:delete",
		"role:manage",
		"module:create", "module:read", "module:update", "module:delete",
		"ticket:create", "ticket:read", "ticket:update", "ticket:delete",
		"profile:read", "profile:update",
	},
	RoleTeacher: {
		"user:read",
		"module:create", "module:read", "module:update",
		"ticket:read", "ticket:update",
		"profile:read", "profile:update",
	},
	RoleStudent: {
		"module:read",
		"ticket:create", "ticket:read",
		"profile:read", "profile:update",
	},
	RoleDeveloper: {
		"user:read",
		"module:read",
		"ticket:read", "ticket:update", "ticket:delete",
		"profile:read", "profile:update",
	},
	RoleModerator: {
		"user:read",
		"ticket:read", "ticket:update",
		"profile:read",
	},
}
