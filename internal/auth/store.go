package auth

import "context"

// Store exposes the persistence layer as per-entity sub-stores.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
}

// UserStore persists accounts. Create fills ID and timestamps when the
// caller leaves them zero.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// RoleStore persists roles and user-role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	Assign(ctx context.Context, assignment *Assignment) error
	// Assignments returns the user's assignments ordered by creation time,
	// oldest first. Role resolution depends on this ordering.
	Assignments(ctx context.Context, userID string) ([]Assignment, error)
	SetAssignmentActive(ctx context.Context, assignmentID string, active bool) error
}

// PermissionStore persists the permission catalog and role grants.
type PermissionStore interface {
	// Ensure inserts any catalog entries missing from the store; existing
	// keys are left untouched.
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	// SetForRole replaces the role's grants with exactly keys.
	SetForRole(ctx context.Context, roleID string, keys []string) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)
}
