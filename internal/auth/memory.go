package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"lingua.app/internal/ids"
)

// MemoryStore is an in-process Store used for local runs without a
// database and throughout the test suites. All methods are safe for
// concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]User
	roles       map[string]Role
	permissions map[string]Permission // by key
	grants      map[string]map[string]struct{}
	assignments map[string]Assignment
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]User),
		roles:       make(map[string]Role),
		permissions: make(map[string]Permission),
		grants:      make(map[string]map[string]struct{}),
		assignments: make(map[string]Assignment),
	}
}

func (s *MemoryStore) Users(context.Context) UserStore             { return (*memUserStore)(s) }
func (s *MemoryStore) Roles(context.Context) RoleStore             { return (*memRoleStore)(s) }
func (s *MemoryStore) Permissions(context.Context) PermissionStore { return (*memPermissionStore)(s) }

type memUserStore MemoryStore

func (s *memUserStore) Create(_ context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(user.Email)
	for _, u := range s.users {
		if u.Email == email {
			return fmt.Errorf("%w: email %s", ErrAlreadyExists, email)
		}
	}
	if user.ID == "" {
		user.ID = ids.New()
	}
	now := time.Now().UTC()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *memUserStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

type memRoleStore MemoryStore

func (s *memRoleStore) Create(_ context.Context, role *Role) error {
	if role == nil {
		return fmt.Errorf("%w: role is nil", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.ToLower(strings.TrimSpace(role.Name))
	for _, r := range s.roles {
		if r.Name == name {
			return fmt.Errorf("%w: role %s", ErrAlreadyExists, name)
		}
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	now := time.Now().UTC()
	role.Name = name
	role.CreatedAt = now
	role.UpdatedAt = now
	s.roles[role.ID] = *role
	return nil
}

func (s *memRoleStore) Find(_ context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *memRoleStore) FindByName(_ context.Context, name string) (*Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			out := r
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memRoleStore) List(_ context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memRoleStore) Assign(_ context.Context, assignment *Assignment) error {
	if assignment == nil || assignment.UserID == "" || assignment.RoleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if assignment.ID == "" {
		assignment.ID = ids.New()
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	s.assignments[assignment.ID] = *assignment
	return nil
}

func (s *memRoleStore) Assignments(_ context.Context, userID string) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Assignment
	for _, a := range s.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memRoleStore) SetAssignmentActive(_ context.Context, assignmentID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		return ErrNotFound
	}
	a.Active = active
	a.UpdatedAt = time.Now().UTC()
	s.assignments[assignmentID] = a
	return nil
}

type memPermissionStore MemoryStore

func (s *memPermissionStore) Ensure(_ context.Context, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		key := p.Key
		if key == "" {
			key = PermissionKey(p.Resource, p.Action)
		}
		if _, ok := s.permissions[key]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		p.Key = key
		p.CreatedAt = time.Now().UTC()
		s.permissions[key] = p
	}
	return nil
}

func (s *memPermissionStore) List(_ context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memPermissionStore) SetForRole(_ context.Context, roleID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	grants := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := s.permissions[k]; !ok {
			return fmt.Errorf("%w: permission %s", ErrNotFound, k)
		}
		grants[k] = struct{}{}
	}
	s.grants[roleID] = grants
	return nil
}

func (s *memPermissionStore) PermissionsForRole(_ context.Context, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Permission
	for key := range s.grants[roleID] {
		if p, ok := s.permissions[key]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
