package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lingua.app/internal/ids"
)

// PGStore implements Store over database/sql (pgx stdlib driver).
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open connection pool.
func NewPGStore(db *sql.DB) (*PGStore, error) {
	if db == nil {
		return nil, errors.New("auth: db handle is required")
	}
	return &PGStore{db: db}, nil
}

func (s *PGStore) Users(context.Context) UserStore             { return &pgUserStore{db: s.db} }
func (s *PGStore) Roles(context.Context) RoleStore             { return &pgRoleStore{db: s.db} }
func (s *PGStore) Permissions(context.Context) PermissionStore { return &pgPermissionStore{db: s.db} }

type pgUserStore struct {
	db *sql.DB
}

func (s *pgUserStore) Create(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", ErrInvalidInput)
	}
	if user.ID == "" {
		user.ID = ids.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Email = normalizeEmail(user.Email)

	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, first_name, last_name, password_hash, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.Active, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s", ErrAlreadyExists, user.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, first_name, last_name, password_hash, active, created_at, updated_at`

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *pgUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, normalizeEmail(email))
	return scanUser(row)
}

func (s *pgUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = now() where id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRowAffected(res)
}

func (s *pgUserStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set active = $2, updated_at = now() where id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("update user active: %w", err)
	}
	return requireRowAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

type pgRoleStore struct {
	db *sql.DB
}

func (s *pgRoleStore) Create(ctx context.Context, role *Role) error {
	if role == nil {
		return fmt.Errorf("%w: role is nil", ErrInvalidInput)
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	role.Name = strings.ToLower(strings.TrimSpace(role.Name))

	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, name, description, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)`,
		role.ID, role.Name, role.Description, role.Active, role.CreatedAt, role.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: role %s", ErrAlreadyExists, role.Name)
		}
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

const roleColumns = `id, name, description, active, created_at, updated_at`

func (s *pgRoleStore) Find(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, id)
	return scanRole(row)
}

func (s *pgRoleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where lower(name) = lower($1)`,
		strings.TrimSpace(name),
	)
	return scanRole(row)
}

func (s *pgRoleStore) List(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *pgRoleStore) Assign(ctx context.Context, assignment *Assignment) error {
	if assignment == nil {
		return fmt.Errorf("%w: assignment is nil", ErrInvalidInput)
	}
	if assignment.UserID == "" || assignment.RoleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if assignment.ID == "" {
		assignment.ID = ids.New()
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (id, user_id, role_id, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)`,
		assignment.ID, assignment.UserID, assignment.RoleID, assignment.Active, assignment.CreatedAt, assignment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: assignment", ErrAlreadyExists)
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (s *pgRoleStore) Assignments(ctx context.Context, userID string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, role_id, active, created_at, updated_at
		from user_roles
		where user_id = $1
		order by created_at asc`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *pgRoleStore) SetAssignmentActive(ctx context.Context, assignmentID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update user_roles set active = $2, updated_at = now() where id = $1`,
		assignmentID, active,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return requireRowAffected(res)
}

func scanRole(row rowScanner) (*Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return &r, nil
}

type pgPermissionStore struct {
	db *sql.DB
}

func (s *pgPermissionStore) Ensure(ctx context.Context, perms []Permission) error {
	for _, p := range perms {
		key := p.Key
		if key == "" {
			key = PermissionKey(p.Resource, p.Action)
		}
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		_, err := s.db.ExecContext(ctx, `
			insert into permissions (id, key, resource, action, description, created_at)
			values ($1, $2, $3, $4, $5, $6)
			on conflict (key) do nothing`,
			id, key, p.Resource, p.Action, p.Description, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("ensure permission %s: %w", key, err)
		}
	}
	return nil
}

const permissionColumns = `id, key, resource, action, description, created_at`

func (s *pgPermissionStore) List(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `select `+permissionColumns+` from permissions order by key`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *pgPermissionStore) SetForRole(ctx context.Context, roleID string, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set role permissions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}
	for _, key := range keys {
		res, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where key = $2`,
			roleID, key,
		)
		if err != nil {
			return fmt.Errorf("grant %s: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("grant %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: permission %s", ErrNotFound, key)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit role permissions: %w", err)
	}
	return nil
}

func (s *pgPermissionStore) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.key, p.resource, p.action, p.description, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.key`,
		roleID,
	)
	if err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows *sql.Rows) ([]Permission, error) {
	var out []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation matches Postgres error code 23505 without binding the
// store to a concrete driver error type.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
