package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultAccessTTL applies when no access-token lifetime is configured.
const DefaultAccessTTL = 120 * time.Minute

// Mailer delivers password-reset tokens out of band. The HTTP layer
// never sees the token itself.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// NopMailer drops reset mail on the floor. Useful for local runs where
// no delivery channel is wired up.
type NopMailer struct{}

func (NopMailer) SendPasswordReset(context.Context, string, string) error { return nil }

// Service is the access decision point: it owns credential checks, token
// issue/verify, revocation and role resolution. All collaborators are
// injected; the service keeps no mutable package-level state.
type Service struct {
	store     Store
	registry  RevocationRegistry
	codec     *TokenCodec
	mailer    Mailer
	accessTTL time.Duration
	now       func() time.Time
}

// ServiceOption customizes Service construction.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	issuer    string
	accessTTL time.Duration
	mailer    Mailer
	now       func() time.Time
}

// WithIssuer overrides the iss claim on issued tokens.
func WithIssuer(issuer string) ServiceOption {
	return func(c *serviceConfig) { c.issuer = issuer }
}

// WithAccessTTL overrides the access-token lifetime. Reset tokens keep
// their fixed 30 minute lifetime regardless.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(c *serviceConfig) { c.accessTTL = ttl }
}

// WithMailer sets the reset-token delivery channel.
func WithMailer(m Mailer) ServiceOption {
	return func(c *serviceConfig) { c.mailer = m }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(c *serviceConfig) { c.now = now }
}

// NewService builds the access decision point. store, registry and a
// non-empty signing secret are required.
func NewService(store Store, registry RevocationRegistry, secret []byte, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if registry == nil {
		return nil, errors.New("auth: revocation registry is required")
	}

	cfg := serviceConfig{
		accessTTL: DefaultAccessTTL,
		mailer:    NopMailer{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.accessTTL <= 0 {
		return nil, errors.New("auth: access ttl must be positive")
	}

	codec, err := NewTokenCodec(secret, cfg.issuer, cfg.now)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:     store,
		registry:  registry,
		codec:     codec,
		mailer:    cfg.mailer,
		accessTTL: cfg.accessTTL,
		now:       cfg.now,
	}, nil
}

// SignupInput carries the fields accepted at registration.
type SignupInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
}

// Signup registers a new account, assigns the requested role and returns
// the resolved principal. The email must be unused and the role must
// already exist.
func (s *Service) Signup(ctx context.Context, in SignupInput) (Principal, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Principal{}, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if in.Password == "" {
		return Principal{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	roleName := strings.TrimSpace(in.Role)
	if roleName == "" {
		roleName = RoleStudent
	}

	role, err := s.store.Roles(ctx).FindByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, roleName)
		}
		return Principal{}, err
	}

	if _, err := s.store.Users(ctx).FindByEmail(ctx, email); err == nil {
		return Principal{}, fmt.Errorf("%w: email already registered", ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return Principal{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user := &User{
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Principal{}, fmt.Errorf("%w: email already registered", ErrAlreadyExists)
		}
		return Principal{}, err
	}

	assignment := &Assignment{UserID: user.ID, RoleID: role.ID, Active: true}
	if err := s.store.Roles(ctx).Assign(ctx, assignment); err != nil {
		return Principal{}, err
	}

	perms, err := s.store.Permissions(ctx).PermissionsForRole(ctx, role.ID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(*user, *role, perms), nil
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	TTL       time.Duration
	Principal Principal
}

// Login verifies credentials and issues an access token bound to the
// user's effective role. Unknown emails, bad passwords and deactivated
// accounts all fail identically with ErrUnauthorized; a user with no
// active role assignment fails with ErrNoActiveRole.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrUnauthorized
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, err
	}
	if !user.Active {
		return Session{}, ErrUnauthorized
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return Session{}, ErrUnauthorized
	}

	role, err := s.effectiveRole(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	perms, err := s.store.Permissions(ctx).PermissionsForRole(ctx, role.ID)
	if err != nil {
		return Session{}, err
	}

	token, expires, err := s.codec.Issue(user.Email, role.Name, PurposeAccess, s.accessTTL)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		ExpiresAt: expires,
		TTL:       s.accessTTL,
		Principal: NewPrincipal(*user, *role, perms),
	}, nil
}

// Authenticate validates an access token and resolves the caller. The
// order is fixed: signature, expiry, revocation, then user and role
// state, so a tampered token never touches the registry or the store.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	if claims.Purpose != PurposeAccess {
		return Principal{}, ErrInvalidToken
	}

	revoked, err := s.registry.IsRevoked(ctx, token)
	if err != nil {
		return Principal{}, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return Principal{}, ErrTokenRevoked
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthorized
		}
		return Principal{}, err
	}
	if !user.Active {
		return Principal{}, ErrUnauthorized
	}

	// Role and grants are resolved fresh on every request; assignment or
	// grant changes apply to tokens issued before the change.
	role, err := s.effectiveRole(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	perms, err := s.store.Permissions(ctx).PermissionsForRole(ctx, role.ID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(*user, *role, perms), nil
}

// Logout revokes the presented access token for its remaining lifetime.
// An already-expired or malformed token is reported as an error; a
// second logout with the same live token is a harmless no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return err
	}
	if claims.Purpose != PurposeAccess {
		return ErrInvalidToken
	}
	ttl := claims.TTLRemaining(s.now())
	if err := s.registry.Revoke(ctx, token, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// ForgotPassword issues a 30-minute reset token and hands it to the
// mailer. The token is never returned to the caller.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.Users(ctx).FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	token, _, err := s.codec.Issue(user.Email, "", PurposeReset, ResetTokenTTL)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new password hash.
// Access tokens are rejected here just as reset tokens are rejected by
// Authenticate.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.codec.Verify(token)
	if err != nil {
		// Expired and malformed reset tokens are indistinguishable to the
		// caller; both read as "request a new link".
		return ErrInvalidToken
	}
	if claims.Purpose != PurposeReset {
		return ErrInvalidToken
	}
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, claims.Subject)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.store.Users(ctx).UpdatePassword(ctx, user.ID, hash)
}

// effectiveRole returns the role behind the user's oldest active
// assignment, skipping assignments whose role is itself deactivated.
func (s *Service) effectiveRole(ctx context.Context, userID string) (*Role, error) {
	assignments, err := s.store.Roles(ctx).Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if !a.Active {
			continue
		}
		role, err := s.store.Roles(ctx).Find(ctx, a.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if role.Active {
			return role, nil
		}
	}
	return nil, ErrNoActiveRole
}

// CreateRole adds a role with no grants.
func (s *Service) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{Name: name, Description: strings.TrimSpace(description), Active: true}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// SetRolePermissions replaces the role's grants with exactly keys.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, keys []string) (*Role, error) {
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Permissions(ctx).SetForRole(ctx, role.ID, dedupeKeys(keys)); err != nil {
		return nil, err
	}
	return role, nil
}

// AssignRole links a user to a role with an active assignment.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) (*Assignment, error) {
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return nil, err
	}
	assignment := &Assignment{UserID: userID, RoleID: roleID, Active: true}
	if err := s.store.Roles(ctx).Assign(ctx, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

// SetAssignmentActive toggles an assignment. Takes effect on the next
// authenticated request; issued tokens are not revoked.
func (s *Service) SetAssignmentActive(ctx context.Context, assignmentID string, active bool) error {
	return s.store.Roles(ctx).SetAssignmentActive(ctx, assignmentID, active)
}

// Roles lists all roles.
func (s *Service) Roles(ctx context.Context) ([]Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// ListPermissions lists the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions(ctx).List(ctx)
}

// EnsureBuiltins seeds the permission catalog, the builtin roles and
// their default grants. Safe to run on every startup: a builtin role
// with a non-empty grant set keeps whatever an operator has given it,
// while a grantless one (freshly created here, or inserted bare by the
// seed SQL) receives its defaults.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	if err := s.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions); err != nil {
		return err
	}
	for _, name := range []string{RoleAdmin, RoleTeacher, RoleStudent, RoleDeveloper, RoleModerator} {
		role, err := s.store.Roles(ctx).FindByName(ctx, name)
		switch {
		case errors.Is(err, ErrNotFound):
			role = &Role{Name: name, Active: true}
			if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		grants, err := s.store.Permissions(ctx).PermissionsForRole(ctx, role.ID)
		if err != nil {
			return err
		}
		if len(grants) > 0 {
			continue
		}
		if err := s.store.Permissions(ctx).SetForRole(ctx, role.ID, DefaultRoleGrants[name]); err != nil {
			return err
		}
	}
	return nil
}

func dedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
