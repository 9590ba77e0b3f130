package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lingua.app/internal/auth"
)

type testMailer struct {
	email string
	token string
}

func (m *testMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.email = email
	m.token = token
	return nil
}

type testEnv struct {
	t      *testing.T
	server *httptest.Server
	store  *auth.MemoryStore
	mailer *testMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := auth.NewMemoryStore()
	mailer := &testMailer{}
	svc, err := auth.NewService(store, auth.NewMemoryRegistry(), []byte("test-secret"),
		auth.WithMailer(mailer),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}

	api := New(svc, ReadyProbe{}, "test", Options{RateBurst: 1000, RatePerSecond: 1000})
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	return &testEnv{t: t, server: server, store: store, mailer: mailer}
}

func (e *testEnv) request(method, path, token string, body any) *http.Response {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (e *testEnv) signup(email, password, role string) userPayload {
	e.t.Helper()
	resp := e.request(http.MethodPost, "/v1/signup", "", signupRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  password,
		Role:      role,
	})
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("signup %s: status %d", email, resp.StatusCode)
	}
	return decode[userPayload](e.t, resp)
}

func (e *testEnv) login(email, password string) loginResponse {
	e.t.Helper()
	resp := e.request(http.MethodPost, "/v1/login", "", loginRequest{Email: email, Password: password})
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	return decode[loginResponse](e.t, resp)
}

func TestSignupLoginMeLogoutFlow(t *testing.T) {
	env := newTestEnv(t)

	user := env.signup("ada@example.com", "pass-1234", "teacher")
	if user.Role != "teacher" || user.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected signup payload: %+v", user)
	}

	session := env.login("ada@example.com", "pass-1234")
	if session.TokenType != "bearer" {
		t.Fatalf("unexpected token type: %q", session.TokenType)
	}
	if session.ExpireSeconds != 7200 {
		t.Fatalf("unexpected expire_seconds: %d", session.ExpireSeconds)
	}

	resp := env.request(http.MethodGet, "/v1/me", session.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d", resp.StatusCode)
	}
	me := decode[userPayload](t, resp)
	if me.Email != "ada@example.com" {
		t.Fatalf("unexpected me payload: %+v", me)
	}

	resp = env.request(http.MethodPost, "/v1/logout", session.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.request(http.MethodGet, "/v1/me", session.AccessToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout: status %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSignupDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signup("ada@example.com", "pass-1234", "student")

	resp := env.request(http.MethodPost, "/v1/signup", "", signupRequest{
		Email:    "ada@example.com",
		Password: "other-pass",
		Role:     "student",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate signup: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.signup("ada@example.com", "pass-1234", "student")

	resp := env.request(http.MethodPost, "/v1/login", "", loginRequest{
		Email:    "ada@example.com",
		Password: "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: status %d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != "Bearer" {
		t.Fatalf("missing WWW-Authenticate header, got %q", got)
	}
	resp.Body.Close()
}

func TestLoginWithoutActiveRole(t *testing.T) {
	env := newTestEnv(t)
	user := env.signup("ada@example.com", "pass-1234", "student")

	ctx := context.Background()
	assignments, err := env.store.Roles(ctx).Assignments(ctx, user.ID)
	if err != nil {
		t.Fatalf("Assignments: %v", err)
	}
	for _, a := range assignments {
		if err := env.store.Roles(ctx).SetAssignmentActive(ctx, a.ID, false); err != nil {
			t.Fatalf("SetAssignmentActive: %v", err)
		}
	}

	resp := env.request(http.MethodPost, "/v1/login", "", loginRequest{
		Email:    "ada@example.com",
		Password: "pass-1234",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("no active role: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMeWithoutToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(http.MethodGet, "/v1/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me without token: status %d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != "Bearer" {
		t.Fatalf("missing WWW-Authenticate header, got %q", got)
	}
	resp.Body.Close()
}

func TestAdminRouteRoleGate(t *testing.T) {
	env := newTestEnv(t)

	env.signup("student@example.com", "pass-1234", "student")
	student := env.login("student@example.com", "pass-1234")

	resp := env.request(http.MethodGet, "/v1/admin", student.AccessToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("student on admin route: status %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	env.signup("root@example.com", "pass-1234", "admin")
	admin := env.login("root@example.com", "pass-1234")

	resp = env.request(http.MethodGet, "/v1/admin", admin.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin on admin route: status %d, want 200", resp.StatusCode)
	}
	msg := decode[messageResponse](t, resp)
	if msg.Message != "Hello, Ada" {
		t.Fatalf("unexpected greeting: %q", msg.Message)
	}
}

func TestForgotAndResetPasswordFlow(t *testing.T) {
	env := newTestEnv(t)
	env.signup("ada@example.com", "old-pass", "student")

	resp := env.request(http.MethodPost, "/v1/forgot-password", "", forgotPasswordRequest{Email: "ada@example.com"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("forgot-password: status %d, want 202", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	for key, value := range body {
		if s, ok := value.(string); ok && s == env.mailer.token {
			t.Fatalf("reset token leaked in response field %q", key)
		}
	}
	if env.mailer.token == "" {
		t.Fatal("reset token not handed to mailer")
	}

	resp = env.request(http.MethodPost, "/v1/reset-password", "", resetPasswordRequest{
		Token:       env.mailer.token,
		NewPassword: "new-pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset-password: status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	env.login("ada@example.com", "new-pass")
}

func TestResetPasswordRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.signup("ada@example.com", "pass-1234", "student")
	session := env.login("ada@example.com", "pass-1234")

	resp := env.request(http.MethodPost, "/v1/reset-password", "", resetPasswordRequest{
		Token:       session.AccessToken,
		NewPassword: "new-pass",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("access token on reset: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleManagementEndpoints(t *testing.T) {
	env := newTestEnv(t)

	env.signup("root@example.com", "pass-1234", "admin")
	admin := env.login("root@example.com", "pass-1234")
	student := env.signup("kid@example.com", "pass-1234", "student")

	// Students lack role:manage.
	kid := env.login("kid@example.com", "pass-1234")
	resp := env.request(http.MethodPost, "/v1/roles", kid.AccessToken, createRoleRequest{Name: "editor"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("student creating role: status %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.request(http.MethodPost, "/v1/roles", admin.AccessToken, createRoleRequest{
		Name:        "editor",
		Description: "Content editors",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create role: status %d, want 201", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc == "" {
		t.Fatal("missing Location header")
	}
	role := decode[auth.Role](t, resp)
	if role.Name != "editor" {
		t.Fatalf("unexpected role: %+v", role)
	}

	resp = env.request(http.MethodPut, "/v1/roles/"+role.ID+"/permissions", admin.AccessToken, setPermissionsRequest{
		Permissions: []string{"module:read", "module:update"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set permissions: status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.request(http.MethodPost, "/v1/users/"+student.ID+"/assignments", admin.AccessToken, assignRoleRequest{
		RoleID: role.ID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("assign role: status %d, want 201", resp.StatusCode)
	}
	assignment := decode[auth.Assignment](t, resp)

	inactive := false
	resp = env.request(http.MethodPatch, "/v1/assignments/"+assignment.ID, admin.AccessToken, setAssignmentRequest{
		Active: &inactive,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch assignment: status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.request(http.MethodGet, "/v1/permissions", admin.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list permissions: status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleSwitchChangesAuthorization(t *testing.T) {
	env := newTestEnv(t)

	env.signup("root@example.com", "pass-1234", "admin")
	admin := env.login("root@example.com", "pass-1234")
	user := env.signup("kid@example.com", "pass-1234", "student")
	kid := env.login("kid@example.com", "pass-1234")

	ctx := context.Background()
	adminRole, err := env.store.Roles(ctx).FindByName(ctx, "admin")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	assignments, err := env.store.Roles(ctx).Assignments(ctx, user.ID)
	if err != nil {
		t.Fatalf("Assignments: %v", err)
	}

	// Promote the student: deactivate the old assignment, add an admin one.
	inactive := false
	resp := env.request(http.MethodPatch, "/v1/assignments/"+assignments[0].ID, admin.AccessToken, setAssignmentRequest{
		Active: &inactive,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch assignment: status %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = env.request(http.MethodPost, "/v1/users/"+user.ID+"/assignments", admin.AccessToken, assignRoleRequest{
		RoleID: adminRole.ID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("assign admin: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The token issued before the switch now acts with the new role.
	resp = env.request(http.MethodGet, "/v1/admin", kid.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("promoted user on admin route: status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(http.MethodGet, "/v1/login", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET login: status %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "POST" {
		t.Fatalf("unexpected Allow header: %q", allow)
	}
	resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["service"] != "lingua-api" {
		t.Fatalf("unexpected healthz payload: %v", health)
	}

	resp = env.request(http.MethodGet, "/readyz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownPathIs404WithoutCredentials(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(http.MethodGet, "/v1/unknown", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	// Registered paths still demand a token.
	resp = env.request(http.MethodGet, "/v1/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me without token: status %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}
