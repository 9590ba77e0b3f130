package httpapi

import (
	"net/http"
	"strings"

	"lingua.app/internal/audit"
	"lingua.app/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type setAssignmentRequest struct {
	Active *bool `json:"active"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, auth.PermRoleManage) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.auth.Roles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": roles})
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.auth.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
		})
		w.Header().Set("Location", "/v1/roles/"+role.ID)
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleResource serves /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, auth.PermRoleManage) {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	roleID, rest, _ := strings.Cut(path, "/")
	if roleID == "" || rest != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}

	var req setPermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.auth.SetRolePermissions(r.Context(), roleID, req.Permissions)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "rbac.role.permissions_set", map[string]any{
		"role_id":     role.ID,
		"permissions": req.Permissions,
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, auth.PermRoleManage) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	perms, err := a.auth.ListPermissions(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": perms})
}

// handleUserResource serves /v1/users/{id}/assignments.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, auth.PermRoleManage) {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	userID, rest, _ := strings.Cut(path, "/")
	if userID == "" || rest != "assignments" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RoleID) == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}
	assignment, err := a.auth.AssignRole(r.Context(), userID, req.RoleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "rbac.role.assign", map[string]any{
		"assignment_id": assignment.ID,
		"user_id":       userID,
		"role_id":       req.RoleID,
	})
	writeJSON(w, http.StatusCreated, assignment)
}

// handleAssignmentResource serves PATCH /v1/assignments/{id}.
func (a *API) handleAssignmentResource(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, auth.PermRoleManage) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/assignments/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}

	var req setAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, r, http.StatusBadRequest, "active is required")
		return
	}
	if err := a.auth.SetAssignmentActive(r.Context(), id, *req.Active); err != nil {
		handleAuthError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "rbac.assignment.set_active", map[string]any{
		"assignment_id": id,
		"active":        *req.Active,
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": *req.Active})
}
