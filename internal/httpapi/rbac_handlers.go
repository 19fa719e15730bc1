package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gatehouse.org/internal/audit"
	"gatehouse.org/internal/auth"
)

type createUserRequest struct {
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	Permissions []uuid.UUID `json:"permissions"`
	Roles       []uuid.UUID `json:"roles"`
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

type assignmentsRequest struct {
	Permissions []uuid.UUID `json:"permissions"`
	Roles       []uuid.UUID `json:"roles"`
}

type grantRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type updateGrantRequest struct {
	Code *string `json:"code"`
	Name *string `json:"name"`
}

type rolePermissionsRequest struct {
	Permissions []uuid.UUID `json:"permissions"`
}

// parsePage reads pagination query parameters. Out-of-range values are
// clamped rather than rejected.
func parsePage(r *http.Request) auth.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return auth.Page{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
		Order:  q.Get("order"),
		Desc:   strings.EqualFold(q.Get("sort"), "desc"),
	}
}

func listPayload(items any, total int64, p auth.Page) map[string]any {
	p = p.Normalize()
	return map[string]any{
		"items": items,
		"total": total,
		"page":  p.Page,
		"limit": p.Limit,
	}
}

func parseID(w http.ResponseWriter, r *http.Request, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid identifier")
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.PermReadUser) {
			return
		}
		p := parsePage(r)
		users, total, err := a.rbac.ListUsers(r.Context(), p)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if users == nil {
			users = []auth.User{}
		}
		writeJSON(w, http.StatusOK, listPayload(users, total, p))
	case http.MethodPost:
		if !a.ensurePermission(w, r, auth.PermCreateUser) {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		identity, err := a.rbac.CreateUser(r.Context(), auth.NewUser{
			Name:        req.Name,
			Email:       req.Email,
			Username:    req.Username,
			Password:    req.Password,
			Permissions: req.Permissions,
			Roles:       req.Roles,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.create", map[string]any{
			"user_id":  identity.User.ID.String(),
			"username": identity.User.Username,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", identity.User.ID))
		writeJSON(w, http.StatusCreated, toIdentityPayload(identity))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id, ok := parseID(w, r, parts[0])
	if !ok {
		return
	}

	switch {
	case len(parts) == 1:
		a.handleUser(w, r, id)
	case len(parts) == 2 && parts[1] == "password":
		a.handleUserPassword(w, r, id)
	case len(parts) == 2 && parts[1] == "assignments":
		a.handleUserAssignments(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.PermReadUser) {
			return
		}
		identity, err := a.rbac.GetUser(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toIdentityPayload(identity))
	case http.MethodPut:
		if !a.ensurePermission(w, r, auth.PermUpdateUser) {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.rbac.UpdateUser(r.Context(), id, auth.UserUpdate{
			Name:     req.Name,
			Email:    req.Email,
			Username: req.Username,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.update", map[string]any{
			"user_id": id.String(),
		})
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, auth.PermDeleteUser) {
			return
		}
		if err := a.rbac.DeleteUser(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.delete", map[string]any{
			"user_id": id.String(),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUserPassword(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermission(w, r, auth.PermUpdateUser) {
		return
	}
	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.UpdateUserPassword(r.Context(), id, req.Password); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.password", map[string]any{
		"user_id": id.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserAssignments(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermission(w, r, auth.PermUpdateUser) {
		return
	}
	var req assignmentsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.SetUserAssignments(r.Context(), id, req.Permissions, req.Roles); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.assignments", map[string]any{
		"user_id":     id.String(),
		"permissions": fmt.Sprintf("%d", len(req.Permissions)),
		"roles":       fmt.Sprintf("%d", len(req.Roles)),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePermissionsCollection(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.PermReadPermission) {
			return
		}
		p := parsePage(r)
		perms, total, err := a.rbac.ListPermissions(r.Context(), p)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if perms == nil {
			perms = []auth.Permission{}
		}
		writeJSON(w, http.StatusOK, listPayload(perms, total, p))
	case http.MethodPost:
		if !a.ensurePermission(w, r, auth.PermCreatePermission) {
			return
		}
		var req grantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.rbac.CreatePermission(r.Context(), req.Code, req.Name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.create", map[string]any{
			"permission_id": perm.ID.String(),
			"code":          perm.Code,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.ID))
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, ok := parseID(w, r, path)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.PermReadPermission) {
			return
		}
		perm, err := a.rbac.GetPermission(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perm)
	case http.MethodPut:
		if !a.ensurePermission(w, r, auth.PermUpdatePermission) {
			return
		}
		var req updateGrantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.rbac.UpdatePermission(r.Context(), id, auth.GrantUpdate{Code: req.Code, Name: req.Name})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.update", map[string]any{
			"permission_id": id.String(),
		})
		writeJSON(w, http.StatusOK, perm)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, auth.PermDeletePermission) {
			return
		}
		if err := a.rbac.DeletePermission(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.delete", map[string]any{
			"permission_id": id.String(),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.PermReadRole) {
			return
		}
		p := parsePage(r)
		roles, total, err := a.rbac.ListRoles(r.Context(), p)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if roles == nil {
			roles = []auth.Role{}
		}
		writeJSON(w, http.StatusOK, listPayload(roles, total, p))
	case http.MethodPost:
		if !a.ensurePermission(w, r, auth.PermCreateRole) {
			return
		}
		var req grantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), req.Code, req.Name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{
			"role_id": role.ID.String(),
			"code":    role.Code,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id, ok := parseID(w, r, parts[0])
	if !ok {
		return
	}

	if len(parts) == 2 && parts[1] == "permissions" {
		a.handleRolePermissions(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.PermReadRole) {
			return
		}
		role, err := a.rbac.GetRole(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		if !a.ensurePermission(w, r, auth.PermUpdateRole) {
			return
		}
		var req updateGrantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.UpdateRole(r.Context(), id, auth.GrantUpdate{Code: req.Code, Name: req.Name})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.update", map[string]any{
			"role_id": id.String(),
		})
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, auth.PermDeleteRole) {
			return
		}
		if err := a.rbac.DeleteRole(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.delete", map[string]any{
			"role_id": id.String(),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID uuid.UUID) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermission(w, r, auth.PermUpdateRole) {
		return
	}
	var req rolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.permissions.update", map[string]any{
		"role_id": roleID.String(),
		"count":   fmt.Sprintf("%d", len(req.Permissions)),
	})
	w.WriteHeader(http.StatusNoContent)
}
