package httpapi

import (
	"context"
	"net/http"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Description *string `json:"description"`
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type userRolesRequest struct {
	Roles []string `json:"roles"`
}

type userStatusRequest struct {
	Active *bool `json:"active"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

// handleGetUser serves the caller's own record, or any record for holders
// of users.read.
func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	claims, _ := auth.ClaimsFromContext(r.Context())
	if claims.SubjectID != id && !auth.HasAnyPermission(claims, auth.PermUsersRead) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	view, err := a.rbac.User(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSetUserRoles(w http.ResponseWriter, r *http.Request) {
	var req userRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	view, err := a.rbac.SetUserRoles(r.Context(), id, req.Roles)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.user.roles", map[string]any{"target_id": id, "roles": view.Roles})
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSetUserStatus(w http.ResponseWriter, r *http.Request) {
	var req userStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, r, http.StatusBadRequest, "active is required")
		return
	}
	id := r.PathValue("id")
	view, err := a.rbac.SetUserActive(r.Context(), id, *req.Active)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.user.status", map[string]any{"target_id": id, "active": view.Active})
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.rbac.Roles(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[auth.RoleDetail]{Items: nonNil(roles)})
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description, req.Permissions)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.create", map[string]any{"role_id": role.ID, "name": role.Name})
	w.Header().Set("Location", "/v1/roles/"+role.ID)
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.rbac.Role(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.rbac.UpdateRole(r.Context(), r.PathValue("id"), auth.RoleUpdate{Description: req.Description})
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.update", map[string]any{"role_id": role.ID})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.rbac.DeleteRole(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.delete", map[string]any{"role_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.rbac.SetRolePermissions(r.Context(), r.PathValue("id"), req.Permissions)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.permissions", map[string]any{"role_id": role.ID, "permissions": role.Permissions})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleUsersByRole(w http.ResponseWriter, r *http.Request) {
	users, err := a.rbac.UsersByRole(r.Context(), r.PathValue("name"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[auth.UserView]{Items: nonNil(users)})
}

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.rbac.Permissions(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[auth.Permission]{Items: nonNil(perms)})
}

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Logger().WarnContext(ctx, "audit event dropped", "event", event, "error", err)
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
