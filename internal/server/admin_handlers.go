package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salonbook/salonapi/internal/auth"
	"github.com/salonbook/salonapi/internal/services/iam"
)

// handleListPermissions handles GET /permissions
//
// Authorization: roles.view
func (h *handlers) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.iam.ListPermissions(r.Context())
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, toPermissionResponses(perms))
}

// handleListRoles handles GET /roles
//
// Authorization: roles.view
func (h *handlers) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.iam.ListRoles(r.Context())
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, toRoleResponses(roles))
}

// handleGetRole handles GET /roles/{id}
//
// Authorization: roles.view
func (h *handlers) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.iam.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, toRoleResponse(role))
}

// handleCreateRole handles POST /roles
//
// Authorization: roles.manage
// Errors: 409 for a duplicate name, 400 naming unknown permission slugs.
func (h *handlers) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	role, err := h.iam.CreateRole(r.Context(), iam.CreateRoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusCreated, toRoleResponse(role))
}

// handleSetRolePermissions handles PUT /roles/{id}/permissions. The body
// replaces the role's whole permission set.
//
// Authorization: roles.manage
func (h *handlers) handleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req setRolePermissionsRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	role, err := h.iam.SetRolePermissions(r.Context(), chi.URLParam(r, "id"), req.Permissions)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, toRoleResponse(role))
}

// handleDeleteRole handles DELETE /roles/{id}
//
// Authorization: roles.manage
func (h *handlers) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.iam.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.Message(w, http.StatusOK, "role deleted")
}

// handleAssignRole handles POST /users/role-assignments
//
// Authorization: users.manage
func (h *handlers) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	res, err := h.iam.AssignUserRole(r.Context(), req.Email, req.Role)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	h.rs.JSON(w, status, roleAssignmentResponse{
		UserID:       res.UserID,
		Email:        res.Email,
		RoleID:       res.RoleID,
		Role:         res.RoleName,
		Created:      res.Created,
		SetupPending: res.SetupPending,
	})
}

// handleAdminEvents handles GET /ws/admin
//
// Authorization: roles.view
func (h *handlers) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.hub.ServeWS(w, r, principal.Subject()); err != nil {
		// The upgrader has already written an HTTP error response.
		h.log.WithError(err).Debug("websocket upgrade failed")
	}
}
