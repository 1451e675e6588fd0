package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warden-authz/warden/internal/authz"
	"github.com/warden-authz/warden/internal/catalog"
	"github.com/warden-authz/warden/internal/platform/httpx"
	"github.com/warden-authz/warden/internal/shared"
)

// Handler wires JSON endpoints for the role/permission catalog.
type Handler struct {
	logger    *slog.Logger
	service   *catalog.Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *catalog.Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("view_any_role"))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{id}", h.getRole)
		r.Get("/roles/{id}/permissions", h.listRolePermissions)
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("create_role"))
		r.Post("/roles", h.createRole)
		r.Post("/permissions", h.ensurePermission)
	})
	r.Put("/roles/{id}", h.renameRole)
	r.Delete("/roles/{id}", h.deleteRole)
	r.Post("/roles/{id}/restore", h.restoreRole)
	r.Put("/roles/{id}/permissions", h.syncPermissions)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("update_user"))
		r.Put("/principals/{id}/roles/{roleID}", h.assignRole)
		r.Delete("/principals/{id}/roles/{roleID}", h.revokeRole)
		r.Get("/principals/{id}/permissions", h.listPrincipalPermissions)
	})
}

type rolePayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	GuardName string `json:"guard_name"`
	IsDefault bool   `json:"is_default"`
}

func toRolePayload(role catalog.Role) rolePayload {
	return rolePayload{ID: role.ID, Name: role.Name, GuardName: role.GuardName, IsDefault: role.IsDefault}
}

type createRoleRequest struct {
	Name      string `json:"name" validate:"required"`
	Guard     string `json:"guard" validate:"required"`
	IsDefault bool   `json:"is_default"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Guard, req.IsDefault)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRolePayload(role))
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context(), r.URL.Query().Get("guard"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]rolePayload, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRolePayload(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRolePayload(role))
}

type renameRoleRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) renameRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.allowOnRole(w, r, "update_role", id) {
		return
	}
	var req renameRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.RenameRole(r.Context(), id, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRolePayload(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.allowOnRole(w, r, "delete_role", id) {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restoreRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.allowOnRole(w, r, "restore_role", id) {
		return
	}
	if err := h.service.RestoreRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

func (h *Handler) syncPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.allowOnRole(w, r, "update_role", id) {
		return
	}
	var req syncPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.service.SyncPermissions(r.Context(), id, req.Permissions); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	names, err := h.service.ListRolePermissionNames(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, names)
}

type ensurePermissionRequest struct {
	Name  string `json:"name" validate:"required"`
	Guard string `json:"guard" validate:"required"`
}

func (h *Handler) ensurePermission(w http.ResponseWriter, r *http.Request) {
	var req ensurePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	perm, created, err := h.service.EnsurePermission(r.Context(), req.Name, req.Guard)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, perm)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context(), r.URL.Query().Get("guard"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.AssignRole(r.Context(), principalID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RevokeRole(r.Context(), principalID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPrincipalPermissions(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	guard := r.URL.Query().Get("guard")
	if guard == "" {
		guard = h.authz.Guard
	}
	names, err := h.service.PermissionNamesFor(r.Context(), principalID, guard)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, names)
}

// allowOnRole runs a resource-scoped check so default roles stay protected
// regardless of the caller's grants.
func (h *Handler) allowOnRole(w http.ResponseWriter, r *http.Request, permission string, roleID int64) bool {
	actor := shared.ActorFromContext(r.Context())
	allowed, err := h.authz.Engine.Can(r.Context(), actor, permission, h.authz.Guard, &authz.Resource{Kind: authz.ResourceRole, ID: roleID})
	if err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if !allowed {
		httpx.Problem(w, http.StatusForbidden, "forbidden", "Forbidden", "")
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}
