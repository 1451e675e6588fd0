package identity

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warden-authz/warden/internal/authz"
	"github.com/warden-authz/warden/internal/platform/httpx"
	"github.com/warden-authz/warden/internal/shared"
)

// Handler wires JSON endpoints for principals and workspaces.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw, validator: validator.New()}
}

// MountRoutes registers principal and workspace routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("view_any_user"))
		r.Get("/principals", h.listPrincipals)
		r.Get("/principals/{id}", h.getPrincipal)
		r.Get("/principals/{id}/workspaces", h.listMemberships)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("create_user"))
		r.Post("/principals", h.createPrincipal)
	})
	r.Put("/principals/{id}", h.updatePrincipal)
	r.Delete("/principals/{id}", h.deletePrincipal)
	r.Post("/principals/{id}/restore", h.restorePrincipal)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("update_user"))
		r.Put("/principals/{id}/workspaces/{workspaceID}", h.addMembership)
		r.Delete("/principals/{id}/workspaces/{workspaceID}", h.removeMembership)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("view_any_workspace"))
		r.Get("/workspaces", h.listWorkspaces)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("create_workspace"))
		r.Post("/workspaces", h.createWorkspace)
	})
	r.Post("/auth/verify", h.verifyCredentials)
}

type principalPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Deleted   bool   `json:"deleted"`
	CreatedAt string `json:"created_at"`
}

func toPayload(p Principal) principalPayload {
	return principalPayload{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Deleted:   p.IsDeleted(),
		CreatedAt: p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

type createPrincipalRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) createPrincipal(w http.ResponseWriter, r *http.Request) {
	var req createPrincipalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.Create(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPayload(p))
}

func (h *Handler) listPrincipals(w http.ResponseWriter, r *http.Request) {
	principals, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]principalPayload, 0, len(principals))
	for _, p := range principals {
		out = append(out, toPayload(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPrincipal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(p))
}

type updatePrincipalRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) updatePrincipal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.allowOnPrincipal(w, r, "update_user", id) {
		return
	}
	var req updatePrincipalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.Update(r.Context(), id, req.Name, req.Email)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(p))
}

func (h *Handler) deletePrincipal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.allowOnPrincipal(w, r, "delete_user", id) {
		return
	}
	if err := h.service.SoftDelete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restorePrincipal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.allowOnPrincipal(w, r, "restore_user", id) {
		return
	}
	if err := h.service.Restore(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMemberships(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	workspaces, err := h.service.ListMemberships(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, workspaces)
}

func (h *Handler) addMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	workspaceID, ok := h.pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	if err := h.service.AddMembership(r.Context(), id, workspaceID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	workspaceID, ok := h.pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	if err := h.service.RemoveMembership(r.Context(), id, workspaceID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createWorkspaceRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	ws, err := h.service.CreateWorkspace(r.Context(), req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ws)
}

func (h *Handler) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.service.ListWorkspaces(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, workspaces)
}

type verifyCredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) verifyCredentials(w http.ResponseWriter, r *http.Request) {
	var req verifyCredentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(p))
}

// allowOnPrincipal runs a resource-scoped check so super-admin principals are
// shielded from modification regardless of the caller's grants.
func (h *Handler) allowOnPrincipal(w http.ResponseWriter, r *http.Request, permission string, targetID int64) bool {
	actor := shared.ActorFromContext(r.Context())
	allowed, err := h.authz.Engine.Can(r.Context(), actor, permission, h.authz.Guard, &authz.Resource{Kind: authz.ResourcePrincipal, ID: targetID})
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
