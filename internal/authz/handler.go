package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warden-authz/warden/internal/platform/httpx"
)

// DecisionRecorder observes allow/deny outcomes for metrics.
type DecisionRecorder interface {
	RecordDecision(guard string, allowed bool)
}

// Handler wires the decision endpoints.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	decisions DecisionRecorder
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. decisions may be nil.
func NewHandler(logger *slog.Logger, engine *Engine, decisions DecisionRecorder) *Handler {
	return &Handler{logger: logger, engine: engine, decisions: decisions, validator: validator.New()}
}

// MountRoutes registers decision routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Post("/check-tenant", h.checkTenant)
}

type resourceRef struct {
	Kind string `json:"kind" validate:"required,oneof=role principal"`
	ID   int64  `json:"id" validate:"required,gt=0"`
}

type checkRequest struct {
	PrincipalID int64        `json:"principal_id" validate:"required,gt=0"`
	Permission  string       `json:"permission" validate:"required"`
	Guard       string       `json:"guard" validate:"required"`
	Resource    *resourceRef `json:"resource"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	var resource *Resource
	if req.Resource != nil {
		resource = &Resource{Kind: ResourceKind(req.Resource.Kind), ID: req.Resource.ID}
	}
	allowed, err := h.engine.Can(r.Context(), req.PrincipalID, req.Permission, req.Guard, resource)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.decisions != nil {
		h.decisions.RecordDecision(req.Guard, allowed)
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

type checkTenantRequest struct {
	PrincipalID int64 `json:"principal_id" validate:"required,gt=0"`
	WorkspaceID int64 `json:"workspace_id" validate:"required,gt=0"`
}

func (h *Handler) checkTenant(w http.ResponseWriter, r *http.Request) {
	var req checkTenantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	allowed, err := h.engine.CanAccessTenant(r.Context(), req.PrincipalID, req.WorkspaceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}
