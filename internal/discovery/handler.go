package discovery

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warden-authz/warden/internal/authz"
	"github.com/warden-authz/warden/internal/platform/httpx"
)

// Handler wires the reconcile endpoint.
type Handler struct {
	logger    *slog.Logger
	syncer    *Syncer
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, syncer *Syncer, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, syncer: syncer, authz: mw, validator: validator.New()}
}

// MountRoutes registers discovery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("create_role"))
		r.Post("/reconcile", h.reconcile)
	})
}

type descriptorPayload struct {
	Resource string   `json:"resource" validate:"required"`
	Model    string   `json:"model"`
	Actions  []string `json:"actions" validate:"required,min=1"`
}

type reconcileRequest struct {
	Guard       string              `json:"guard" validate:"required"`
	Descriptors []descriptorPayload `json:"descriptors"`
	Direct      []string            `json:"direct"`
}

type reconcileResponse struct {
	Created   []string `json:"created"`
	Unchanged []string `json:"unchanged"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	descriptors := make([]ResourceDescriptor, 0, len(req.Descriptors))
	for _, d := range req.Descriptors {
		actions := make([]Action, 0, len(d.Actions))
		for _, a := range d.Actions {
			actions = append(actions, Action(a))
		}
		descriptors = append(descriptors, ResourceDescriptor{Resource: d.Resource, Model: d.Model, Actions: actions})
	}
	result, err := h.syncer.Reconcile(r.Context(), descriptors, req.Direct, req.Guard)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reconcileResponse{Created: result.Created, Unchanged: result.Unchanged})
}
