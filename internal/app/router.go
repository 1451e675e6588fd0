package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/warden-authz/warden/internal/authz"
	cataloghttp "github.com/warden-authz/warden/internal/catalog/http"
	"github.com/warden-authz/warden/internal/discovery"
	"github.com/warden-authz/warden/internal/identity"
	"github.com/warden-authz/warden/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	IdentityHandler  *identity.Handler
	CatalogHandler   *cataloghttp.Handler
	AuthzHandler     *authz.Handler
	DiscoveryHandler *discovery.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Warden defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if params.Config != nil {
			r.Use(ServiceAuth(params.Config.APIToken, params.Logger))
		}
		if params.AuthzHandler != nil {
			r.Route("/authz", params.AuthzHandler.MountRoutes)
		}
		if params.IdentityHandler != nil {
			params.IdentityHandler.MountRoutes(r)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.DiscoveryHandler != nil {
			r.Route("/discovery", params.DiscoveryHandler.MountRoutes)
		}
	})

	return r
}
