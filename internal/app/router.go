package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/harborwatch/harborwatch/internal/access"
	"github.com/harborwatch/harborwatch/internal/audit"
	"github.com/harborwatch/harborwatch/internal/auth"
	"github.com/harborwatch/harborwatch/internal/fleet"
	"github.com/harborwatch/harborwatch/internal/observability"
	"github.com/harborwatch/harborwatch/internal/shared"
	"github.com/harborwatch/harborwatch/internal/users"
	"github.com/harborwatch/harborwatch/internal/voyage"
	"github.com/harborwatch/harborwatch/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	IdentityLoader IdentityLoader

	AuthHandler   *auth.Handler
	UsersHandler  *users.Handler
	AccessHandler *access.Handler
	FleetHandler  *fleet.Handler
	VoyageHandler *voyage.Handler
	AuditHandler  *audit.Handler
	JobHandler    *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with HarborWatch defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(IdentityMiddleware(params.IdentityLoader, params.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", params.UsersHandler.MountRoutes)
		params.AccessHandler.MountRoutes(r)
		params.FleetHandler.MountRoutes(r)
		params.VoyageHandler.MountRoutes(r)
		r.Route("/audit", params.AuditHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			params.JobHandler.MountRoutes(r)
		})
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
