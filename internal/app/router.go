package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stratus-cloud/stratus/internal/account"
	"github.com/stratus-cloud/stratus/internal/auth"
	"github.com/stratus-cloud/stratus/internal/invitation"
	"github.com/stratus-cloud/stratus/internal/observability"
	"github.com/stratus-cloud/stratus/internal/rights"
	"github.com/stratus-cloud/stratus/internal/session"
	"github.com/stratus-cloud/stratus/internal/user"
	"github.com/stratus-cloud/stratus/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Sessions *session.Store
	Metrics  *observability.Metrics

	AuthHandler       *auth.Handler
	UserHandler       *user.Handler
	AccountHandler    *account.Handler
	RightsHandler     *rights.Handler
	InvitationHandler *invitation.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with Stratus defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Sessions: params.Sessions,
		Metrics:  params.Metrics,
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

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(LoginRateLimit())
				params.AuthHandler.MountRoutes(r)
			})
		}
		if params.UserHandler != nil {
			params.UserHandler.MountRoutes(r)
		}
		if params.AccountHandler != nil {
			params.AccountHandler.MountRoutes(r)
		}
		if params.RightsHandler != nil {
			params.RightsHandler.MountRoutes(r)
		}
		if params.InvitationHandler != nil {
			params.InvitationHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
