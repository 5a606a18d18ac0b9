package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tempora-hq/tempora/internal/auth"
	"github.com/tempora-hq/tempora/internal/observability"
	"github.com/tempora-hq/tempora/internal/projects"
	"github.com/tempora-hq/tempora/internal/reports"
	"github.com/tempora-hq/tempora/internal/timesheet"
	"github.com/tempora-hq/tempora/internal/users"
	"github.com/tempora-hq/tempora/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthService      *auth.Service
	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	ProjectsHandler  *projects.Handler
	TimesheetHandler *timesheet.Handler
	ReportsHandler   *reports.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Tempora defaults.
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

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/users", func(r chi.Router) {
		params.UsersHandler.MountRoutes(r, params.AuthService.Authenticator, params.AuthService.OptionalAuthenticator)
	})

	r.Group(func(r chi.Router) {
		r.Use(params.AuthService.Authenticator)

		r.Route("/projects", params.ProjectsHandler.MountRoutes)
		r.Route("/time-entries", func(r chi.Router) {
			params.TimesheetHandler.MountRoutes(r, params.ReportsHandler.MountUserRoutes)
		})
		r.Route("/reports", params.ReportsHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			params.JobHandler.MountRoutes(r, params.AuthService.Authenticator)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
