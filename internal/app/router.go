package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-assets/internal/audit"
	"github.com/odyssey-erp/odyssey-assets/internal/inventory"
	"github.com/odyssey-erp/odyssey-assets/internal/observability"
	"github.com/odyssey-erp/odyssey-assets/internal/rbac"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
	"github.com/odyssey-erp/odyssey-assets/internal/users"
	"github.com/odyssey-erp/odyssey-assets/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	Pool             *pgxpool.Pool
	UsersHandler     *users.Handler
	AuditHandler     *audit.Handler
	InventoryHandler *inventory.Handler
	JobsHandler      *jobs.Handler
	RBACMiddleware   rbac.Middleware
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
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

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := `{"status":"ok"}`
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				params.Logger.Warn("healthz database ping", slog.Any("error", err))
				status = http.StatusServiceUnavailable
				body = `{"status":"degraded"}`
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	if params.UsersHandler != nil {
		r.Route("/auth", params.UsersHandler.MountRoutes)
	}

	if params.AuditHandler != nil {
		r.Route("/activity", func(r chi.Router) {
			r.Use(params.RBACMiddleware.Require(rbac.ResourceActivity, rbac.ActionView))
			params.AuditHandler.MountRoutes(r)
		})
	}

	if params.InventoryHandler != nil {
		r.Route("/pools", params.InventoryHandler.MountRoutes)
	}

	if params.JobsHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.With(params.RBACMiddleware.Require(rbac.ResourceActivity, rbac.ActionView)).
				Get("/health", params.JobsHandler.Health)
			r.With(params.RBACMiddleware.Require(rbac.ResourceAssets, rbac.ActionEdit)).
				Post("/overdue-sweep", params.JobsHandler.TriggerOverdueSweep)
		})
	}

	return r
}
