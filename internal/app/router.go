package app

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/logiflow/logiflow/internal/audit"
	"github.com/logiflow/logiflow/internal/auth"
	"github.com/logiflow/logiflow/internal/backups"
	"github.com/logiflow/logiflow/internal/observability"
	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/platform/httpx"
	"github.com/logiflow/logiflow/internal/rbac"
	"github.com/logiflow/logiflow/internal/shared"
	"github.com/logiflow/logiflow/internal/tasks"
	"github.com/logiflow/logiflow/internal/users"
	"github.com/logiflow/logiflow/jobs"
)

// ReadinessCheck probes a dependency for /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	RBACMiddleware     rbac.Middleware
	AuthHandler        *auth.Handler
	PermissionsHandler *rbac.PermissionsHandler
	UsersHandler       *users.Handler
	AuditHandler       *audit.Handler
	TasksHandler       *tasks.Handler
	BackupsHandler     *backups.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	Readiness          []ReadinessCheck
}

// NewRouter constructs the chi.Router with LogiFlow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(params.Readiness, params.Logger))

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	r.Route("/api", func(r chi.Router) {
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.TasksHandler != nil {
			r.Route("/tasks", params.TasksHandler.MountRoutes)
		}
		if params.BackupsHandler != nil {
			r.Route("/backups", params.BackupsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.RBACMiddleware.Require(permissions.ModuleBackups, permissions.ActionView))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		var token string
		if params.Config != nil {
			token = params.Config.MetricsToken
		}
		r.With(bearerToken(token)).Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	return r
}

func readyHandler(checks []ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := make(map[string]string, len(checks))
		code := http.StatusOK
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				if logger != nil {
					logger.Warn("readiness check failed", slog.String("check", c.Name), slog.Any("error", err))
				}
				status[c.Name] = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			status[c.Name] = "up"
		}
		httpx.JSON(w, code, status)
	}
}

// bearerToken guards a route with a static token. An empty token leaves the
// route open.
func bearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte("Bearer " + token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
