package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/platform/httpx"
	"github.com/logiflow/logiflow/internal/shared"
)

// ErrUnknownUser is returned by resolvers when the session user no longer exists.
var ErrUnknownUser = errors.New("rbac: unknown user")

// DenialRecorder counts rejected requests.
type DenialRecorder interface {
	AuthzDenied(module, action string)
}

// Middleware gates HTTP handlers on the permission matrix. It is the only
// server-side authorization path; handlers never re-derive permissions.
type Middleware struct {
	Resolver PrincipalResolver
	Logger   *slog.Logger
	Metrics  DenialRecorder
}

// Require allows the request only when the caller holds action on module.
func (m Middleware) Require(module permissions.Module, action permissions.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.authorize(w, r, next, module, action)
		})
	}
}

// RequireMethod derives the action from the HTTP verb. Verbs without an
// action mapping are denied.
func (m Middleware) RequireMethod(module permissions.Module) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			action, ok := permissions.ActionForMethod(r.Method)
			if !ok {
				m.deny(w, r, module, permissions.Action(r.Method), "")
				return
			}
			m.authorize(w, r, next, module, action)
		})
	}
}

// RequireAccess allows the request when the caller holds any action on module.
func (m Middleware) RequireAccess(module permissions.Module) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := m.principal(w, r)
			if !ok {
				return
			}
			if !permissions.CanAccessModule(string(module), string(principal.Role)) {
				m.deny(w, r, module, "access", principal.Role)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// Authenticated only requires a resolvable session user.
func (m Middleware) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := m.principal(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

func (m Middleware) authorize(w http.ResponseWriter, r *http.Request, next http.Handler, module permissions.Module, action permissions.Action) {
	principal, ok := m.principal(w, r)
	if !ok {
		return
	}
	if !permissions.HasPermission(string(module), string(principal.Role), string(action)) {
		m.deny(w, r, module, action, principal.Role)
		return
	}
	next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
}

// principal resolves the caller, writing 401/500 itself on failure.
func (m Middleware) principal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p, true
	}
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok || m.Resolver == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return Principal{}, false
	}
	p, err := m.Resolver.ResolvePrincipal(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return Principal{}, false
		}
		if m.Logger != nil {
			m.Logger.Error("rbac resolve principal", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return Principal{}, false
	}
	return p, true
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, module permissions.Module, action permissions.Action, role permissions.Role) {
	if m.Logger != nil {
		m.Logger.Warn("rbac denied",
			slog.String("module", string(module)),
			slog.String("action", string(action)),
			slog.String("role", string(role)),
			slog.String("path", r.URL.Path),
		)
	}
	if m.Metrics != nil {
		m.Metrics.AuthzDenied(string(module), string(action))
	}
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "permission denied")
}
