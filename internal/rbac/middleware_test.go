package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/shared"
)

type stubResolver struct {
	roles map[int64]string
	err   error
	calls int
}

func (s *stubResolver) ResolvePrincipal(ctx context.Context, userID int64) (Principal, error) {
	s.calls++
	if s.err != nil {
		return Principal{}, s.err
	}
	raw, ok := s.roles[userID]
	if !ok {
		return Principal{}, ErrUnknownUser
	}
	role, _ := permissions.ParseRole(raw)
	return Principal{UserID: userID, Username: "u" + strconv.FormatInt(userID, 10), Role: role}, nil
}

type denialCounter struct {
	denied map[string]int
}

func (d *denialCounter) AuthzDenied(module, action string) {
	if d.denied == nil {
		d.denied = make(map[string]int)
	}
	d.denied[module+"/"+action]++
}

const (
	adminID     int64 = 1
	directeurID int64 = 2
	managerID   int64 = 3
	employeeID  int64 = 4
	legacyID    int64 = 5
)

func newResolver() *stubResolver {
	return &stubResolver{roles: map[int64]string{
		adminID:     "admin",
		directeurID: "Directeur",
		managerID:   "manager",
		employeeID:  "employee",
		legacyID:    "superviseur",
	}}
}

func newSessionManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "lf_session", time.Hour, false)
}

func request(t *testing.T, sm *shared.SessionManager, method, target string, userID int64) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	if userID > 0 {
		sess.SetUser(strconv.FormatInt(userID, 10))
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func tasksRouter(mw Middleware) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		w.Header().Set("X-Role", string(p.Role))
		w.WriteHeader(http.StatusNoContent)
	})
	r := chi.NewRouter()
	r.Route("/tasks", func(r chi.Router) {
		r.Use(mw.RequireMethod(permissions.ModuleTasks))
		r.Get("/", ok)
		r.Post("/", ok)
		r.Patch("/{id}", ok)
		r.Delete("/{id}", ok)
		r.Options("/", ok)
	})
	r.With(mw.Require(permissions.ModuleTasks, permissions.ActionValidate)).Post("/tasks-validate/{id}", ok)
	r.With(mw.RequireAccess(permissions.ModuleReconciliation)).Get("/reconciliation", ok)
	return r
}

func TestRequireMethodFollowsMatrix(t *testing.T) {
	sm := newSessionManager(t)
	handler := tasksRouter(Middleware{Resolver: newResolver()})

	tests := []struct {
		name   string
		method string
		target string
		user   int64
		want   int
	}{
		{"employee views", http.MethodGet, "/tasks/", employeeID, http.StatusNoContent},
		{"employee cannot create", http.MethodPost, "/tasks/", employeeID, http.StatusForbidden},
		{"manager cannot create", http.MethodPost, "/tasks/", managerID, http.StatusForbidden},
		{"manager cannot edit", http.MethodPatch, "/tasks/9", managerID, http.StatusForbidden},
		{"manager validates", http.MethodPost, "/tasks-validate/9", managerID, http.StatusNoContent},
		{"employee cannot validate", http.MethodPost, "/tasks-validate/9", employeeID, http.StatusForbidden},
		{"directeur deletes", http.MethodDelete, "/tasks/9", directeurID, http.StatusNoContent},
		{"admin creates", http.MethodPost, "/tasks/", adminID, http.StatusNoContent},
		{"unknown role denied", http.MethodGet, "/tasks/", legacyID, http.StatusForbidden},
		{"unmapped verb denied", http.MethodOptions, "/tasks/", adminID, http.StatusForbidden},
		{"anonymous", http.MethodGet, "/tasks/", 0, http.StatusUnauthorized},
		{"deleted user", http.MethodGet, "/tasks/", 99, http.StatusUnauthorized},
		{"manager has no reconciliation access", http.MethodGet, "/reconciliation", managerID, http.StatusForbidden},
		{"directeur has reconciliation access", http.MethodGet, "/reconciliation", directeurID, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, request(t, sm, tt.method, tt.target, tt.user))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddlewareStoresPrincipal(t *testing.T) {
	sm := newSessionManager(t)
	handler := tasksRouter(Middleware{Resolver: newResolver()})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request(t, sm, http.MethodGet, "/tasks/", directeurID))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "directeur", rec.Header().Get("X-Role"))
}

func TestDenialIsCounted(t *testing.T) {
	sm := newSessionManager(t)
	counter := &denialCounter{}
	handler := tasksRouter(Middleware{Resolver: newResolver(), Metrics: counter})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request(t, sm, http.MethodDelete, "/tasks/3", managerID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, counter.denied["tasks/delete"])
}

func TestResolverFailureIsInternalError(t *testing.T) {
	sm := newSessionManager(t)
	resolver := newResolver()
	resolver.err = errors.New("db down")
	handler := tasksRouter(Middleware{Resolver: resolver})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request(t, sm, http.MethodGet, "/tasks/", adminID))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNestedMiddlewareResolvesOnce(t *testing.T) {
	sm := newSessionManager(t)
	resolver := newResolver()
	mw := Middleware{Resolver: resolver}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := mw.RequireAccess(permissions.ModuleTasks)(mw.Require(permissions.ModuleTasks, permissions.ActionView)(ok))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request(t, sm, http.MethodGet, "/", employeeID))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resolver.calls)
}

func TestPermissionsEndpoint(t *testing.T) {
	sm := newSessionManager(t)
	mw := Middleware{Resolver: newResolver()}
	r := chi.NewRouter()
	r.Route("/api/permissions", NewPermissionsHandler(mw).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, request(t, sm, http.MethodGet, "/api/permissions/", managerID))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Role    string              `json:"role"`
		Modules map[string][]string `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "manager", body.Role)
	assert.Equal(t, []string{"view", "validate"}, body.Modules["tasks"])
	_, ok := body.Modules["reconciliation"]
	assert.False(t, ok)
	_, ok = body.Modules["admin"]
	assert.False(t, ok)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, request(t, sm, http.MethodGet, "/api/permissions/matrix", managerID))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, request(t, sm, http.MethodGet, "/api/permissions/matrix", adminID))
	require.Equal(t, http.StatusOK, rec.Code)
	var matrix struct {
		Matrix map[string]map[string][]string `json:"matrix"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matrix))
	assert.Equal(t, []string{"view", "create"}, matrix.Matrix["customer-orders"]["employee"])
	assert.Empty(t, matrix.Matrix["backups"]["directeur"])
}
