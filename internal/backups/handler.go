package backups

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/platform/httpx"
	"github.com/logiflow/logiflow/internal/rbac"
)

// Handler exposes the backup API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbacMW, validator: httpx.NewValidator()}
}

// MountRoutes registers backup routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(permissions.ModuleBackups, permissions.ActionView)).Get("/", h.list)
	r.With(h.rbac.Require(permissions.ModuleBackups, permissions.ActionView)).Get("/{id}", h.get)
	r.With(h.rbac.Require(permissions.ModuleBackups, permissions.ActionCreate)).Post("/", h.create)
	r.With(h.rbac.Require(permissions.ModuleBackups, permissions.ActionDelete)).Delete("/{id}", h.delete)
	r.With(h.rbac.Require(permissions.ModuleBackups, permissions.ActionView)).Get("/schedule", h.getSchedule)
	r.With(h.rbac.Require(permissions.ModuleBackups, permissions.ActionManage)).Post("/schedule", h.setSchedule)
}

type scheduleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.ListRuns(r.Context())
	if err != nil {
		h.fail(w, "list backups", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get backup", err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.RequestBackup(r.Context(), actorID(r))
	if err != nil {
		h.fail(w, "request backup", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, run)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRun(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete backup", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.service.ScheduleEnabled(r.Context())
	if err != nil {
		h.fail(w, "read backup schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (h *Handler) setSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !httpx.DecodeValid(w, r, h.validator, &req) {
		return
	}
	if err := h.service.SetSchedule(r.Context(), actorID(r), *req.Enabled); err != nil {
		h.fail(w, "set backup schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	return principal.UserID
}
