package tasks

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/platform/httpx"
	"github.com/logiflow/logiflow/internal/rbac"
	"github.com/logiflow/logiflow/internal/shared"
)

// Handler exposes the task API.
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

// MountRoutes registers task routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireMethod(permissions.ModuleTasks))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
	r.With(h.rbac.Require(permissions.ModuleTasks, permissions.ActionValidate)).Post("/{id}/validate", h.validate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{StoreID: q.Get("store_id")}
	if raw := q.Get("status"); raw != "" {
		filter.Status = Status(raw)
		if !filter.Status.IsValid() {
			httpx.ValidationProblem(w, map[string]string{"status": "oneof"})
			return
		}
	}
	switch raw := q.Get("assigned_to"); raw {
	case "":
	case "me":
		principal, _ := rbac.PrincipalFromContext(r.Context())
		filter.AssignedTo = principal.UserID
	default:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.ValidationProblem(w, map[string]string{"assigned_to": "numeric"})
			return
		}
		filter.AssignedTo = id
	}
	page, perPage := shared.PageFromRequest(r)
	list, pagination, err := h.service.ListTasks(r.Context(), filter, page, perPage)
	if err != nil {
		h.fail(w, "list tasks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": list, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := h.service.GetTask(r.Context(), id)
	if err != nil {
		h.fail(w, "get task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if !httpx.DecodeValid(w, r, h.validator, &in) {
		return
	}
	task, err := h.service.CreateTask(r.Context(), actorID(r), in)
	if err != nil {
		h.fail(w, "create task", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if !httpx.DecodeValid(w, r, h.validator, &in) {
		return
	}
	task, err := h.service.UpdateTask(r.Context(), actorID(r), id, in)
	if err != nil {
		h.fail(w, "update task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteTask(r.Context(), actorID(r), id); err != nil {
		h.fail(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := h.service.ValidateTask(r.Context(), actorID(r), id)
	if err != nil {
		h.fail(w, "validate task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
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
