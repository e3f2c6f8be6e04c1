package audit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/platform/httpx"
	"github.com/logiflow/logiflow/internal/rbac"
)

const dateLayout = "2006-01-02"

// defaultDateRange is the window used when the caller omits from.
const defaultDateRange = 30 * 24 * time.Hour

// Handler serves the audit timeline of the admin module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbacMW, now: time.Now}
}

// MountRoutes registers audit routes. Reading the trail is an admin view.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(permissions.ModuleAdmin, permissions.ActionView)).Get("/", h.timeline)
}

type filterError struct {
	field string
}

func (e filterError) Error() string { return "invalid " + e.field }

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		var fe filterError
		if errors.As(err, &fe) {
			httpx.ValidationProblem(w, map[string]string{fe.field: "invalid"})
			return
		}
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		if !httpx.IsClientError(err) {
			h.logger.Error("audit timeline", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = h.now().UTC().Format(dateLayout)
	}
	toTime, err := time.Parse(dateLayout, toStr)
	if err != nil {
		return TimelineFilters{}, filterError{field: "to"}
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format(dateLayout)
	}
	fromTime, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return TimelineFilters{}, filterError{field: "from"}
	}

	filters := TimelineFilters{
		From:   fromTime,
		To:     toTime,
		Module: strings.TrimSpace(q.Get("module")),
		Action: strings.TrimSpace(q.Get("action")),
	}
	for key, dst := range map[string]*int{"page": &filters.Page, "page_size": &filters.PageSize} {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, filterError{field: key}
		}
		*dst = parsed
	}
	if v := strings.TrimSpace(q.Get("actor_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return TimelineFilters{}, filterError{field: "actor_id"}
		}
		filters.ActorID = id
	}
	return filters, nil
}
