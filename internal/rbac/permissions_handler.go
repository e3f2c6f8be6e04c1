package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/logiflow/logiflow/internal/permissions"
	"github.com/logiflow/logiflow/internal/platform/httpx"
)

// PermissionsHandler exports the matrix so the presentation layer gates its
// controls on exactly what the middleware enforces.
type PermissionsHandler struct {
	rbac Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Authenticated).Get("/", h.mine)
	r.With(h.rbac.Require(permissions.ModuleAdmin, permissions.ActionView)).Get("/matrix", h.matrix)
}

// RolePermissions is the per-module view of one role.
type RolePermissions struct {
	Role    permissions.Role                             `json:"role"`
	Modules map[permissions.Module]permissions.ActionSet `json:"modules"`
}

// ForRole builds the permission document of a role.
func ForRole(role permissions.Role) RolePermissions {
	return RolePermissions{Role: role, Modules: permissions.ModulesFor(string(role))}
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, ForRole(principal.Role))
}

type matrixResponse struct {
	Roles   []permissions.Role                                                `json:"roles"`
	Modules []permissions.Module                                              `json:"modules"`
	Matrix  map[permissions.Module]map[permissions.Role]permissions.ActionSet `json:"matrix"`
}

func (h *PermissionsHandler) matrix(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, matrixResponse{
		Roles:   permissions.Roles(),
		Modules: permissions.Modules(),
		Matrix:  permissions.Table(),
	})
}
