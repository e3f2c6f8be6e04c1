package rbac

import (
	"context"

	"github.com/logiflow/logiflow/internal/permissions"
)

// Principal describes the authenticated actor of a request.
type Principal struct {
	UserID   int64            `json:"id"`
	Username string           `json:"username"`
	Role     permissions.Role `json:"role"`
}

// Can reports whether the principal may perform action on module.
func (p Principal) Can(module permissions.Module, action permissions.Action) bool {
	return permissions.HasPermission(string(module), string(p.Role), string(action))
}

// PrincipalResolver loads the current role of a user. Implementations must
// return the role exactly as stored; parsing happens here.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID int64) (Principal, error)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal stored by the middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
