package permissions

import (
	"net/http"
	"strings"
)

// Lookup returns the cell for a typed module and role. Absent cells are empty.
func Lookup(module Module, role Role) ActionSet {
	return table[module][role]
}

// GetPermissions returns the actions role holds on module. Unknown modules or
// roles resolve to the empty set. Role and module are matched case-insensitively.
func GetPermissions(module, role string) ActionSet {
	m, ok := ParseModule(module)
	if !ok {
		return ActionSet{}
	}
	r, ok := ParseRole(role)
	if !ok {
		return ActionSet{}
	}
	return Lookup(m, r)
}

// CanAccessModule reports whether role holds at least one action on module.
func CanAccessModule(module, role string) bool {
	return !GetPermissions(module, role).IsEmpty()
}

// HasPermission reports whether role may perform action on module. Actions
// outside the known set are never granted.
func HasPermission(module, role, action string) bool {
	a, ok := ParseAction(action)
	if !ok {
		return false
	}
	return GetPermissions(module, role).Contains(a)
}

func CanView(module, role string) bool     { return HasPermission(module, role, string(ActionView)) }
func CanCreate(module, role string) bool   { return HasPermission(module, role, string(ActionCreate)) }
func CanEdit(module, role string) bool     { return HasPermission(module, role, string(ActionEdit)) }
func CanDelete(module, role string) bool   { return HasPermission(module, role, string(ActionDelete)) }
func CanValidate(module, role string) bool { return HasPermission(module, role, string(ActionValidate)) }

// ModulesFor returns the non-empty cells for role, keyed by module.
func ModulesFor(role string) map[Module]ActionSet {
	out := make(map[Module]ActionSet)
	r, ok := ParseRole(role)
	if !ok {
		return out
	}
	for _, m := range allModules {
		if set := Lookup(m, r); !set.IsEmpty() {
			out[m] = set
		}
	}
	return out
}

// ActionForMethod maps an HTTP verb to the action a request with that verb
// performs.
func ActionForMethod(method string) (Action, bool) {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return ActionView, true
	case http.MethodPost:
		return ActionCreate, true
	case http.MethodPut, http.MethodPatch:
		return ActionEdit, true
	case http.MethodDelete:
		return ActionDelete, true
	default:
		return "", false
	}
}
