// Package permissions holds the role × module permission matrix shared by the
// presentation layer and request authorization.
package permissions

import (
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role identifies a user category.
type Role string

// Known roles.
const (
	RoleAdmin     Role = "admin"
	RoleDirecteur Role = "directeur"
	RoleManager   Role = "manager"
	RoleEmployee  Role = "employee"
)

// Action is a capability a role may hold within a module.
type Action string

// Known actions. ActionManage is only granted on the admin and backups modules.
const (
	ActionView     Action = "view"
	ActionCreate   Action = "create"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionValidate Action = "validate"
	ActionManage   Action = "manage"
)

// Module is a functional area permissions are scoped to.
type Module string

// Known modules.
const (
	ModuleDashboard      Module = "dashboard"
	ModuleCalendar       Module = "calendar"
	ModuleOrders         Module = "orders"
	ModuleDeliveries     Module = "deliveries"
	ModuleReconciliation Module = "reconciliation"
	ModulePublicity      Module = "publicity"
	ModuleCustomerOrders Module = "customer-orders"
	ModuleDLC            Module = "dlc"
	ModuleTasks          Module = "tasks"
	ModuleAdmin          Module = "admin"
	ModuleBackups        Module = "backups"
)

var (
	allRoles   = []Role{RoleAdmin, RoleDirecteur, RoleManager, RoleEmployee}
	allActions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionValidate, ActionManage}
	allModules = []Module{
		ModuleDashboard,
		ModuleCalendar,
		ModuleOrders,
		ModuleDeliveries,
		ModuleReconciliation,
		ModulePublicity,
		ModuleCustomerOrders,
		ModuleDLC,
		ModuleTasks,
		ModuleAdmin,
		ModuleBackups,
	}
)

// Roles lists every known role in declaration order.
func Roles() []Role { return append([]Role(nil), allRoles...) }

// Actions lists every known action in declaration order.
func Actions() []Action { return append([]Action(nil), allActions...) }

// Modules lists every known module in declaration order.
func Modules() []Module { return append([]Module(nil), allModules...) }

// normalize lower-cases ASCII input. Anything else is returned as is so it
// never matches a known name. A Caser carries state, so each call builds its
// own.
func normalize(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return s
		}
	}
	return cases.Lower(language.Und).String(s)
}

// ParseRole lower-cases s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(normalize(s))
	for _, known := range allRoles {
		if r == known {
			return known, true
		}
	}
	return "", false
}

// ParseModule lower-cases s and reports whether it names a known module.
func ParseModule(s string) (Module, bool) {
	m := Module(normalize(s))
	for _, known := range allModules {
		if m == known {
			return known, true
		}
	}
	return "", false
}

// ParseAction lower-cases s and reports whether it names a known action.
func ParseAction(s string) (Action, bool) {
	a := Action(normalize(s))
	for _, known := range allActions {
		if a == known {
			return known, true
		}
	}
	return "", false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string   { return string(r) }
func (a Action) String() string { return string(a) }
func (m Module) String() string { return string(m) }
