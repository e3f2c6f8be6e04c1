package permissions

// grant is one row of the literal table: every role is listed explicitly,
// even when two roles hold the same rights.
type grant struct {
	Admin     []Action
	Directeur []Action
	Manager   []Action
	Employee  []Action
}

var (
	crud     = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}
	viewOnly = []Action{ActionView}
	none     = []Action{}
)

// definition is the single source of truth for who may do what. Changing a
// permission means editing this literal and redeploying.
var definition = map[Module]grant{
	ModuleDashboard: {
		Admin:     viewOnly,
		Directeur: viewOnly,
		Manager:   viewOnly,
		Employee:  viewOnly,
	},
	ModuleCalendar: {
		Admin:     crud,
		Directeur: crud,
		Manager:   []Action{ActionView, ActionCreate, ActionEdit},
		Employee:  viewOnly,
	},
	ModuleOrders: {
		Admin:     crud,
		Directeur: crud,
		Manager:   []Action{ActionView, ActionCreate, ActionEdit},
		Employee:  viewOnly,
	},
	ModuleDeliveries: {
		Admin:     crud,
		Directeur: crud,
		Manager:   []Action{ActionView, ActionCreate, ActionEdit},
		Employee:  viewOnly,
	},
	ModuleReconciliation: {
		Admin:     crud,
		Directeur: []Action{ActionView, ActionCreate, ActionEdit},
		Manager:   none,
		Employee:  none,
	},
	ModulePublicity: {
		Admin:     crud,
		Directeur: viewOnly,
		Manager:   viewOnly,
		Employee:  viewOnly,
	},
	ModuleCustomerOrders: {
		Admin:     crud,
		Directeur: crud,
		Manager:   []Action{ActionView, ActionCreate, ActionEdit},
		Employee:  []Action{ActionView, ActionCreate},
	},
	ModuleDLC: {
		Admin:     crud,
		Directeur: crud,
		Manager:   []Action{ActionView, ActionCreate, ActionEdit},
		Employee:  []Action{ActionView, ActionCreate},
	},
	ModuleTasks: {
		Admin:     []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionValidate},
		Directeur: []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionValidate},
		Manager:   []Action{ActionView, ActionValidate},
		Employee:  viewOnly,
	},
	ModuleAdmin: {
		Admin:     []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage},
		Directeur: none,
		Manager:   none,
		Employee:  none,
	},
	ModuleBackups: {
		Admin:     []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage},
		Directeur: none,
		Manager:   none,
		Employee:  none,
	},
}

// table is built once from definition and never written afterwards.
var table = compile(definition)

func compile(def map[Module]grant) map[Module]map[Role]ActionSet {
	out := make(map[Module]map[Role]ActionSet, len(def))
	for module, g := range def {
		out[module] = map[Role]ActionSet{
			RoleAdmin:     NewActionSet(g.Admin...),
			RoleDirecteur: NewActionSet(g.Directeur...),
			RoleManager:   NewActionSet(g.Manager...),
			RoleEmployee:  NewActionSet(g.Employee...),
		}
	}
	return out
}

// Table returns a copy of the full matrix. Mutating the result has no effect
// on authorization.
func Table() map[Module]map[Role]ActionSet {
	out := make(map[Module]map[Role]ActionSet, len(table))
	for module, row := range table {
		cp := make(map[Role]ActionSet, len(row))
		for role, set := range row {
			cp[role] = set
		}
		out[module] = cp
	}
	return out
}
