package rbac

// Built-in catalog and system roles for the church-management product.
// The table is the single source of truth for capabilities: the runtime
// catalog is populated from it at service construction and stays a plain
// keyed store afterwards.

var builtinPermissions = []Permission{
	// core
	{Resource: "people", Action: "read", Name: "View people", Scope: ScopeChurch, Category: CategoryCore},
	{Resource: "people", Action: "manage", Name: "Manage people records", Scope: ScopeChurch, Category: CategoryCore},
	{Resource: "people", Action: "read-own", Name: "View own profile", Scope: ScopeSelf, Category: CategoryCore},
	{Resource: "events", Action: "read", Name: "View events", Scope: ScopeChurch, Category: CategoryCore},
	{Resource: "events", Action: "create", Name: "Create events", Scope: ScopeChurch, Category: CategoryCore},
	{Resource: "events", Action: "manage", Name: "Manage events", Scope: ScopeChurch, Category: CategoryCore},
	{Resource: "notifications", Action: "send", Name: "Send notifications", Scope: ScopeChurch, Category: CategoryCore},
	{Resource: "locations", Action: "read", Name: "View locations", Scope: ScopeGlobal, Category: CategoryCore},
	{Resource: "locations", Action: "manage", Name: "Manage locations", Scope: ScopeGlobal, Category: CategoryAdmin},

	// ministry
	{Resource: "kpis", Action: "read", Name: "View KPIs", Scope: ScopeChurch, Category: CategoryMinistry},
	{Resource: "kpis", Action: "manage", Name: "Manage KPIs", Scope: ScopeChurch, Category: CategoryMinistry},
	{Resource: "evaluations", Action: "create", Name: "Submit evaluations", Scope: ScopeTeam, Category: CategoryMinistry},
	{Resource: "evaluations", Action: "review", Name: "Review evaluations", Scope: ScopeChurch, Category: CategoryMinistry},
	{Resource: "teams", Action: "read", Name: "View teams", Scope: ScopeTeam, Category: CategoryMinistry},
	{Resource: "teams", Action: "manage", Name: "Manage teams", Scope: ScopeChurch, Category: CategoryMinistry},

	// financial
	{Resource: "donations", Action: "read", Name: "View donations", Scope: ScopeChurch, Category: CategoryFinancial},
	{Resource: "donations", Action: "manage", Name: "Manage donations", Scope: ScopeChurch, Category: CategoryFinancial},
	{Resource: "reports", Action: "read", Name: "View financial reports", Scope: ScopeChurch, Category: CategoryFinancial},
	{Resource: "reports", Action: "export", Name: "Export reports", Scope: ScopeGlobal, Category: CategoryFinancial},

	// admin
	{Resource: "imports", Action: "run", Name: "Run data imports", Scope: ScopeGlobal, Category: CategoryAdmin},
	{Resource: "exports", Action: "run", Name: "Run data exports", Scope: ScopeGlobal, Category: CategoryAdmin},
	{Resource: "roles", Action: "read", Name: "View roles", Scope: ScopeGlobal, Category: CategoryAdmin},
	{Resource: "roles", Action: "manage", Name: "Manage roles", Scope: ScopeGlobal, Category: CategoryAdmin},
	{Resource: "assignments", Action: "manage", Name: "Assign and revoke roles", Scope: ScopeGlobal, Category: CategoryAdmin},
	{Resource: "role-requests", Action: "review", Name: "Review role requests", Scope: ScopeGlobal, Category: CategoryAdmin},
	{Resource: "audit", Action: "read", Name: "View audit log", Scope: ScopeGlobal, Category: CategoryAdmin},
}

// roleSeed references permissions by (resource, action) because catalog ids
// are generated at registration time.
type roleSeed struct {
	name         string
	description  string
	level        int
	permissions  [][2]string
	restrictions Restrictions
}

var builtinRoles = []roleSeed{
	{
		name:        "System Administrator",
		description: "Full administrative control over the platform",
		level:       10,
		permissions: [][2]string{
			{"people", "read"}, {"people", "manage"},
			{"events", "read"}, {"events", "create"}, {"events", "manage"},
			{"notifications", "send"},
			{"locations", "read"}, {"locations", "manage"},
			{"kpis", "read"}, {"kpis", "manage"},
			{"evaluations", "create"}, {"evaluations", "review"},
			{"teams", "read"}, {"teams", "manage"},
			{"donations", "read"}, {"donations", "manage"},
			{"reports", "read"}, {"reports", "export"},
			{"imports", "run"}, {"exports", "run"},
			{"roles", "read"}, {"roles", "manage"},
			{"assignments", "manage"},
			{"role-requests", "review"},
			{"audit", "read"},
		},
		restrictions: Restrictions{MaxAssignees: 3},
	},
	{
		name:        "Senior Pastor",
		description: "Oversees a church, its ministries and finances",
		level:       8,
		permissions: [][2]string{
			{"people", "read"}, {"people", "manage"},
			{"events", "read"}, {"events", "create"}, {"events", "manage"},
			{"notifications", "send"},
			{"kpis", "read"}, {"kpis", "manage"},
			{"evaluations", "review"},
			{"teams", "read"}, {"teams", "manage"},
			{"donations", "read"},
			{"reports", "read"},
			{"role-requests", "review"},
		},
		restrictions: Restrictions{ChurchSpecific: true, RequiresApproval: true},
	},
	{
		name:        "Pastor",
		description: "Leads services and pastoral care within a church",
		level:       7,
		permissions: [][2]string{
			{"people", "read"},
			{"events", "read"}, {"events", "create"},
			{"notifications", "send"},
			{"kpis", "read"},
			{"evaluations", "review"},
			{"teams", "read"},
		},
		restrictions: Restrictions{ChurchSpecific: true, RequiresApproval: true},
	},
	{
		name:        "Ministry Leader",
		description: "Runs a ministry area and its KPIs",
		level:       5,
		permissions: [][2]string{
			{"people", "read"},
			{"events", "read"}, {"events", "create"},
			{"kpis", "read"},
			{"evaluations", "create"},
			{"teams", "read"},
		},
		restrictions: Restrictions{ChurchSpecific: true},
	},
	{
		name:        "Team Lead",
		description: "Coordinates a serving team",
		level:       4,
		permissions: [][2]string{
			{"events", "read"},
			{"evaluations", "create"},
			{"teams", "read"},
		},
	},
	{
		name:        "Member",
		description: "Baseline self-service access",
		level:       1,
		permissions: [][2]string{
			{"people", "read-own"},
			{"events", "read"},
			{"locations", "read"},
		},
	},
}
