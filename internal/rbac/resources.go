package rbac

import "fmt"

// Resource is a protected module of the admin dashboard.
type Resource string

// Resource modules. Every role's permission matrix must declare all of them.
const (
	ResourceDashboard             Resource = "dashboard"
	ResourceMerchantManagement    Resource = "merchantManagement"
	ResourceTransactionManagement Resource = "transactionManagement"
	ResourcePayoutManagement      Resource = "payoutManagement"
	ResourceUserManagement        Resource = "userManagement"
	ResourceRoleManagement        Resource = "roleManagement"
	ResourceComplianceManagement  Resource = "complianceManagement"
	ResourceSupportManagement     Resource = "supportManagement"
	ResourceAnalytics             Resource = "analytics"
	ResourceSystemSettings        Resource = "systemSettings"
	ResourceAuditLogs             Resource = "auditLogs"
)

// Action is an operation on a resource module.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
)

var allResources = []Resource{
	ResourceDashboard,
	ResourceMerchantManagement,
	ResourceTransactionManagement,
	ResourcePayoutManagement,
	ResourceUserManagement,
	ResourceRoleManagement,
	ResourceComplianceManagement,
	ResourceSupportManagement,
	ResourceAnalytics,
	ResourceSystemSettings,
	ResourceAuditLogs,
}

var allActions = []Action{
	ActionRead,
	ActionCreate,
	ActionUpdate,
	ActionDelete,
	ActionApprove,
	ActionExport,
}

var (
	validResources = make(map[Resource]struct{}, len(allResources))
	validActions   = make(map[Action]struct{}, len(allActions))
)

func init() {
	for _, r := range allResources {
		validResources[r] = struct{}{}
	}
	for _, a := range allActions {
		validActions[a] = struct{}{}
	}
}

// Resources returns the closed set of resource modules in declaration order.
func Resources() []Resource {
	out := make([]Resource, len(allResources))
	copy(out, allResources)
	return out
}

// Actions returns the closed set of actions in declaration order.
func Actions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// Valid reports whether r is a known resource module.
func (r Resource) Valid() bool {
	_, ok := validResources[r]
	return ok
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := validActions[a]
	return ok
}

// ParseResource converts s into a known Resource.
func ParseResource(s string) (Resource, error) {
	r := Resource(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown resource module %q", s)
	}
	return r, nil
}

// ParseAction converts s into a known Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// Permission is a single (resource, action) grant.
type Permission struct {
	Resource Resource
	Action   Action
}

func (p Permission) String() string {
	return string(p.Resource) + "." + string(p.Action)
}
