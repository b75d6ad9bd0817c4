package rbac

// Decision is reported to observers after every evaluation.
type Decision struct {
	PrincipalID string
	Resource    Resource
	Action      Action
	Allowed     bool
	Bypass      bool
}

// Observer receives evaluation decisions, e.g. for metrics.
type Observer func(Decision)

// Evaluator decides (resource, action) requests against an AuthContext.
// It holds no per-actor state and is safe for concurrent use.
type Evaluator struct {
	observe Observer
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithObserver installs a decision observer.
func WithObserver(o Observer) EvaluatorOption {
	return func(e *Evaluator) { e.observe = o }
}

// NewEvaluator builds an Evaluator.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Can applies, in order: super-admin bypass, active status, matrix lookup.
// It never panics; missing state denies.
func (e *Evaluator) Can(ac AuthContext, resource Resource, action Action) bool {
	d := decide(ac, resource, action)
	if e != nil && e.observe != nil {
		e.observe(d)
	}
	return d.Allowed
}

func decide(ac AuthContext, resource Resource, action Action) Decision {
	d := Decision{PrincipalID: ac.Principal.ID, Resource: resource, Action: action}
	switch {
	case ac.IsSuperAdmin():
		d.Allowed, d.Bypass = true, true
	case ac.Principal.Status != StatusActive:
	case ac.Role == nil:
	default:
		d.Allowed = ac.Role.Permissions.Allows(resource, action)
	}
	return d
}

// CanManageUsers is Can(userManagement, create) or the role's user-management flag.
func (e *Evaluator) CanManageUsers(ac AuthContext) bool {
	if e.Can(ac, ResourceUserManagement, ActionCreate) {
		return true
	}
	return ac.Role != nil && ac.Principal.Status == StatusActive && ac.Role.CanManageUsers
}

// CanManageRoles reports whether any mutating roleManagement action is granted.
func (e *Evaluator) CanManageRoles(ac AuthContext) bool {
	for _, a := range []Action{ActionCreate, ActionUpdate, ActionDelete} {
		if e.Can(ac, ResourceRoleManagement, a) {
			return true
		}
	}
	return false
}

// EffectivePermissions lists what ac may do over the known modules.
func (e *Evaluator) EffectivePermissions(ac AuthContext) []Permission {
	var out []Permission
	for _, r := range allResources {
		for _, a := range allActions {
			if decide(ac, r, a).Allowed {
				out = append(out, Permission{Resource: r, Action: a})
			}
		}
	}
	return out
}
