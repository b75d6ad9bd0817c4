package rbac

import (
	"sort"
	"strings"
)

// PermissionMatrix maps resource module -> action -> granted.
// Absent keys are denials.
type PermissionMatrix map[Resource]map[Action]bool

// NewMatrix returns a complete matrix with every action denied except the given grants.
func NewMatrix(grants ...Permission) PermissionMatrix {
	m := make(PermissionMatrix, len(allResources))
	for _, r := range allResources {
		actions := make(map[Action]bool, len(allActions))
		for _, a := range allActions {
			actions[a] = false
		}
		m[r] = actions
	}
	for _, g := range grants {
		if m[g.Resource] == nil {
			m[g.Resource] = make(map[Action]bool)
		}
		m[g.Resource][g.Action] = true
	}
	return m
}

// FullMatrix returns a complete matrix granting every known action.
func FullMatrix() PermissionMatrix {
	m := NewMatrix()
	for _, actions := range m {
		for a := range actions {
			actions[a] = true
		}
	}
	return m
}

// Allows looks up the stored grant. Missing resources or actions deny.
func (m PermissionMatrix) Allows(resource Resource, action Action) bool {
	if m == nil {
		return false
	}
	actions, ok := m[resource]
	if !ok {
		return false
	}
	return actions[action]
}

// Validate ensures every resource module is declared and nothing outside the
// closed sets appears.
func (m PermissionMatrix) Validate() error {
	var missing []string
	for _, r := range allResources {
		if _, ok := m[r]; !ok {
			missing = append(missing, string(r))
		}
	}
	if len(missing) > 0 {
		return Newf(ErrIncompletePermissionMatrix, "missing modules: %s", strings.Join(missing, ", "))
	}
	for r, actions := range m {
		if !r.Valid() {
			return Newf(ErrIncompletePermissionMatrix, "unknown module %q", r)
		}
		for a := range actions {
			if !a.Valid() {
				return Newf(ErrIncompletePermissionMatrix, "unknown action %q on module %q", a, r)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (m PermissionMatrix) Clone() PermissionMatrix {
	if m == nil {
		return nil
	}
	out := make(PermissionMatrix, len(m))
	for r, actions := range m {
		cp := make(map[Action]bool, len(actions))
		for a, v := range actions {
			cp[a] = v
		}
		out[r] = cp
	}
	return out
}

// Granted lists the (resource, action) pairs set to true, sorted.
func (m PermissionMatrix) Granted() []Permission {
	var out []Permission
	for r, actions := range m {
		for a, v := range actions {
			if v {
				out = append(out, Permission{Resource: r, Action: a})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out
}
