package iam

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-bexpr"

	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

// RoleFilter narrows ListRoles.
//
// Expression is a go-bexpr boolean expression over the role fields ID, Name,
// AccessLevel, ParentRoleID, IsSystemRole, IsCustomRole, IsActive,
// CanManageUsers, CanCreateSubRoles, Level and AssignedUsersCount, for example
//
//	IsCustomRole == true and AccessLevel == "manager"
//
// go-bexpr has no ordering operators, so level ranges go through MinLevel and
// MaxLevel (both inclusive).
type RoleFilter struct {
	Expression      string
	IncludeInactive bool
	MinLevel        *rbac.Level
	MaxLevel        *rbac.Level
}

// roleMatcher is a compiled RoleFilter.
type roleMatcher struct {
	filter    RoleFilter
	evaluator *bexpr.Evaluator
}

func compileRoleFilter(f RoleFilter) (*roleMatcher, error) {
	m := &roleMatcher{filter: f}
	if expr := strings.TrimSpace(f.Expression); expr != "" {
		evaluator, err := bexpr.CreateEvaluator(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid role filter: %w", err)
		}
		m.evaluator = evaluator
	}
	return m, nil
}

func (m *roleMatcher) match(role *models.Role) (bool, error) {
	if !m.filter.IncludeInactive && !role.IsActive {
		return false, nil
	}
	level := rbac.Level(role.Level)
	if m.filter.MinLevel != nil && level < *m.filter.MinLevel {
		return false, nil
	}
	if m.filter.MaxLevel != nil && level > *m.filter.MaxLevel {
		return false, nil
	}
	if m.evaluator == nil {
		return true, nil
	}
	ok, err := m.evaluator.Evaluate(roleFields(role))
	if err != nil {
		return false, fmt.Errorf("evaluate role filter on %s: %w", role.ID, err)
	}
	return ok, nil
}

func roleFields(role *models.Role) map[string]any {
	return map[string]any{
		"ID":                 role.ID,
		"Name":               role.Name,
		"AccessLevel":        role.AccessLevel,
		"ParentRoleID":       role.ParentID(),
		"IsSystemRole":       role.IsSystemRole,
		"IsCustomRole":       role.IsCustomRole,
		"IsActive":           role.IsActive,
		"CanManageUsers":     role.CanManageUsers,
		"CanCreateSubRoles":  role.CanCreateSubRoles,
		"Level":              role.Level,
		"AssignedUsersCount": role.AssignedUsersCount,
	}
}
