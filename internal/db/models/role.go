package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

// PermissionMatrix is the stored form of a role's permissions (module -> action -> granted).
type PermissionMatrix map[string]map[string]bool

// Scan implements sql.Scanner for reading from database
func (pm *PermissionMatrix) Scan(value any) error {
	if value == nil {
		*pm = make(PermissionMatrix)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan PermissionMatrix: expected []byte, got %T", value)
	}
	return json.Unmarshal(raw, pm)
}

// Value implements driver.Valuer for writing to database
func (pm PermissionMatrix) Value() (driver.Value, error) {
	if pm == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(pm)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// MatrixFromRBAC converts a typed matrix to its stored form.
func MatrixFromRBAC(m rbac.PermissionMatrix) PermissionMatrix {
	out := make(PermissionMatrix, len(m))
	for r, actions := range m {
		cp := make(map[string]bool, len(actions))
		for a, v := range actions {
			cp[string(a)] = v
		}
		out[string(r)] = cp
	}
	return out
}

// RBAC converts the stored form back to a typed matrix. Keys are carried over
// as-is; lookups of unknown modules simply miss.
func (pm PermissionMatrix) RBAC() rbac.PermissionMatrix {
	out := make(rbac.PermissionMatrix, len(pm))
	for r, actions := range pm {
		cp := make(map[rbac.Action]bool, len(actions))
		for a, v := range actions {
			cp[rbac.Action(a)] = v
		}
		out[rbac.Resource(r)] = cp
	}
	return out
}

// Role is a leveled permission bundle. System roles are written once at bootstrap.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID                 string           `bun:"id,pk"`
	Name               string           `bun:"name,notnull"`
	Description        string           `bun:"description"`
	Level              int              `bun:"level,notnull"`
	AccessLevel        string           `bun:"access_level,notnull"`
	IsSystemRole       bool             `bun:"is_system_role,notnull"`
	IsCustomRole       bool             `bun:"is_custom_role,notnull"`
	ParentRoleID       *string          `bun:"parent_role_id"`
	CanCreateSubRoles  bool             `bun:"can_create_sub_roles,notnull"`
	CanManageUsers     bool             `bun:"can_manage_users,notnull"`
	Permissions        PermissionMatrix `bun:"permissions,type:jsonb"`
	AssignedUsersCount int              `bun:"assigned_users_count,notnull"`
	IsActive           bool             `bun:"is_active,notnull"`
	CreatedBy          string           `bun:"created_by"`
	CreatedAt          time.Time        `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt          time.Time        `bun:"updated_at,notnull,default:current_timestamp"`
	DeactivatedAt      *time.Time       `bun:"deactivated_at"`
	Version            int              `bun:"version,notnull,default:1"`
}

// Snapshot returns the evaluator view of the role.
func (r *Role) Snapshot() *rbac.RoleSnapshot {
	if r == nil {
		return nil
	}
	return &rbac.RoleSnapshot{
		ID:                r.ID,
		Level:             rbac.Level(r.Level),
		AccessLevel:       rbac.AccessLevel(r.AccessLevel),
		IsSystemRole:      r.IsSystemRole,
		CanManageUsers:    r.CanManageUsers,
		CanCreateSubRoles: r.CanCreateSubRoles,
		Permissions:       r.Permissions.RBAC(),
	}
}

// ParentID returns the parent role id or "".
func (r *Role) ParentID() string {
	if r == nil || r.ParentRoleID == nil {
		return ""
	}
	return *r.ParentRoleID
}
