package models

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

// Admin is a dashboard principal. Admins are deactivated, never deleted.
type Admin struct {
	bun.BaseModel `bun:"table:admins,alias:a"`

	ID                   string     `bun:"id,pk"`
	Email                string     `bun:"email,notnull,unique"`
	DisplayName          string     `bun:"display_name"`
	RoleID               string     `bun:"role_id,notnull"`
	AccessLevel          string     `bun:"access_level,notnull"`
	ManagerID            *string    `bun:"manager_id"`
	CanCreateSubUsers    bool       `bun:"can_create_sub_users,notnull"`
	MaxSubUsers          int        `bun:"max_sub_users,notnull"`
	CreatedSubUsersCount int        `bun:"created_sub_users_count,notnull"`
	Status               string     `bun:"status,notnull,default:'active'"`
	CreatedAt            time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt            time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	DeactivatedAt        *time.Time `bun:"deactivated_at"`
	Version              int        `bun:"version,notnull,default:1"`
}

// Manager returns the manager id or "" for a root admin.
func (a *Admin) Manager() string {
	if a == nil || a.ManagerID == nil {
		return ""
	}
	return *a.ManagerID
}

// Subject returns the evaluator view of the admin.
func (a *Admin) Subject() rbac.Subject {
	return rbac.Subject{
		ID:                   a.ID,
		Status:               rbac.Status(a.Status),
		AccessLevel:          rbac.AccessLevel(a.AccessLevel),
		ManagerID:            a.Manager(),
		CanCreateSubUsers:    a.CanCreateSubUsers,
		MaxSubUsers:          a.MaxSubUsers,
		CreatedSubUsersCount: a.CreatedSubUsersCount,
	}
}

// AuthContext pairs the admin with its role. A nil role yields a deny-all context.
func (a *Admin) AuthContext(role *Role) rbac.AuthContext {
	if role == nil || role.ID != a.RoleID {
		return rbac.NewAuthContext(a.Subject(), nil)
	}
	return rbac.NewAuthContext(a.Subject(), role.Snapshot())
}
