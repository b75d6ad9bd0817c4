package rbac

import "fmt"

// Status is a principal's account state. Only active principals pass checks.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusLocked    Status = "locked"
)

// ParseStatus converts s into a known Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusInactive, StatusSuspended, StatusLocked:
		return st, nil
	}
	return "", Newf(ErrInvalidStatus, "unknown status %q", s)
}

// AccessLevel is the category tag of a role, denormalized onto principals.
type AccessLevel string

const (
	AccessSuperAdmin AccessLevel = "super_admin"
	AccessAdmin      AccessLevel = "admin"
	AccessManager    AccessLevel = "manager"
	AccessStaff      AccessLevel = "staff"
	AccessReadOnly   AccessLevel = "read_only"
	AccessCustom     AccessLevel = "custom"
)

// ValidateCustomAccessLevel rejects categories that custom roles may not claim.
func ValidateCustomAccessLevel(a AccessLevel) error {
	switch a {
	case AccessAdmin, AccessManager, AccessStaff, AccessReadOnly, AccessCustom:
		return nil
	case AccessSuperAdmin:
		return Newf(ErrInvalidLevel, "custom roles cannot use access level %q", a)
	}
	return Newf(ErrInvalidLevel, "unknown access level %q", a)
}

// Subject is the principal half of an AuthContext.
type Subject struct {
	ID                   string
	Status               Status
	AccessLevel          AccessLevel
	ManagerID            string
	CanCreateSubUsers    bool
	MaxSubUsers          int
	CreatedSubUsersCount int
}

// RoleSnapshot is the role half of an AuthContext.
type RoleSnapshot struct {
	ID                string
	Level             Level
	AccessLevel       AccessLevel
	IsSystemRole      bool
	CanManageUsers    bool
	CanCreateSubRoles bool
	Permissions       PermissionMatrix
}

// AuthContext is an immutable per-request snapshot of an actor and its role.
// A context without a role denies everything.
type AuthContext struct {
	Principal Subject
	Role      *RoleSnapshot
}

// NewAuthContext pairs a principal with its role snapshot.
func NewAuthContext(p Subject, r *RoleSnapshot) AuthContext {
	return AuthContext{Principal: p, Role: r}
}

// IsSuperAdmin reports whether the bypass applies.
func (ac AuthContext) IsSuperAdmin() bool {
	if ac.Role == nil {
		return false
	}
	return ac.Role.AccessLevel == AccessSuperAdmin || ac.Role.Level == LevelSuperAdmin
}

func (ac AuthContext) level() Level {
	if ac.Role == nil {
		return LevelUndefined
	}
	return ac.Role.Level
}

// Level returns the actor's role level, or LevelUndefined.
func (ac AuthContext) Level() Level { return ac.level() }

func (ac AuthContext) String() string {
	if ac.Role == nil {
		return fmt.Sprintf("%s(no role)", ac.Principal.ID)
	}
	return fmt.Sprintf("%s(%s@%d)", ac.Principal.ID, ac.Role.ID, ac.Role.Level)
}
