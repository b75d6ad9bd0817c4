package iam

import (
	"context"

	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

// SystemActor is recorded as the actor of bootstrap mutations.
const SystemActor = "system"

// Service provides all role and principal management operations.
//
// This service centralizes:
//   - Role store (system role seeding, custom role lifecycle)
//   - Subordinate manager (creation quotas, reporting lines, reconciliation)
//   - Auth context resolution (authoritative and cached)
type Service interface {
	// =========================================================================
	// Role Store
	// =========================================================================

	// CreateRole creates a custom role on behalf of actorID.
	//
	// The actor must hold roleManagement.create and the sub-role capability,
	// and the new level must be strictly below the actor's own. The matrix
	// must declare every resource module.
	//
	// Returns:
	//   - CapabilityDenied, HierarchyViolation
	//   - DuplicateId (existing or reserved system id)
	//   - InvalidLevel, IncompletePermissionMatrix
	//   - NotFound (unknown parent role)
	CreateRole(ctx context.Context, actorID string, def RoleDefinition) (*models.Role, error)

	// GetRole returns a role, active or not.
	GetRole(ctx context.Context, roleID string) (*models.Role, error)

	// UpdateRole applies patch to a custom role.
	//
	// System roles fail with SystemRoleImmutable before anything else is
	// checked, whoever the caller is. The update is versioned: a concurrent
	// writer makes it fail with VersionConflict instead of interleaving.
	UpdateRole(ctx context.Context, actorID, roleID string, patch RolePatch) (*models.Role, error)

	// DeleteRole deactivates a custom role. Deleting an already deactivated
	// role succeeds without change.
	//
	// Returns SystemRoleImmutable, RoleInUse while any active principal holds
	// the role, or NotFound.
	DeleteRole(ctx context.Context, actorID, roleID string) error

	// ListRoles returns the roles matching filter, highest authority first.
	ListRoles(ctx context.Context, filter RoleFilter) ([]models.Role, error)

	// SeedSystemRoles writes the predefined roles exactly once. A repeated call
	// reports AlreadySeeded and changes nothing.
	SeedSystemRoles(ctx context.Context) (*SeedResult, error)

	// BootstrapSuperAdmin creates the root super-admin when no principal exists.
	// Returns created=false and the existing principal (if email matches) otherwise.
	BootstrapSuperAdmin(ctx context.Context, email, displayName string) (admin *models.Admin, created bool, err error)

	// =========================================================================
	// Subordinate Manager
	// =========================================================================

	// CreateSubordinate creates a principal managed by actorID.
	//
	// Checks run in order: capability, hierarchy, quota. The insert and the
	// counter increments commit together or not at all.
	CreateSubordinate(ctx context.Context, actorID string, draft SubordinateDraft) (*models.Admin, error)

	// ListManaged returns the principals reporting to actorID. The whole
	// report chain is returned only when transitive is requested and the
	// transitive visibility policy is enabled.
	ListManaged(ctx context.Context, actorID string, transitive bool) ([]models.Admin, error)

	// ReassignManager moves principalID under newManagerID.
	//
	// Returns CycleDetected, HierarchyViolation, QuotaExceeded or CapabilityDenied.
	ReassignManager(ctx context.Context, actorID, principalID, newManagerID string) error

	// AssignRole gives principalID a new role and rewrites its access level.
	AssignRole(ctx context.Context, actorID, principalID, roleID string) (*models.Admin, error)

	// SetStatus changes a principal's status.
	SetStatus(ctx context.Context, actorID, principalID string, status rbac.Status) (*models.Admin, error)

	// DeactivatePrincipal is SetStatus(inactive). Principals are never deleted.
	DeactivatePrincipal(ctx context.Context, actorID, principalID string) (*models.Admin, error)

	// ValidateNoCycle checks that making proposedManagerID the manager of
	// principalID keeps the reporting lines acyclic.
	ValidateNoCycle(ctx context.Context, principalID, proposedManagerID string) error

	// ReconcileSubordinateCount compares a manager's stored counter with its
	// actual direct reports. It reports drift; it never repairs it.
	ReconcileSubordinateCount(ctx context.Context, managerID string) (*ReconcileReport, error)

	// ReconcileAll reconciles every admin that manages someone or carries a
	// nonzero counter.
	ReconcileAll(ctx context.Context) ([]ReconcileReport, error)

	// =========================================================================
	// Read-Only Lookups
	// =========================================================================

	// GetAdmin returns a principal by id.
	GetAdmin(ctx context.Context, principalID string) (*models.Admin, error)

	// GetAdminByEmail returns a principal by email.
	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)

	// AuthContext builds a fresh snapshot of principalID and its role from storage.
	AuthContext(ctx context.Context, principalID string) (rbac.AuthContext, error)

	// CachedAuthContext serves AuthContext from the snapshot cache. The result
	// may be stale up to the cache TTL and must only gate UI.
	CachedAuthContext(ctx context.Context, principalID string) (rbac.AuthContext, error)

	// EffectivePermissions lists what principalID may currently do.
	EffectivePermissions(ctx context.Context, principalID string) ([]rbac.Permission, error)

	// AuditTrail returns the recorded events for one target, oldest first.
	AuditTrail(ctx context.Context, targetType, targetID string) ([]models.AuditEvent, error)
}
