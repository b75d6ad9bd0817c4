package repository

import (
	"context"

	"github.com/quicklinkpay/admin-iam/internal/db/models"
)

// RoleRepository exposes persistence operations for roles.
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByID(ctx context.Context, id string) (*models.Role, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends (PostgreSQL).
	GetByIDForUpdate(ctx context.Context, id string) (*models.Role, error)
	// Update writes role if its stored version still equals role.Version, then bumps it.
	Update(ctx context.Context, role *models.Role) error
	List(ctx context.Context, includeInactive bool) ([]models.Role, error)
	CountSystemRoles(ctx context.Context) (int, error)
	AdjustAssignedCount(ctx context.Context, id string, delta int) error
}

// AdminRepository exposes persistence operations for admin principals.
type AdminRepository interface {
	Create(ctx context.Context, admin *models.Admin) error
	GetByID(ctx context.Context, id string) (*models.Admin, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Admin, error)
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	Update(ctx context.Context, admin *models.Admin) error
	List(ctx context.Context) ([]models.Admin, error)
	ListByManager(ctx context.Context, managerID string) ([]models.Admin, error)
	// ListByRole returns every holder of roleID, whatever its status.
	ListByRole(ctx context.Context, roleID string) ([]models.Admin, error)
	// ListManagerIDs returns every admin that manages someone or has a nonzero counter.
	ListManagerIDs(ctx context.Context) ([]string, error)
	GetManagerID(ctx context.Context, id string) (string, error)
	Count(ctx context.Context) (int, error)
	CountByManager(ctx context.Context, managerID string) (int, error)
}

// AuditRepository persists immutable audit events.
type AuditRepository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
	ListByTarget(ctx context.Context, targetType, targetID string) ([]models.AuditEvent, error)
	ListRecent(ctx context.Context, limit int) ([]models.AuditEvent, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Roles  RoleRepository
	Admins AdminRepository
	Audit  AuditRepository
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repositories() Repositories
	// RunInTx runs fn with repositories bound to a single transaction. The
	// transaction commits only if fn returns nil and ctx is still live.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
