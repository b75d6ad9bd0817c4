package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/quicklinkpay/admin-iam/internal/db/bunx"
	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

// ========================================
// Role Repository
// ========================================

// BunRoleRepository implements RoleRepository using Bun ORM
type BunRoleRepository struct {
	db bun.IDB
}

// NewBunRoleRepository creates a new Bun-based role repository
func NewBunRoleRepository(db bun.IDB) RoleRepository {
	return &BunRoleRepository{db: db}
}

// Create inserts a new role. Role ids are caller-chosen and immutable.
func (r *BunRoleRepository) Create(ctx context.Context, role *models.Role) error {
	now := time.Now().UTC()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	if role.Version == 0 {
		role.Version = 1
	}

	_, err := r.db.NewInsert().
		Model(role).
		Exec(ctx)
	return mapError(err, "create role", "role", role.ID)
}

// GetByID retrieves a role by ID
func (r *BunRoleRepository) GetByID(ctx context.Context, id string) (*models.Role, error) {
	return r.get(ctx, id, false)
}

// GetByIDForUpdate retrieves a role and locks it for the rest of the transaction
func (r *BunRoleRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Role, error) {
	return r.get(ctx, id, true)
}

func (r *BunRoleRepository) get(ctx context.Context, id string, lock bool) (*models.Role, error) {
	role := new(models.Role)
	q := r.db.NewSelect().
		Model(role).
		Where("r.id = ?", id)
	if lock && bunx.IsPostgreSQL(r.db) {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err, "get role", "role", id)
	}
	return role, nil
}

// Update writes the mutable columns of role guarded by its version.
// The assigned-user counter is excluded; it only moves through AdjustAssignedCount.
func (r *BunRoleRepository) Update(ctx context.Context, role *models.Role) error {
	expected := role.Version
	role.UpdatedAt = time.Now().UTC()
	role.Version++ // Optimistic locking

	result, err := r.db.NewUpdate().
		Model(role).
		ExcludeColumn("assigned_users_count", "created_at", "created_by").
		WherePK().
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		role.Version = expected
		return fmt.Errorf("update role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		role.Version = expected
		if _, err := r.GetByID(ctx, role.ID); err != nil {
			return err
		}
		return rbac.Newf(rbac.ErrVersionConflict, "role %s changed since version %d", role.ID, expected)
	}

	return nil
}

// List retrieves roles, highest authority first
func (r *BunRoleRepository) List(ctx context.Context, includeInactive bool) ([]models.Role, error) {
	var roles []models.Role
	q := r.db.NewSelect().
		Model(&roles).
		Order("r.level ASC", "r.id ASC")
	if !includeInactive {
		q = q.Where("r.is_active = ?", true)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// CountSystemRoles counts seeded system roles
func (r *BunRoleRepository) CountSystemRoles(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Role)(nil)).
		Where("r.is_system_role = ?", true).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count system roles: %w", err)
	}
	return count, nil
}

// AdjustAssignedCount moves usageStats.assignedUsersCount by delta, never below zero
func (r *BunRoleRepository) AdjustAssignedCount(ctx context.Context, id string, delta int) error {
	result, err := r.db.NewUpdate().
		Model((*models.Role)(nil)).
		Set("assigned_users_count = assigned_users_count + ?", delta).
		Where("id = ?", id).
		Where("assigned_users_count + ? >= 0", delta).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("adjust role usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("adjust role usage: count for %s would drop below zero", id)
	}
	return nil
}
