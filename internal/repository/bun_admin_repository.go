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
// Admin Repository
// ========================================

// BunAdminRepository implements AdminRepository using Bun ORM
type BunAdminRepository struct {
	db bun.IDB
}

// NewBunAdminRepository creates a new Bun-based admin repository
func NewBunAdminRepository(db bun.IDB) AdminRepository {
	return &BunAdminRepository{db: db}
}

// Create inserts a new admin
func (r *BunAdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	if admin.ID == "" {
		admin.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC()
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = now
	}
	admin.UpdatedAt = now
	if admin.Version == 0 {
		admin.Version = 1
	}

	_, err := r.db.NewInsert().
		Model(admin).
		Exec(ctx)
	return mapError(err, "create admin", "admin", admin.Email)
}

// GetByID retrieves an admin by ID
func (r *BunAdminRepository) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	return r.get(ctx, "a.id = ?", id, false)
}

// GetByIDForUpdate retrieves an admin and locks the row for the transaction
func (r *BunAdminRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Admin, error) {
	return r.get(ctx, "a.id = ?", id, true)
}

// GetByEmail retrieves an admin by email
func (r *BunAdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return r.get(ctx, "a.email = ?", email, false)
}

func (r *BunAdminRepository) get(ctx context.Context, where, arg string, lock bool) (*models.Admin, error) {
	admin := new(models.Admin)
	q := r.db.NewSelect().
		Model(admin).
		Where(where, arg)
	if lock && bunx.IsPostgreSQL(r.db) {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err, "get admin", "admin", arg)
	}
	return admin, nil
}

// Update writes admin guarded by its version
func (r *BunAdminRepository) Update(ctx context.Context, admin *models.Admin) error {
	expected := admin.Version
	admin.UpdatedAt = time.Now().UTC()
	admin.Version++

	result, err := r.db.NewUpdate().
		Model(admin).
		ExcludeColumn("created_at").
		WherePK().
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		admin.Version = expected
		return mapError(err, "update admin", "admin", admin.Email)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		admin.Version = expected
		if _, err := r.GetByID(ctx, admin.ID); err != nil {
			return err
		}
		return rbac.Newf(rbac.ErrVersionConflict, "admin %s changed since version %d", admin.ID, expected)
	}
	return nil
}

// List retrieves all admins ordered by creation
func (r *BunAdminRepository) List(ctx context.Context) ([]models.Admin, error) {
	var admins []models.Admin
	err := r.db.NewSelect().
		Model(&admins).
		Order("a.created_at ASC", "a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// ListByManager retrieves the direct reports of managerID
func (r *BunAdminRepository) ListByManager(ctx context.Context, managerID string) ([]models.Admin, error) {
	var admins []models.Admin
	err := r.db.NewSelect().
		Model(&admins).
		Where("a.manager_id = ?", managerID).
		Order("a.created_at ASC", "a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins by manager: %w", err)
	}
	return admins, nil
}

// ListByRole retrieves the admins holding roleID
func (r *BunAdminRepository) ListByRole(ctx context.Context, roleID string) ([]models.Admin, error) {
	var admins []models.Admin
	err := r.db.NewSelect().
		Model(&admins).
		Where("a.role_id = ?", roleID).
		Order("a.created_at ASC", "a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins by role: %w", err)
	}
	return admins, nil
}

// ListManagerIDs returns admins that manage someone or carry a nonzero counter
func (r *BunAdminRepository) ListManagerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*models.Admin)(nil)).
		Column("a.id").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("a.created_sub_users_count > 0").
				WhereOr("EXISTS (SELECT 1 FROM admins AS sub WHERE sub.manager_id = a.id)")
		}).
		Order("a.id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list manager ids: %w", err)
	}
	return ids, nil
}

// GetManagerID returns the manager of id, or "" for a root admin
func (r *BunAdminRepository) GetManagerID(ctx context.Context, id string) (string, error) {
	admin, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return admin.Manager(), nil
}

// Count returns the number of stored admins
func (r *BunAdminRepository) Count(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().Model((*models.Admin)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}

// CountByManager returns the number of direct reports of managerID
func (r *BunAdminRepository) CountByManager(ctx context.Context, managerID string) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Admin)(nil)).
		Where("a.manager_id = ?", managerID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count admins by manager: %w", err)
	}
	return count, nil
}
