package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/quicklinkpay/admin-iam/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20261001000001, down_20261001000001)
}

// up_20261001000001 creates the roles, admins and audit_events tables
func up_20261001000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating roles table...")
	_, err := db.NewCreateTable().
		Model((*models.Role)(nil)).
		IfNotExists().
		ForeignKey(`("parent_role_id") REFERENCES "roles" ("id")`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create roles table: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_roles_level ON roles(level)`)
	if err != nil {
		return fmt.Errorf("failed to create roles level index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating admins table...")
	_, err = db.NewCreateTable().
		Model((*models.Admin)(nil)).
		IfNotExists().
		ForeignKey(`("role_id") REFERENCES "roles" ("id")`).
		ForeignKey(`("manager_id") REFERENCES "admins" ("id")`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create admins table: %w", err)
	}
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_admins_manager_id ON admins(manager_id)`,
		`CREATE INDEX IF NOT EXISTS idx_admins_role_id ON admins(role_id)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create admins index: %w", err)
		}
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating audit_events table...")
	_, err = db.NewCreateTable().
		Model((*models.AuditEvent)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create audit_events table: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_events_target ON audit_events(target_type, target_id)`)
	if err != nil {
		return fmt.Errorf("failed to create audit_events target index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20261001000001 drops the IAM tables in reverse dependency order
func down_20261001000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping IAM tables...")
	for _, model := range []any{
		(*models.AuditEvent)(nil),
		(*models.Admin)(nil),
		(*models.Role)(nil),
	} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	fmt.Println(" OK")
	return nil
}
