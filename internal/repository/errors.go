package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/quicklinkpay/admin-iam/internal/db/bunx"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

// mapError translates driver errors into rbac error kinds.
func mapError(err error, op, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return rbac.Newf(rbac.ErrNotFound, "%s %s", kind, id)
	case bunx.IsUniqueViolation(err):
		return rbac.Newf(rbac.ErrDuplicateID, "%s %s already exists", kind, id)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
