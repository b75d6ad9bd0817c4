package repository

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/quicklinkpay/admin-iam/internal/db/bunx"
)

// BunStore implements Store over a bun connection pool.
type BunStore struct {
	db *bun.DB
}

// NewBunStore creates a Store backed by db.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// DB returns the underlying connection pool.
func (s *BunStore) DB() *bun.DB { return s.db }

// Repositories returns repositories bound to the pool (autocommit).
func (s *BunStore) Repositories() Repositories {
	return bind(s.db)
}

// RunInTx runs fn inside one transaction.
func (s *BunStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return bunx.WithTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, bind(tx))
	})
}

func bind(db bun.IDB) Repositories {
	return Repositories{
		Roles:  NewBunRoleRepository(db),
		Admins: NewBunAdminRepository(db),
		Audit:  NewBunAuditRepository(db),
	}
}
