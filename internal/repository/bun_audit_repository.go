package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/quicklinkpay/admin-iam/internal/db/bunx"
	"github.com/quicklinkpay/admin-iam/internal/db/models"
)

// ========================================
// Audit Repository
// ========================================

// BunAuditRepository implements AuditRepository using Bun ORM. It is insert-only.
type BunAuditRepository struct {
	db bun.IDB
}

// NewBunAuditRepository creates a new Bun-based audit repository
func NewBunAuditRepository(db bun.IDB) AuditRepository {
	return &BunAuditRepository{db: db}
}

// Create appends an event
func (r *BunAuditRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = bunx.NewUUIDv7()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	_, err := r.db.NewInsert().Model(event).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

// ListByTarget returns the history of one record, oldest first
func (r *BunAuditRepository) ListByTarget(ctx context.Context, targetType, targetID string) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.NewSelect().
		Model(&events).
		Where("ae.target_type = ?", targetType).
		Where("ae.target_id = ?", targetID).
		Order("ae.occurred_at ASC", "ae.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

// ListRecent returns the newest events first
func (r *BunAuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	q := r.db.NewSelect().
		Model(&events).
		Order("ae.occurred_at DESC", "ae.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list recent audit events: %w", err)
	}
	return events, nil
}
