package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// AuditPayload holds a before/after image of a mutated record.
type AuditPayload map[string]any

// Scan implements sql.Scanner for reading from database
func (p *AuditPayload) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan AuditPayload: expected []byte, got %T", value)
	}
	if string(raw) == "null" {
		*p = nil
		return nil
	}
	return json.Unmarshal(raw, p)
}

// Value implements driver.Valuer for writing to database
func (p AuditPayload) Value() (driver.Value, error) {
	if p == nil {
		return "null", nil
	}
	bytes, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// AuditEvent is an immutable record of one mutation.
type AuditEvent struct {
	bun.BaseModel `bun:"table:audit_events,alias:ae"`

	ID         string       `bun:"id,pk"`
	ActorID    string       `bun:"actor_id,notnull"`
	Action     string       `bun:"action,notnull"`
	TargetType string       `bun:"target_type,notnull"`
	TargetID   string       `bun:"target_id,notnull"`
	Before     AuditPayload `bun:"before_state,type:jsonb"`
	After      AuditPayload `bun:"after_state,type:jsonb"`
	OccurredAt time.Time    `bun:"occurred_at,notnull,default:current_timestamp"`
}
