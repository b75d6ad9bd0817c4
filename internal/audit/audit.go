// Package audit records immutable before/after images of IAM mutations.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/repository"
)

// Actions recorded by the IAM service.
const (
	ActionRoleCreate      = "role.create"
	ActionRoleUpdate      = "role.update"
	ActionRoleDeactivate  = "role.deactivate"
	ActionRoleSeed        = "role.seed"
	ActionAdminCreate     = "admin.create"
	ActionAdminReassign   = "admin.reassign_manager"
	ActionAdminAssignRole = "admin.assign_role"
	ActionAdminStatus     = "admin.set_status"
)

// Target types.
const (
	TargetRole  = "role"
	TargetAdmin = "admin"
)

// Event is one mutation. Before is nil for creations.
type Event struct {
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Before     any
	After      any
	Timestamp  time.Time
}

// Sink receives events synchronously. Wired as a transactional sink it runs
// before commit and its error aborts the mutation; wired as a notifier it runs
// only after a successful commit.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, event Event) error { return f(ctx, event) }

// Validate checks the required fields.
func (e Event) Validate() error {
	if e.ActorID == "" || e.Action == "" || e.TargetType == "" || e.TargetID == "" {
		return errors.New("audit event requires actor/action/target_type/target_id")
	}
	return nil
}

// Payload converts a record into its stored JSON image.
func Payload(v any) (models.AuditPayload, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	var out models.AuditPayload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	return out, nil
}

// RepositorySink writes events through an AuditRepository, typically one bound
// to the caller's transaction.
type RepositorySink struct {
	repo repository.AuditRepository
}

// NewRepositorySink creates a sink over repo.
func NewRepositorySink(repo repository.AuditRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

// Record persists the event.
func (s *RepositorySink) Record(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	before, err := Payload(event.Before)
	if err != nil {
		return err
	}
	after, err := Payload(event.After)
	if err != nil {
		return err
	}
	return s.repo.Create(ctx, &models.AuditEvent{
		ActorID:    event.ActorID,
		Action:     event.Action,
		TargetType: event.TargetType,
		TargetID:   event.TargetID,
		Before:     before,
		After:      after,
		OccurredAt: event.Timestamp,
	})
}

// LogSink writes one structured log line per event. Wire it as a notifier so
// lines are only written for committed mutations.
type LogSink struct {
	logger logrus.FieldLogger
}

// NewLogSink creates a sink over logger.
func NewLogSink(logger logrus.FieldLogger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the event. Payloads are omitted; they live in the audit table.
func (s *LogSink) Record(_ context.Context, event Event) error {
	s.logger.WithFields(logrus.Fields{
		"actor_id":    event.ActorID,
		"action":      event.Action,
		"target_type": event.TargetType,
		"target_id":   event.TargetID,
		"at":          event.Timestamp.Format(time.RFC3339Nano),
	}).Info("audit")
	return nil
}

// Multi fans an event out to sinks in order, stopping at the first error.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, event Event) error {
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Record(ctx, event); err != nil {
				return fmt.Errorf("audit %s: %w", event.Action, err)
			}
		}
		return nil
	})
}
