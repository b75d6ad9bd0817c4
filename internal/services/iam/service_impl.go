package iam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/quicklinkpay/admin-iam/internal/audit"
	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/repository"
	"github.com/quicklinkpay/admin-iam/internal/telemetry"
)

// PolicyReloader rebuilds server-side policy after a role mutation.
// auth.Enforcer satisfies it.
type PolicyReloader interface {
	Reload() error
}

// iamService implements the Service interface.
type iamService struct {
	store     repository.Store
	evaluator *rbac.Evaluator
	sinks     []audit.Sink
	notifiers []audit.Sink
	reloader  PolicyReloader
	cache     *SnapshotCache
	logger    logrus.FieldLogger
	metrics   *telemetry.Metrics
	validate  *validator.Validate

	cfg IAMServiceConfig
	now func() time.Time
}

// IAMServiceDependencies contains all dependencies for IAM service construction.
type IAMServiceDependencies struct {
	Store     repository.Store
	Evaluator *rbac.Evaluator
	// Sinks receive every audit event after the transactional audit row is
	// written. They run inside the mutation's transaction.
	Sinks []audit.Sink
	// Notifiers receive the events of a mutation only after its transaction
	// commits. Their errors are logged and never undo the mutation.
	Notifiers []audit.Sink
	Reloader  PolicyReloader
	Logger    logrus.FieldLogger
	Metrics   *telemetry.Metrics
}

// IAMServiceConfig contains configuration for IAM service construction.
// Separated from dependencies to clearly distinguish config from runtime dependencies.
type IAMServiceConfig struct {
	OperationTimeout     time.Duration
	DefaultMaxSubUsers   int
	SnapshotTTL          time.Duration
	SnapshotSize         int
	TransitiveVisibility bool
}

// NewIAMService creates a new IAM service with all dependencies.
func NewIAMService(deps IAMServiceDependencies, cfg IAMServiceConfig) (Service, error) {
	if deps.Store == nil {
		return nil, errors.New("iam service requires a store")
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = rbac.NewEvaluator(rbac.WithObserver(deps.Metrics.EvaluatorObserver()))
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	if cfg.SnapshotSize <= 0 {
		cfg.SnapshotSize = 1024
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Minute
	}

	cache, err := NewSnapshotCache(cfg.SnapshotSize, cfg.SnapshotTTL, deps.Metrics)
	if err != nil {
		return nil, fmt.Errorf("initialize snapshot cache: %w", err)
	}

	return &iamService{
		store:     deps.Store,
		evaluator: evaluator,
		sinks:     deps.Sinks,
		notifiers: deps.Notifiers,
		reloader:  deps.Reloader,
		cache:     cache,
		logger:    logger,
		metrics:   deps.Metrics,
		validate:  validator.New(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// invalidInput types a validator failure as a terminal definition error.
func invalidInput(err error) error {
	return rbac.Newf(rbac.ErrInvalidDefinition, "%v", err)
}

func (s *iamService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// record writes event to the transaction's audit table, then to the extra sinks.
func (s *iamService) record(ctx context.Context, repos repository.Repositories, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	sinks := append([]audit.Sink{audit.NewRepositorySink(repos.Audit)}, s.sinks...)
	if err := audit.Multi(sinks...).Record(ctx, event); err != nil {
		return err
	}
	if pending, ok := ctx.Value(outboxKey{}).(*[]audit.Event); ok {
		*pending = append(*pending, event)
	}
	return nil
}

type outboxKey struct{}

// runInTx runs fn in one transaction and hands the events it recorded to the
// notifiers once the commit succeeds.
func (s *iamService) runInTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	var pending []audit.Event
	if err := s.store.RunInTx(context.WithValue(ctx, outboxKey{}, &pending), fn); err != nil {
		return err
	}
	if len(s.notifiers) == 0 {
		return nil
	}
	// The mutation is durable; the caller's deadline no longer applies.
	notifyCtx := context.WithoutCancel(ctx)
	for _, event := range pending {
		for _, n := range s.notifiers {
			if err := n.Record(notifyCtx, event); err != nil {
				s.logger.WithError(err).WithField("action", event.Action).Warn("audit notification failed")
			}
		}
	}
	return nil
}

// rolesChanged refreshes derived state after a committed role mutation.
// A failed reload is logged; the enforcer also reloads on version mismatch.
func (s *iamService) rolesChanged() {
	s.cache.Purge()
	if s.reloader == nil {
		return
	}
	if err := s.reloader.Reload(); err != nil {
		s.logger.WithError(err).Warn("policy reload after role mutation failed")
	}
}

// loadActor reads the actor and its role from repos. A missing role leaves
// the context role-less, which denies everything.
func loadActor(ctx context.Context, repos repository.Repositories, actorID string, lock bool) (*models.Admin, rbac.AuthContext, error) {
	get := repos.Admins.GetByID
	if lock {
		get = repos.Admins.GetByIDForUpdate
	}
	actor, err := get(ctx, actorID)
	if err != nil {
		return nil, rbac.AuthContext{}, fmt.Errorf("load actor: %w", err)
	}
	role, err := loadRole(ctx, repos, actor.RoleID)
	if err != nil {
		return nil, rbac.AuthContext{}, err
	}
	return actor, actor.AuthContext(role), nil
}

// loadRole returns nil for a missing role.
func loadRole(ctx context.Context, repos repository.Repositories, roleID string) (*models.Role, error) {
	role, err := repos.Roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load role: %w", err)
	}
	return role, nil
}

// requireActive rejects mutations by non-active actors, super-admins included.
func requireActive(ac rbac.AuthContext) error {
	if ac.Principal.Status != rbac.StatusActive {
		return rbac.Newf(rbac.ErrCapabilityDenied, "actor %s is %s", ac.Principal.ID, ac.Principal.Status)
	}
	return nil
}

// =========================================================================
// Read-Only Lookup Methods
// =========================================================================

// GetAdmin retrieves a principal by id.
func (s *iamService) GetAdmin(ctx context.Context, principalID string) (*models.Admin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Repositories().Admins.GetByID(ctx, principalID)
}

// GetAdminByEmail retrieves a principal by email.
func (s *iamService) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Repositories().Admins.GetByEmail(ctx, email)
}

// AuthContext builds an authoritative snapshot and refreshes the cache entry.
func (s *iamService) AuthContext(ctx context.Context, principalID string) (rbac.AuthContext, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, ac, err := loadActor(ctx, s.store.Repositories(), principalID, false)
	if err != nil {
		return rbac.AuthContext{}, err
	}
	s.cache.Add(principalID, ac)
	return ac, nil
}

// CachedAuthContext serves from the snapshot cache, falling back to storage.
func (s *iamService) CachedAuthContext(ctx context.Context, principalID string) (rbac.AuthContext, error) {
	if ac, ok := s.cache.Get(principalID); ok {
		return ac, nil
	}
	return s.AuthContext(ctx, principalID)
}

// EffectivePermissions evaluates every known pair against a fresh snapshot.
func (s *iamService) EffectivePermissions(ctx context.Context, principalID string) ([]rbac.Permission, error) {
	ac, err := s.AuthContext(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return s.evaluator.EffectivePermissions(ac), nil
}

// AuditTrail lists the events recorded for a target.
func (s *iamService) AuditTrail(ctx context.Context, targetType, targetID string) ([]models.AuditEvent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Repositories().Audit.ListByTarget(ctx, targetType, targetID)
}
