package auth

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/sirupsen/logrus"

	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/repository"
	"github.com/quicklinkpay/admin-iam/internal/telemetry"
)

//go:embed model.conf
var casbinModelContent string

// EnforcerDependencies are the collaborators of an Enforcer.
type EnforcerDependencies struct {
	// Repositories must read authoritative storage, never a cache.
	Repositories repository.Repositories
	Logger       logrus.FieldLogger
	Metrics      *telemetry.Metrics
}

// Enforcer is the server-side authorization layer. Each decision re-derives the
// principal's role and status from storage and evaluates them with Casbin.
type Enforcer struct {
	casbin  *casbin.SyncedEnforcer
	adapter *RolePolicyAdapter
	repos   repository.Repositories
	logger  logrus.FieldLogger
	metrics *telemetry.Metrics

	reloadMu sync.Mutex
}

// NewEnforcer parses the embedded model and loads policy from the role table.
func NewEnforcer(deps EnforcerDependencies, loadTimeout time.Duration) (*Enforcer, error) {
	if deps.Repositories.Roles == nil || deps.Repositories.Admins == nil {
		return nil, errors.New("enforcer requires role and admin repositories")
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	adapter := NewRolePolicyAdapter(deps.Repositories.Roles, loadTimeout)
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	enforcer.EnableAutoSave(false)

	return &Enforcer{
		casbin:  enforcer,
		adapter: adapter,
		repos:   deps.Repositories,
		logger:  logger,
		metrics: deps.Metrics,
	}, nil
}

// Reload rebuilds the policy from the role table.
func (e *Enforcer) Reload() error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	if err := e.casbin.LoadPolicy(); err != nil {
		return fmt.Errorf("reload casbin policies: %w", err)
	}
	return nil
}

// Decide reports whether principalID may perform action on resource. Unknown
// principals and roles are denied without error; storage failures are returned.
func (e *Enforcer) Decide(ctx context.Context, principalID string, resource rbac.Resource, action rbac.Action) (bool, error) {
	allowed, err := e.decide(ctx, principalID, resource, action)
	if err != nil {
		return false, err
	}
	e.metrics.RecordDecision(telemetry.SourceEnforcer, resource, allowed)
	if !allowed {
		e.logger.WithFields(logrus.Fields{
			"principal_id": principalID,
			"resource":     resource,
			"action":       action,
		}).Debug("enforcer denied request")
	}
	return allowed, nil
}

func (e *Enforcer) decide(ctx context.Context, principalID string, resource rbac.Resource, action rbac.Action) (bool, error) {
	if principalID == "" {
		return false, nil
	}
	admin, err := e.repos.Admins.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load principal: %w", err)
	}
	role, err := e.repos.Roles.GetByID(ctx, admin.RoleID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load role: %w", err)
	}

	if v, ok := e.adapter.Version(role.ID); !ok || v != role.Version {
		if err := e.Reload(); err != nil {
			return false, err
		}
	}

	allowed, err := e.casbin.Enforce(
		RoleSubject(role.ID),
		tierFor(role.AccessLevel, role.Level),
		admin.Status,
		string(resource),
		string(action),
	)
	if err != nil {
		return false, fmt.Errorf("casbin enforce: %w", err)
	}
	return allowed, nil
}

// AuthorizeRoleWrite gates writes to role documents. System roles reject every
// write regardless of the caller; other writes need the matching
// roleManagement permission.
func (e *Enforcer) AuthorizeRoleWrite(ctx context.Context, principalID, roleID string, action rbac.Action) error {
	role, err := e.repos.Roles.GetByID(ctx, roleID)
	switch {
	case err == nil && role.IsSystemRole:
		return rbac.Newf(rbac.ErrSystemRoleImmutable, "role %s", roleID)
	case err == nil:
	case errors.Is(err, rbac.ErrNotFound):
		if rbac.IsSystemRoleID(roleID) {
			return rbac.Newf(rbac.ErrSystemRoleImmutable, "role id %s is reserved", roleID)
		}
	default:
		return fmt.Errorf("load role: %w", err)
	}

	allowed, err := e.Decide(ctx, principalID, rbac.ResourceRoleManagement, action)
	if err != nil {
		return err
	}
	if !allowed {
		return rbac.Newf(rbac.ErrCapabilityDenied, "%s may not %s roles", principalID, action)
	}
	return nil
}
