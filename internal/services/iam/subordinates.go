package iam

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quicklinkpay/admin-iam/internal/audit"
	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/repository"
)

// reconcileConcurrency bounds ReconcileAll's parallel counter checks.
const reconcileConcurrency = 8

// SubordinateDraft describes a principal to create under the actor.
type SubordinateDraft struct {
	Email             string `validate:"required,email"`
	DisplayName       string `validate:"max=128"`
	RoleID            string `validate:"required"`
	CanCreateSubUsers bool
	// MaxSubUsers defaults to the configured quota.
	MaxSubUsers *int `validate:"omitempty,gte=0"`
}

// ReconcileReport compares a manager's counter with its direct reports.
type ReconcileReport struct {
	ManagerID string
	Recorded  int
	Actual    int
}

// Drift is Recorded minus Actual; nonzero means the counter is wrong.
func (r ReconcileReport) Drift() int {
	return r.Recorded - r.Actual
}

// =========================================================================
// Subordinate Manager
// =========================================================================

// CreateSubordinate inserts a principal and bumps the actor's and role's
// counters in one transaction. The actor row is re-read (and locked on
// PostgreSQL) inside the transaction so concurrent calls cannot overshoot.
func (s *iamService) CreateSubordinate(ctx context.Context, actorID string, draft SubordinateDraft) (*models.Admin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.validate.Struct(draft); err != nil {
		return nil, fmt.Errorf("create subordinate: %w", invalidInput(err))
	}
	maxSubUsers := s.cfg.DefaultMaxSubUsers
	if draft.MaxSubUsers != nil {
		maxSubUsers = *draft.MaxSubUsers
	}

	var created *models.Admin
	err := s.runInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		actor, ac, err := loadActor(ctx, repos, actorID, true)
		if err != nil {
			return err
		}
		if err := requireActive(ac); err != nil {
			return err
		}
		if !actor.CanCreateSubUsers || !s.evaluator.CanManageUsers(ac) {
			return rbac.Newf(rbac.ErrCapabilityDenied, "%s may not create sub-users", actorID)
		}

		role, err := activeRole(ctx, repos, draft.RoleID)
		if err != nil {
			return err
		}
		if !rbac.CanAssignRole(ac.Level(), rbac.Level(role.Level)) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "level %d cannot assign role %s at level %d", ac.Level(), role.ID, role.Level)
		}
		if actor.CreatedSubUsersCount >= actor.MaxSubUsers {
			return rbac.Newf(rbac.ErrQuotaExceeded, "%s has created %d of %d sub-users", actorID, actor.CreatedSubUsersCount, actor.MaxSubUsers)
		}

		managerID := actor.ID
		admin := &models.Admin{
			Email:             draft.Email,
			DisplayName:       draft.DisplayName,
			RoleID:            role.ID,
			AccessLevel:       role.AccessLevel,
			ManagerID:         &managerID,
			CanCreateSubUsers: draft.CanCreateSubUsers,
			MaxSubUsers:       maxSubUsers,
			Status:            string(rbac.StatusActive),
		}
		if err := repos.Admins.Create(ctx, admin); err != nil {
			return err
		}

		actor.CreatedSubUsersCount++
		if err := repos.Admins.Update(ctx, actor); err != nil {
			return err
		}
		if err := repos.Roles.AdjustAssignedCount(ctx, role.ID, 1); err != nil {
			return err
		}
		if err := s.record(ctx, repos, audit.Event{
			ActorID:    actorID,
			Action:     audit.ActionAdminCreate,
			TargetType: audit.TargetAdmin,
			TargetID:   admin.ID,
			After:      admin,
		}); err != nil {
			return err
		}
		created = admin
		return nil
	})
	s.metrics.RecordMutation("create_subordinate", err)
	if err != nil {
		return nil, fmt.Errorf("create subordinate: %w", err)
	}

	s.cache.Invalidate(actorID)
	s.logger.WithFields(logrus.Fields{
		"actor_id":     actorID,
		"principal_id": created.ID,
		"role_id":      created.RoleID,
	}).Info("created subordinate")
	return created, nil
}

// activeRole loads a role that may be handed out.
func activeRole(ctx context.Context, repos repository.Repositories, roleID string) (*models.Role, error) {
	role, err := repos.Roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("load role: %w", err)
	}
	if !role.IsActive {
		return nil, rbac.Newf(rbac.ErrNotFound, "role %s is deactivated", roleID)
	}
	return role, nil
}

// ListManaged lists direct reports, or the whole report chain (breadth first)
// when transitive is requested and allowed by policy.
func (s *iamService) ListManaged(ctx context.Context, actorID string, transitive bool) ([]models.Admin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	admins := s.store.Repositories().Admins
	if _, err := admins.GetByID(ctx, actorID); err != nil {
		return nil, fmt.Errorf("list managed: %w", err)
	}

	if !transitive || !s.cfg.TransitiveVisibility {
		return admins.ListByManager(ctx, actorID)
	}

	var out []models.Admin
	seen := map[string]bool{actorID: true}
	queue := []string{actorID}
	for len(queue) > 0 {
		managerID := queue[0]
		queue = queue[1:]
		reports, err := admins.ListByManager(ctx, managerID)
		if err != nil {
			return nil, fmt.Errorf("list managed: %w", err)
		}
		for _, r := range reports {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
			queue = append(queue, r.ID)
		}
	}
	return out, nil
}

// ReassignManager moves principalID under newManagerID. The acyclicity check
// runs before the level check so a descendant is reported as a cycle.
func (s *iamService) ReassignManager(ctx context.Context, actorID, principalID, newManagerID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if newManagerID == "" {
		return fmt.Errorf("reassign manager: %w", rbac.Newf(rbac.ErrHierarchyViolation, "only the bootstrap principal may be a root"))
	}

	var affected []string
	err := s.runInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		_, ac, err := loadActor(ctx, repos, actorID, false)
		if err != nil {
			return err
		}
		if err := requireActive(ac); err != nil {
			return err
		}
		if !s.evaluator.CanManageUsers(ac) {
			return rbac.Newf(rbac.ErrCapabilityDenied, "%s may not manage users", actorID)
		}

		principal, pac, err := loadActor(ctx, repos, principalID, true)
		if err != nil {
			return err
		}
		if !rbac.CanManagePrincipal(ac, pac) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "%s cannot manage %s", ac, pac)
		}
		oldManagerID := principal.Manager()
		if oldManagerID == newManagerID {
			return nil
		}

		newManager, mac, err := loadActor(ctx, repos, newManagerID, true)
		if err != nil {
			return err
		}
		if newManager.ID != actorID && !rbac.CanManagePrincipal(ac, mac) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "%s cannot place reports under %s", ac, mac)
		}

		total, err := repos.Admins.Count(ctx)
		if err != nil {
			return err
		}
		if err := rbac.CheckNoCycle(principalID, newManagerID, total, func(id string) (string, error) {
			return repos.Admins.GetManagerID(ctx, id)
		}); err != nil {
			return err
		}
		if !rbac.CanManage(mac.Level(), pac.Level()) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "%s does not outrank %s", mac, pac)
		}
		if newManager.CreatedSubUsersCount >= newManager.MaxSubUsers {
			return rbac.Newf(rbac.ErrQuotaExceeded, "%s manages %d of %d sub-users", newManagerID, newManager.CreatedSubUsersCount, newManager.MaxSubUsers)
		}

		if oldManagerID != "" {
			oldManager, err := repos.Admins.GetByIDForUpdate(ctx, oldManagerID)
			if err != nil {
				return fmt.Errorf("load previous manager: %w", err)
			}
			if oldManager.CreatedSubUsersCount > 0 {
				oldManager.CreatedSubUsersCount--
			}
			if err := repos.Admins.Update(ctx, oldManager); err != nil {
				return err
			}
		}

		before := *principal
		principal.ManagerID = &newManagerID
		if err := repos.Admins.Update(ctx, principal); err != nil {
			return err
		}
		newManager.CreatedSubUsersCount++
		if err := repos.Admins.Update(ctx, newManager); err != nil {
			return err
		}

		affected = []string{principalID, oldManagerID, newManagerID}
		return s.record(ctx, repos, audit.Event{
			ActorID:    actorID,
			Action:     audit.ActionAdminReassign,
			TargetType: audit.TargetAdmin,
			TargetID:   principalID,
			Before:     &before,
			After:      principal,
		})
	})
	s.metrics.RecordMutation("reassign_manager", err)
	if err != nil {
		return fmt.Errorf("reassign manager: %w", err)
	}

	if len(affected) > 0 {
		s.cache.Invalidate(affected...)
		s.logger.WithFields(logrus.Fields{
			"actor_id":     actorID,
			"principal_id": principalID,
			"manager_id":   newManagerID,
		}).Info("reassigned manager")
	}
	return nil
}

// AssignRole changes principalID's role. The actor must outrank both the
// principal and the new role, the principal's manager must still outrank it,
// and it must still outrank its own reports.
func (s *iamService) AssignRole(ctx context.Context, actorID, principalID, roleID string) (*models.Admin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var principal *models.Admin
	changed := false
	err := s.runInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		_, ac, err := loadActor(ctx, repos, actorID, false)
		if err != nil {
			return err
		}
		if err := requireActive(ac); err != nil {
			return err
		}
		if !s.evaluator.CanManageUsers(ac) {
			return rbac.Newf(rbac.ErrCapabilityDenied, "%s may not manage users", actorID)
		}

		var pac rbac.AuthContext
		principal, pac, err = loadActor(ctx, repos, principalID, true)
		if err != nil {
			return err
		}
		if !rbac.CanManagePrincipal(ac, pac) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "%s cannot manage %s", ac, pac)
		}

		role, err := activeRole(ctx, repos, roleID)
		if err != nil {
			return err
		}
		newLevel := rbac.Level(role.Level)
		if !rbac.CanAssignRole(ac.Level(), newLevel) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "level %d cannot assign role %s at level %d", ac.Level(), roleID, role.Level)
		}
		if principal.RoleID == roleID {
			return nil
		}

		if managerID := principal.Manager(); managerID != "" {
			_, mac, err := loadActor(ctx, repos, managerID, false)
			if err != nil {
				return err
			}
			if !rbac.CanManage(mac.Level(), newLevel) {
				return rbac.Newf(rbac.ErrHierarchyViolation, "manager %s would no longer outrank role %s", mac, roleID)
			}
		}
		reports, err := repos.Admins.ListByManager(ctx, principalID)
		if err != nil {
			return err
		}
		for i := range reports {
			reportRole, err := loadRole(ctx, repos, reports[i].RoleID)
			if err != nil {
				return err
			}
			if !rbac.CanManage(newLevel, reports[i].AuthContext(reportRole).Level()) {
				return rbac.Newf(rbac.ErrHierarchyViolation, "role %s would not outrank report %s", roleID, reports[i].ID)
			}
		}

		before := *principal
		if principal.Status != string(rbac.StatusInactive) {
			if err := repos.Roles.AdjustAssignedCount(ctx, principal.RoleID, -1); err != nil {
				return err
			}
			if err := repos.Roles.AdjustAssignedCount(ctx, role.ID, 1); err != nil {
				return err
			}
		}
		principal.RoleID = role.ID
		principal.AccessLevel = role.AccessLevel
		if err := repos.Admins.Update(ctx, principal); err != nil {
			return err
		}
		changed = true
		return s.record(ctx, repos, audit.Event{
			ActorID:    actorID,
			Action:     audit.ActionAdminAssignRole,
			TargetType: audit.TargetAdmin,
			TargetID:   principalID,
			Before:     &before,
			After:      principal,
		})
	})
	s.metrics.RecordMutation("assign_role", err)
	if err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}

	if changed {
		s.cache.Invalidate(principalID)
		s.logger.WithFields(logrus.Fields{"actor_id": actorID, "principal_id": principalID, "role_id": roleID}).Info("assigned role")
	}
	return principal, nil
}

// SetStatus changes principalID's status. The role usage counter tracks
// principals that are not inactive.
func (s *iamService) SetStatus(ctx context.Context, actorID, principalID string, status rbac.Status) (*models.Admin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := rbac.ParseStatus(string(status)); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	var principal *models.Admin
	changed := false
	err := s.runInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		_, ac, err := loadActor(ctx, repos, actorID, false)
		if err != nil {
			return err
		}
		if err := requireActive(ac); err != nil {
			return err
		}
		if !s.evaluator.CanManageUsers(ac) {
			return rbac.Newf(rbac.ErrCapabilityDenied, "%s may not manage users", actorID)
		}

		var pac rbac.AuthContext
		principal, pac, err = loadActor(ctx, repos, principalID, true)
		if err != nil {
			return err
		}
		if !rbac.CanManagePrincipal(ac, pac) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "%s cannot manage %s", ac, pac)
		}
		if principal.Status == string(status) {
			return nil
		}

		before := *principal
		wasCounted := principal.Status != string(rbac.StatusInactive)
		counted := status != rbac.StatusInactive
		switch {
		case !wasCounted && counted:
			if _, err := activeRole(ctx, repos, principal.RoleID); err != nil {
				return err
			}
			if err := repos.Roles.AdjustAssignedCount(ctx, principal.RoleID, 1); err != nil {
				return err
			}
			principal.DeactivatedAt = nil
		case wasCounted && !counted:
			if err := repos.Roles.AdjustAssignedCount(ctx, principal.RoleID, -1); err != nil {
				return err
			}
			now := s.now()
			principal.DeactivatedAt = &now
		}
		principal.Status = string(status)
		if err := repos.Admins.Update(ctx, principal); err != nil {
			return err
		}
		changed = true
		return s.record(ctx, repos, audit.Event{
			ActorID:    actorID,
			Action:     audit.ActionAdminStatus,
			TargetType: audit.TargetAdmin,
			TargetID:   principalID,
			Before:     &before,
			After:      principal,
		})
	})
	s.metrics.RecordMutation("set_status", err)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	if changed {
		s.cache.Invalidate(principalID)
		s.logger.WithFields(logrus.Fields{"actor_id": actorID, "principal_id": principalID, "status": status}).Info("changed principal status")
	}
	return principal, nil
}

// DeactivatePrincipal sets status inactive.
func (s *iamService) DeactivatePrincipal(ctx context.Context, actorID, principalID string) (*models.Admin, error) {
	return s.SetStatus(ctx, actorID, principalID, rbac.StatusInactive)
}

// ValidateNoCycle walks the stored manager chain above proposedManagerID.
func (s *iamService) ValidateNoCycle(ctx context.Context, principalID, proposedManagerID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	admins := s.store.Repositories().Admins
	total, err := admins.Count(ctx)
	if err != nil {
		return err
	}
	return rbac.CheckNoCycle(principalID, proposedManagerID, total, func(id string) (string, error) {
		return admins.GetManagerID(ctx, id)
	})
}

// ReconcileSubordinateCount reports counter drift for one manager.
func (s *iamService) ReconcileSubordinateCount(ctx context.Context, managerID string) (*ReconcileReport, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return reconcile(ctx, s.store.Repositories().Admins, managerID)
}

func reconcile(ctx context.Context, admins repository.AdminRepository, managerID string) (*ReconcileReport, error) {
	manager, err := admins.GetByID(ctx, managerID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", managerID, err)
	}
	actual, err := admins.CountByManager(ctx, managerID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", managerID, err)
	}
	return &ReconcileReport{
		ManagerID: managerID,
		Recorded:  manager.CreatedSubUsersCount,
		Actual:    actual,
	}, nil
}

// ReconcileAll reconciles every manager concurrently. Reports are ordered by
// manager id.
func (s *iamService) ReconcileAll(ctx context.Context) ([]ReconcileReport, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	admins := s.store.Repositories().Admins
	ids, err := admins.ListManagerIDs(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]ReconcileReport, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			report, err := reconcile(gctx, admins, id)
			if err != nil {
				return err
			}
			reports[i] = *report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].ManagerID < reports[j].ManagerID })
	for _, r := range reports {
		if r.Drift() != 0 {
			s.logger.WithFields(logrus.Fields{
				"manager_id": r.ManagerID,
				"recorded":   r.Recorded,
				"actual":     r.Actual,
			}).Warn("subordinate counter drift")
		}
	}
	return reports, nil
}
