package iam

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/quicklinkpay/admin-iam/internal/audit"
	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/repository"
)

// RoleDefinition describes a custom role to create.
type RoleDefinition struct {
	ID          string `validate:"required,max=64,excludesall= /:"`
	Name        string `validate:"required,max=128"`
	Description string `validate:"max=512"`
	Level       rbac.Level
	// AccessLevel defaults to custom.
	AccessLevel       rbac.AccessLevel
	ParentRoleID      string
	CanCreateSubRoles bool
	CanManageUsers    bool
	Permissions       rbac.PermissionMatrix
}

// RolePatch lists the fields UpdateRole may change. Nil fields are left alone.
type RolePatch struct {
	Name              *string
	Description       *string
	Level             *rbac.Level
	Permissions       rbac.PermissionMatrix
	CanCreateSubRoles *bool
	CanManageUsers    *bool
	// ParentRoleID set to "" clears the parent.
	ParentRoleID *string
	// ExpectedVersion, when nonzero, must equal the stored version.
	ExpectedVersion int
}

// SeedResult reports what SeedSystemRoles did.
type SeedResult struct {
	AlreadySeeded bool
	Created       []string
}

// =========================================================================
// Role Store
// =========================================================================

// CreateRole creates a custom role after capability, shape and hierarchy checks.
func (s *iamService) CreateRole(ctx context.Context, actorID string, def RoleDefinition) (*models.Role, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.validate.Struct(def); err != nil {
		return nil, fmt.Errorf("create role: %w", invalidInput(err))
	}
	if rbac.IsSystemRoleID(def.ID) {
		return nil, fmt.Errorf("create role: %w", rbac.Newf(rbac.ErrDuplicateID, "role id %s is reserved", def.ID))
	}
	if def.AccessLevel == "" {
		def.AccessLevel = rbac.AccessCustom
	}

	var created *models.Role
	err := s.runInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		_, ac, err := loadActor(ctx, repos, actorID, false)
		if err != nil {
			return err
		}
		if err := requireActive(ac); err != nil {
			return err
		}
		if !s.evaluator.Can(ac, rbac.ResourceRoleManagement, rbac.ActionCreate) ||
			!(ac.IsSuperAdmin() || ac.Role.CanCreateSubRoles) {
			return rbac.Newf(rbac.ErrCapabilityDenied, "%s may not create roles", actorID)
		}

		if err := rbac.ValidateCustomLevel(def.Level); err != nil {
			return err
		}
		if err := rbac.ValidateCustomAccessLevel(def.AccessLevel); err != nil {
			return err
		}
		if err := def.Permissions.Validate(); err != nil {
			return err
		}
		if !rbac.CanAssignRole(ac.Level(), def.Level) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "level %d cannot create a role at level %d", ac.Level(), def.Level)
		}

		role := &models.Role{
			ID:                def.ID,
			Name:              def.Name,
			Description:       def.Description,
			Level:             int(def.Level),
			AccessLevel:       string(def.AccessLevel),
			IsCustomRole:      true,
			CanCreateSubRoles: def.CanCreateSubRoles,
			CanManageUsers:    def.CanManageUsers,
			Permissions:       models.MatrixFromRBAC(def.Permissions),
			IsActive:          true,
			CreatedBy:         actorID,
		}
		if def.ParentRoleID != "" {
			if def.ParentRoleID == def.ID {
				return rbac.Newf(rbac.ErrCycleDetected, "role %s cannot be its own parent", def.ID)
			}
			if _, err := repos.Roles.GetByID(ctx, def.ParentRoleID); err != nil {
				return fmt.Errorf("load parent role: %w", err)
			}
			parent := def.ParentRoleID
			role.ParentRoleID = &parent
		}

		if err := repos.Roles.Create(ctx, role); err != nil {
			return err
		}
		if err := s.record(ctx, repos, audit.Event{
			ActorID:    actorID,
			Action:     audit.ActionRoleCreate,
			TargetType: audit.TargetRole,
			TargetID:   role.ID,
			After:      role,
		}); err != nil {
			return err
		}
		created = role
		return nil
	})
	s.metrics.RecordMutation("create_role", err)
	if err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}

	s.rolesChanged()
	s.logger.WithFields(logrus.Fields{"actor_id": actorID, "role_id": created.ID, "level": created.Level}).Info("created role")
	return created, nil
}

// GetRole retrieves a role by id.
func (s *iamService) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Repositories().Roles.GetByID(ctx, roleID)
}

// UpdateRole patches a custom role inside one versioned transaction.
func (s *iamService) UpdateRole(ctx context.Context, actorID, roleID string, patch RolePatch) (*models.Role, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if rbac.IsSystemRoleID(roleID) {
		return nil, fmt.Errorf("update role: %w", rbac.Newf(rbac.ErrSystemRoleImmutable, "role %s", roleID))
	}

	var updated *models.Role
	err := s.runInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		role, err := repos.Roles.GetByIDForUpdate(ctx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystemRole {
			return rbac.Newf(rbac.ErrSystemRoleImmutable, "role %s", roleID)
		}

		_, ac, err := loadActor(ctx, repos, actorID, false)
		if err != nil {
			return err
		}
		if err := requireActive(ac); err != nil {
			return err
		}
		if !s.evaluator.Can(ac, rbac.ResourceRoleManagement, rbac.ActionUpdate) {
			return rbac.Newf(rbac.ErrCapabilityDenied, "%s may not update roles", actorID)
		}
		if !rbac.CanManage(ac.Level(), rbac.Level(role.Level)) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "level %d cannot change role %s at level %d", ac.Level(), roleID, role.Level)
		}
		if patch.ExpectedVersion != 0 && patch.ExpectedVersion != role.Version {
			return rbac.Newf(rbac.ErrVersionConflict, "role %s is at version %d, not %d", roleID, role.Version, patch.ExpectedVersion)
		}

		before := *role
		if err := s.applyRolePatch(ctx, repos, ac, role, patch); err != nil {
			return err
		}
		if err := repos.Roles.Update(ctx, role); err != nil {
			return err
		}
		if err := s.record(ctx, repos, audit.Event{
			ActorID:    actorID,
			Action:     audit.ActionRoleUpdate,
			TargetType: audit.TargetRole,
			TargetID:   role.ID,
			Before:     &before,
			After:      role,
		}); err != nil {
			return err
		}
		updated = role
		return nil
	})
	s.metrics.RecordMutation("update_role", err)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.rolesChanged()
	s.logger.WithFields(logrus.Fields{"actor_id": actorID, "role_id": roleID, "version": updated.Version}).Info("updated role")
	return updated, nil
}

// applyRolePatch validates and applies patch. It replaces maps instead of
// mutating them so a copy taken beforehand stays intact.
func (s *iamService) applyRolePatch(ctx context.Context, repos repository.Repositories, ac rbac.AuthContext, role *models.Role, patch RolePatch) error {
	if patch.Name != nil {
		if *patch.Name == "" {
			return rbac.Newf(rbac.ErrInvalidDefinition, "role name cannot be empty")
		}
		role.Name = *patch.Name
	}
	if patch.Description != nil {
		role.Description = *patch.Description
	}
	if patch.Level != nil {
		if err := rbac.ValidateCustomLevel(*patch.Level); err != nil {
			return err
		}
		if !rbac.CanAssignRole(ac.Level(), *patch.Level) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "level %d cannot move a role to level %d", ac.Level(), *patch.Level)
		}
		if int(*patch.Level) != role.Level {
			if err := checkHolderLevels(ctx, repos, role.ID, *patch.Level); err != nil {
				return err
			}
		}
		role.Level = int(*patch.Level)
	}
	if patch.Permissions != nil {
		if err := patch.Permissions.Validate(); err != nil {
			return err
		}
		role.Permissions = models.MatrixFromRBAC(patch.Permissions)
	}
	if patch.CanCreateSubRoles != nil {
		role.CanCreateSubRoles = *patch.CanCreateSubRoles
	}
	if patch.CanManageUsers != nil {
		role.CanManageUsers = *patch.CanManageUsers
	}
	if patch.ParentRoleID != nil {
		parent := *patch.ParentRoleID
		if parent == "" {
			role.ParentRoleID = nil
			return nil
		}
		if err := s.checkRoleLineage(ctx, repos, role.ID, parent); err != nil {
			return err
		}
		role.ParentRoleID = &parent
	}
	return nil
}

// checkHolderLevels rejects moving roleID to level unless every holder would
// still sit strictly below its manager and strictly above its reports.
func checkHolderLevels(ctx context.Context, repos repository.Repositories, roleID string, level rbac.Level) error {
	holders, err := repos.Admins.ListByRole(ctx, roleID)
	if err != nil {
		return err
	}
	for i := range holders {
		holder := &holders[i]
		if managerID := holder.Manager(); managerID != "" {
			_, mac, err := loadActor(ctx, repos, managerID, false)
			if err != nil {
				return err
			}
			if !rbac.CanManage(mac.Level(), level) {
				return rbac.Newf(rbac.ErrHierarchyViolation, "manager %s would no longer outrank %s at level %d", mac, holder.ID, level)
			}
		}

		reports, err := repos.Admins.ListByManager(ctx, holder.ID)
		if err != nil {
			return err
		}
		for j := range reports {
			reportRole, err := loadRole(ctx, repos, reports[j].RoleID)
			if err != nil {
				return err
			}
			if !rbac.CanManage(level, reports[j].AuthContext(reportRole).Level()) {
				return rbac.Newf(rbac.ErrHierarchyViolation, "%s at level %d would not outrank report %s", holder.ID, level, reports[j].ID)
			}
		}
	}
	return nil
}

// checkRoleLineage rejects a parent assignment that would make roleID its own ancestor.
func (s *iamService) checkRoleLineage(ctx context.Context, repos repository.Repositories, roleID, parentID string) error {
	roles, err := repos.Roles.List(ctx, true)
	if err != nil {
		return err
	}
	parents := make(map[string]string, len(roles))
	for i := range roles {
		parents[roles[i].ID] = roles[i].ParentID()
	}
	if _, ok := parents[parentID]; !ok {
		return rbac.Newf(rbac.ErrNotFound, "parent role %s", parentID)
	}
	return rbac.CheckNoCycle(roleID, parentID, len(roles), func(id string) (string, error) {
		return parents[id], nil
	})
}

// DeleteRole soft-deletes a custom role that no active principal holds.
func (s *iamService) DeleteRole(ctx context.Context, actorID, roleID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if rbac.IsSystemRoleID(roleID) {
		return fmt.Errorf("delete role: %w", rbac.Newf(rbac.ErrSystemRoleImmutable, "role %s", roleID))
	}

	changed := false
	err := s.runInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		role, err := repos.Roles.GetByIDForUpdate(ctx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystemRole {
			return rbac.Newf(rbac.ErrSystemRoleImmutable, "role %s", roleID)
		}

		_, ac, err := loadActor(ctx, repos, actorID, false)
		if err != nil {
			return err
		}
		if err := requireActive(ac); err != nil {
			return err
		}
		if !s.evaluator.Can(ac, rbac.ResourceRoleManagement, rbac.ActionDelete) {
			return rbac.Newf(rbac.ErrCapabilityDenied, "%s may not delete roles", actorID)
		}
		if !rbac.CanManage(ac.Level(), rbac.Level(role.Level)) {
			return rbac.Newf(rbac.ErrHierarchyViolation, "level %d cannot delete role %s at level %d", ac.Level(), roleID, role.Level)
		}
		if !role.IsActive {
			return nil
		}
		if role.AssignedUsersCount > 0 {
			return rbac.Newf(rbac.ErrRoleInUse, "role %s is held by %d active principals", roleID, role.AssignedUsersCount)
		}

		before := *role
		now := s.now()
		role.IsActive = false
		role.DeactivatedAt = &now
		if err := repos.Roles.Update(ctx, role); err != nil {
			return err
		}
		changed = true
		return s.record(ctx, repos, audit.Event{
			ActorID:    actorID,
			Action:     audit.ActionRoleDeactivate,
			TargetType: audit.TargetRole,
			TargetID:   roleID,
			Before:     &before,
			After:      role,
		})
	})
	s.metrics.RecordMutation("delete_role", err)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	if changed {
		s.rolesChanged()
		s.logger.WithFields(logrus.Fields{"actor_id": actorID, "role_id": roleID}).Info("deactivated role")
	}
	return nil
}

// ListRoles returns the roles matching filter.
func (s *iamService) ListRoles(ctx context.Context, filter RoleFilter) ([]models.Role, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	matcher, err := compileRoleFilter(filter)
	if err != nil {
		return nil, err
	}
	roles, err := s.store.Repositories().Roles.List(ctx, filter.IncludeInactive)
	if err != nil {
		return nil, err
	}

	out := make([]models.Role, 0, len(roles))
	for i := range roles {
		ok, err := matcher.match(&roles[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, roles[i])
		}
	}
	return out, nil
}

// =========================================================================
// Bootstrap
// =========================================================================

// SeedSystemRoles writes the system roles in one transaction unless any exists.
func (s *iamService) SeedSystemRoles(ctx context.Context) (*SeedResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result := &SeedResult{}
	err := s.runInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		count, err := repos.Roles.CountSystemRoles(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			result.AlreadySeeded = true
			return nil
		}

		for _, sys := range rbac.SystemRoles() {
			role := &models.Role{
				ID:                sys.ID,
				Name:              sys.Name,
				Description:       sys.Description,
				Level:             int(sys.Level),
				AccessLevel:       string(sys.AccessLevel),
				IsSystemRole:      true,
				CanCreateSubRoles: sys.CanCreateSubRoles,
				CanManageUsers:    sys.CanManageUsers,
				Permissions:       models.MatrixFromRBAC(sys.Permissions),
				IsActive:          true,
				CreatedBy:         SystemActor,
			}
			if err := repos.Roles.Create(ctx, role); err != nil {
				return err
			}
			if err := s.record(ctx, repos, audit.Event{
				ActorID:    SystemActor,
				Action:     audit.ActionRoleSeed,
				TargetType: audit.TargetRole,
				TargetID:   role.ID,
				After:      role,
			}); err != nil {
				return err
			}
			result.Created = append(result.Created, role.ID)
		}
		return nil
	})
	s.metrics.RecordMutation("seed_system_roles", err)
	if err != nil {
		return nil, fmt.Errorf("seed system roles: %w", err)
	}

	if result.AlreadySeeded {
		s.logger.Info("system roles already seeded")
		return result, nil
	}
	s.rolesChanged()
	s.logger.WithField("roles", len(result.Created)).Info("seeded system roles")
	return result, nil
}

// BootstrapSuperAdmin creates the root principal with the super_admin role.
func (s *iamService) BootstrapSuperAdmin(ctx context.Context, email, displayName string) (*models.Admin, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, false, fmt.Errorf("bootstrap super admin: email: %w", invalidInput(err))
	}

	var (
		admin   *models.Admin
		created bool
	)
	err := s.runInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		count, err := repos.Admins.Count(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			existing, err := repos.Admins.GetByEmail(ctx, email)
			if err == nil {
				admin = existing
			}
			return nil
		}

		role, err := repos.Roles.GetByID(ctx, rbac.RoleSuperAdmin)
		if err != nil {
			return fmt.Errorf("system roles must be seeded first: %w", err)
		}
		admin = &models.Admin{
			Email:             email,
			DisplayName:       displayName,
			RoleID:            role.ID,
			AccessLevel:       role.AccessLevel,
			CanCreateSubUsers: true,
			MaxSubUsers:       s.cfg.DefaultMaxSubUsers,
			Status:            string(rbac.StatusActive),
		}
		if err := repos.Admins.Create(ctx, admin); err != nil {
			return err
		}
		if err := repos.Roles.AdjustAssignedCount(ctx, role.ID, 1); err != nil {
			return err
		}
		created = true
		return s.record(ctx, repos, audit.Event{
			ActorID:    SystemActor,
			Action:     audit.ActionAdminCreate,
			TargetType: audit.TargetAdmin,
			TargetID:   admin.ID,
			After:      admin,
		})
	})
	s.metrics.RecordMutation("bootstrap_super_admin", err)
	if err != nil {
		return nil, false, fmt.Errorf("bootstrap super admin: %w", err)
	}

	if created {
		s.logger.WithFields(logrus.Fields{"principal_id": admin.ID, "email": email}).Info("created root super admin")
	}
	return admin, created, nil
}
