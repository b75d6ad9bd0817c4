package iam

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

func TestCreateSubordinate_QuotaAndCounters(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	root := env.bootstrap(t)

	ops := env.createSub(t, root.ID, "ops@quicklinkpay.test", rbac.RoleOpsAdmin, 1)
	assert.Equal(t, root.ID, ops.Manager())
	assert.Equal(t, string(rbac.AccessAdmin), ops.AccessLevel)
	assert.Equal(t, 1, env.reload(t, root.ID).CreatedSubUsersCount)

	first := env.createSub(t, ops.ID, "support-1@quicklinkpay.test", rbac.RoleSupportAdmin, 0)
	assert.Equal(t, ops.ID, first.Manager())

	_, err := env.svc.CreateSubordinate(ctx, ops.ID, SubordinateDraft{
		Email:  "support-2@quicklinkpay.test",
		RoleID: rbac.RoleSupportAdmin,
	})
	require.ErrorIs(t, err, rbac.ErrQuotaExceeded)
	assert.False(t, rbac.Retryable(err))
	assert.NotEmpty(t, rbac.HintFor(err))

	stored := env.reload(t, ops.ID)
	assert.Equal(t, stored.MaxSubUsers, stored.CreatedSubUsersCount)
	assert.Equal(t, 1, env.role(t, rbac.RoleSupportAdmin).AssignedUsersCount)

	_, err = env.svc.GetAdminByEmail(ctx, "support-2@quicklinkpay.test")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestCreateSubordinate_CheckOrder(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	root := env.bootstrap(t)
	ops := env.createSub(t, root.ID, "ops@quicklinkpay.test", rbac.RoleOpsAdmin, 3)
	analyst := env.createSub(t, ops.ID, "analyst@quicklinkpay.test", rbac.RoleAnalyst, 3)

	restricted, err := env.svc.CreateSubordinate(ctx, root.ID, SubordinateDraft{
		Email:  "restricted@quicklinkpay.test",
		RoleID: rbac.RoleOpsAdmin,
	})
	require.NoError(t, err)
	assert.False(t, restricted.CanCreateSubUsers)
	assert.Equal(t, 5, restricted.MaxSubUsers, "default quota")

	full := env.createSub(t, root.ID, "full@quicklinkpay.test", rbac.RoleOpsAdmin, 0)

	tests := []struct {
		name    string
		actorID string
		roleID  string
		wantErr error
	}{
		{name: "role without user management", actorID: analyst.ID, roleID: rbac.RoleViewer, wantErr: rbac.ErrCapabilityDenied},
		{name: "principal flag restricts the role", actorID: restricted.ID, roleID: rbac.RoleViewer, wantErr: rbac.ErrCapabilityDenied},
		{name: "higher role", actorID: ops.ID, roleID: rbac.RoleSystemAdmin, wantErr: rbac.ErrHierarchyViolation},
		{name: "equal role", actorID: ops.ID, roleID: rbac.RoleOpsAdmin, wantErr: rbac.ErrHierarchyViolation},
		{name: "hierarchy before quota", actorID: full.ID, roleID: rbac.RoleSystemAdmin, wantErr: rbac.ErrHierarchyViolation},
		{name: "quota", actorID: full.ID, roleID: rbac.RoleViewer, wantErr: rbac.ErrQuotaExceeded},
		{name: "unknown role", actorID: ops.ID, roleID: "ghost", wantErr: rbac.ErrNotFound},
		{name: "unknown actor", actorID: "ghost", roleID: rbac.RoleViewer, wantErr: rbac.ErrNotFound},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateSubordinate(ctx, tt.actorID, SubordinateDraft{
				Email:  fmt.Sprintf("case-%d@quicklinkpay.test", i),
				RoleID: tt.roleID,
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("duplicate email", func(t *testing.T) {
		_, err := env.svc.CreateSubordinate(ctx, ops.ID, SubordinateDraft{
			Email:  "analyst@quicklinkpay.test",
			RoleID: rbac.RoleViewer,
		})
		assert.ErrorIs(t, err, rbac.ErrDuplicateID)
		assert.Equal(t, 1, env.reload(t, ops.ID).CreatedSubUsersCount)
	})

	t.Run("invalid draft", func(t *testing.T) {
		negative := -1
		_, err := env.svc.CreateSubordinate(ctx, ops.ID, SubordinateDraft{
			Email:       "negative@quicklinkpay.test",
			RoleID:      rbac.RoleViewer,
			MaxSubUsers: &negative,
		})
		require.ErrorIs(t, err, rbac.ErrInvalidDefinition)

		_, err = env.svc.CreateSubordinate(ctx, ops.ID, SubordinateDraft{Email: "nope", RoleID: rbac.RoleViewer})
		require.ErrorIs(t, err, rbac.ErrInvalidDefinition)
		assert.False(t, rbac.Retryable(err))
	})
}

func TestCreateSubordinate_ConcurrentQuota(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	root := env.bootstrap(t)
	ops := env.createSub(t, root.ID, "ops@quicklinkpay.test", rbac.RoleOpsAdmin, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.CreateSubordinate(ctx, ops.ID, SubordinateDraft{
				Email:  fmt.Sprintf("racer-%d@quicklinkpay.test", i),
				RoleID: rbac.RoleAnalyst,
			})
		}(i)
	}
	wg.Wait()

	var ok, quota int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, rbac.ErrQuotaExceeded):
			quota++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, quota)

	assert.Equal(t, 1, env.reload(t, ops.ID).CreatedSubUsersCount)
	report, err := env.svc.ReconcileSubordinateCount(ctx, ops.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Drift())
	assert.Equal(t, 1, env.role(t, rbac.RoleAnalyst).AssignedUsersCount)
}

// hierarchy builds root -> sys -> ops -> analyst, plus fin and sys2 under root.
type hierarchy struct {
	root, sys, ops, analyst, fin, sys2 *models.Admin
}

func buildHierarchy(t *testing.T, env *testEnv) hierarchy {
	t.Helper()
	var h hierarchy
	h.root = env.bootstrap(t)
	h.sys = env.createSub(t, h.root.ID, "sys@quicklinkpay.test", rbac.RoleSystemAdmin, 3)
	h.ops = env.createSub(t, h.sys.ID, "ops@quicklinkpay.test", rbac.RoleOpsAdmin, 3)
	h.analyst = env.createSub(t, h.ops.ID, "analyst@quicklinkpay.test", rbac.RoleAnalyst, 0)
	h.fin = env.createSub(t, h.root.ID, "fin@quicklinkpay.test", rbac.RoleFinanceAdmin, 2)
	h.sys2 = env.createSub(t, h.root.ID, "sys2@quicklinkpay.test", rbac.RoleSystemAdmin, 0)
	return h
}

func ids(admins []models.Admin) []string {
	out := make([]string, 0, len(admins))
	for _, a := range admins {
		out = append(out, a.Email)
	}
	return out
}

func TestListManaged(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	h := buildHierarchy(t, env)

	direct, err := env.svc.ListManaged(ctx, h.root.ID, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sys@quicklinkpay.test", "fin@quicklinkpay.test", "sys2@quicklinkpay.test"}, ids(direct))

	chain, err := env.svc.ListManaged(ctx, h.sys.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@quicklinkpay.test", "analyst@quicklinkpay.test"}, ids(chain))

	all, err := env.svc.ListManaged(ctx, h.root.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	cfg := testConfig()
	cfg.TransitiveVisibility = false
	restricted := env.newService(t, cfg)
	onlyDirect, err := restricted.ListManaged(ctx, h.sys.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@quicklinkpay.test"}, ids(onlyDirect))

	_, err = env.svc.ListManaged(ctx, "ghost", false)
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestReassignManager(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	h := buildHierarchy(t, env)

	t.Run("descendant is a cycle", func(t *testing.T) {
		err := env.svc.ReassignManager(ctx, h.root.ID, h.sys.ID, h.analyst.ID)
		assert.ErrorIs(t, err, rbac.ErrCycleDetected)

		err = env.svc.ReassignManager(ctx, h.root.ID, h.sys.ID, h.sys.ID)
		assert.ErrorIs(t, err, rbac.ErrCycleDetected)

		assert.ErrorIs(t, env.svc.ValidateNoCycle(ctx, h.sys.ID, h.ops.ID), rbac.ErrCycleDetected)
		assert.NoError(t, env.svc.ValidateNoCycle(ctx, h.analyst.ID, h.fin.ID))
	})

	t.Run("new manager must outrank the principal", func(t *testing.T) {
		err := env.svc.ReassignManager(ctx, h.root.ID, h.ops.ID, h.fin.ID)
		assert.ErrorIs(t, err, rbac.ErrHierarchyViolation)
	})

	t.Run("quota of the new manager", func(t *testing.T) {
		err := env.svc.ReassignManager(ctx, h.root.ID, h.analyst.ID, h.sys2.ID)
		assert.ErrorIs(t, err, rbac.ErrQuotaExceeded)
	})

	t.Run("actor without user management", func(t *testing.T) {
		err := env.svc.ReassignManager(ctx, h.analyst.ID, h.analyst.ID, h.fin.ID)
		assert.ErrorIs(t, err, rbac.ErrCapabilityDenied)
	})

	t.Run("actor must outrank the principal", func(t *testing.T) {
		err := env.svc.ReassignManager(ctx, h.ops.ID, h.sys.ID, h.root.ID)
		assert.ErrorIs(t, err, rbac.ErrHierarchyViolation)
	})

	t.Run("root cannot be reassigned to nobody", func(t *testing.T) {
		err := env.svc.ReassignManager(ctx, h.root.ID, h.analyst.ID, "")
		assert.ErrorIs(t, err, rbac.ErrHierarchyViolation)
	})

	t.Run("moves counters", func(t *testing.T) {
		require.NoError(t, env.svc.ReassignManager(ctx, h.sys.ID, h.analyst.ID, h.sys.ID))

		assert.Equal(t, h.sys.ID, env.reload(t, h.analyst.ID).Manager())
		assert.Equal(t, 0, env.reload(t, h.ops.ID).CreatedSubUsersCount)
		assert.Equal(t, 2, env.reload(t, h.sys.ID).CreatedSubUsersCount)

		// Same manager again is a no-op.
		require.NoError(t, env.svc.ReassignManager(ctx, h.sys.ID, h.analyst.ID, h.sys.ID))
		assert.Equal(t, 2, env.reload(t, h.sys.ID).CreatedSubUsersCount)
	})

	reports, err := env.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, reports)
	for _, r := range reports {
		assert.Equal(t, 0, r.Drift(), r.ManagerID)
	}
}

func TestAssignRole(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	h := buildHierarchy(t, env)

	t.Run("rewrites access level and usage", func(t *testing.T) {
		updated, err := env.svc.AssignRole(ctx, h.root.ID, h.analyst.ID, rbac.RoleViewer)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleViewer, updated.RoleID)
		assert.Equal(t, string(rbac.AccessReadOnly), updated.AccessLevel)
		assert.Equal(t, 0, env.role(t, rbac.RoleAnalyst).AssignedUsersCount)
		assert.Equal(t, 1, env.role(t, rbac.RoleViewer).AssignedUsersCount)
	})

	t.Run("actor cannot hand out a higher role", func(t *testing.T) {
		_, err := env.svc.AssignRole(ctx, h.ops.ID, h.analyst.ID, rbac.RoleSystemAdmin)
		assert.ErrorIs(t, err, rbac.ErrHierarchyViolation)
	})

	t.Run("manager must keep outranking the principal", func(t *testing.T) {
		_, err := env.svc.AssignRole(ctx, h.root.ID, h.analyst.ID, rbac.RoleSystemAdmin)
		assert.ErrorIs(t, err, rbac.ErrHierarchyViolation)
	})

	t.Run("principal must keep outranking its reports", func(t *testing.T) {
		_, err := env.svc.AssignRole(ctx, h.root.ID, h.ops.ID, rbac.RoleViewer)
		assert.ErrorIs(t, err, rbac.ErrHierarchyViolation)
		assert.Equal(t, rbac.RoleOpsAdmin, env.reload(t, h.ops.ID).RoleID)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := env.svc.AssignRole(ctx, h.root.ID, h.analyst.ID, "ghost")
		assert.ErrorIs(t, err, rbac.ErrNotFound)
	})
}

func TestSetStatus(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	h := buildHierarchy(t, env)

	suspended, err := env.svc.SetStatus(ctx, h.root.ID, h.ops.ID, rbac.StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, string(rbac.StatusSuspended), suspended.Status)
	assert.Nil(t, suspended.DeactivatedAt)
	assert.Equal(t, 1, env.role(t, rbac.RoleOpsAdmin).AssignedUsersCount)

	_, err = env.svc.CreateSubordinate(ctx, h.ops.ID, SubordinateDraft{Email: "x@quicklinkpay.test", RoleID: rbac.RoleViewer})
	assert.ErrorIs(t, err, rbac.ErrCapabilityDenied)
	_, err = env.svc.SetStatus(ctx, h.ops.ID, h.analyst.ID, rbac.StatusLocked)
	assert.ErrorIs(t, err, rbac.ErrCapabilityDenied)

	_, err = env.svc.SetStatus(ctx, h.root.ID, h.ops.ID, rbac.Status("banned"))
	assert.ErrorIs(t, err, rbac.ErrInvalidStatus)

	_, err = env.svc.SetStatus(ctx, h.root.ID, h.root.ID, rbac.StatusLocked)
	assert.ErrorIs(t, err, rbac.ErrHierarchyViolation)

	deactivated, err := env.svc.DeactivatePrincipal(ctx, h.root.ID, h.analyst.ID)
	require.NoError(t, err)
	assert.NotNil(t, deactivated.DeactivatedAt)
	assert.Equal(t, 0, env.role(t, rbac.RoleAnalyst).AssignedUsersCount)
	// Deactivation does not free the manager's quota.
	assert.Equal(t, 1, env.reload(t, h.ops.ID).CreatedSubUsersCount)

	reactivated, err := env.svc.SetStatus(ctx, h.root.ID, h.analyst.ID, rbac.StatusActive)
	require.NoError(t, err)
	assert.Nil(t, reactivated.DeactivatedAt)
	assert.Equal(t, 1, env.role(t, rbac.RoleAnalyst).AssignedUsersCount)
}

func TestReconcile_DetectsDrift(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	h := buildHierarchy(t, env)

	tampered := env.reload(t, h.ops.ID)
	tampered.CreatedSubUsersCount = 3
	require.NoError(t, env.store.Repositories().Admins.Update(ctx, tampered))

	report, err := env.svc.ReconcileSubordinateCount(ctx, h.ops.ID)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{ManagerID: h.ops.ID, Recorded: 3, Actual: 1}, *report)
	assert.Equal(t, 2, report.Drift())

	reports, err := env.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	drifted := 0
	for i, r := range reports {
		if i > 0 {
			assert.Less(t, reports[i-1].ManagerID, r.ManagerID)
		}
		if r.Drift() != 0 {
			drifted++
			assert.Equal(t, h.ops.ID, r.ManagerID)
		}
	}
	assert.Equal(t, 1, drifted)

	_, err = env.svc.ReconcileSubordinateCount(ctx, "ghost")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}
