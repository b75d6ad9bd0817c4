package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicklinkpay/admin-iam/internal/db/bunx"
	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/migrations"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/repository"
	"github.com/quicklinkpay/admin-iam/internal/telemetry"
)

const customRoleID = "payout-auditors"

type fixture struct {
	repos   repository.Repositories
	admins  map[string]*models.Admin
	roles   map[string]*models.Role
	metrics *telemetry.Metrics
}

// setupFixture seeds every system role, one custom role, and one principal per
// (role, status) pair used by the decision matrix.
func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := bunx.NewDB(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })
	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)

	f := &fixture{
		repos:   repository.NewBunStore(db).Repositories(),
		admins:  map[string]*models.Admin{},
		roles:   map[string]*models.Role{},
		metrics: telemetry.NewMetrics(prometheus.NewRegistry()),
	}

	for _, sys := range rbac.SystemRoles() {
		role := &models.Role{
			ID:           sys.ID,
			Name:         sys.Name,
			Level:        int(sys.Level),
			AccessLevel:  string(sys.AccessLevel),
			IsSystemRole: true,
			Permissions:  models.MatrixFromRBAC(sys.Permissions),
			IsActive:     true,
		}
		require.NoError(t, f.repos.Roles.Create(ctx, role))
		f.roles[role.ID] = role
	}
	custom := &models.Role{
		ID:           customRoleID,
		Name:         "Payout Auditors",
		Level:        45,
		AccessLevel:  string(rbac.AccessCustom),
		IsCustomRole: true,
		Permissions: models.MatrixFromRBAC(rbac.NewMatrix(
			rbac.Permission{Resource: rbac.ResourcePayoutManagement, Action: rbac.ActionRead},
			rbac.Permission{Resource: rbac.ResourcePayoutManagement, Action: rbac.ActionExport},
		)),
		IsActive: true,
	}
	require.NoError(t, f.repos.Roles.Create(ctx, custom))
	f.roles[custom.ID] = custom

	principals := []struct {
		key    string
		roleID string
		status rbac.Status
	}{
		{"root", rbac.RoleSuperAdmin, rbac.StatusActive},
		{"root-suspended", rbac.RoleSuperAdmin, rbac.StatusSuspended},
		{"sys", rbac.RoleSystemAdmin, rbac.StatusActive},
		{"sys-locked", rbac.RoleSystemAdmin, rbac.StatusLocked},
		{"ops", rbac.RoleOpsAdmin, rbac.StatusActive},
		{"finance", rbac.RoleFinanceAdmin, rbac.StatusActive},
		{"compliance", rbac.RoleComplianceAdmin, rbac.StatusActive},
		{"compliance-inactive", rbac.RoleComplianceAdmin, rbac.StatusInactive},
		{"support", rbac.RoleSupportAdmin, rbac.StatusActive},
		{"merchant", rbac.RoleMerchantManager, rbac.StatusActive},
		{"analyst", rbac.RoleAnalyst, rbac.StatusActive},
		{"analyst-suspended", rbac.RoleAnalyst, rbac.StatusSuspended},
		{"viewer", rbac.RoleViewer, rbac.StatusActive},
		{"custom", customRoleID, rbac.StatusActive},
	}
	for _, p := range principals {
		admin := &models.Admin{
			Email:       p.key + "@quicklinkpay.test",
			RoleID:      p.roleID,
			AccessLevel: f.roles[p.roleID].AccessLevel,
			Status:      string(p.status),
		}
		require.NoError(t, f.repos.Admins.Create(ctx, admin))
		f.admins[p.key] = admin
	}
	return f
}

func (f *fixture) enforcer(t *testing.T) *Enforcer {
	t.Helper()
	e, err := NewEnforcer(EnforcerDependencies{Repositories: f.repos, Metrics: f.metrics}, 0)
	require.NoError(t, err)
	return e
}

var decisionMatrix = []struct {
	principal string
	resource  rbac.Resource
	action    rbac.Action
	want      bool
}{
	{"root", rbac.ResourceSystemSettings, rbac.ActionDelete, true},
	{"root-suspended", rbac.ResourceAuditLogs, rbac.ActionExport, true},
	{"sys", rbac.ResourceRoleManagement, rbac.ActionCreate, true},
	{"sys-locked", rbac.ResourceDashboard, rbac.ActionRead, false},
	{"ops", rbac.ResourcePayoutManagement, rbac.ActionApprove, true},
	{"ops", rbac.ResourcePayoutManagement, rbac.ActionDelete, false},
	{"ops", rbac.ResourceUserManagement, rbac.ActionCreate, true},
	{"finance", rbac.ResourceTransactionManagement, rbac.ActionApprove, true},
	{"finance", rbac.ResourceUserManagement, rbac.ActionRead, false},
	{"compliance", rbac.ResourceComplianceManagement, rbac.ActionExport, true},
	{"compliance-inactive", rbac.ResourceComplianceManagement, rbac.ActionRead, false},
	{"support", rbac.ResourceSupportManagement, rbac.ActionUpdate, true},
	{"support", rbac.ResourceUserManagement, rbac.ActionCreate, false},
	{"merchant", rbac.ResourceMerchantManagement, rbac.ActionCreate, true},
	{"merchant", rbac.ResourceMerchantManagement, rbac.ActionDelete, false},
	{"analyst", rbac.ResourceAnalytics, rbac.ActionExport, true},
	{"analyst-suspended", rbac.ResourceAnalytics, rbac.ActionRead, false},
	{"viewer", rbac.ResourceDashboard, rbac.ActionRead, true},
	{"viewer", rbac.ResourceSystemSettings, rbac.ActionUpdate, false},
	{"custom", rbac.ResourcePayoutManagement, rbac.ActionExport, true},
}

// TestEnforcer_ParityWithEvaluator runs the shared decision matrix through both
// the in-memory evaluator and the Casbin-backed enforcer.
func TestEnforcer_ParityWithEvaluator(t *testing.T) {
	f := setupFixture(t)
	enforcer := f.enforcer(t)
	evaluator := rbac.NewEvaluator()
	ctx := context.Background()

	require.Len(t, decisionMatrix, 20)
	for _, tc := range decisionMatrix {
		admin := f.admins[tc.principal]
		ac := admin.AuthContext(f.roles[admin.RoleID])

		client := evaluator.Can(ac, tc.resource, tc.action)
		server, err := enforcer.Decide(ctx, admin.ID, tc.resource, tc.action)
		require.NoError(t, err)

		assert.Equal(t, tc.want, client, "evaluator %s %s.%s", tc.principal, tc.resource, tc.action)
		assert.Equal(t, client, server, "parity %s %s.%s", tc.principal, tc.resource, tc.action)
	}

	assert.Positive(t, testutil.ToFloat64(f.metrics.DecisionsTotal.WithLabelValues(telemetry.SourceEnforcer, string(rbac.ResourcePayoutManagement), "allow")))
}

func TestEnforcer_UnknownPrincipalDenied(t *testing.T) {
	f := setupFixture(t)
	enforcer := f.enforcer(t)

	allowed, err := enforcer.Decide(context.Background(), "ghost", rbac.ResourceDashboard, rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = enforcer.Decide(context.Background(), "", rbac.ResourceDashboard, rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEnforcer_RereadsStorage(t *testing.T) {
	f := setupFixture(t)
	enforcer := f.enforcer(t)
	ctx := context.Background()
	custom := f.admins["custom"]

	allowed, err := enforcer.Decide(ctx, custom.ID, rbac.ResourceAuditLogs, rbac.ActionRead)
	require.NoError(t, err)
	require.False(t, allowed)

	// A matrix change bumps the role version, which triggers a policy reload.
	role, err := f.repos.Roles.GetByID(ctx, customRoleID)
	require.NoError(t, err)
	role.Permissions = models.MatrixFromRBAC(rbac.NewMatrix(
		rbac.Permission{Resource: rbac.ResourceAuditLogs, Action: rbac.ActionRead},
	))
	require.NoError(t, f.repos.Roles.Update(ctx, role))

	allowed, err = enforcer.Decide(ctx, custom.ID, rbac.ResourceAuditLogs, rbac.ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Status is read at decision time, never from a claim.
	admin, err := f.repos.Admins.GetByID(ctx, custom.ID)
	require.NoError(t, err)
	admin.Status = string(rbac.StatusLocked)
	require.NoError(t, f.repos.Admins.Update(ctx, admin))

	allowed, err = enforcer.Decide(ctx, custom.ID, rbac.ResourceAuditLogs, rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEnforcer_AuthorizeRoleWrite(t *testing.T) {
	f := setupFixture(t)
	enforcer := f.enforcer(t)
	ctx := context.Background()

	for _, sys := range rbac.SystemRoles() {
		err := enforcer.AuthorizeRoleWrite(ctx, f.admins["root"].ID, sys.ID, rbac.ActionUpdate)
		assert.ErrorIs(t, err, rbac.ErrSystemRoleImmutable, sys.ID)
	}

	require.NoError(t, enforcer.AuthorizeRoleWrite(ctx, f.admins["root"].ID, customRoleID, rbac.ActionUpdate))
	require.NoError(t, enforcer.AuthorizeRoleWrite(ctx, f.admins["sys"].ID, "brand-new", rbac.ActionCreate))

	err := enforcer.AuthorizeRoleWrite(ctx, f.admins["viewer"].ID, customRoleID, rbac.ActionDelete)
	assert.ErrorIs(t, err, rbac.ErrCapabilityDenied)

	err = enforcer.AuthorizeRoleWrite(ctx, f.admins["sys-locked"].ID, customRoleID, rbac.ActionUpdate)
	assert.ErrorIs(t, err, rbac.ErrCapabilityDenied)
}
