package iam

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/quicklinkpay/admin-iam/internal/audit"
	"github.com/quicklinkpay/admin-iam/internal/db/bunx"
	"github.com/quicklinkpay/admin-iam/internal/db/models"
	"github.com/quicklinkpay/admin-iam/internal/migrations"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/repository"
	"github.com/quicklinkpay/admin-iam/internal/telemetry"
)

const rootEmail = "root@quicklinkpay.test"

type countingReloader struct {
	calls atomic.Int32
}

func (r *countingReloader) Reload() error {
	r.calls.Add(1)
	return nil
}

type testEnv struct {
	svc      *iamService
	store    *repository.BunStore
	reloader *countingReloader
	metrics  *telemetry.Metrics
}

func testConfig() IAMServiceConfig {
	return IAMServiceConfig{
		OperationTimeout:     5 * time.Second,
		DefaultMaxSubUsers:   5,
		SnapshotTTL:          time.Minute,
		SnapshotSize:         64,
		TransitiveVisibility: true,
	}
}

// setupService opens a migrated SQLite database private to the test and
// builds a service over it.
func setupService(t *testing.T, sinks ...audit.Sink) *testEnv {
	t.Helper()

	db, err := bunx.NewDB(filepath.Join(t.TempDir(), "iam.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	_, err = migrations.Apply(context.Background(), db)
	require.NoError(t, err)

	env := &testEnv{
		store:    repository.NewBunStore(db),
		reloader: &countingReloader{},
		metrics:  telemetry.NewMetrics(prometheus.NewRegistry()),
	}
	env.svc = env.newService(t, testConfig(), sinks...)
	return env
}

// newService builds another service over the same store.
func (e *testEnv) newService(t *testing.T, cfg IAMServiceConfig, sinks ...audit.Sink) *iamService {
	t.Helper()
	return e.newServiceWith(t, cfg, IAMServiceDependencies{Sinks: sinks})
}

// newServiceWith fills in the shared store, reloader and metrics.
func (e *testEnv) newServiceWith(t *testing.T, cfg IAMServiceConfig, deps IAMServiceDependencies) *iamService {
	t.Helper()
	deps.Store = e.store
	deps.Reloader = e.reloader
	deps.Metrics = e.metrics
	svc, err := NewIAMService(deps, cfg)
	require.NoError(t, err)
	return svc.(*iamService)
}

// eventRecorder collects the actions it is handed.
type eventRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (r *eventRecorder) Record(_ context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, event.Action)
	return nil
}

func (r *eventRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

// bootstrap seeds the system roles and the root super-admin.
func (e *testEnv) bootstrap(t *testing.T) *models.Admin {
	t.Helper()
	ctx := context.Background()

	_, err := e.svc.SeedSystemRoles(ctx)
	require.NoError(t, err)
	root, created, err := e.svc.BootstrapSuperAdmin(ctx, rootEmail, "Root")
	require.NoError(t, err)
	require.True(t, created)
	return root
}

func (e *testEnv) createSub(t *testing.T, actorID, email, roleID string, maxSubUsers int) *models.Admin {
	t.Helper()
	admin, err := e.svc.CreateSubordinate(context.Background(), actorID, SubordinateDraft{
		Email:             email,
		DisplayName:       email,
		RoleID:            roleID,
		CanCreateSubUsers: true,
		MaxSubUsers:       &maxSubUsers,
	})
	require.NoError(t, err)
	return admin
}

func (e *testEnv) reload(t *testing.T, id string) *models.Admin {
	t.Helper()
	admin, err := e.store.Repositories().Admins.GetByID(context.Background(), id)
	require.NoError(t, err)
	return admin
}

func (e *testEnv) role(t *testing.T, id string) *models.Role {
	t.Helper()
	role, err := e.store.Repositories().Roles.GetByID(context.Background(), id)
	require.NoError(t, err)
	return role
}

func customDefinition(id string, level rbac.Level, grants ...rbac.Permission) RoleDefinition {
	return RoleDefinition{
		ID:          id,
		Name:        id,
		Level:       level,
		AccessLevel: rbac.AccessManager,
		Permissions: rbac.NewMatrix(grants...),
	}
}
