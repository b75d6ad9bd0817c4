package iam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicklinkpay/admin-iam/internal/audit"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/repository"
)

// failingStore rejects every unit of work, as an unreachable database would.
type failingStore struct {
	err error
}

func (s failingStore) Repositories() repository.Repositories { return repository.Repositories{} }

func (s failingStore) RunInTx(context.Context, func(context.Context, repository.Repositories) error) error {
	return s.err
}

func TestNewIAMService_RequiresStore(t *testing.T) {
	_, err := NewIAMService(IAMServiceDependencies{}, IAMServiceConfig{})
	require.Error(t, err)
}

func TestIAMService_StoreErrorsAreRetryable(t *testing.T) {
	boom := errors.New("connection refused")
	svc, err := NewIAMService(IAMServiceDependencies{Store: failingStore{err: boom}}, IAMServiceConfig{})
	require.NoError(t, err)

	_, err = svc.CreateSubordinate(context.Background(), "actor", SubordinateDraft{
		Email:  "a@quicklinkpay.test",
		RoleID: rbac.RoleViewer,
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, rbac.Retryable(err))

	err = svc.DeleteRole(context.Background(), "actor", "custom")
	require.ErrorIs(t, err, boom)

	// System role protection needs no storage at all.
	err = svc.DeleteRole(context.Background(), "actor", rbac.RoleSuperAdmin)
	require.ErrorIs(t, err, rbac.ErrSystemRoleImmutable)
	assert.False(t, rbac.Retryable(err))
}

func TestCreateSubordinate_TimeoutLeavesNoTrace(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	root := env.bootstrap(t)

	// The sink runs inside the transaction and holds it past the deadline.
	stall := audit.SinkFunc(func(ctx context.Context, event audit.Event) error {
		if event.Action == audit.ActionAdminCreate {
			<-ctx.Done()
		}
		return nil
	})
	cfg := testConfig()
	cfg.OperationTimeout = 200 * time.Millisecond
	notified := &eventRecorder{}
	slow := env.newServiceWith(t, cfg, IAMServiceDependencies{
		Sinks:     []audit.Sink{stall},
		Notifiers: []audit.Sink{notified},
	})

	_, err := slow.CreateSubordinate(ctx, root.ID, SubordinateDraft{
		Email:  "late@quicklinkpay.test",
		RoleID: rbac.RoleViewer,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, rbac.Retryable(err))

	_, err = env.svc.GetAdminByEmail(ctx, "late@quicklinkpay.test")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	assert.Equal(t, 0, env.reload(t, root.ID).CreatedSubUsersCount)
	assert.Equal(t, 0, env.role(t, rbac.RoleViewer).AssignedUsersCount)

	trail, err := env.svc.AuditTrail(ctx, audit.TargetAdmin, root.ID)
	require.NoError(t, err)
	assert.Len(t, trail, 1, "only the bootstrap event")
	assert.Empty(t, notified.seen(), "rolled back mutations are never announced")
}

func TestIAMService_NotifiesAfterCommit(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	root := env.bootstrap(t)

	notified := &eventRecorder{}
	broken := audit.SinkFunc(func(context.Context, audit.Event) error {
		return errors.New("log shipper down")
	})
	svc := env.newServiceWith(t, testConfig(), IAMServiceDependencies{
		Notifiers: []audit.Sink{broken, notified},
	})

	_, err := svc.CreateSubordinate(ctx, root.ID, SubordinateDraft{
		Email:  "notified@quicklinkpay.test",
		RoleID: rbac.RoleViewer,
	})
	require.NoError(t, err, "notifier errors never undo a committed mutation")
	assert.Equal(t, []string{audit.ActionAdminCreate}, notified.seen())

	_, err = svc.CreateSubordinate(ctx, root.ID, SubordinateDraft{
		Email:  "notified@quicklinkpay.test",
		RoleID: rbac.RoleViewer,
	})
	require.ErrorIs(t, err, rbac.ErrDuplicateID)
	assert.Len(t, notified.seen(), 1)
}

func TestIAMService_SinkErrorAbortsMutation(t *testing.T) {
	reject := audit.SinkFunc(func(context.Context, audit.Event) error {
		return errors.New("sink unavailable")
	})
	env := setupService(t)
	root := env.bootstrap(t)
	strict := env.newService(t, testConfig(), reject)

	_, err := strict.CreateSubordinate(context.Background(), root.ID, SubordinateDraft{
		Email:  "audited@quicklinkpay.test",
		RoleID: rbac.RoleViewer,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink unavailable")
	assert.Equal(t, 0, env.reload(t, root.ID).CreatedSubUsersCount)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.MutationsTotal.WithLabelValues("create_subordinate", "error")))
}
