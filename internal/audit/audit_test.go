package audit

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicklinkpay/admin-iam/internal/db/bunx"
	"github.com/quicklinkpay/admin-iam/internal/migrations"
	"github.com/quicklinkpay/admin-iam/internal/repository"
)

func TestRepositorySinkPersistsImages(t *testing.T) {
	db, err := bunx.NewDB(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer bunx.Close(db)
	ctx := context.Background()
	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)

	repo := repository.NewBunAuditRepository(db)
	sink := NewRepositorySink(repo)

	type image struct {
		Level int    `json:"level"`
		Name  string `json:"name"`
	}
	require.NoError(t, sink.Record(ctx, Event{
		ActorID:    "root",
		Action:     ActionRoleUpdate,
		TargetType: TargetRole,
		TargetID:   "team-lead",
		Before:     image{Level: 50, Name: "Team Lead"},
		After:      image{Level: 55, Name: "Team Lead"},
		Timestamp:  time.Now().UTC(),
	}))

	events, err := repo.ListByTarget(ctx, TargetRole, "team-lead")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, float64(50), events[0].Before["level"])
	assert.Equal(t, float64(55), events[0].After["level"])

	err = sink.Record(ctx, Event{Action: ActionRoleUpdate})
	assert.Error(t, err)
}

func TestLogSinkAndMulti(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	var seen []string
	recorder := SinkFunc(func(_ context.Context, e Event) error {
		seen = append(seen, e.Action)
		return nil
	})

	sink := Multi(NewLogSink(logger), nil, recorder)
	require.NoError(t, sink.Record(context.Background(), Event{
		ActorID: "root", Action: ActionAdminCreate, TargetType: TargetAdmin, TargetID: "a1",
	}))
	assert.Equal(t, []string{ActionAdminCreate}, seen)
	assert.Contains(t, buf.String(), `"action":"admin.create"`)

	boom := errors.New("disk full")
	failing := Multi(SinkFunc(func(context.Context, Event) error { return boom }), recorder)
	err := failing.Record(context.Background(), Event{Action: ActionRoleSeed})
	require.ErrorIs(t, err, boom)
	assert.Len(t, seen, 1, "later sinks are skipped after a failure")
}
