package cmdutil

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/quicklinkpay/admin-iam/internal/audit"
	"github.com/quicklinkpay/admin-iam/internal/auth"
	"github.com/quicklinkpay/admin-iam/internal/config"
	"github.com/quicklinkpay/admin-iam/internal/db/bunx"
	"github.com/quicklinkpay/admin-iam/internal/repository"
	"github.com/quicklinkpay/admin-iam/internal/services/iam"
	"github.com/quicklinkpay/admin-iam/internal/telemetry"
)

// IAMServiceBundle bundles the service with the enforcer and the DB connection
// they share.
type IAMServiceBundle struct {
	Service  iam.Service
	Enforcer *auth.Enforcer
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	DB       *bun.DB
}

// Close releases the underlying database connection.
func (b *IAMServiceBundle) Close() {
	if b == nil || b.DB == nil {
		return
	}
	bunx.Close(b.DB)
}

// NewIAMServiceBundle centralizes IAM service construction for CLI commands.
// It wires repositories, loads Casbin policy from the role table, and mirrors
// every audit event to the process log.
func NewIAMServiceBundle(cfg *config.Config) (*IAMServiceBundle, error) {
	logger := telemetry.NewLogger(cfg.Debug, cfg.LogFormat)

	db, err := bunx.NewDBWithOptions(cfg.DatabaseURL, bunx.Options{MaxOpenConns: cfg.MaxDBConnections})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	store := repository.NewBunStore(db)

	enforcer, err := auth.NewEnforcer(auth.EnforcerDependencies{
		Repositories: store.Repositories(),
		Logger:       logger,
		Metrics:      metrics,
	}, cfg.OperationTimeout)
	if err != nil {
		bunx.Close(db)
		return nil, fmt.Errorf("failed to initialize casbin enforcer: %w", err)
	}

	svc, err := iam.NewIAMService(iam.IAMServiceDependencies{
		Store:     store,
		Notifiers: []audit.Sink{audit.NewLogSink(logger)},
		Reloader:  enforcer,
		Logger:    logger,
		Metrics:   metrics,
	}, iam.IAMServiceConfig{
		OperationTimeout:     cfg.OperationTimeout,
		DefaultMaxSubUsers:   cfg.DefaultMaxSubUsers,
		SnapshotTTL:          cfg.SnapshotTTL,
		SnapshotSize:         cfg.SnapshotSize,
		TransitiveVisibility: cfg.TransitiveVisibility,
	})
	if err != nil {
		bunx.Close(db)
		return nil, fmt.Errorf("failed to create IAM service: %w", err)
	}

	return &IAMServiceBundle{
		Service:  svc,
		Enforcer: enforcer,
		Logger:   logger,
		Registry: registry,
		DB:       db,
	}, nil
}
