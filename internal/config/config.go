package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every variable name, e.g. QLP_DATABASE_URL.
const EnvPrefix = "QLP"

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN). postgres:// selects PostgreSQL, anything else SQLite.
	DatabaseURL string `envconfig:"DATABASE_URL" default:"qlpiam.db" validate:"required"`

	// Maximum database connection pool size (PostgreSQL only)
	MaxDBConnections int `envconfig:"MAX_DB_CONNECTIONS" default:"25" validate:"gt=0"`

	// Enable debug logging
	Debug bool `envconfig:"DEBUG" default:"false"`

	// Log output format
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`

	// Upper bound for every store-backed operation
	OperationTimeout time.Duration `envconfig:"OPERATION_TIMEOUT" default:"10s" validate:"gt=0"`

	// Snapshot cache for UI permission gating. Never consulted for enforcement.
	SnapshotTTL  time.Duration `envconfig:"SNAPSHOT_TTL" default:"5m" validate:"gt=0"`
	SnapshotSize int           `envconfig:"SNAPSHOT_SIZE" default:"1024" validate:"gt=0"`

	// TransitiveVisibility lets managers list their whole report chain instead of direct reports.
	TransitiveVisibility bool `envconfig:"TRANSITIVE_VISIBILITY" default:"true"`

	// Sub-user quota given to admins created without an explicit limit
	DefaultMaxSubUsers int `envconfig:"DEFAULT_MAX_SUB_USERS" default:"20" validate:"gte=0"`

	// Decision API (qlpiam serve)
	ServerAddr string `envconfig:"SERVER_ADDR" default:"localhost:8080" validate:"required"`
	// Header carrying the admin id set by the authenticating gateway
	PrincipalHeader string   `envconfig:"PRINCIPAL_HEADER" default:"X-QLP-Admin-ID" validate:"required"`
	CORSOrigins     []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`
	// Requests per minute per client IP on /v1; 0 disables limiting
	RateLimit int `envconfig:"RATE_LIMIT" default:"600" validate:"gte=0"`
}

var validate = validator.New()

// Load reads configuration from QLP_* environment variables with fallback defaults
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
