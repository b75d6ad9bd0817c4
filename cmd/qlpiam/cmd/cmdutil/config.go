package cmdutil

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/internal/config"
)

// LoadConfig reads the environment and applies the global flags on top.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if f := flags.Lookup("db-url"); f != nil && f.Changed {
		cfg.DatabaseURL = f.Value.String()
	}
	if f := flags.Lookup("debug"); f != nil && f.Changed {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if f := flags.Lookup("log-format"); f != nil && f.Changed {
		cfg.LogFormat = f.Value.String()
	}
	if f := flags.Lookup("addr"); f != nil && f.Changed {
		cfg.ServerAddr = f.Value.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
