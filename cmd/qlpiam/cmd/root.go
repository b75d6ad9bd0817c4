package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/admins"
	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/iam"
	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/roles"
	"github.com/quicklinkpay/admin-iam/internal/config"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/telemetry"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "qlpiam",
	Short: "QuickLink Pay admin access management",
	Long: `qlpiam manages the roles and admin principals of the QuickLink Pay dashboard.
It seeds the system roles, creates sub-admins within their manager's quota, and
answers authorization checks against the stored role matrix.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = cmdutil.LoadConfig(cmd)
		return err
	},
}

func logger() *logrus.Logger {
	return telemetry.NewLogger(cfg.Debug, cfg.LogFormat)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: QLP_DATABASE_URL)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: QLP_DEBUG)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format, text or json (env: QLP_LOG_FORMAT)")

	// Add subcommands
	rootCmd.AddCommand(iam.IamCmd)
	rootCmd.AddCommand(roles.RolesCmd)
	rootCmd.AddCommand(admins.AdminsCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := rbac.HintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
