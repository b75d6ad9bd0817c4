package iam

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
)

var (
	emailFlag       string
	displayNameFlag string
)

// bootstrapCmd seeds system roles and creates the first super-admin
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed system roles and create the root super-admin",
	Long: `Seed the predefined system roles and create the root super-admin.

Both steps are idempotent:
1. System roles are written only if none exist yet
2. The super-admin is created only if no admin exists yet

Run 'qlpiam db migrate' first.

Example:
  qlpiam iam bootstrap --email root@quicklinkpay.com --name "Platform Owner"
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := cmdutil.LoadConfig(cmd)
		if err != nil {
			return err
		}

		bundle, err := cmdutil.NewIAMServiceBundle(cfg)
		if err != nil {
			return err
		}
		defer bundle.Close()

		seed, err := bundle.Service.SeedSystemRoles(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed system roles: %w", err)
		}
		if seed.AlreadySeeded {
			fmt.Println("System roles already seeded, skipping")
		} else {
			fmt.Printf("✓ Seeded %d system roles\n", len(seed.Created))
		}

		admin, created, err := bundle.Service.BootstrapSuperAdmin(ctx, emailFlag, displayNameFlag)
		if err != nil {
			return fmt.Errorf("failed to bootstrap super-admin: %w", err)
		}
		switch {
		case created:
			fmt.Println("✓ Super-admin created")
			fmt.Printf("  ID:    %s\n", admin.ID)
			fmt.Printf("  Email: %s\n", admin.Email)
		case admin != nil:
			fmt.Printf("Super-admin %s already exists (%s), skipping\n", admin.Email, admin.ID)
		default:
			fmt.Println("Admins already exist, skipping super-admin creation")
		}
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&emailFlag, "email", "", "Email of the root super-admin")
	bootstrapCmd.Flags().StringVar(&displayNameFlag, "name", "", "Display name of the root super-admin")
	_ = bootstrapCmd.MarkFlagRequired("email")
}
