package admins

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/internal/audit"
)

var historyFlag bool

var showCmd = &cobra.Command{
	Use:   "show <admin-id>",
	Short: "Show an admin and what it may currently do",
	Args:  cobra.ExactArgs(1),
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

		admin, err := bundle.Service.GetAdmin(ctx, args[0])
		if err != nil {
			return err
		}
		ac, err := bundle.Service.AuthContext(ctx, admin.ID)
		if err != nil {
			return err
		}
		perms, err := bundle.Service.EffectivePermissions(ctx, admin.ID)
		if err != nil {
			return err
		}

		pterm.DefaultSection.Println(admin.Email)
		fmt.Printf("ID:        %s\n", admin.ID)
		fmt.Printf("Context:   %s\n", ac)
		fmt.Printf("Manager:   %s\n", admin.Manager())
		fmt.Printf("Sub-users: %d/%d (can create: %t)\n", admin.CreatedSubUsersCount, admin.MaxSubUsers, admin.CanCreateSubUsers)

		if len(perms) == 0 {
			pterm.Warning.Println("no effective permissions")
		} else {
			fmt.Println("Permissions:")
			for _, p := range perms {
				fmt.Printf("  %s\n", p)
			}
		}

		if !historyFlag {
			return nil
		}
		trail, err := bundle.Service.AuditTrail(ctx, audit.TargetAdmin, admin.ID)
		if err != nil {
			return fmt.Errorf("failed to read audit trail: %w", err)
		}
		fmt.Println("History:")
		for _, e := range trail {
			fmt.Printf("  %s  %-22s by %s\n", e.OccurredAt.Format("2006-01-02 15:04:05"), e.Action, e.ActorID)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&historyFlag, "history", false, "Print the audit trail")
}
