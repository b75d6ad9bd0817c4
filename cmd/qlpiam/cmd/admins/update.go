package admins

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

var managerFlag string

var reassignCmd = &cobra.Command{
	Use:   "reassign <admin-id>",
	Short: "Move an admin under a new manager",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireActor(); err != nil {
			return err
		}

		cfg, err := cmdutil.LoadConfig(cmd)
		if err != nil {
			return err
		}
		bundle, err := cmdutil.NewIAMServiceBundle(cfg)
		if err != nil {
			return err
		}
		defer bundle.Close()

		if err := bundle.Service.ReassignManager(context.Background(), actorFlag, args[0], managerFlag); err != nil {
			return err
		}
		pterm.Success.Printf("Admin %s now reports to %s\n", args[0], managerFlag)
		return nil
	},
}

var assignRoleCmd = &cobra.Command{
	Use:   "assign-role <admin-id> <role-id>",
	Short: "Give an admin a different role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireActor(); err != nil {
			return err
		}

		cfg, err := cmdutil.LoadConfig(cmd)
		if err != nil {
			return err
		}
		bundle, err := cmdutil.NewIAMServiceBundle(cfg)
		if err != nil {
			return err
		}
		defer bundle.Close()

		admin, err := bundle.Service.AssignRole(context.Background(), actorFlag, args[0], args[1])
		if err != nil {
			return err
		}
		pterm.Success.Printf("Admin %s now holds %s (%s)\n", admin.Email, admin.RoleID, admin.AccessLevel)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <admin-id> <active|inactive|suspended|locked>",
	Short: "Change an admin's status",
	Long: `Change an admin's status. Only active admins are authorized for anything;
inactive admins no longer count towards their role's assigned users.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireActor(); err != nil {
			return err
		}
		status, err := rbac.ParseStatus(args[1])
		if err != nil {
			return err
		}

		cfg, err := cmdutil.LoadConfig(cmd)
		if err != nil {
			return err
		}
		bundle, err := cmdutil.NewIAMServiceBundle(cfg)
		if err != nil {
			return err
		}
		defer bundle.Close()

		admin, err := bundle.Service.SetStatus(context.Background(), actorFlag, args[0], status)
		if err != nil {
			return err
		}
		pterm.Success.Printf("Admin %s is now %s\n", admin.Email, admin.Status)
		return nil
	},
}

func init() {
	reassignCmd.Flags().StringVar(&managerFlag, "manager", "", "Admin id of the new manager")
	_ = reassignCmd.MarkFlagRequired("manager")
}
