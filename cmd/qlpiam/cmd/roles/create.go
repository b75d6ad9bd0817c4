package roles

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/services/iam"
)

var (
	idFlag          string
	nameFlag        string
	descriptionFlag string
	levelFlag       int
	accessFlag      string
	parentFlag      string
	grantFlags      []string
	manageUsersFlag bool
	subRolesFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a custom role",
	Long: `Create a custom role below the actor's own level.

Grants are given as resource.action pairs; every cell not granted is denied.

Example:
  qlpiam roles create --actor <admin-id> --id payout-auditors \
    --name "Payout Auditors" --level 45 \
    --grant payoutManagement.read --grant payoutManagement.export
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireActor(); err != nil {
			return err
		}
		matrix, err := parseGrants(grantFlags)
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

		role, err := bundle.Service.CreateRole(context.Background(), actorFlag, iam.RoleDefinition{
			ID:                idFlag,
			Name:              nameFlag,
			Description:       descriptionFlag,
			Level:             rbac.Level(levelFlag),
			AccessLevel:       rbac.AccessLevel(accessFlag),
			ParentRoleID:      parentFlag,
			CanCreateSubRoles: subRolesFlag,
			CanManageUsers:    manageUsersFlag,
			Permissions:       matrix,
		})
		if err != nil {
			return err
		}

		pterm.Success.Printf("Created role %s (level %d)\n", role.ID, role.Level)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <role-id>",
	Short: "Deactivate a custom role",
	Long:  `Deactivate a custom role. Fails while any active admin holds it.`,
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

		if err := bundle.Service.DeleteRole(context.Background(), actorFlag, args[0]); err != nil {
			return err
		}
		pterm.Success.Printf("Role %s deactivated\n", args[0])
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&idFlag, "id", "", "Role id (no spaces, slashes or colons)")
	createCmd.Flags().StringVar(&nameFlag, "name", "", "Display name")
	createCmd.Flags().StringVar(&descriptionFlag, "description", "", "Free-form description")
	createCmd.Flags().IntVar(&levelFlag, "level", 0, "Hierarchy level, 1 to 100")
	createCmd.Flags().StringVar(&accessFlag, "access-level", "", "Access level label (default custom)")
	createCmd.Flags().StringVar(&parentFlag, "parent", "", "Parent role id, recorded as lineage")
	createCmd.Flags().StringSliceVar(&grantFlags, "grant", nil, "Granted resource.action pair (repeatable)")
	createCmd.Flags().BoolVar(&manageUsersFlag, "manage-users", false, "Holders may manage admins")
	createCmd.Flags().BoolVar(&subRolesFlag, "sub-roles", false, "Holders may create custom roles")
	_ = createCmd.MarkFlagRequired("id")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("level")
}
