package admins

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/internal/services/iam"
)

var (
	emailFlag       string
	nameFlag        string
	roleFlag        string
	subUsersFlag    bool
	maxSubUsersFlag int
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a sub-admin managed by the actor",
	Long: `Create a sub-admin managed by the actor.

The actor must be allowed to create sub-users, must outrank the role being
given, and must have quota left.

Example:
  qlpiam admins create --actor <admin-id> --email ops@quicklinkpay.com \
    --role ops_admin --sub-users --max-sub-users 10
`,
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

		draft := iam.SubordinateDraft{
			Email:             emailFlag,
			DisplayName:       nameFlag,
			RoleID:            roleFlag,
			CanCreateSubUsers: subUsersFlag,
		}
		if cmd.Flags().Changed("max-sub-users") {
			draft.MaxSubUsers = &maxSubUsersFlag
		}

		admin, err := bundle.Service.CreateSubordinate(context.Background(), actorFlag, draft)
		if err != nil {
			return err
		}

		pterm.Success.Printf("Created admin %s\n", admin.Email)
		pterm.Info.Printf("ID: %s  Role: %s  Quota: %d\n", admin.ID, admin.RoleID, admin.MaxSubUsers)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email of the new admin")
	createCmd.Flags().StringVar(&nameFlag, "name", "", "Display name of the new admin")
	createCmd.Flags().StringVar(&roleFlag, "role", "", "Role id to give the new admin")
	createCmd.Flags().BoolVar(&subUsersFlag, "sub-users", false, "Allow the new admin to create sub-users")
	createCmd.Flags().IntVar(&maxSubUsersFlag, "max-sub-users", 0, "Sub-user quota (default from QLP_DEFAULT_MAX_SUB_USERS)")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("role")
}
