package roles

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/services/iam"
)

var (
	filterFlag   string
	allFlag      bool
	minLevelFlag int
	maxLevelFlag int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles, highest authority first",
	Long: `List roles, highest authority first.

--filter takes a boolean expression over the role fields ID, Name, AccessLevel,
ParentRoleID, IsSystemRole, IsCustomRole, IsActive, CanManageUsers,
CanCreateSubRoles, Level and AssignedUsersCount.

Example:
  qlpiam roles list --filter 'IsCustomRole == true' --min-level 30
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cmdutil.LoadConfig(cmd)
		if err != nil {
			return err
		}
		bundle, err := cmdutil.NewIAMServiceBundle(cfg)
		if err != nil {
			return err
		}
		defer bundle.Close()

		filter := iam.RoleFilter{Expression: filterFlag, IncludeInactive: allFlag}
		if cmd.Flags().Changed("min-level") {
			l := rbac.Level(minLevelFlag)
			filter.MinLevel = &l
		}
		if cmd.Flags().Changed("max-level") {
			l := rbac.Level(maxLevelFlag)
			filter.MaxLevel = &l
		}

		roles, err := bundle.Service.ListRoles(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("failed to list roles: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tLEVEL\tACCESS\tSYSTEM\tASSIGNED\tACTIVE")
		for _, role := range roles {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\t%d\t%t\n",
				role.ID,
				role.Name,
				role.Level,
				role.AccessLevel,
				role.IsSystemRole,
				role.AssignedUsersCount,
				role.IsActive,
			)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&filterFlag, "filter", "", "Boolean filter expression over role fields")
	listCmd.Flags().BoolVar(&allFlag, "all", false, "Include deactivated roles")
	listCmd.Flags().IntVar(&minLevelFlag, "min-level", 0, "Lowest level number to include (inclusive)")
	listCmd.Flags().IntVar(&maxLevelFlag, "max-level", 0, "Highest level number to include (inclusive)")
}
