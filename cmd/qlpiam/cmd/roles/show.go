package roles

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

var showCmd = &cobra.Command{
	Use:   "show <role-id>",
	Short: "Show a role and its permission matrix",
	Args:  cobra.ExactArgs(1),
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

		role, err := bundle.Service.GetRole(context.Background(), args[0])
		if err != nil {
			return err
		}

		pterm.DefaultSection.Println(role.Name)
		fmt.Printf("ID:           %s\n", role.ID)
		fmt.Printf("Level:        %d\n", role.Level)
		fmt.Printf("Access level: %s\n", role.AccessLevel)
		if parent := role.ParentID(); parent != "" {
			fmt.Printf("Parent:       %s\n", parent)
		}
		fmt.Printf("System role:  %t\n", role.IsSystemRole)
		fmt.Printf("Manage users: %t\n", role.CanManageUsers)
		fmt.Printf("Sub-roles:    %t\n", role.CanCreateSubRoles)
		fmt.Printf("Assigned:     %d\n", role.AssignedUsersCount)
		fmt.Printf("Version:      %d\n", role.Version)
		if !role.IsActive {
			pterm.Warning.Println("role is deactivated")
		}

		header := []string{"RESOURCE"}
		for _, a := range rbac.Actions() {
			header = append(header, string(a))
		}
		table := pterm.TableData{header}
		matrix := role.Permissions.RBAC()
		for _, r := range rbac.Resources() {
			row := []string{string(r)}
			for _, a := range rbac.Actions() {
				cell := "-"
				if matrix[r][a] {
					cell = "✓"
				}
				row = append(row, cell)
			}
			table = append(table, row)
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	},
}
