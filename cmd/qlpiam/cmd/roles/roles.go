package roles

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

var actorFlag string

// RolesCmd is the parent command for role operations
var RolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Manage system and custom roles",
	Long:  `Commands for listing roles and managing the lifecycle of custom roles.`,
}

func init() {
	RolesCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Admin id performing the operation")

	RolesCmd.AddCommand(listCmd)
	RolesCmd.AddCommand(showCmd)
	RolesCmd.AddCommand(createCmd)
	RolesCmd.AddCommand(deleteCmd)
}

// parseGrants turns "resource.action" pairs into a complete matrix.
func parseGrants(grants []string) (rbac.PermissionMatrix, error) {
	perms := make([]rbac.Permission, 0, len(grants))
	for _, g := range grants {
		resource, action, ok := strings.Cut(g, ".")
		if !ok {
			return nil, fmt.Errorf("invalid grant %q, expected resource.action", g)
		}
		r, err := rbac.ParseResource(resource)
		if err != nil {
			return nil, err
		}
		a, err := rbac.ParseAction(action)
		if err != nil {
			return nil, err
		}
		perms = append(perms, rbac.Permission{Resource: r, Action: a})
	}
	return rbac.NewMatrix(perms...), nil
}

func requireActor() error {
	if actorFlag == "" {
		return fmt.Errorf("--actor is required")
	}
	return nil
}
