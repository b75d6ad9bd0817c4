package admins

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/internal/db/models"
)

var actorFlag string

// AdminsCmd is the parent command for admin principal operations
var AdminsCmd = &cobra.Command{
	Use:   "admins",
	Short: "Manage admin principals and reporting lines",
	Long: `Commands for creating sub-admins, moving them between managers,
changing their role or status, and reconciling sub-user counters.`,
}

func init() {
	AdminsCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Admin id performing the operation")

	AdminsCmd.AddCommand(createCmd)
	AdminsCmd.AddCommand(listCmd)
	AdminsCmd.AddCommand(showCmd)
	AdminsCmd.AddCommand(reassignCmd)
	AdminsCmd.AddCommand(assignRoleCmd)
	AdminsCmd.AddCommand(statusCmd)
	AdminsCmd.AddCommand(reconcileCmd)
}

func requireActor() error {
	if actorFlag == "" {
		return fmt.Errorf("--actor is required")
	}
	return nil
}

func printAdmins(admins []models.Admin) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tROLE\tMANAGER\tSTATUS\tSUB_USERS")
	for _, a := range admins {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\n",
			a.ID,
			a.Email,
			a.RoleID,
			a.Manager(),
			a.Status,
			a.CreatedSubUsersCount,
			a.MaxSubUsers,
		)
	}
	return w.Flush()
}
