package iam

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

var (
	principalFlag string
	resourceFlag  string
	actionFlag    string
)

// checkCmd asks the server-side enforcer for a decision
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether an admin may perform an action",
	Long: `Evaluate one (admin, resource, action) triple with the server-side enforcer.

The admin's role and status are read from the database for this decision.
Exit status is 0 on allow and 1 on deny.

Example:
  qlpiam iam check --principal <admin-id> --resource payoutManagement --action approve
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resource, err := rbac.ParseResource(resourceFlag)
		if err != nil {
			return err
		}
		action, err := rbac.ParseAction(actionFlag)
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

		allowed, err := bundle.Enforcer.Decide(context.Background(), principalFlag, resource, action)
		if err != nil {
			return fmt.Errorf("failed to evaluate: %w", err)
		}
		if !allowed {
			return fmt.Errorf("deny: %s may not %s %s", principalFlag, action, resource)
		}
		fmt.Printf("allow: %s may %s %s\n", principalFlag, action, resource)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&principalFlag, "principal", "", "Admin id")
	checkCmd.Flags().StringVar(&resourceFlag, "resource", "", "Resource module, e.g. payoutManagement")
	checkCmd.Flags().StringVar(&actionFlag, "action", "", "Action, e.g. approve")
	_ = checkCmd.MarkFlagRequired("principal")
	_ = checkCmd.MarkFlagRequired("resource")
	_ = checkCmd.MarkFlagRequired("action")
}
