package admins

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
)

var transitiveFlag bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the admins reporting to the actor",
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

		admins, err := bundle.Service.ListManaged(context.Background(), actorFlag, transitiveFlag)
		if err != nil {
			return fmt.Errorf("failed to list admins: %w", err)
		}
		return printAdmins(admins)
	},
}

func init() {
	listCmd.Flags().BoolVar(&transitiveFlag, "transitive", false, "Include the whole report chain when QLP_TRANSITIVE_VISIBILITY allows it")
}
