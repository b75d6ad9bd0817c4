package iam

import (
	"github.com/spf13/cobra"
)

// IamCmd is the parent command for IAM setup operations
var IamCmd = &cobra.Command{
	Use:   "iam",
	Short: "Set up the access model",
	Long:  `Commands for seeding the system roles and the root super-admin.`,
}

func init() {
	IamCmd.AddCommand(bootstrapCmd)
	IamCmd.AddCommand(checkCmd)
}
