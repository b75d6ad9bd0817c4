package admins

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd/cmdutil"
	"github.com/quicklinkpay/admin-iam/internal/services/iam"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [manager-id]",
	Short: "Compare sub-user counters with actual direct reports",
	Long: `Compare each manager's stored sub-user counter with the number of admins
that actually report to it. Drift is reported, never repaired.

Without an argument every manager is checked. Exits non-zero when drift is found.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := cmdutil.LoadConfig(cmd)
		if err != nil {
			return err
		}
		bundle, err := cmdutil.NewIAMServiceBundle(cfg)
		if err != nil {
			return err
		}
		defer bundle.Close()

		var reports []iam.ReconcileReport
		if len(args) == 1 {
			report, err := bundle.Service.ReconcileSubordinateCount(ctx, args[0])
			if err != nil {
				return err
			}
			reports = append(reports, *report)
		} else {
			reports, err = bundle.Service.ReconcileAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to reconcile: %w", err)
			}
		}

		table := pterm.TableData{{"MANAGER", "RECORDED", "ACTUAL", "DRIFT"}}
		drifted := 0
		for _, r := range reports {
			if r.Drift() != 0 {
				drifted++
			}
			table = append(table, []string{
				r.ManagerID,
				fmt.Sprint(r.Recorded),
				fmt.Sprint(r.Actual),
				fmt.Sprintf("%+d", r.Drift()),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
			return err
		}

		if drifted > 0 {
			return fmt.Errorf("%d manager(s) with counter drift", drifted)
		}
		pterm.Success.Println("No counter drift")
		return nil
	},
}
