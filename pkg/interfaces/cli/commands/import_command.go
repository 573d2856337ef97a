package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/csv"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import DIR",
		Short: "Load lines, holidays, ramp-up plans and pending orders from CSV files",
		Long: `Load a scenario directory into the configured store. The directory holds
lines.csv and orders.csv, and optionally holidays.csv and ramp_up_plans.csv.
Use a persistent storage driver (sqlite or postgres) for the import to outlive
the command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			scenario, err := csv.NewLoader().LoadDir(args[0])
			if err != nil {
				return err
			}
			if err := csv.Import(cmd.Context(), rt.Store, scenario); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d lines, %d holidays, %d ramp-up plans, %d orders\n",
				len(scenario.Lines), len(scenario.Holidays), len(scenario.RampUpPlans), len(scenario.Orders))
			return nil
		},
	}
}
