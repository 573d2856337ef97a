package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

const defaultCapacityWindow = 14

func newCapacityCommand(opts *rootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "capacity LINE_ID",
		Short: "Show per-day capacity, usage and free pieces for a line",
		Long: `Show per-day capacity, usage and free pieces for a line. Without --from
the window starts today; without --to it covers two weeks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := entities.NormalizeDate(time.Now().UTC())
			if from != "" {
				d, err := entities.ParseDate(from)
				if err != nil {
					return err
				}
				start = d
			}
			end := start.AddDate(0, 0, defaultCapacityWindow-1)
			if to != "" {
				d, err := entities.ParseDate(to)
				if err != nil {
					return err
				}
				end = d
			}

			rt, printer, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			lineID := entities.LineID(args[0])
			days, err := rt.Orchestrator.Capacity(cmd.Context(), lineID, start, end)
			if err != nil {
				return err
			}
			return printer.Capacity(lineID, days)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day, inclusive (YYYY-MM-DD)")
	return cmd
}
