package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
	"github.com/vsinha/lineplan/pkg/interfaces/cli/output"
)

func newUnscheduleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unschedule ORDER_ID",
		Short: "Release a scheduled order back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, printer, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Orchestrator.Unschedule(cmd.Context(), entities.OrderID(args[0]))
			if err != nil {
				return reportFailure(printer, err)
			}
			return printer.ScheduleResult(result)
		},
	}
}

func newSplitCommand(opts *rootOptions) *cobra.Command {
	var quantity int64
	cmd := &cobra.Command{
		Use:   "split ORDER_ID",
		Short: "Split a pending order into two children",
		Long: `Split a pending order into two pending children. The first child takes
--quantity pieces and the second takes the remainder. The parent is retired.`,
		Example: "  lineplan split PO-1001 --quantity 400",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, printer, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Orchestrator.Split(cmd.Context(), entities.OrderID(args[0]), entities.Quantity(quantity))
			if err != nil {
				return reportFailure(printer, err)
			}
			return printer.Split(result)
		},
	}
	cmd.Flags().Int64VarP(&quantity, "quantity", "q", 0, "quantity of the first child")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	var (
		line   string
		status string
		all    bool
		gantt  string
	)
	cmd := &cobra.Command{
		Use:   "show [ORDER_ID]",
		Short: "List orders, or show one order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, printer, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()

			var orders []*entities.Order
			if len(args) == 1 {
				order, err := rt.Orchestrator.GetOrder(ctx, entities.OrderID(args[0]))
				if err != nil {
					return err
				}
				orders = []*entities.Order{order}
			} else {
				filter := repositories.OrderFilter{LineID: entities.LineID(line), IncludeRetired: all}
				if status != "" {
					s, err := entities.ParseOrderStatus(status)
					if err != nil {
						return err
					}
					filter.Status = &s
				}
				if orders, err = rt.Orchestrator.ListOrders(ctx, filter); err != nil {
					return err
				}
			}

			if gantt != "" {
				svg := output.NewGanttChart(orders).GenerateSVG(orders)
				if err := os.WriteFile(gantt, []byte(svg), 0o644); err != nil {
					return fmt.Errorf("failed to write gantt chart: %w", err)
				}
				rt.Logger.Info("gantt chart written", "path", gantt)
			}
			return printer.Orders(orders)
		},
	}
	cmd.Flags().StringVarP(&line, "line", "l", "", "only orders scheduled on this line")
	cmd.Flags().StringVar(&status, "status", "", "only orders in this status: pending or scheduled")
	cmd.Flags().BoolVar(&all, "all", false, "include retired split parents")
	cmd.Flags().StringVar(&gantt, "gantt", "", "also write an SVG gantt chart of the scheduled orders to this file")
	return cmd
}
