package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// placementFlags are shared by schedule and batch
type placementFlags struct {
	line   string
	date   string
	method string
	plan   string
	policy string
}

func (f *placementFlags) register(cmd *cobra.Command, policyUsage string) {
	cmd.Flags().StringVarP(&f.line, "line", "l", "", "target production line")
	cmd.Flags().StringVarP(&f.date, "date", "d", "", "target start date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&f.method, "method", "m", "flat", "planning method: flat or ramp_up")
	cmd.Flags().StringVar(&f.plan, "plan", "", "ramp-up plan ID, required with --method ramp_up")
	cmd.Flags().StringVarP(&f.policy, "policy", "p", "none", policyUsage)
	_ = cmd.MarkFlagRequired("line")
	_ = cmd.MarkFlagRequired("date")
}

func (f *placementFlags) parse() (entities.LineID, entities.PlanningMethod, entities.PlacementPolicy, error) {
	method, err := entities.ParsePlanningMethod(f.method)
	if err != nil {
		return "", 0, 0, err
	}
	policy, err := entities.ParsePlacementPolicy(f.policy)
	if err != nil {
		return "", 0, 0, err
	}
	return entities.LineID(f.line), method, policy, nil
}

func newScheduleCommand(opts *rootOptions) *cobra.Command {
	var flags placementFlags
	cmd := &cobra.Command{
		Use:   "schedule ORDER_ID",
		Short: "Place one order on a line from a target date",
		Long: `Place one order on a line from a target date.

When the placement overlaps scheduled work and no --policy is given, the
overlapping orders are printed and the command exits with status 2.`,
		Example: "  lineplan schedule PO-1001 --line L1 --date 2025-06-09 --policy insert_before",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineID, method, policy, err := flags.parse()
			if err != nil {
				return err
			}
			target, err := entities.ParseDate(flags.date)
			if err != nil {
				return err
			}

			rt, printer, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Orchestrator.Schedule(cmd.Context(), dto.ScheduleIntent{
				OrderID:         entities.OrderID(args[0]),
				LineID:          lineID,
				TargetDate:      target,
				PlanningMethod:  method,
				RampUpPlanID:    entities.RampUpPlanID(flags.plan),
				PlacementPolicy: policy,
			})
			if err != nil {
				return reportFailure(printer, err)
			}
			return printer.ScheduleResult(result)
		},
	}
	flags.register(cmd, "placement policy on conflict: none, insert_before, insert_after")
	return cmd
}

func newBatchCommand(opts *rootOptions) *cobra.Command {
	var (
		flags     placementFlags
		decisions map[string]string
	)
	cmd := &cobra.Command{
		Use:   "batch ORDER_ID...",
		Short: "Place several orders back-to-back from one target date",
		Long: `Place several orders back-to-back from one target date, in the given order.

Each order starts the day after the previous one actually ends. If a member
overlaps scheduled work without a policy, the batch stops, nothing is saved,
and the member's conflicts are printed. Re-run with --decide ORDER=policy.`,
		Example: "  lineplan batch PO-1 PO-2 PO-3 --line L1 --date 2025-06-09 --decide PO-2=insert_after",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineID, method, policy, err := flags.parse()
			if err != nil {
				return err
			}
			target, err := entities.ParseDate(flags.date)
			if err != nil {
				return err
			}
			decided, err := parseDecisions(decisions)
			if err != nil {
				return err
			}

			intent := dto.BatchIntent{
				LineID:        lineID,
				TargetDate:    target,
				DefaultPolicy: policy,
				Decisions:     decided,
			}
			for _, id := range args {
				intent.Orders = append(intent.Orders, dto.BatchMember{
					OrderID:        entities.OrderID(id),
					PlanningMethod: method,
					RampUpPlanID:   entities.RampUpPlanID(flags.plan),
				})
			}

			rt, printer, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Orchestrator.ScheduleBatch(cmd.Context(), intent)
			if err != nil {
				return reportFailure(printer, err)
			}
			return printer.ScheduleResult(result)
		},
	}
	flags.register(cmd, "default placement policy for every member: none, insert_before, insert_after")
	cmd.Flags().StringToStringVar(&decisions, "decide", nil, "per-order policy, e.g. PO-2=insert_after")
	return cmd
}

func parseDecisions(raw map[string]string) (map[entities.OrderID]entities.PlacementPolicy, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[entities.OrderID]entities.PlacementPolicy, len(raw))
	for id, value := range raw {
		policy, err := entities.ParsePlacementPolicy(value)
		if err != nil {
			return nil, fmt.Errorf("--decide %s: %w", id, err)
		}
		out[entities.OrderID(strings.TrimSpace(id))] = policy
	}
	return out, nil
}
