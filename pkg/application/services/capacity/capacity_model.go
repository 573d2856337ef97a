package capacity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/lineplan/pkg/application/services/shared"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

var hundred = decimal.NewFromInt(100)

// Context carries the per-order inputs of a capacity question
type Context struct {
	// OrderID is excluded from "already allocated" so an order never
	// competes with its own current schedule
	OrderID          entities.OrderID
	SMV              decimal.Decimal
	RampUpPlanID     entities.RampUpPlanID
	PriorWorkingDays int
}

// DayLoad is one row of a line's capacity view
type DayLoad struct {
	Date     time.Time         `json:"date"`
	Working  bool              `json:"working"`
	Capacity entities.Quantity `json:"capacity"`
	Used     entities.Quantity `json:"used"`
	Free     entities.Quantity `json:"free"`
}

// Model computes how much a line can still produce on a single day
type Model struct{}

// NewModel creates a capacity model
func NewModel() *Model {
	return &Model{}
}

// EffectiveCapacity returns the units the line can take on date for the order
// described by cctx. Non-working days always yield zero.
func (m *Model) EffectiveCapacity(
	snapshot *shared.AllocationSnapshot,
	lineID entities.LineID,
	date time.Time,
	method entities.PlanningMethod,
	cctx Context,
) (entities.Quantity, error) {
	line := snapshot.Line(lineID)
	if line == nil {
		return 0, fmt.Errorf("line %s: %w", lineID, entities.ErrNotFound)
	}
	if !snapshot.Calendar().IsWorkingDay(lineID, date) {
		return 0, nil
	}

	available := line.DailyCapacity - snapshot.Used(lineID, date, cctx.OrderID)
	if available < 0 {
		available = 0
	}

	switch method {
	case entities.Flat:
		return available, nil
	case entities.RampUp:
		plan := snapshot.RampUpPlan(cctx.RampUpPlanID)
		if plan == nil {
			return 0, fmt.Errorf("%w: ramp-up plan %q not found", entities.ErrInvalidRampUpInputs, cctx.RampUpPlanID)
		}
		base, err := BaseDailyCapacity(line.OperatorCount, cctx.SMV)
		if err != nil {
			return 0, err
		}
		efficiency := plan.EfficiencyFor(cctx.PriorWorkingDays + 1)
		rampCapacity := entities.Quantity(
			decimal.NewFromInt(int64(base)).Mul(efficiency).Div(hundred).Floor().IntPart(),
		)
		if rampCapacity < available {
			return rampCapacity, nil
		}
		return available, nil
	default:
		return 0, fmt.Errorf("unsupported planning method %s", method)
	}
}

// BaseDailyCapacity is the theoretical daily output of a line at 100%
// efficiency: floor(540 * operators / smv)
func BaseDailyCapacity(operatorCount int, smv decimal.Decimal) (entities.Quantity, error) {
	if operatorCount <= 0 {
		return 0, fmt.Errorf("%w: operator count must be positive, got %d", entities.ErrInvalidRampUpInputs, operatorCount)
	}
	if !smv.IsPositive() {
		return 0, fmt.Errorf("%w: smv must be positive, got %s", entities.ErrInvalidRampUpInputs, smv)
	}
	minutes := decimal.NewFromInt(int64(entities.StandardMinutesPerDay * operatorCount))
	return entities.Quantity(minutes.Div(smv).Floor().IntPart()), nil
}

// LineLoad returns the per-day capacity view of a line over the closed range
// [from, to]
func (m *Model) LineLoad(
	snapshot *shared.AllocationSnapshot,
	lineID entities.LineID,
	from, to time.Time,
) ([]DayLoad, error) {
	line := snapshot.Line(lineID)
	if line == nil {
		return nil, fmt.Errorf("line %s: %w", lineID, entities.ErrNotFound)
	}
	from, to = entities.NormalizeDate(from), entities.NormalizeDate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s before start %s",
			entities.ErrInvalidDate, entities.FormatDate(to), entities.FormatDate(from))
	}

	var rows []DayLoad
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		row := DayLoad{
			Date:    d,
			Working: snapshot.Calendar().IsWorkingDay(lineID, d),
			Used:    snapshot.Used(lineID, d, ""),
		}
		if row.Working {
			row.Capacity = line.DailyCapacity
		}
		if free := row.Capacity - row.Used; free > 0 {
			row.Free = free
		}
		rows = append(rows, row)
	}
	return rows, nil
}
