package allocation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/lineplan/pkg/application/services/capacity"
	"github.com/vsinha/lineplan/pkg/application/services/shared"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// Request describes one order to place on a line from a start date
type Request struct {
	OrderID      entities.OrderID
	LineID       entities.LineID
	Quantity     entities.Quantity
	StartDate    time.Time
	Method       entities.PlanningMethod
	SMV          decimal.Decimal
	RampUpPlanID entities.RampUpPlanID
	// FirstDayOverride caps the first working day, used to fill capacity left
	// over by a previous order on that exact day
	FirstDayOverride *entities.Quantity
}

// Allocation is the day-by-day plan produced for a request
type Allocation struct {
	LineID    entities.LineID
	DailyPlan entities.DailyPlan
	StartDate time.Time
	EndDate   time.Time
	Requested entities.Quantity
	Shortfall entities.Quantity
}

// Complete reports whether the whole requested quantity was placed
func (a *Allocation) Complete() bool {
	return a.Shortfall == 0
}

// Schedule converts the allocation into the schedule fields of an order
func (a *Allocation) Schedule(method entities.PlanningMethod, planID entities.RampUpPlanID) *entities.Schedule {
	return &entities.Schedule{
		LineID:        a.LineID,
		PlanStartDate: a.StartDate,
		PlanEndDate:   a.EndDate,
		DailyPlan:     a.DailyPlan.Clone(),
		Method:        method,
		RampUpPlanID:  planID,
	}
}

// AllocationError reports an allocation that could not place the full
// quantity. Partial is set when some days were filled before the horizon.
type AllocationError struct {
	OrderID entities.OrderID
	Err     error
	Partial *Allocation
}

func (e *AllocationError) Error() string {
	if e.Partial != nil {
		return fmt.Sprintf("order %s: %v (placed %d of %d, ending %s)", e.OrderID, e.Err,
			e.Partial.DailyPlan.Total(), e.Partial.Requested, entities.FormatDate(e.Partial.EndDate))
	}
	return fmt.Sprintf("order %s: %v", e.OrderID, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// PartialAllocation extracts the partial plan carried by a horizon overrun
func PartialAllocation(err error) (*Allocation, bool) {
	var allocErr *AllocationError
	if errors.As(err, &allocErr) && allocErr.Partial != nil {
		return allocErr.Partial, true
	}
	return nil, false
}

// Allocator greedily fills consecutive working days from a start date
type Allocator struct {
	capacity *capacity.Model
}

// NewAllocator creates an allocator over the given capacity model
func NewAllocator(model *capacity.Model) *Allocator {
	if model == nil {
		model = capacity.NewModel()
	}
	return &Allocator{capacity: model}
}

// Capacity returns the capacity model the allocator reads
func (a *Allocator) Capacity() *capacity.Model {
	return a.capacity
}

// Allocate walks forward from req.StartDate filling each working day up to its
// available capacity. The snapshot is only read.
//
// When the horizon is reached with units still unplaced, the partial
// allocation is returned together with an *AllocationError wrapping
// entities.ErrPlanningHorizonExceeded. If nothing could be placed at all the
// error wraps entities.ErrNoAvailableCapacity and the allocation is nil.
func (a *Allocator) Allocate(snapshot *shared.AllocationSnapshot, req Request) (*Allocation, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("order %s: quantity must be positive, got %d", req.OrderID, req.Quantity)
	}
	if snapshot.Line(req.LineID) == nil {
		return nil, fmt.Errorf("line %s: %w", req.LineID, entities.ErrNotFound)
	}

	start := entities.NormalizeDate(req.StartDate)
	remaining := req.Quantity
	firstWorkingDay := true
	var plan entities.DailyPlan

	for cursor := start; remaining > 0; cursor = cursor.AddDate(0, 0, 1) {
		if entities.DaysBetween(start, cursor) > entities.HorizonDays {
			break
		}
		if !snapshot.Calendar().IsWorkingDay(req.LineID, cursor) {
			continue
		}

		dayCapacity, err := a.capacity.EffectiveCapacity(snapshot, req.LineID, cursor, req.Method, capacity.Context{
			OrderID:          req.OrderID,
			SMV:              req.SMV,
			RampUpPlanID:     req.RampUpPlanID,
			PriorWorkingDays: len(plan),
		})
		if err != nil {
			return nil, fmt.Errorf("order %s on %s: %w", req.OrderID, entities.FormatDate(cursor), err)
		}
		if firstWorkingDay {
			firstWorkingDay = false
			if req.FirstDayOverride != nil && *req.FirstDayOverride < dayCapacity {
				dayCapacity = *req.FirstDayOverride
			}
		}

		planned := min(remaining, dayCapacity)
		if planned > 0 {
			plan = append(plan, entities.DayAllocation{Date: cursor, Quantity: planned})
			remaining -= planned
		}
	}

	if len(plan) == 0 {
		return nil, &AllocationError{OrderID: req.OrderID, Err: entities.ErrNoAvailableCapacity}
	}

	result := &Allocation{
		LineID:    req.LineID,
		DailyPlan: plan,
		StartDate: plan.StartDate(),
		EndDate:   plan.EndDate(),
		Requested: req.Quantity,
		Shortfall: remaining,
	}
	if remaining > 0 {
		return result, &AllocationError{OrderID: req.OrderID, Err: entities.ErrPlanningHorizonExceeded, Partial: result}
	}
	return result, nil
}
