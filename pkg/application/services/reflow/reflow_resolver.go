package reflow

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vsinha/lineplan/pkg/application/services/allocation"
	"github.com/vsinha/lineplan/pkg/application/services/capacity"
	"github.com/vsinha/lineplan/pkg/application/services/conflict"
	"github.com/vsinha/lineplan/pkg/application/services/lifecycle"
	"github.com/vsinha/lineplan/pkg/application/services/shared"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// Placement is a resolved intent to put one order on a line
type Placement struct {
	OrderID      entities.OrderID
	LineID       entities.LineID
	StartDate    time.Time
	Method       entities.PlanningMethod
	RampUpPlanID entities.RampUpPlanID
	Policy       entities.PlacementPolicy
}

// Proposal is the new allocation computed for one order
type Proposal struct {
	OrderID    entities.OrderID
	Allocation *allocation.Allocation
}

// Resolution is the outcome of a placement decision. Snapshot is the working
// copy with every proposal applied; it is nil when the decision aborted.
type Resolution struct {
	Placement Placement
	Machine   *Machine
	Conflicts []*entities.Order
	Incoming  Proposal
	Displaced []Proposal
	// Partial is set when the incoming order was accepted short of its full
	// quantity because the horizon ran out
	Partial  bool
	Snapshot *shared.AllocationSnapshot
}

// ChoiceRequiredError signals conflicts for a placement without a policy
type ChoiceRequiredError struct {
	OrderID   entities.OrderID
	Conflicts []*entities.Order
}

func (e *ChoiceRequiredError) Error() string {
	return fmt.Sprintf("order %s overlaps %d scheduled orders: %v",
		e.OrderID, len(e.Conflicts), entities.ErrPlacementChoiceRequired)
}

func (e *ChoiceRequiredError) Unwrap() error {
	return entities.ErrPlacementChoiceRequired
}

// CascadeError reports the cascade member whose re-allocation failed
type CascadeError struct {
	OrderID entities.OrderID
	Index   int
	Err     error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("%v at member %d (order %s): %v", entities.ErrCascadeAborted, e.Index, e.OrderID, e.Err)
}

func (e *CascadeError) Unwrap() []error {
	return []error{entities.ErrCascadeAborted, e.Err}
}

// Options tune how strictly the resolver treats incomplete allocations
type Options struct {
	AllowPartialPlans bool
}

// Resolver decides where an incoming order goes and how displaced orders
// cascade behind it
type Resolver struct {
	allocator *allocation.Allocator
	detector  *conflict.Detector
	lifecycle *lifecycle.OrderLifecycle
	logger    *slog.Logger
	opts      Options
}

// NewResolver creates a resolver
func NewResolver(
	allocator *allocation.Allocator,
	detector *conflict.Detector,
	lc *lifecycle.OrderLifecycle,
	logger *slog.Logger,
	opts Options,
) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		allocator: allocator,
		detector:  detector,
		lifecycle: lc,
		logger:    logger,
		opts:      opts,
	}
}

// Resolve runs detection and, when a policy allows it, resolution for p on a
// clone of snapshot. The input snapshot is never modified.
func (r *Resolver) Resolve(snapshot *shared.AllocationSnapshot, p Placement) (*Resolution, error) {
	working := snapshot.Clone()
	res := &Resolution{Placement: p, Machine: NewMachine(), Snapshot: working}

	incoming := working.Order(p.OrderID)
	if incoming == nil {
		return r.abort(res, fmt.Errorf("order %s: %w", p.OrderID, entities.ErrNotFound))
	}
	if incoming.IsRetired() {
		return r.abort(res, fmt.Errorf("%w: order %s was split and retired", entities.ErrInvalidTransition, p.OrderID))
	}
	if incoming.IsScheduled() {
		if err := r.release(working, incoming); err != nil {
			return r.abort(res, err)
		}
	}

	req := r.request(incoming, p.LineID, p.StartDate, p.Method, p.RampUpPlanID)
	detection, err := r.detector.Detect(working, req)
	if err != nil {
		return r.abort(res, err)
	}
	res.Conflicts = detection.Conflicts

	if !detection.HasConflicts() {
		if err := res.Machine.Transition(Resolving); err != nil {
			return r.abort(res, err)
		}
		if err := r.place(res, incoming, detection.Estimate, detection.EstimateErr); err != nil {
			return r.abort(res, err)
		}
		return res, nil
	}

	if err := res.Machine.Transition(ConflictFound); err != nil {
		return r.abort(res, err)
	}
	r.logger.Debug("placement overlaps scheduled work",
		"order_id", p.OrderID, "line_id", p.LineID, "conflicts", len(res.Conflicts), "policy", p.Policy.String())

	if p.Policy == entities.NoPolicy {
		if err := res.Machine.Transition(AwaitingPlacementChoice); err != nil {
			return r.abort(res, err)
		}
		return res, &ChoiceRequiredError{OrderID: p.OrderID, Conflicts: res.Conflicts}
	}

	if err := res.Machine.Transition(Resolving); err != nil {
		return r.abort(res, err)
	}
	switch p.Policy {
	case entities.InsertBefore:
		err = r.insertBefore(res, incoming, req)
	case entities.InsertAfter:
		err = r.insertAfter(res, incoming, req)
	default:
		err = fmt.Errorf("unsupported placement policy %s", p.Policy)
	}
	if err != nil {
		return r.abort(res, err)
	}
	return res, nil
}

// insertBefore puts the incoming order at the exact start and re-places every
// conflict back-to-back behind it, in detection order
func (r *Resolver) insertBefore(res *Resolution, incoming *entities.Order, req allocation.Request) error {
	working := res.Snapshot

	type displaced struct {
		order  *entities.Order
		method entities.PlanningMethod
		planID entities.RampUpPlanID
	}
	queue := make([]displaced, 0, len(res.Conflicts))
	for _, c := range res.Conflicts {
		queue = append(queue, displaced{order: c, method: c.Schedule.Method, planID: c.Schedule.RampUpPlanID})
		if err := r.release(working, c); err != nil {
			return err
		}
	}

	alloc, allocErr := r.allocator.Allocate(working, req)
	if err := r.place(res, incoming, alloc, allocErr); err != nil {
		return err
	}

	cursor := res.Incoming.Allocation.EndDate
	for i, d := range queue {
		dreq := r.request(d.order, res.Placement.LineID, cursor.AddDate(0, 0, 1), d.method, d.planID)
		dalloc, err := r.allocator.Allocate(working, dreq)
		if err != nil {
			return &CascadeError{OrderID: d.order.ID, Index: i, Err: err}
		}
		if err := r.apply(working, d.order, dalloc, d.method, d.planID); err != nil {
			return &CascadeError{OrderID: d.order.ID, Index: i, Err: err}
		}
		res.Displaced = append(res.Displaced, Proposal{OrderID: d.order.ID, Allocation: dalloc})
		cursor = dalloc.EndDate
		r.logger.Debug("displaced order re-placed",
			"order_id", d.order.ID, "start", entities.FormatDate(dalloc.StartDate), "end", entities.FormatDate(dalloc.EndDate))
	}
	return nil
}

// insertAfter starts the incoming order on the latest conflict end, filling
// whatever that day has left, or the day after when nothing is left
func (r *Resolver) insertAfter(res *Resolution, incoming *entities.Order, req allocation.Request) error {
	var latestEnd time.Time
	for _, c := range res.Conflicts {
		if c.Schedule.PlanEndDate.After(latestEnd) {
			latestEnd = c.Schedule.PlanEndDate
		}
	}

	leftover, err := r.allocator.Capacity().EffectiveCapacity(res.Snapshot, req.LineID, latestEnd, req.Method, capacity.Context{
		OrderID:      req.OrderID,
		SMV:          req.SMV,
		RampUpPlanID: req.RampUpPlanID,
	})
	if err != nil {
		return err
	}

	if leftover > 0 {
		req.StartDate = latestEnd
		req.FirstDayOverride = &leftover
	} else {
		req.StartDate = latestEnd.AddDate(0, 0, 1)
		req.FirstDayOverride = nil
	}

	alloc, err := r.allocator.Allocate(res.Snapshot, req)
	return r.place(res, incoming, alloc, err)
}

// place applies the incoming order's allocation, honouring the partial plan
// policy when the horizon ran out
func (r *Resolver) place(res *Resolution, incoming *entities.Order, alloc *allocation.Allocation, allocErr error) error {
	if allocErr != nil {
		if !r.opts.AllowPartialPlans || alloc == nil || !errors.Is(allocErr, entities.ErrPlanningHorizonExceeded) {
			return allocErr
		}
		res.Partial = true
		r.logger.Warn("accepting partial plan", "order_id", incoming.ID, "shortfall", int64(alloc.Shortfall))
	}
	p := res.Placement
	if err := r.apply(res.Snapshot, incoming, alloc, p.Method, p.RampUpPlanID); err != nil {
		return err
	}
	res.Incoming = Proposal{OrderID: incoming.ID, Allocation: alloc}
	return nil
}

func (r *Resolver) apply(
	working *shared.AllocationSnapshot,
	order *entities.Order,
	alloc *allocation.Allocation,
	method entities.PlanningMethod,
	planID entities.RampUpPlanID,
) error {
	if err := r.lifecycle.ApplyProposal(order, alloc.Schedule(method, planID)); err != nil {
		return err
	}
	working.PutOrder(order)
	return nil
}

func (r *Resolver) release(working *shared.AllocationSnapshot, order *entities.Order) error {
	if err := r.lifecycle.MoveToPending(order); err != nil {
		return err
	}
	working.PutOrder(order)
	return nil
}

func (r *Resolver) request(
	order *entities.Order,
	lineID entities.LineID,
	start time.Time,
	method entities.PlanningMethod,
	planID entities.RampUpPlanID,
) allocation.Request {
	return allocation.Request{
		OrderID:      order.ID,
		LineID:       lineID,
		Quantity:     order.OrderQuantity,
		StartDate:    start,
		Method:       method,
		SMV:          order.SMV,
		RampUpPlanID: planID,
	}
}

func (r *Resolver) abort(res *Resolution, err error) (*Resolution, error) {
	_ = res.Machine.Transition(Aborted)
	res.Snapshot = nil
	res.Incoming = Proposal{}
	res.Displaced = nil
	return res, err
}
