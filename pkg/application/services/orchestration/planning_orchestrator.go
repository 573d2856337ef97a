package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/application/services/allocation"
	"github.com/vsinha/lineplan/pkg/application/services/batch"
	"github.com/vsinha/lineplan/pkg/application/services/capacity"
	"github.com/vsinha/lineplan/pkg/application/services/conflict"
	"github.com/vsinha/lineplan/pkg/application/services/lifecycle"
	"github.com/vsinha/lineplan/pkg/application/services/reflow"
	"github.com/vsinha/lineplan/pkg/application/services/shared"
	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
	"github.com/vsinha/lineplan/pkg/infrastructure/events"
	"github.com/vsinha/lineplan/pkg/infrastructure/lock"
)

// ErrInvalidIntent means a required field of an intent is missing or malformed
var ErrInvalidIntent = errors.New("invalid scheduling intent")

// Options tunes the orchestrator
type Options struct {
	// CommitRetries is how many times a commit refused with
	// entities.ErrAllocationConflict is retried on a fresh snapshot
	CommitRetries     int
	AllowPartialPlans bool
}

// Orchestrator is the entry point for scheduling intents. It coordinates the
// snapshot loader, conflict detection, reflow resolution and the order
// lifecycle, and publishes events once a change has committed.
type Orchestrator struct {
	store     repositories.Store
	loader    *shared.SnapshotLoader
	capacity  *capacity.Model
	resolver  *reflow.Resolver
	batch     *batch.Scheduler
	lifecycle *lifecycle.OrderLifecycle
	locker    lock.Locker
	publisher events.Publisher
	logger    *slog.Logger
	options   Options
}

// NewOrchestrator wires the planning services over store. locker may be nil,
// in which case lines are not locked and the revision check alone guards
// concurrent commits.
func NewOrchestrator(
	store repositories.Store,
	locker lock.Locker,
	publisher events.Publisher,
	logger *slog.Logger,
	options Options,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if options.CommitRetries < 0 {
		options.CommitRetries = 0
	}

	model := capacity.NewModel()
	allocator := allocation.NewAllocator(model)
	lc := lifecycle.NewOrderLifecycle(store)
	resolver := reflow.NewResolver(allocator, conflict.NewDetector(allocator), lc, logger,
		reflow.Options{AllowPartialPlans: options.AllowPartialPlans})

	return &Orchestrator{
		store:     store,
		loader:    shared.NewSnapshotLoader(store, store, store, store),
		capacity:  model,
		resolver:  resolver,
		batch:     batch.NewScheduler(resolver, lc, logger),
		lifecycle: lc,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
		options:   options,
	}
}

// Schedule places one order on a line. Conflicts without a placement policy
// are returned as *dto.PlacementChoice.
func (o *Orchestrator) Schedule(ctx context.Context, intent dto.ScheduleIntent) (*dto.ScheduleResult, error) {
	if intent.OrderID == "" || intent.LineID == "" {
		return nil, fmt.Errorf("%w: order_id and line_id are required", ErrInvalidIntent)
	}
	if intent.TargetDate.IsZero() {
		return nil, fmt.Errorf("%w: target_date is required", entities.ErrInvalidDate)
	}
	target := entities.NormalizeDate(intent.TargetDate)
	logger := o.logger.With("order_id", intent.OrderID, "line_id", intent.LineID)
	logger.Info("scheduling order",
		"target_date", entities.FormatDate(target), "method", intent.PlanningMethod.String(), "policy", intent.PlacementPolicy.String())

	unlock, err := o.lockLine(ctx, intent.LineID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		res       *reflow.Resolution
		committed *shared.AllocationSnapshot
	)
	attempts, err := o.withRetries(logger, func() error {
		snapshot, err := o.loader.Load(ctx, intent.LineID, []entities.OrderID{intent.OrderID})
		if err != nil {
			return err
		}
		if err := validateTarget(snapshot, intent.LineID, target); err != nil {
			return err
		}
		if err := validateMethod(snapshot, intent.PlanningMethod, intent.RampUpPlanID); err != nil {
			return err
		}

		res, err = o.resolver.Resolve(snapshot, reflow.Placement{
			OrderID:      intent.OrderID,
			LineID:       intent.LineID,
			StartDate:    target,
			Method:       intent.PlanningMethod,
			RampUpPlanID: intent.RampUpPlanID,
			Policy:       intent.PlacementPolicy,
		})
		if err != nil {
			var choice *reflow.ChoiceRequiredError
			if errors.As(err, &choice) {
				logger.Info("placement choice required", "conflicts", len(choice.Conflicts))
				return dto.NewPlacementChoice(intent.OrderID, -1, target, choice.Conflicts)
			}
			return err
		}

		if err := o.commit(ctx, snapshot, res.Snapshot, res.Machine); err != nil {
			return err
		}
		committed = res.Snapshot
		return nil
	})
	if err != nil {
		logger.Warn("scheduling failed", "attempts", attempts, "error", err)
		return nil, err
	}

	result := newResult(committed, []*reflow.Resolution{res}, attempts)
	logger.Info("schedule committed", "displaced", len(result.Displaced), "attempts", attempts, "partial", result.Partial)
	o.publish(ctx, logger, scheduleEvents(committed, intent.LineID, []*reflow.Resolution{res}, attempts))
	return result, nil
}

// ScheduleBatch places an ordered selection back-to-back from one target
// date. The whole batch commits in one change set or not at all; a pause for
// a placement decision comes back as *dto.PlacementChoice with BatchIndex set.
func (o *Orchestrator) ScheduleBatch(ctx context.Context, intent dto.BatchIntent) (*dto.ScheduleResult, error) {
	if intent.LineID == "" {
		return nil, fmt.Errorf("%w: line_id is required", ErrInvalidIntent)
	}
	if len(intent.Orders) == 0 {
		return nil, fmt.Errorf("%w: batch has no orders", ErrInvalidIntent)
	}
	if intent.TargetDate.IsZero() {
		return nil, fmt.Errorf("%w: target_date is required", entities.ErrInvalidDate)
	}
	target := entities.NormalizeDate(intent.TargetDate)
	logger := o.logger.With("line_id", intent.LineID)
	logger.Info("scheduling batch", "orders", len(intent.Orders), "target_date", entities.FormatDate(target))

	ids := make([]entities.OrderID, 0, len(intent.Orders))
	members := make([]batch.Member, 0, len(intent.Orders))
	for _, m := range intent.Orders {
		if m.OrderID == "" {
			return nil, fmt.Errorf("%w: batch member without order_id", ErrInvalidIntent)
		}
		ids = append(ids, m.OrderID)
		members = append(members, batch.Member{OrderID: m.OrderID, Method: m.PlanningMethod, RampUpPlanID: m.RampUpPlanID})
	}

	unlock, err := o.lockLine(ctx, intent.LineID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var plan *batch.Plan
	attempts, err := o.withRetries(logger, func() error {
		snapshot, err := o.loader.Load(ctx, intent.LineID, ids)
		if err != nil {
			return err
		}
		if err := validateTarget(snapshot, intent.LineID, target); err != nil {
			return err
		}
		for _, m := range members {
			if err := validateMethod(snapshot, m.Method, m.RampUpPlanID); err != nil {
				return fmt.Errorf("order %s: %w", m.OrderID, err)
			}
		}

		plan, err = o.batch.Plan(snapshot, batch.Request{
			LineID:        intent.LineID,
			StartDate:     target,
			Members:       members,
			DefaultPolicy: intent.DefaultPolicy,
			Decisions:     intent.Decisions,
		})
		if err != nil {
			var pause *batch.PauseError
			if errors.As(err, &pause) {
				p := pause.Pause
				return dto.NewPlacementChoice(p.OrderID, p.Index, p.StartDate, p.Conflicts)
			}
			return err
		}

		machines := make([]*reflow.Machine, 0, len(plan.Resolutions))
		for _, res := range plan.Resolutions {
			machines = append(machines, res.Machine)
		}
		return o.commit(ctx, snapshot, plan.Snapshot, machines...)
	})
	if err != nil {
		logger.Warn("batch scheduling failed", "attempts", attempts, "error", err)
		return nil, err
	}

	result := newResult(plan.Snapshot, plan.Resolutions, attempts)
	logger.Info("batch committed", "orders", len(ids), "displaced", len(result.Displaced), "attempts", attempts)
	o.publish(ctx, logger, scheduleEvents(plan.Snapshot, intent.LineID, plan.Resolutions, attempts))
	return result, nil
}

// commit writes every order that differs between base and working in one
// change set guarded by the line revisions read into base
func (o *Orchestrator) commit(ctx context.Context, base, working *shared.AllocationSnapshot, machines ...*reflow.Machine) error {
	cs := o.lifecycle.NewChangeSet(base, shared.ChangedOrders(base, working), nil)
	if err := o.lifecycle.Commit(ctx, base, cs); err != nil {
		for _, m := range machines {
			_ = m.Transition(reflow.Aborted)
		}
		return err
	}
	for _, m := range machines {
		if err := m.Transition(reflow.Committed); err != nil {
			o.logger.Error("resolution state out of step with commit", "state", m.State().String(), "error", err)
		}
	}
	return nil
}

// withRetries runs fn once plus CommitRetries more times while it fails with
// entities.ErrAllocationConflict. It returns the number of attempts made.
func (o *Orchestrator) withRetries(logger *slog.Logger, fn func() error) (int, error) {
	limit := 1 + o.options.CommitRetries
	var err error
	for attempt := 1; attempt <= limit; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, entities.ErrAllocationConflict) {
			return attempt, err
		}
		if attempt < limit {
			logger.Warn("commit refused, retrying on a fresh snapshot", "attempt", attempt, "error", err)
		}
	}
	return limit, err
}

func (o *Orchestrator) lockLine(ctx context.Context, lineID entities.LineID) (func(), error) {
	if o.locker == nil {
		return func() {}, nil
	}
	release, err := o.locker.Acquire(ctx, lock.LineKey(string(lineID)))
	if err != nil {
		return nil, fmt.Errorf("failed to lock line %s: %w", lineID, err)
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("failed to release line lock", "line_id", lineID, "error", err)
		}
	}, nil
}

// publish never fails the operation: the change is already committed
func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	if err := o.publisher.Publish(ctx, evts...); err != nil {
		logger.Error("failed to publish schedule events", "events", len(evts), "error", err)
	}
}

func validateTarget(snapshot *shared.AllocationSnapshot, lineID entities.LineID, target time.Time) error {
	line := snapshot.Line(lineID)
	if line == nil {
		return fmt.Errorf("line %s: %w", lineID, entities.ErrNotFound)
	}
	if !line.Active {
		return fmt.Errorf("line %s: %w", lineID, entities.ErrLineInactive)
	}
	if !snapshot.Calendar().IsWorkingDay(lineID, target) {
		return fmt.Errorf("%w: %s is not a working day on line %s", entities.ErrInvalidDate, entities.FormatDate(target), lineID)
	}
	return nil
}

func validateMethod(snapshot *shared.AllocationSnapshot, method entities.PlanningMethod, planID entities.RampUpPlanID) error {
	if method != entities.RampUp {
		return nil
	}
	if planID == "" {
		return fmt.Errorf("%w: ramp-up method needs a ramp_up_plan_id", entities.ErrInvalidRampUpInputs)
	}
	if snapshot.RampUpPlan(planID) == nil {
		return fmt.Errorf("ramp-up plan %s: %w", planID, entities.ErrNotFound)
	}
	return nil
}

// newResult reports every placed order from the committed snapshot, incoming
// orders first, then the orders they displaced
func newResult(committed *shared.AllocationSnapshot, resolutions []*reflow.Resolution, attempts int) *dto.ScheduleResult {
	result := &dto.ScheduleResult{Attempts: attempts}
	incoming := make(map[entities.OrderID]bool, len(resolutions))
	for _, res := range resolutions {
		incoming[res.Incoming.OrderID] = true
		if res.Partial {
			result.Partial = true
		}
		if order := committed.Order(res.Incoming.OrderID); order != nil && order.IsScheduled() {
			result.Committed = append(result.Committed, dto.NewCommittedPlan(order, false))
		}
	}

	seen := make(map[entities.OrderID]bool)
	for _, res := range resolutions {
		for _, p := range res.Displaced {
			if incoming[p.OrderID] || seen[p.OrderID] {
				continue
			}
			seen[p.OrderID] = true
			if order := committed.Order(p.OrderID); order != nil && order.IsScheduled() {
				result.Committed = append(result.Committed, dto.NewCommittedPlan(order, true))
				result.Displaced = append(result.Displaced, p.OrderID)
			}
		}
	}
	return result
}

func scheduleEvents(
	committed *shared.AllocationSnapshot,
	lineID entities.LineID,
	resolutions []*reflow.Resolution,
	attempts int,
) []events.Event {
	var (
		out       []events.Event
		incoming  []entities.OrderID
		displaced []entities.OrderID
		isMember  = make(map[entities.OrderID]bool, len(resolutions))
		seen      = make(map[entities.OrderID]bool)
	)
	for _, res := range resolutions {
		isMember[res.Incoming.OrderID] = true
	}
	for _, res := range resolutions {
		id := res.Incoming.OrderID
		incoming = append(incoming, id)
		if order := committed.Order(id); order != nil {
			out = append(out, events.NewOrderScheduledEvent(order))
		}
		for _, p := range res.Displaced {
			if isMember[p.OrderID] || seen[p.OrderID] {
				continue
			}
			seen[p.OrderID] = true
			displaced = append(displaced, p.OrderID)
			if order := committed.Order(p.OrderID); order != nil {
				out = append(out, events.NewOrderDisplacedEvent(order, id))
			}
		}
	}
	return append(out, events.NewCascadeCommittedEvent(lineID, incoming, displaced, attempts))
}
