package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/application/services/capacity"
	"github.com/vsinha/lineplan/pkg/application/services/shared"
	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
	"github.com/vsinha/lineplan/pkg/domain/services"
	"github.com/vsinha/lineplan/pkg/infrastructure/events"
)

// Unschedule returns a scheduled order to pending and frees its capacity
func (o *Orchestrator) Unschedule(ctx context.Context, orderID entities.OrderID) (*dto.ScheduleResult, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: order_id is required", ErrInvalidIntent)
	}
	current, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !current.IsScheduled() {
		return nil, fmt.Errorf("%w: order %s is %s, not scheduled", entities.ErrInvalidTransition, orderID, current.Status)
	}
	lineID := current.LineID()
	logger := o.logger.With("order_id", orderID, "line_id", lineID)

	unlock, err := o.lockLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var released *entities.Order
	attempts, err := o.withRetries(logger, func() error {
		snapshot, err := o.loader.Load(ctx, lineID, []entities.OrderID{orderID})
		if err != nil {
			return err
		}
		working := snapshot.Clone()
		order := working.Order(orderID)
		if order == nil {
			return fmt.Errorf("order %s: %w", orderID, entities.ErrNotFound)
		}
		if order.IsScheduled() {
			lineID = order.LineID()
		}
		if err := o.lifecycle.MoveToPending(order); err != nil {
			return err
		}
		working.PutOrder(order)
		if err := o.commit(ctx, snapshot, working); err != nil {
			return err
		}
		released = order
		return nil
	})
	if err != nil {
		logger.Warn("unschedule failed", "attempts", attempts, "error", err)
		return nil, err
	}

	logger.Info("order unscheduled", "attempts", attempts)
	o.publish(ctx, logger, []events.Event{events.NewOrderUnscheduledEvent(released, lineID)})
	return &dto.ScheduleResult{Released: []entities.OrderID{orderID}, Attempts: attempts}, nil
}

// Split partitions a pending order into two pending children. The retired
// parent and both children are written in one change set.
func (o *Orchestrator) Split(ctx context.Context, orderID entities.OrderID, firstQuantity entities.Quantity) (*dto.SplitResult, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: order_id is required", ErrInvalidIntent)
	}
	logger := o.logger.With("order_id", orderID)

	// a pending order holds no capacity, so no line revision guards the write
	// and the empty calendar is never consulted
	empty := shared.NewAllocationSnapshot(services.NewWorkingCalendar(nil))

	var parent, first, second *entities.Order
	attempts, err := o.withRetries(logger, func() error {
		var err error
		parent, err = o.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if firstQuantity <= 0 || firstQuantity >= parent.OrderQuantity {
			return fmt.Errorf("%w: split quantity must be between 1 and %d, got %d",
				ErrInvalidIntent, parent.OrderQuantity-1, firstQuantity)
		}
		first, second, err = o.lifecycle.Split(parent, firstQuantity)
		if err != nil {
			return err
		}
		cs := o.lifecycle.NewChangeSet(empty, []*entities.Order{parent}, []*entities.Order{first, second})
		return o.lifecycle.Commit(ctx, empty, cs)
	})
	if err != nil {
		logger.Warn("split failed", "attempts", attempts, "error", err)
		return nil, err
	}

	logger.Info("order split", "first", first.ID, "second", second.ID,
		"first_quantity", first.OrderQuantity, "second_quantity", second.OrderQuantity)
	o.publish(ctx, logger, []events.Event{events.NewOrderSplitEvent(parent, first, second)})
	return &dto.SplitResult{ParentID: parent.ID, Children: []*entities.Order{first, second}}, nil
}

// Capacity returns the per-day load of a line over the closed range [from, to]
func (o *Orchestrator) Capacity(ctx context.Context, lineID entities.LineID, from, to time.Time) ([]capacity.DayLoad, error) {
	if lineID == "" {
		return nil, fmt.Errorf("%w: line_id is required", ErrInvalidIntent)
	}
	snapshot, err := o.loader.Load(ctx, lineID, nil)
	if err != nil {
		return nil, err
	}
	return o.capacity.LineLoad(snapshot, lineID, from, to)
}

func (o *Orchestrator) GetOrder(ctx context.Context, id entities.OrderID) (*entities.Order, error) {
	return o.store.GetOrder(ctx, id)
}

func (o *Orchestrator) ListOrders(ctx context.Context, filter repositories.OrderFilter) ([]*entities.Order, error) {
	return o.store.ListOrders(ctx, filter)
}

func (o *Orchestrator) Lines(ctx context.Context) ([]*entities.ProductionLine, error) {
	return o.store.GetAllLines(ctx)
}
