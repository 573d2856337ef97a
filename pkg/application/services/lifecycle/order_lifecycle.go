package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vsinha/lineplan/pkg/application/services/shared"
	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
)

// OrderLifecycle owns every write to an order's status and schedule fields.
// Other components compute proposals and hand them over here.
type OrderLifecycle struct {
	orders repositories.OrderRepository
	now    func() time.Time
	newID  func() entities.OrderID
}

// NewOrderLifecycle creates a lifecycle committing through orders. A nil
// repository is allowed for in-memory planning that never commits.
func NewOrderLifecycle(orders repositories.OrderRepository) *OrderLifecycle {
	return &OrderLifecycle{
		orders: orders,
		now:    time.Now,
		newID: func() entities.OrderID {
			return entities.OrderID(uuid.NewString())
		},
	}
}

// ApplyProposal moves order to scheduled with the proposed schedule. The
// order is left untouched if the result would not validate.
func (l *OrderLifecycle) ApplyProposal(order *entities.Order, proposal *entities.Schedule) error {
	if order.IsRetired() {
		return fmt.Errorf("%w: order %s was split and retired", entities.ErrInvalidTransition, order.ID)
	}
	if proposal == nil {
		return fmt.Errorf("%w: order %s: empty proposal", entities.ErrInvalidTransition, order.ID)
	}

	prevStatus, prevSchedule := order.Status, order.Schedule
	order.Status = entities.Scheduled
	order.Schedule = proposal.Clone()
	if err := order.Validate(); err != nil {
		order.Status, order.Schedule = prevStatus, prevSchedule
		return fmt.Errorf("rejected proposal: %w", err)
	}
	order.UpdatedAt = l.now()
	return nil
}

// MoveToPending clears the schedule of a scheduled order
func (l *OrderLifecycle) MoveToPending(order *entities.Order) error {
	if !order.IsScheduled() {
		return fmt.Errorf("%w: order %s is %s, not scheduled", entities.ErrInvalidTransition, order.ID, order.Status)
	}
	order.Status = entities.Pending
	order.Schedule = nil
	order.UpdatedAt = l.now()
	return nil
}

// Split partitions a pending order into two pending children. firstQuantity
// goes to the first child and the rest to the second; the parent is retired
// in place and kept for audit.
func (l *OrderLifecycle) Split(order *entities.Order, firstQuantity entities.Quantity) (*entities.Order, *entities.Order, error) {
	if order.IsRetired() {
		return nil, nil, fmt.Errorf("%w: order %s is already retired", entities.ErrInvalidTransition, order.ID)
	}
	if order.Status != entities.Pending {
		return nil, nil, fmt.Errorf("%w: only pending orders can be split, %s is %s",
			entities.ErrInvalidTransition, order.ID, order.Status)
	}
	if firstQuantity <= 0 || firstQuantity >= order.OrderQuantity {
		return nil, nil, fmt.Errorf("split quantity must be between 1 and %d, got %d",
			order.OrderQuantity-1, firstQuantity)
	}

	now := l.now()
	child := func(qty entities.Quantity) (*entities.Order, error) {
		c, err := entities.NewOrder(l.newID(), order.PONumber, order.StyleID, qty, order.SMV)
		if err != nil {
			return nil, err
		}
		c.ParentID = order.ID
		c.CreatedAt = now
		c.UpdatedAt = now
		return c, nil
	}

	first, err := child(firstQuantity)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create split child: %w", err)
	}
	second, err := child(order.OrderQuantity - firstQuantity)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create split child: %w", err)
	}

	order.RetiredAt = &now
	order.UpdatedAt = now
	return first, second, nil
}

// NewChangeSet packages the given orders into one atomic write guarded by
// the line revisions recorded in snapshot
func (l *OrderLifecycle) NewChangeSet(
	snapshot *shared.AllocationSnapshot,
	updates []*entities.Order,
	creates []*entities.Order,
) *repositories.ChangeSet {
	return &repositories.ChangeSet{
		Updates:       updates,
		Creates:       creates,
		LineRevisions: snapshot.LineRevisions(),
		CommittedAt:   l.now(),
	}
}

// Commit writes cs atomically. Inside the store transaction the current
// allocations of every touched line are re-read and the change set is
// overlaid on them; if any line would exceed its daily capacity or hold units
// on a non-working day the write is refused with entities.ErrAllocationConflict.
func (l *OrderLifecycle) Commit(ctx context.Context, snapshot *shared.AllocationSnapshot, cs *repositories.ChangeSet) error {
	if l.orders == nil {
		return fmt.Errorf("order lifecycle has no repository to commit to")
	}
	if cs.IsEmpty() {
		return nil
	}
	for _, o := range append(append([]*entities.Order{}, cs.Updates...), cs.Creates...) {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("refusing commit: %w", err)
		}
	}
	touched := cs.TouchedLines()
	for _, id := range touched {
		if snapshot.Line(id) == nil {
			return fmt.Errorf("line %s: %w", id, entities.ErrNotFound)
		}
	}

	check := func(current map[entities.LineID][]*entities.Order) error {
		after := shared.NewAllocationSnapshot(snapshot.Calendar())
		for _, id := range touched {
			after.AddLine(snapshot.Line(id))
			for _, o := range current[id] {
				after.PutOrder(o)
			}
		}
		for _, o := range cs.Updates {
			after.PutOrder(o)
		}
		for _, o := range cs.Creates {
			after.PutOrder(o)
		}
		for _, id := range touched {
			if err := after.CheckInvariant(id); err != nil {
				return fmt.Errorf("%w: %v", entities.ErrAllocationConflict, err)
			}
		}
		return nil
	}

	if err := l.orders.Commit(ctx, cs, check); err != nil {
		return fmt.Errorf("failed to commit %d updates and %d creates: %w", len(cs.Updates), len(cs.Creates), err)
	}
	return nil
}
