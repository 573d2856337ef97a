package repositories

import (
	"context"
	"time"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// OrderFilter narrows ListOrders results. Zero values match everything.
type OrderFilter struct {
	Status         *entities.OrderStatus
	LineID         entities.LineID
	IncludeRetired bool
}

// ChangeSet is one atomic write produced by a scheduling operation.
//
// Updates carry the version the caller read; a store must refuse the whole
// set with entities.ErrAllocationConflict if any stored version differs, or
// if any line in LineRevisions has moved past the recorded revision. A
// successful commit bumps the version of every written order and the revision
// of every touched line.
type ChangeSet struct {
	Updates       []*entities.Order
	Creates       []*entities.Order
	LineRevisions map[entities.LineID]int64
	CommittedAt   time.Time
}

// IsEmpty reports whether the change set writes nothing
func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.Updates) == 0 && len(cs.Creates) == 0
}

// TouchedLines returns every line whose allocations the change set alters
func (cs *ChangeSet) TouchedLines() []entities.LineID {
	seen := make(map[entities.LineID]bool)
	var lines []entities.LineID
	add := func(id entities.LineID) {
		if id != "" && !seen[id] {
			seen[id] = true
			lines = append(lines, id)
		}
	}
	for id := range cs.LineRevisions {
		add(id)
	}
	for _, o := range cs.Updates {
		add(o.LineID())
	}
	for _, o := range cs.Creates {
		add(o.LineID())
	}
	return lines
}

// CommitCheck is invoked by a store inside its transaction with the current
// scheduled orders of every touched line. Returning an error aborts the write.
type CommitCheck func(current map[entities.LineID][]*entities.Order) error

// OrderRepository provides access to orders and their schedules
type OrderRepository interface {
	GetOrder(ctx context.Context, id entities.OrderID) (*entities.Order, error)
	GetOrders(ctx context.Context, ids []entities.OrderID) ([]*entities.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*entities.Order, error)
	// ListScheduledOrders returns active scheduled orders assigned to the line
	ListScheduledOrders(ctx context.Context, lineID entities.LineID) ([]*entities.Order, error)
	// CreateOrder inserts a new order
	CreateOrder(ctx context.Context, order *entities.Order) error
	// Commit applies the change set atomically after running check
	Commit(ctx context.Context, cs *ChangeSet, check CommitCheck) error
}

// Store bundles every repository a planning backend provides
type Store interface {
	LineRepository
	HolidayRepository
	RampUpPlanRepository
	OrderRepository
	Close() error
}
