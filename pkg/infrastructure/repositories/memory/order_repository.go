package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
)

// GetOrder returns an order, including retired ones
func (s *Store) GetOrder(_ context.Context, id entities.OrderID) (*entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, fmt.Errorf("order %s: %w", id, entities.ErrNotFound)
	}
	return order.Clone(), nil
}

// GetOrders returns the listed orders in the requested order
func (s *Store) GetOrders(_ context.Context, ids []entities.OrderID) ([]*entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*entities.Order, 0, len(ids))
	for _, id := range ids {
		order, exists := s.orders[id]
		if !exists {
			return nil, fmt.Errorf("order %s: %w", id, entities.ErrNotFound)
		}
		orders = append(orders, order.Clone())
	}
	return orders, nil
}

// ListOrders returns orders matching the filter ordered by ID
func (s *Store) ListOrders(_ context.Context, filter repositories.OrderFilter) ([]*entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []*entities.Order
	for _, order := range s.orders {
		if matches(order, filter) {
			orders = append(orders, order.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// ListScheduledOrders returns active scheduled orders on a line
func (s *Store) ListScheduledOrders(_ context.Context, lineID entities.LineID) ([]*entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scheduledOn(lineID), nil
}

// CreateOrder inserts a new order at version 1
func (s *Store) CreateOrder(_ context.Context, order *entities.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	stored := order.Clone()
	stored.Version = 1
	s.orders[order.ID] = stored
	order.Version = 1
	if order.IsScheduled() {
		s.revisions[order.LineID()]++
	}
	return nil
}

// Commit applies cs under the store lock after verifying line revisions and
// order versions and running check against the current allocations
func (s *Store) Commit(_ context.Context, cs *repositories.ChangeSet, check repositories.CommitCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for lineID, rev := range cs.LineRevisions {
		if current := s.revisions[lineID]; current != rev {
			return fmt.Errorf("%w: line %s moved from revision %d to %d",
				entities.ErrAllocationConflict, lineID, rev, current)
		}
	}
	for _, o := range cs.Updates {
		stored, exists := s.orders[o.ID]
		if !exists {
			return fmt.Errorf("order %s: %w", o.ID, entities.ErrNotFound)
		}
		if stored.Version != o.Version {
			return fmt.Errorf("%w: order %s moved from version %d to %d",
				entities.ErrAllocationConflict, o.ID, o.Version, stored.Version)
		}
	}
	for _, o := range cs.Creates {
		if _, exists := s.orders[o.ID]; exists {
			return fmt.Errorf("order %s already exists", o.ID)
		}
	}

	touched := cs.TouchedLines()
	if check != nil {
		current := make(map[entities.LineID][]*entities.Order, len(touched))
		for _, lineID := range touched {
			current[lineID] = s.scheduledOn(lineID)
		}
		if err := check(current); err != nil {
			return err
		}
	}

	for _, o := range cs.Updates {
		o.Version++
		o.UpdatedAt = cs.CommittedAt
		s.orders[o.ID] = o.Clone()
	}
	for _, o := range cs.Creates {
		o.Version = 1
		if o.CreatedAt.IsZero() {
			o.CreatedAt = cs.CommittedAt
		}
		s.orders[o.ID] = o.Clone()
	}
	for _, lineID := range touched {
		s.revisions[lineID]++
	}
	return nil
}

// scheduledOn must be called with the lock held
func (s *Store) scheduledOn(lineID entities.LineID) []*entities.Order {
	var orders []*entities.Order
	for _, order := range s.orders {
		if order.IsScheduled() && !order.IsRetired() && order.LineID() == lineID {
			orders = append(orders, order.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		a, b := orders[i].Schedule.PlanStartDate, orders[j].Schedule.PlanStartDate
		if !a.Equal(b) {
			return a.Before(b)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders
}

func matches(order *entities.Order, filter repositories.OrderFilter) bool {
	if order.IsRetired() && !filter.IncludeRetired {
		return false
	}
	if filter.Status != nil && order.Status != *filter.Status {
		return false
	}
	if filter.LineID != "" && order.LineID() != filter.LineID {
		return false
	}
	return true
}
