package memory

import (
	"context"
	"sync"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
)

// Store provides in-memory storage for every planning repository. Records
// are copied on the way in and out so callers never share state with it.
type Store struct {
	mu sync.RWMutex

	lines     map[entities.LineID]*entities.ProductionLine
	revisions map[entities.LineID]int64
	holidays  []*entities.Holiday
	plans     map[entities.RampUpPlanID]*entities.RampUpPlan
	orders    map[entities.OrderID]*entities.Order
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		lines:     make(map[entities.LineID]*entities.ProductionLine),
		revisions: make(map[entities.LineID]int64),
		plans:     make(map[entities.RampUpPlanID]*entities.RampUpPlan),
		orders:    make(map[entities.OrderID]*entities.Order),
	}
}

// Verify interface compliance
var _ repositories.Store = (*Store)(nil)

// MustSeed loads master data and orders, panicking on the first error. Meant
// for tests and demos.
func (s *Store) MustSeed(
	lines []*entities.ProductionLine,
	holidays []*entities.Holiday,
	plans []*entities.RampUpPlan,
	orders []*entities.Order,
) {
	ctx := context.Background()
	for _, line := range lines {
		if err := s.SaveLine(ctx, line); err != nil {
			panic(err)
		}
	}
	for _, h := range holidays {
		if err := s.SaveHoliday(ctx, h); err != nil {
			panic(err)
		}
	}
	for _, p := range plans {
		if err := s.SaveRampUpPlan(ctx, p); err != nil {
			panic(err)
		}
	}
	for _, o := range orders {
		if err := s.CreateOrder(ctx, o); err != nil {
			panic(err)
		}
	}
}

// Close is a no-op for the in-memory store
func (s *Store) Close() error {
	return nil
}
