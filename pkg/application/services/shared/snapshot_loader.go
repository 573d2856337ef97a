package shared

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
	"github.com/vsinha/lineplan/pkg/domain/services"
)

// SnapshotLoader reads a fresh AllocationSnapshot from persistence at every
// transaction boundary
type SnapshotLoader struct {
	lines    repositories.LineRepository
	holidays repositories.HolidayRepository
	plans    repositories.RampUpPlanRepository
	orders   repositories.OrderRepository
	now      func() time.Time
}

// NewSnapshotLoader creates a loader over the given repositories
func NewSnapshotLoader(
	lines repositories.LineRepository,
	holidays repositories.HolidayRepository,
	plans repositories.RampUpPlanRepository,
	orders repositories.OrderRepository,
) *SnapshotLoader {
	return &SnapshotLoader{
		lines:    lines,
		holidays: holidays,
		plans:    plans,
		orders:   orders,
		now:      time.Now,
	}
}

// Load reads the state needed to plan on lineID: the line, its scheduled
// orders, all holidays and ramp-up plans, plus the listed orders wherever they
// currently sit. Line revisions are read before anything else so a commit
// racing with the load is caught by the revision check.
func (l *SnapshotLoader) Load(
	ctx context.Context,
	lineID entities.LineID,
	orderIDs []entities.OrderID,
) (*AllocationSnapshot, error) {
	readAt := l.now()

	moving, err := l.orders.GetOrders(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	lineIDs := []entities.LineID{lineID}
	for _, o := range moving {
		if id := o.LineID(); id != "" && id != lineID {
			lineIDs = append(lineIDs, id)
		}
	}

	revisions := make(map[entities.LineID]int64, len(lineIDs))
	for _, id := range lineIDs {
		rev, err := l.lines.GetLineRevision(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read revision of line %s: %w", id, err)
		}
		revisions[id] = rev
	}

	var (
		lines     = make([]*entities.ProductionLine, len(lineIDs))
		holidays  []*entities.Holiday
		plans     []*entities.RampUpPlan
		scheduled = make([][]*entities.Order, len(lineIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range lineIDs {
		i, id := i, id
		g.Go(func() error {
			line, err := l.lines.GetLine(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to load line %s: %w", id, err)
			}
			lines[i] = line
			return nil
		})
		g.Go(func() error {
			orders, err := l.orders.ListScheduledOrders(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to load scheduled orders of line %s: %w", id, err)
			}
			scheduled[i] = orders
			return nil
		})
	}
	g.Go(func() error {
		var err error
		holidays, err = l.holidays.GetHolidays(gctx, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("failed to load holidays: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		plans, err = l.plans.GetAllRampUpPlans(gctx)
		if err != nil {
			return fmt.Errorf("failed to load ramp-up plans: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := NewAllocationSnapshot(services.NewWorkingCalendar(holidays))
	snapshot.readAt = readAt
	for _, line := range lines {
		snapshot.AddLine(line)
	}
	for _, plan := range plans {
		snapshot.AddRampUpPlan(plan)
	}
	for id, rev := range revisions {
		snapshot.SetLineRevision(id, rev)
	}
	for _, orders := range scheduled {
		for _, o := range orders {
			snapshot.PutOrder(o)
		}
	}
	for _, o := range moving {
		snapshot.PutOrder(o)
	}
	return snapshot, nil
}
