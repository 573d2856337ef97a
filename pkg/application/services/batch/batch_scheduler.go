package batch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vsinha/lineplan/pkg/application/services/lifecycle"
	"github.com/vsinha/lineplan/pkg/application/services/reflow"
	"github.com/vsinha/lineplan/pkg/application/services/shared"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// Member is one order of a batch drop
type Member struct {
	OrderID      entities.OrderID
	Method       entities.PlanningMethod
	RampUpPlanID entities.RampUpPlanID
}

// Request is an ordered selection dropped together on one line and date
type Request struct {
	LineID        entities.LineID
	StartDate     time.Time
	Members       []Member
	DefaultPolicy entities.PlacementPolicy
	// Decisions overrides DefaultPolicy for individual orders, typically
	// filled in after a pause
	Decisions map[entities.OrderID]entities.PlacementPolicy
}

func (r Request) policyFor(id entities.OrderID) entities.PlacementPolicy {
	if p, ok := r.Decisions[id]; ok && p != entities.NoPolicy {
		return p
	}
	return r.DefaultPolicy
}

// Plan is a fully resolved batch, ready to commit as one transaction
type Plan struct {
	Resolutions []*reflow.Resolution
	Snapshot    *shared.AllocationSnapshot
}

// Pause is the point where a batch stopped for a placement decision
type Pause struct {
	Index     int
	OrderID   entities.OrderID
	StartDate time.Time
	Conflicts []*entities.Order
}

// PauseError stops a batch until the caller supplies a decision for
// Pause.OrderID. Nothing from the batch is applied.
type PauseError struct {
	Pause Pause
}

func (e *PauseError) Error() string {
	return fmt.Sprintf("batch paused at member %d (order %s) with %d conflicts: %v",
		e.Pause.Index, e.Pause.OrderID, len(e.Pause.Conflicts), entities.ErrPlacementChoiceRequired)
}

func (e *PauseError) Unwrap() error {
	return entities.ErrPlacementChoiceRequired
}

// Scheduler places a multi-order selection back-to-back
type Scheduler struct {
	resolver  *reflow.Resolver
	lifecycle *lifecycle.OrderLifecycle
	logger    *slog.Logger
}

// NewScheduler creates a batch scheduler
func NewScheduler(resolver *reflow.Resolver, lc *lifecycle.OrderLifecycle, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{resolver: resolver, lifecycle: lc, logger: logger}
}

// Plan releases every member to pending, then places them in order: the
// first at req.StartDate and each next one the day after the previous
// member's actual end. The input snapshot is not modified.
func (s *Scheduler) Plan(snapshot *shared.AllocationSnapshot, req Request) (*Plan, error) {
	if len(req.Members) == 0 {
		return nil, fmt.Errorf("batch has no orders")
	}

	working := snapshot.Clone()
	seen := make(map[entities.OrderID]bool, len(req.Members))
	for _, m := range req.Members {
		if seen[m.OrderID] {
			return nil, fmt.Errorf("order %s appears twice in batch", m.OrderID)
		}
		seen[m.OrderID] = true

		order := working.Order(m.OrderID)
		if order == nil {
			return nil, fmt.Errorf("order %s: %w", m.OrderID, entities.ErrNotFound)
		}
		if order.IsScheduled() {
			if err := s.lifecycle.MoveToPending(order); err != nil {
				return nil, err
			}
			working.PutOrder(order)
		}
	}

	plan := &Plan{}
	cursor := entities.NormalizeDate(req.StartDate)
	for i, m := range req.Members {
		res, err := s.resolver.Resolve(working, reflow.Placement{
			OrderID:      m.OrderID,
			LineID:       req.LineID,
			StartDate:    cursor,
			Method:       m.Method,
			RampUpPlanID: m.RampUpPlanID,
			Policy:       req.policyFor(m.OrderID),
		})
		if err != nil {
			var choice *reflow.ChoiceRequiredError
			if errors.As(err, &choice) {
				s.logger.Info("batch paused for placement choice",
					"order_id", m.OrderID, "index", i, "conflicts", len(choice.Conflicts))
				return nil, &PauseError{Pause: Pause{
					Index:     i,
					OrderID:   m.OrderID,
					StartDate: cursor,
					Conflicts: choice.Conflicts,
				}}
			}
			return nil, &reflow.CascadeError{OrderID: m.OrderID, Index: i, Err: err}
		}

		plan.Resolutions = append(plan.Resolutions, res)
		working = res.Snapshot
		cursor = res.Incoming.Allocation.EndDate.AddDate(0, 0, 1)
	}

	plan.Snapshot = working
	return plan, nil
}
