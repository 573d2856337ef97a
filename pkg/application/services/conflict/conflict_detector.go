package conflict

import (
	"errors"
	"time"

	"github.com/vsinha/lineplan/pkg/application/services/allocation"
	"github.com/vsinha/lineplan/pkg/application/services/shared"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// Detection is the outcome of a side-effect-free placement check
type Detection struct {
	// Estimate is the dry-run allocation; nil when nothing could be placed
	Estimate     *allocation.Allocation
	EstimateErr  error
	StartDate    time.Time
	EstimatedEnd time.Time
	Conflicts    []*entities.Order
}

// HasConflicts reports whether any scheduled order overlaps the estimate
func (d *Detection) HasConflicts() bool {
	return len(d.Conflicts) > 0
}

// Detector finds scheduled orders that a placement would overlap
type Detector struct {
	allocator *allocation.Allocator
}

// NewDetector creates a detector that estimates spans with allocator
func NewDetector(allocator *allocation.Allocator) *Detector {
	return &Detector{allocator: allocator}
}

// FindOverlaps returns the other scheduled orders on lineID whose plan range
// intersects [start, estimatedEnd], ordered by plan start date
func (d *Detector) FindOverlaps(
	snapshot *shared.AllocationSnapshot,
	candidate entities.OrderID,
	lineID entities.LineID,
	start, estimatedEnd time.Time,
) []*entities.Order {
	var overlaps []*entities.Order
	for _, o := range snapshot.ScheduledOrders(lineID) {
		if o.ID == candidate {
			continue
		}
		if entities.RangesOverlap(o.Schedule.PlanStartDate, o.Schedule.PlanEndDate, start, estimatedEnd) {
			overlaps = append(overlaps, o)
		}
	}
	shared.SortByPlanStart(overlaps)
	return overlaps
}

// Detect dry-runs the allocator for req and reports the orders the resulting
// span would overlap. An estimate that runs out of horizon spans to the
// horizon end. Errors other than capacity exhaustion are returned as is.
func (d *Detector) Detect(snapshot *shared.AllocationSnapshot, req allocation.Request) (*Detection, error) {
	start := entities.NormalizeDate(req.StartDate)
	estimate, err := d.allocator.Allocate(snapshot, req)

	detection := &Detection{
		Estimate:    estimate,
		EstimateErr: err,
		StartDate:   start,
	}
	switch {
	case err == nil:
		detection.EstimatedEnd = estimate.EndDate
	case errors.Is(err, entities.ErrPlanningHorizonExceeded), errors.Is(err, entities.ErrNoAvailableCapacity):
		detection.EstimatedEnd = entities.AddDays(start, entities.HorizonDays)
	default:
		return nil, err
	}

	detection.Conflicts = d.FindOverlaps(snapshot, req.OrderID, req.LineID, start, detection.EstimatedEnd)
	return detection, nil
}
