package shared

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/services"
)

// UsageMap tracks committed quantity per (line, date) and per contributing order
type UsageMap map[string]map[entities.OrderID]entities.Quantity

// AllocationSnapshot is the read state every capacity decision is made
// against: line records, the working calendar, ramp-up plans, and the orders
// currently holding capacity. It is never shared between requests; callers
// Clone it before making speculative changes.
type AllocationSnapshot struct {
	lines         map[entities.LineID]*entities.ProductionLine
	rampUpPlans   map[entities.RampUpPlanID]*entities.RampUpPlan
	orders        map[entities.OrderID]*entities.Order
	usage         UsageMap
	held          map[entities.OrderID]heldAllocation
	calendar      *services.WorkingCalendar
	lineRevisions map[entities.LineID]int64
	readAt        time.Time
}

// heldAllocation is what PutOrder indexed for an order, kept apart from the
// order record so in-place mutations of the record cannot desync the index
type heldAllocation struct {
	lineID entities.LineID
	plan   entities.DailyPlan
}

// NewAllocationSnapshot creates an empty snapshot over the given calendar
func NewAllocationSnapshot(calendar *services.WorkingCalendar) *AllocationSnapshot {
	if calendar == nil {
		calendar = services.NewWorkingCalendar(nil)
	}
	return &AllocationSnapshot{
		lines:         make(map[entities.LineID]*entities.ProductionLine),
		rampUpPlans:   make(map[entities.RampUpPlanID]*entities.RampUpPlan),
		orders:        make(map[entities.OrderID]*entities.Order),
		usage:         make(UsageMap),
		held:          make(map[entities.OrderID]heldAllocation),
		calendar:      calendar,
		lineRevisions: make(map[entities.LineID]int64),
	}
}

// Calendar returns the working calendar
func (s *AllocationSnapshot) Calendar() *services.WorkingCalendar {
	return s.calendar
}

// ReadAt returns when the snapshot was loaded from persistence
func (s *AllocationSnapshot) ReadAt() time.Time {
	return s.readAt
}

// AddLine registers a production line
func (s *AllocationSnapshot) AddLine(line *entities.ProductionLine) {
	s.lines[line.ID] = line
}

// Line returns a production line or nil
func (s *AllocationSnapshot) Line(id entities.LineID) *entities.ProductionLine {
	return s.lines[id]
}

// AddRampUpPlan registers a ramp-up plan
func (s *AllocationSnapshot) AddRampUpPlan(plan *entities.RampUpPlan) {
	s.rampUpPlans[plan.ID] = plan
}

// RampUpPlan returns a ramp-up plan or nil
func (s *AllocationSnapshot) RampUpPlan(id entities.RampUpPlanID) *entities.RampUpPlan {
	return s.rampUpPlans[id]
}

// SetLineRevision records the revision of a line at read time
func (s *AllocationSnapshot) SetLineRevision(id entities.LineID, revision int64) {
	s.lineRevisions[id] = revision
}

// LineRevision returns the recorded revision of a line
func (s *AllocationSnapshot) LineRevision(id entities.LineID) (int64, bool) {
	rev, ok := s.lineRevisions[id]
	return rev, ok
}

// LineRevisions returns a copy of every recorded line revision
func (s *AllocationSnapshot) LineRevisions() map[entities.LineID]int64 {
	out := make(map[entities.LineID]int64, len(s.lineRevisions))
	for id, rev := range s.lineRevisions {
		out[id] = rev
	}
	return out
}

// PutOrder stores the order and re-indexes the capacity it holds. Any
// allocation previously indexed for the same order ID is dropped first.
func (s *AllocationSnapshot) PutOrder(order *entities.Order) {
	s.dropUsage(order.ID)
	s.orders[order.ID] = order
	if order.IsRetired() || !order.IsScheduled() {
		return
	}
	s.held[order.ID] = heldAllocation{lineID: order.Schedule.LineID, plan: order.Schedule.DailyPlan.Clone()}
	for _, day := range order.Schedule.DailyPlan {
		key := s.makeKey(order.Schedule.LineID, day.Date)
		contributions := s.usage[key]
		if contributions == nil {
			contributions = make(map[entities.OrderID]entities.Quantity)
			s.usage[key] = contributions
		}
		contributions[order.ID] += day.Quantity
	}
}

// RemoveOrder forgets an order and the capacity it held
func (s *AllocationSnapshot) RemoveOrder(id entities.OrderID) {
	s.dropUsage(id)
	delete(s.orders, id)
}

// Order returns an order or nil
func (s *AllocationSnapshot) Order(id entities.OrderID) *entities.Order {
	return s.orders[id]
}

// Used returns the quantity committed on (line, date), ignoring the
// contribution of exclude when it is non-empty
func (s *AllocationSnapshot) Used(lineID entities.LineID, date time.Time, exclude entities.OrderID) entities.Quantity {
	var total entities.Quantity
	for id, qty := range s.usage[s.makeKey(lineID, date)] {
		if id == exclude {
			continue
		}
		total += qty
	}
	return total
}

// Contributions returns each order's quantity on (line, date)
func (s *AllocationSnapshot) Contributions(lineID entities.LineID, date time.Time) map[entities.OrderID]entities.Quantity {
	out := make(map[entities.OrderID]entities.Quantity)
	for id, qty := range s.usage[s.makeKey(lineID, date)] {
		out[id] = qty
	}
	return out
}

// ScheduledOrders returns scheduled orders on the line ordered by start date
func (s *AllocationSnapshot) ScheduledOrders(lineID entities.LineID) []*entities.Order {
	var result []*entities.Order
	for _, o := range s.orders {
		if o.IsScheduled() && !o.IsRetired() && o.Schedule.LineID == lineID {
			result = append(result, o)
		}
	}
	SortByPlanStart(result)
	return result
}

// Clone returns an independent working copy. Orders are deep-copied; line,
// plan and calendar records are shared since nothing mutates them.
func (s *AllocationSnapshot) Clone() *AllocationSnapshot {
	c := &AllocationSnapshot{
		lines:         make(map[entities.LineID]*entities.ProductionLine, len(s.lines)),
		rampUpPlans:   make(map[entities.RampUpPlanID]*entities.RampUpPlan, len(s.rampUpPlans)),
		orders:        make(map[entities.OrderID]*entities.Order, len(s.orders)),
		usage:         make(UsageMap, len(s.usage)),
		held:          make(map[entities.OrderID]heldAllocation, len(s.held)),
		calendar:      s.calendar,
		lineRevisions: make(map[entities.LineID]int64, len(s.lineRevisions)),
		readAt:        s.readAt,
	}
	for id, line := range s.lines {
		c.lines[id] = line
	}
	for id, plan := range s.rampUpPlans {
		c.rampUpPlans[id] = plan
	}
	for id, order := range s.orders {
		c.orders[id] = order.Clone()
	}
	for key, contributions := range s.usage {
		copied := make(map[entities.OrderID]entities.Quantity, len(contributions))
		for id, qty := range contributions {
			copied[id] = qty
		}
		c.usage[key] = copied
	}
	for id, h := range s.held {
		c.held[id] = heldAllocation{lineID: h.lineID, plan: h.plan.Clone()}
	}
	for id, rev := range s.lineRevisions {
		c.lineRevisions[id] = rev
	}
	return c
}

// CheckInvariant verifies that no (line, date) is over-allocated and that no
// allocation sits on a non-working day
func (s *AllocationSnapshot) CheckInvariant(lineID entities.LineID) error {
	line := s.lines[lineID]
	if line == nil {
		return fmt.Errorf("line %s: %w", lineID, entities.ErrNotFound)
	}
	for key, contributions := range s.usage {
		id, date, found := s.parseKey(key)
		if !found || id != lineID {
			continue
		}
		var total entities.Quantity
		for _, qty := range contributions {
			total += qty
		}
		if total > 0 && !s.calendar.IsWorkingDay(lineID, date) {
			return fmt.Errorf("%w: line %s has %d units on non-working day %s",
				entities.ErrInvariantViolation, lineID, total, entities.FormatDate(date))
		}
		if total > line.DailyCapacity {
			return fmt.Errorf("%w: line %s has %d units on %s, capacity %d",
				entities.ErrInvariantViolation, lineID, total, entities.FormatDate(date), line.DailyCapacity)
		}
	}
	return nil
}

// ChangedOrders returns the orders of after whose status, schedule or
// retirement differs from before, plus orders that only exist in after.
// The result is ordered by order ID.
func ChangedOrders(before, after *AllocationSnapshot) []*entities.Order {
	var changed []*entities.Order
	for id, o := range after.orders {
		prev := before.orders[id]
		if prev == nil || !sameAllocation(prev, o) {
			changed = append(changed, o)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].ID < changed[j].ID })
	return changed
}

func sameAllocation(a, b *entities.Order) bool {
	if a.Status != b.Status || a.IsRetired() != b.IsRetired() {
		return false
	}
	if (a.Schedule == nil) != (b.Schedule == nil) {
		return false
	}
	if a.Schedule == nil {
		return true
	}
	sa, sb := a.Schedule, b.Schedule
	if sa.LineID != sb.LineID || sa.Method != sb.Method || sa.RampUpPlanID != sb.RampUpPlanID ||
		!sa.PlanStartDate.Equal(sb.PlanStartDate) || !sa.PlanEndDate.Equal(sb.PlanEndDate) ||
		len(sa.DailyPlan) != len(sb.DailyPlan) {
		return false
	}
	for i := range sa.DailyPlan {
		if !sa.DailyPlan[i].Date.Equal(sb.DailyPlan[i].Date) || sa.DailyPlan[i].Quantity != sb.DailyPlan[i].Quantity {
			return false
		}
	}
	return true
}

// SortByPlanStart orders scheduled orders by start date, then by ID
func SortByPlanStart(orders []*entities.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i].Schedule, orders[j].Schedule
		if !a.PlanStartDate.Equal(b.PlanStartDate) {
			return a.PlanStartDate.Before(b.PlanStartDate)
		}
		return orders[i].ID < orders[j].ID
	})
}

func (s *AllocationSnapshot) dropUsage(id entities.OrderID) {
	prev, ok := s.held[id]
	if !ok {
		return
	}
	delete(s.held, id)
	for _, day := range prev.plan {
		key := s.makeKey(prev.lineID, day.Date)
		contributions := s.usage[key]
		delete(contributions, id)
		if len(contributions) == 0 {
			delete(s.usage, key)
		}
	}
}

// makeKey creates a consistent key for line and date
func (s *AllocationSnapshot) makeKey(lineID entities.LineID, date time.Time) string {
	return fmt.Sprintf("%s|%s", lineID, entities.FormatDate(entities.NormalizeDate(date)))
}

// parseKey extracts line and date from a key
func (s *AllocationSnapshot) parseKey(key string) (entities.LineID, time.Time, bool) {
	i := strings.LastIndexByte(key, '|')
	if i < 0 {
		return "", time.Time{}, false
	}
	date, err := entities.ParseDate(key[i+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return entities.LineID(key[:i]), date, true
}

// String returns a string representation of the snapshot for debugging
func (s *AllocationSnapshot) String() string {
	if len(s.usage) == 0 {
		return "AllocationSnapshot{empty}"
	}

	keys := make([]string, 0, len(s.usage))
	for key := range s.usage {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "AllocationSnapshot{%d entries:\n", len(keys))
	for _, key := range keys {
		if lineID, date, found := s.parseKey(key); found {
			fmt.Fprintf(&b, "  %s@%s: used=%d\n", lineID, entities.FormatDate(date), s.Used(lineID, date, ""))
		}
	}
	b.WriteString("}")
	return b.String()
}
