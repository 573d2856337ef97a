package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// GetLine returns a production line
func (s *Store) GetLine(_ context.Context, id entities.LineID) (*entities.ProductionLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, exists := s.lines[id]
	if !exists {
		return nil, fmt.Errorf("line %s: %w", id, entities.ErrNotFound)
	}
	copied := *line
	return &copied, nil
}

// GetAllLines returns all lines ordered by ID
func (s *Store) GetAllLines(_ context.Context) ([]*entities.ProductionLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]*entities.ProductionLine, 0, len(s.lines))
	for _, line := range s.lines {
		copied := *line
		lines = append(lines, &copied)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

// SaveLine inserts or replaces a line and bumps its revision
func (s *Store) SaveLine(_ context.Context, line *entities.ProductionLine) error {
	if line == nil || line.ID == "" {
		return fmt.Errorf("line id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *line
	s.lines[line.ID] = &copied
	s.revisions[line.ID]++
	return nil
}

// GetLineRevision returns the line's commit counter
func (s *Store) GetLineRevision(_ context.Context, id entities.LineID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.lines[id]; !exists {
		return 0, fmt.Errorf("line %s: %w", id, entities.ErrNotFound)
	}
	return s.revisions[id], nil
}

// GetHolidays returns holidays within [from, to]; zero bounds are open
func (s *Store) GetHolidays(_ context.Context, from, to time.Time) ([]*entities.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holidays []*entities.Holiday
	for _, h := range s.holidays {
		if !from.IsZero() && h.Date.Before(entities.NormalizeDate(from)) {
			continue
		}
		if !to.IsZero() && h.Date.After(entities.NormalizeDate(to)) {
			continue
		}
		copied := *h
		copied.LineIDs = append([]entities.LineID(nil), h.LineIDs...)
		holidays = append(holidays, &copied)
	}
	return holidays, nil
}

// SaveHoliday adds a holiday
func (s *Store) SaveHoliday(_ context.Context, holiday *entities.Holiday) error {
	if holiday == nil || holiday.Date.IsZero() {
		return fmt.Errorf("holiday date cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *holiday
	copied.Date = entities.NormalizeDate(holiday.Date)
	copied.LineIDs = append([]entities.LineID(nil), holiday.LineIDs...)
	s.holidays = append(s.holidays, &copied)
	sort.SliceStable(s.holidays, func(i, j int) bool { return s.holidays[i].Date.Before(s.holidays[j].Date) })
	return nil
}

// GetRampUpPlan returns a ramp-up plan
func (s *Store) GetRampUpPlan(_ context.Context, id entities.RampUpPlanID) (*entities.RampUpPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, exists := s.plans[id]
	if !exists {
		return nil, fmt.Errorf("ramp-up plan %s: %w", id, entities.ErrNotFound)
	}
	return copyPlan(plan), nil
}

// GetAllRampUpPlans returns all ramp-up plans ordered by ID
func (s *Store) GetAllRampUpPlans(_ context.Context) ([]*entities.RampUpPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]*entities.RampUpPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		plans = append(plans, copyPlan(plan))
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans, nil
}

// SaveRampUpPlan inserts or replaces a ramp-up plan
func (s *Store) SaveRampUpPlan(_ context.Context, plan *entities.RampUpPlan) error {
	if plan == nil || plan.ID == "" {
		return fmt.Errorf("ramp-up plan id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[plan.ID] = copyPlan(plan)
	return nil
}

func copyPlan(plan *entities.RampUpPlan) *entities.RampUpPlan {
	copied := *plan
	copied.Steps = append([]entities.RampUpStep(nil), plan.Steps...)
	return &copied
}
