package entities

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// RampUpStep is the efficiency applied on one working day of an order's run
type RampUpStep struct {
	WorkingDay        int             `json:"working_day"`
	EfficiencyPercent decimal.Decimal `json:"efficiency_percent"`
}

// RampUpPlan is an efficiency curve keyed by the order's working-day number on
// its line. Days past the table use FinalEfficiencyPercent.
type RampUpPlan struct {
	ID                     RampUpPlanID    `json:"id"`
	Name                   string          `json:"name"`
	Steps                  []RampUpStep    `json:"steps"`
	FinalEfficiencyPercent decimal.Decimal `json:"final_efficiency_percent"`
}

// NewRampUpPlan creates a validated RampUpPlan with steps ordered by working day
func NewRampUpPlan(
	id RampUpPlanID,
	name string,
	steps []RampUpStep,
	finalEfficiency decimal.Decimal,
) (*RampUpPlan, error) {
	if string(id) == "" {
		return nil, fmt.Errorf("ramp-up plan id cannot be empty")
	}
	if finalEfficiency.IsNegative() {
		return nil, fmt.Errorf("final efficiency cannot be negative, got %s", finalEfficiency)
	}

	sorted := make([]RampUpStep, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].WorkingDay < sorted[j].WorkingDay
	})

	seen := make(map[int]bool, len(sorted))
	for _, step := range sorted {
		if step.WorkingDay < 1 {
			return nil, fmt.Errorf("working day must be at least 1, got %d", step.WorkingDay)
		}
		if seen[step.WorkingDay] {
			return nil, fmt.Errorf("duplicate working day %d in ramp-up plan %s", step.WorkingDay, id)
		}
		if step.EfficiencyPercent.IsNegative() {
			return nil, fmt.Errorf("efficiency for working day %d cannot be negative", step.WorkingDay)
		}
		seen[step.WorkingDay] = true
	}

	return &RampUpPlan{
		ID:                     id,
		Name:                   name,
		Steps:                  sorted,
		FinalEfficiencyPercent: finalEfficiency,
	}, nil
}

// EfficiencyFor returns the efficiency percentage for a 1-based working day number
func (p *RampUpPlan) EfficiencyFor(workingDay int) decimal.Decimal {
	for _, step := range p.Steps {
		if step.WorkingDay == workingDay {
			return step.EfficiencyPercent
		}
	}
	return p.FinalEfficiencyPercent
}
