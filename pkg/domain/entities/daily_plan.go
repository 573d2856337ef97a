package entities

import (
	"fmt"
	"sort"
	"time"
)

// DayAllocation is the quantity planned on a single calendar day
type DayAllocation struct {
	Date     time.Time `json:"date"`
	Quantity Quantity  `json:"quantity"`
}

// DailyPlan is an ordered-by-date list of day allocations
type DailyPlan []DayAllocation

// Total returns the quantity planned across all days
func (p DailyPlan) Total() Quantity {
	var total Quantity
	for _, day := range p {
		total += day.Quantity
	}
	return total
}

// Get returns the quantity planned on date, or zero
func (p DailyPlan) Get(date time.Time) Quantity {
	date = NormalizeDate(date)
	for _, day := range p {
		if day.Date.Equal(date) {
			return day.Quantity
		}
	}
	return 0
}

// StartDate returns the first planned day
func (p DailyPlan) StartDate() time.Time {
	if len(p) == 0 {
		return time.Time{}
	}
	return p[0].Date
}

// EndDate returns the last planned day
func (p DailyPlan) EndDate() time.Time {
	if len(p) == 0 {
		return time.Time{}
	}
	return p[len(p)-1].Date
}

// Dates returns the planned days in order
func (p DailyPlan) Dates() []time.Time {
	dates := make([]time.Time, len(p))
	for i, day := range p {
		dates[i] = day.Date
	}
	return dates
}

// Clone returns an independent copy of the plan
func (p DailyPlan) Clone() DailyPlan {
	if p == nil {
		return nil
	}
	out := make(DailyPlan, len(p))
	copy(out, p)
	return out
}

// Sort orders the plan by date
func (p DailyPlan) Sort() {
	sort.Slice(p, func(i, j int) bool { return p[i].Date.Before(p[j].Date) })
}

// Validate checks that days are strictly increasing and quantities positive
func (p DailyPlan) Validate() error {
	for i, day := range p {
		if day.Quantity <= 0 {
			return fmt.Errorf("planned quantity on %s must be positive, got %d", FormatDate(day.Date), day.Quantity)
		}
		if i > 0 && !p[i-1].Date.Before(day.Date) {
			return fmt.Errorf("planned days out of order at %s", FormatDate(day.Date))
		}
	}
	return nil
}
