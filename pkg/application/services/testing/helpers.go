package testing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/lineplan/pkg/application/services/shared"
	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/services"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/memory"
)

// Monday is the reference week used across scenarios: June 9, 2025
var Monday = time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)

// Day returns Monday plus n calendar days
func Day(n int) time.Time {
	return Monday.AddDate(0, 0, n)
}

// June returns the given day of June 2025
func June(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

// MustCreateLine is a helper for tests - panics on validation error
func MustCreateLine(id string, dailyCapacity entities.Quantity, operators int) *entities.ProductionLine {
	line, err := entities.NewProductionLine(entities.LineID(id), "", dailyCapacity, operators, true)
	if err != nil {
		panic(err)
	}
	return line
}

// MustCreateOrder is a helper for tests - panics on validation error
func MustCreateOrder(id string, quantity entities.Quantity, smv float64) *entities.Order {
	order, err := entities.NewOrder(
		entities.OrderID(id),
		"PO-"+id,
		"STYLE-"+id,
		quantity,
		decimal.NewFromFloat(smv),
	)
	if err != nil {
		panic(err)
	}
	return order
}

// MustCreateRampUpPlan builds a plan from percentages keyed by working day
func MustCreateRampUpPlan(id string, steps map[int]int64, final int64) *entities.RampUpPlan {
	var list []entities.RampUpStep
	for day, pct := range steps {
		list = append(list, entities.RampUpStep{WorkingDay: day, EfficiencyPercent: decimal.NewFromInt(pct)})
	}
	plan, err := entities.NewRampUpPlan(entities.RampUpPlanID(id), id, list, decimal.NewFromInt(final))
	if err != nil {
		panic(err)
	}
	return plan
}

// Schedule places order on line with the given consecutive-day plan
// starting at start. Zero entries are skipped so weekends can be expressed
// positionally.
func Schedule(order *entities.Order, line string, start time.Time, quantities ...entities.Quantity) *entities.Order {
	var plan entities.DailyPlan
	for i, qty := range quantities {
		if qty > 0 {
			plan = append(plan, entities.DayAllocation{Date: start.AddDate(0, 0, i), Quantity: qty})
		}
	}
	order.Status = entities.Scheduled
	order.Schedule = &entities.Schedule{
		LineID:        entities.LineID(line),
		PlanStartDate: plan.StartDate(),
		PlanEndDate:   plan.EndDate(),
		DailyPlan:     plan,
		Method:        entities.Flat,
	}
	return order
}

// NewSnapshot builds a snapshot over the given lines, holidays and orders
func NewSnapshot(
	lines []*entities.ProductionLine,
	holidays []*entities.Holiday,
	orders ...*entities.Order,
) *shared.AllocationSnapshot {
	snapshot := shared.NewAllocationSnapshot(services.NewWorkingCalendar(holidays))
	for _, line := range lines {
		snapshot.AddLine(line)
	}
	for _, order := range orders {
		snapshot.PutOrder(order)
	}
	return snapshot
}

// BuildScenarioStore builds the single-line scenario used by integration
// tests: line L1 at 100/day with 10 operators, a ramp-up plan, and three
// pending orders.
func BuildScenarioStore() *memory.Store {
	store := memory.NewStore()
	store.MustSeed(
		[]*entities.ProductionLine{
			MustCreateLine("L1", 100, 10),
			MustCreateLine("L2", 80, 8),
		},
		nil,
		[]*entities.RampUpPlan{
			MustCreateRampUpPlan("RU-STD", map[int]int64{1: 50, 2: 70}, 90),
		},
		[]*entities.Order{
			MustCreateOrder("PO-A", 250, 20),
			MustCreateOrder("PO-B", 150, 20),
			MustCreateOrder("PO-C", 300, 25),
		},
	)
	return store
}
