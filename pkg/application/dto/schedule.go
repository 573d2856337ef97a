package dto

import (
	"fmt"
	"time"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// ScheduleIntent asks to place one order on a line from a target date
type ScheduleIntent struct {
	OrderID         entities.OrderID         `json:"order_id"`
	LineID          entities.LineID          `json:"line_id"`
	TargetDate      time.Time                `json:"target_date"`
	PlanningMethod  entities.PlanningMethod  `json:"planning_method"`
	RampUpPlanID    entities.RampUpPlanID    `json:"ramp_up_plan_id,omitempty"`
	PlacementPolicy entities.PlacementPolicy `json:"placement_policy"`
}

// BatchMember is one order of a batch drop
type BatchMember struct {
	OrderID        entities.OrderID        `json:"order_id"`
	PlanningMethod entities.PlanningMethod `json:"planning_method"`
	RampUpPlanID   entities.RampUpPlanID   `json:"ramp_up_plan_id,omitempty"`
}

// BatchIntent asks to place an ordered selection back-to-back from one target
type BatchIntent struct {
	LineID        entities.LineID                               `json:"line_id"`
	TargetDate    time.Time                                     `json:"target_date"`
	Orders        []BatchMember                                 `json:"orders"`
	DefaultPolicy entities.PlacementPolicy                      `json:"default_policy"`
	Decisions     map[entities.OrderID]entities.PlacementPolicy `json:"decisions,omitempty"`
}

// CommittedPlan is the persisted schedule of one affected order
type CommittedPlan struct {
	OrderID       entities.OrderID        `json:"order_id"`
	LineID        entities.LineID         `json:"line_id"`
	PlanStartDate time.Time               `json:"plan_start_date"`
	PlanEndDate   time.Time               `json:"plan_end_date"`
	DailyPlan     entities.DailyPlan      `json:"daily_plan"`
	Method        entities.PlanningMethod `json:"method"`
	Displaced     bool                    `json:"displaced"`
	Version       int64                   `json:"version"`
}

// NewCommittedPlan describes a scheduled order
func NewCommittedPlan(order *entities.Order, displaced bool) CommittedPlan {
	return CommittedPlan{
		OrderID:       order.ID,
		LineID:        order.Schedule.LineID,
		PlanStartDate: order.Schedule.PlanStartDate,
		PlanEndDate:   order.Schedule.PlanEndDate,
		DailyPlan:     order.Schedule.DailyPlan.Clone(),
		Method:        order.Schedule.Method,
		Displaced:     displaced,
		Version:       order.Version,
	}
}

// ScheduleResult contains the outcome of a committed scheduling intent
type ScheduleResult struct {
	Committed []CommittedPlan    `json:"committed"`
	Displaced []entities.OrderID `json:"displaced,omitempty"`
	Released  []entities.OrderID `json:"released,omitempty"`
	Partial   bool               `json:"partial"`
	Attempts  int                `json:"attempts"`
}

// ConflictSummary describes a scheduled order standing in the way
type ConflictSummary struct {
	OrderID       entities.OrderID  `json:"order_id"`
	PONumber      string            `json:"po_number"`
	PlanStartDate time.Time         `json:"plan_start_date"`
	PlanEndDate   time.Time         `json:"plan_end_date"`
	Quantity      entities.Quantity `json:"quantity"`
}

// PlacementChoice is returned when conflicts need a placement policy. It is
// an error so callers can match it with errors.As; BatchIndex is -1 for
// single-order intents.
type PlacementChoice struct {
	OrderID    entities.OrderID  `json:"order_id"`
	BatchIndex int               `json:"batch_index"`
	StartDate  time.Time         `json:"start_date"`
	Conflicts  []ConflictSummary `json:"conflicts"`
}

// NewPlacementChoice summarizes conflicting orders
func NewPlacementChoice(orderID entities.OrderID, batchIndex int, start time.Time, conflicts []*entities.Order) *PlacementChoice {
	choice := &PlacementChoice{OrderID: orderID, BatchIndex: batchIndex, StartDate: start}
	for _, c := range conflicts {
		summary := ConflictSummary{OrderID: c.ID, PONumber: c.PONumber, Quantity: c.OrderQuantity}
		if c.Schedule != nil {
			summary.PlanStartDate = c.Schedule.PlanStartDate
			summary.PlanEndDate = c.Schedule.PlanEndDate
		}
		choice.Conflicts = append(choice.Conflicts, summary)
	}
	return choice
}

func (c *PlacementChoice) Error() string {
	return fmt.Sprintf("order %s conflicts with %d scheduled orders: %v",
		c.OrderID, len(c.Conflicts), entities.ErrPlacementChoiceRequired)
}

func (c *PlacementChoice) Unwrap() error {
	return entities.ErrPlacementChoiceRequired
}

// SplitResult contains the children produced by a split
type SplitResult struct {
	ParentID entities.OrderID  `json:"parent_id"`
	Children []*entities.Order `json:"children"`
}
