package events

import (
	"time"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

const (
	OrderScheduledEvent   = "order.scheduled"
	OrderUnscheduledEvent = "order.unscheduled"
	OrderDisplacedEvent   = "order.displaced"
	OrderSplitEvent       = "order.split"

	CascadeCommittedEvent = "cascade.committed"
)

// OrderScheduled is emitted for the order a caller placed
type OrderScheduled struct {
	OrderID       entities.OrderID        `json:"order_id"`
	LineID        entities.LineID         `json:"line_id"`
	PlanStartDate time.Time               `json:"plan_start_date"`
	PlanEndDate   time.Time               `json:"plan_end_date"`
	Quantity      entities.Quantity       `json:"quantity"`
	Method        entities.PlanningMethod `json:"method"`
	Version       int64                   `json:"version"`
}

// OrderDisplaced is emitted for an order moved by a reflow cascade
type OrderDisplaced struct {
	OrderScheduled
	DisplacedBy entities.OrderID `json:"displaced_by"`
}

type OrderUnscheduled struct {
	OrderID entities.OrderID `json:"order_id"`
	LineID  entities.LineID  `json:"line_id"`
	Version int64            `json:"version"`
}

type OrderSplit struct {
	ParentID entities.OrderID    `json:"parent_id"`
	Children []entities.OrderID  `json:"children"`
	Quantity []entities.Quantity `json:"quantity"`
}

// CascadeCommitted summarizes one committed intent on a line
type CascadeCommitted struct {
	LineID    entities.LineID    `json:"line_id"`
	Incoming  []entities.OrderID `json:"incoming"`
	Displaced []entities.OrderID `json:"displaced"`
	Attempts  int                `json:"attempts"`
}

func scheduledPayload(order *entities.Order) OrderScheduled {
	payload := OrderScheduled{OrderID: order.ID, Version: order.Version}
	if s := order.Schedule; s != nil {
		payload.LineID = s.LineID
		payload.PlanStartDate = s.PlanStartDate
		payload.PlanEndDate = s.PlanEndDate
		payload.Quantity = s.DailyPlan.Total()
		payload.Method = s.Method
	}
	return payload
}

func NewOrderScheduledEvent(order *entities.Order) Event {
	return NewEvent(OrderScheduledEvent, string(order.ID), scheduledPayload(order))
}

func NewOrderDisplacedEvent(order *entities.Order, by entities.OrderID) Event {
	return NewEvent(OrderDisplacedEvent, string(order.ID), OrderDisplaced{
		OrderScheduled: scheduledPayload(order),
		DisplacedBy:    by,
	})
}

func NewOrderUnscheduledEvent(order *entities.Order, lineID entities.LineID) Event {
	return NewEvent(OrderUnscheduledEvent, string(order.ID), OrderUnscheduled{
		OrderID: order.ID,
		LineID:  lineID,
		Version: order.Version,
	})
}

func NewOrderSplitEvent(parent *entities.Order, children ...*entities.Order) Event {
	data := OrderSplit{ParentID: parent.ID}
	for _, c := range children {
		data.Children = append(data.Children, c.ID)
		data.Quantity = append(data.Quantity, c.OrderQuantity)
	}
	return NewEvent(OrderSplitEvent, string(parent.ID), data)
}

// NewCascadeCommittedEvent uses the line as stream so consumers can follow a
// line's history
func NewCascadeCommittedEvent(lineID entities.LineID, incoming, displaced []entities.OrderID, attempts int) Event {
	return NewEvent(CascadeCommittedEvent, "line-"+string(lineID), CascadeCommitted{
		LineID:    lineID,
		Incoming:  incoming,
		Displaced: displaced,
		Attempts:  attempts,
	})
}
