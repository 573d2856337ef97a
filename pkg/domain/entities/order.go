package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents where an order sits in its scheduling lifecycle
type OrderStatus int

const (
	Pending OrderStatus = iota
	Scheduled
)

// String method for OrderStatus enum
func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Scheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// ParseOrderStatus converts a textual status into an OrderStatus
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch s {
	case "", "pending":
		return Pending, nil
	case "scheduled":
		return Scheduled, nil
	default:
		return Pending, fmt.Errorf("unknown order status %q", s)
	}
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseOrderStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Schedule holds the fields an order carries only while scheduled
type Schedule struct {
	LineID        LineID         `json:"line_id"`
	PlanStartDate time.Time      `json:"plan_start_date"`
	PlanEndDate   time.Time      `json:"plan_end_date"`
	DailyPlan     DailyPlan      `json:"daily_plan"`
	Method        PlanningMethod `json:"method"`
	RampUpPlanID  RampUpPlanID   `json:"ramp_up_plan_id,omitempty"`
}

// Clone returns an independent copy of the schedule
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	c := *s
	c.DailyPlan = s.DailyPlan.Clone()
	return &c
}

// Order represents a manufacturing order to be placed on line capacity
type Order struct {
	ID            OrderID         `json:"id"`
	PONumber      string          `json:"po_number"`
	StyleID       string          `json:"style_id"`
	OrderQuantity Quantity        `json:"order_quantity"`
	CutQuantity   Quantity        `json:"cut_quantity,omitempty"`
	IssueQuantity Quantity        `json:"issue_quantity,omitempty"`
	SMV           decimal.Decimal `json:"smv"`
	Status        OrderStatus     `json:"status"`
	Schedule      *Schedule       `json:"schedule,omitempty"`

	ParentID  OrderID    `json:"parent_id,omitempty"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewOrder creates a validated pending Order
func NewOrder(
	id OrderID,
	poNumber, styleID string,
	quantity Quantity,
	smv decimal.Decimal,
) (*Order, error) {
	if string(id) == "" {
		return nil, fmt.Errorf("order id cannot be empty")
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if smv.IsNegative() {
		return nil, fmt.Errorf("smv cannot be negative, got %s", smv)
	}

	return &Order{
		ID:            id,
		PONumber:      poNumber,
		StyleID:       styleID,
		OrderQuantity: quantity,
		SMV:           smv,
		Status:        Pending,
	}, nil
}

// IsScheduled reports whether the order holds line capacity
func (o *Order) IsScheduled() bool {
	return o.Status == Scheduled && o.Schedule != nil
}

// IsRetired reports whether the order was replaced by split children
func (o *Order) IsRetired() bool {
	return o.RetiredAt != nil
}

// LineID returns the assigned line, or empty when pending
func (o *Order) LineID() LineID {
	if o.Schedule == nil {
		return ""
	}
	return o.Schedule.LineID
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	c := *o
	c.Schedule = o.Schedule.Clone()
	if o.RetiredAt != nil {
		t := *o.RetiredAt
		c.RetiredAt = &t
	}
	return &c
}

// Validate checks the order's shape against its status
func (o *Order) Validate() error {
	if o.OrderQuantity <= 0 {
		return fmt.Errorf("order %s: quantity must be positive, got %d", o.ID, o.OrderQuantity)
	}

	switch o.Status {
	case Pending:
		if o.Schedule != nil {
			return fmt.Errorf("order %s: pending order cannot carry a schedule", o.ID)
		}
		return nil
	case Scheduled:
	default:
		return fmt.Errorf("order %s: unknown status %d", o.ID, o.Status)
	}

	s := o.Schedule
	if s == nil {
		return fmt.Errorf("order %s: scheduled order has no schedule", o.ID)
	}
	if s.LineID == "" {
		return fmt.Errorf("order %s: scheduled order has no line", o.ID)
	}
	if len(s.DailyPlan) == 0 {
		return fmt.Errorf("order %s: scheduled order has an empty daily plan", o.ID)
	}
	if err := s.DailyPlan.Validate(); err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	if total := s.DailyPlan.Total(); total > o.OrderQuantity {
		return fmt.Errorf("order %s: planned %d exceeds order quantity %d", o.ID, total, o.OrderQuantity)
	}
	if s.PlanStartDate.After(s.PlanEndDate) {
		return fmt.Errorf(
			"order %s: start date %s cannot be after end date %s",
			o.ID, FormatDate(s.PlanStartDate), FormatDate(s.PlanEndDate),
		)
	}
	for _, day := range s.DailyPlan {
		if day.Date.Before(s.PlanStartDate) || day.Date.After(s.PlanEndDate) {
			return fmt.Errorf("order %s: planned day %s outside %s..%s", o.ID,
				FormatDate(day.Date), FormatDate(s.PlanStartDate), FormatDate(s.PlanEndDate))
		}
	}
	return nil
}
