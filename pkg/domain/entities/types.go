package entities

import (
	"fmt"
	"strings"
)

// Quantity represents an integer quantity value for discrete manufacturing units
type Quantity int64

// LineID identifies a production line
type LineID string

// OrderID identifies a manufacturing order
type OrderID string

// RampUpPlanID identifies a ramp-up efficiency plan
type RampUpPlanID string

// StandardMinutesPerDay is the number of working minutes in one production day.
// It feeds the ramp-up capacity formula and is not configurable per call.
const StandardMinutesPerDay = 540

// HorizonDays bounds how far the allocator walks forward from a start date.
const HorizonDays = 366

// PlanningMethod selects how a line's daily capacity is derived for an order
type PlanningMethod int

const (
	Flat PlanningMethod = iota
	RampUp
)

// String method for PlanningMethod enum
func (m PlanningMethod) String() string {
	switch m {
	case Flat:
		return "flat"
	case RampUp:
		return "ramp_up"
	default:
		return "unknown"
	}
}

// ParsePlanningMethod converts a textual method into a PlanningMethod
func ParsePlanningMethod(s string) (PlanningMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return Flat, nil
	case "ramp_up", "rampup", "ramp-up":
		return RampUp, nil
	default:
		return Flat, fmt.Errorf("unknown planning method %q", s)
	}
}

// PlacementPolicy decides where an incoming order goes relative to conflicting work
type PlacementPolicy int

const (
	NoPolicy PlacementPolicy = iota
	InsertBefore
	InsertAfter
)

// String method for PlacementPolicy enum
func (p PlacementPolicy) String() string {
	switch p {
	case NoPolicy:
		return "none"
	case InsertBefore:
		return "insert_before"
	case InsertAfter:
		return "insert_after"
	default:
		return "unknown"
	}
}

// ParsePlacementPolicy converts a textual policy into a PlacementPolicy
func ParsePlacementPolicy(s string) (PlacementPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoPolicy, nil
	case "insert_before", "before", "insert-before":
		return InsertBefore, nil
	case "insert_after", "after", "insert-after":
		return InsertAfter, nil
	default:
		return NoPolicy, fmt.Errorf("unknown placement policy %q", s)
	}
}

func (m PlanningMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *PlanningMethod) UnmarshalText(text []byte) error {
	parsed, err := ParsePlanningMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (p PlacementPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PlacementPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParsePlacementPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
