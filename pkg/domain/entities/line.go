package entities

import "fmt"

// ProductionLine represents a sewing or assembly line with a fixed daily output
type ProductionLine struct {
	ID            LineID   `json:"id"`
	Name          string   `json:"name"`
	DailyCapacity Quantity `json:"daily_capacity"`
	OperatorCount int      `json:"operator_count,omitempty"`
	Active        bool     `json:"active"`
}

// NewProductionLine creates a validated ProductionLine
func NewProductionLine(
	id LineID,
	name string,
	dailyCapacity Quantity,
	operatorCount int,
	active bool,
) (*ProductionLine, error) {
	if string(id) == "" {
		return nil, fmt.Errorf("line id cannot be empty")
	}
	if dailyCapacity < 0 {
		return nil, fmt.Errorf("daily capacity cannot be negative, got %d", dailyCapacity)
	}
	if operatorCount < 0 {
		return nil, fmt.Errorf("operator count cannot be negative, got %d", operatorCount)
	}
	if name == "" {
		name = string(id)
	}

	return &ProductionLine{
		ID:            id,
		Name:          name,
		DailyCapacity: dailyCapacity,
		OperatorCount: operatorCount,
		Active:        active,
	}, nil
}
