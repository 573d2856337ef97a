package entities

import (
	"fmt"
	"time"
)

// Holiday is a non-working calendar day, either for every line or for the
// listed lines only
type Holiday struct {
	Date        time.Time `json:"date"`
	Global      bool      `json:"global"`
	LineIDs     []LineID  `json:"line_ids,omitempty"`
	Description string    `json:"description,omitempty"`
}

// NewHoliday creates a validated Holiday
func NewHoliday(date time.Time, global bool, lineIDs []LineID, description string) (*Holiday, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("holiday date cannot be empty")
	}
	if !global && len(lineIDs) == 0 {
		return nil, fmt.Errorf("line-specific holiday on %s must name at least one line", FormatDate(date))
	}
	return &Holiday{
		Date:        NormalizeDate(date),
		Global:      global,
		LineIDs:     lineIDs,
		Description: description,
	}, nil
}

// Affects reports whether the holiday closes the given line
func (h Holiday) Affects(lineID LineID) bool {
	if h.Global {
		return true
	}
	for _, id := range h.LineIDs {
		if id == lineID {
			return true
		}
	}
	return false
}
