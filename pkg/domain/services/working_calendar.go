package services

import (
	"time"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// WorkingCalendar answers whether a line works on a given day.
// Saturdays and Sundays never work; holidays close either every line or the
// lines they name.
type WorkingCalendar struct {
	global  map[time.Time]bool
	perLine map[time.Time]map[entities.LineID]bool
}

// NewWorkingCalendar builds a calendar from holiday records
func NewWorkingCalendar(holidays []*entities.Holiday) *WorkingCalendar {
	wc := &WorkingCalendar{
		global:  make(map[time.Time]bool),
		perLine: make(map[time.Time]map[entities.LineID]bool),
	}
	for _, h := range holidays {
		wc.AddHoliday(*h)
	}
	return wc
}

// AddHoliday registers one more holiday
func (wc *WorkingCalendar) AddHoliday(h entities.Holiday) {
	date := entities.NormalizeDate(h.Date)
	if h.Global {
		wc.global[date] = true
		return
	}
	lines := wc.perLine[date]
	if lines == nil {
		lines = make(map[entities.LineID]bool)
		wc.perLine[date] = lines
	}
	for _, id := range h.LineIDs {
		lines[id] = true
	}
}

// IsHoliday reports whether a holiday closes the line on date
func (wc *WorkingCalendar) IsHoliday(lineID entities.LineID, date time.Time) bool {
	date = entities.NormalizeDate(date)
	if wc.global[date] {
		return true
	}
	return wc.perLine[date][lineID]
}

// IsWorkingDay reports whether the line produces on date
func (wc *WorkingCalendar) IsWorkingDay(lineID entities.LineID, date time.Time) bool {
	if entities.IsWeekend(date) {
		return false
	}
	return !wc.IsHoliday(lineID, date)
}

// NextWorkingDay returns the first working day on or after date, giving up
// after the planning horizon
func (wc *WorkingCalendar) NextWorkingDay(lineID entities.LineID, date time.Time) (time.Time, bool) {
	cursor := entities.NormalizeDate(date)
	for i := 0; i <= entities.HorizonDays; i++ {
		if wc.IsWorkingDay(lineID, cursor) {
			return cursor, true
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

// WorkingDaysBetween counts working days in the closed range [from, to]
func (wc *WorkingCalendar) WorkingDaysBetween(lineID entities.LineID, from, to time.Time) int {
	count := 0
	for d := entities.NormalizeDate(from); !d.After(entities.NormalizeDate(to)); d = d.AddDate(0, 0, 1) {
		if wc.IsWorkingDay(lineID, d) {
			count++
		}
	}
	return count
}
