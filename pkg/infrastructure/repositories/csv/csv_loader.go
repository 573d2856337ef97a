package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
)

// Scenario file names inside an import directory
const (
	LinesFile       = "lines.csv"
	HolidaysFile    = "holidays.csv"
	RampUpPlansFile = "ramp_up_plans.csv"
	OrdersFile      = "orders.csv"
)

// Scenario is the master data and pending orders read from one directory
type Scenario struct {
	Lines       []*entities.ProductionLine
	Holidays    []*entities.Holiday
	RampUpPlans []*entities.RampUpPlan
	Orders      []*entities.Order
}

// Loader handles loading planning data from CSV files
type Loader struct{}

// NewLoader creates a new CSV loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadDir reads a scenario directory. Holidays and ramp-up plans are optional.
func (l *Loader) LoadDir(dir string) (*Scenario, error) {
	var (
		s   Scenario
		err error
	)
	if s.Lines, err = l.LoadLines(filepath.Join(dir, LinesFile)); err != nil {
		return nil, err
	}
	if s.Orders, err = l.LoadOrders(filepath.Join(dir, OrdersFile)); err != nil {
		return nil, err
	}
	if s.Holidays, err = l.LoadHolidays(filepath.Join(dir, HolidaysFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if s.RampUpPlans, err = l.LoadRampUpPlans(filepath.Join(dir, RampUpPlansFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return &s, nil
}

// LoadLines loads production lines from a CSV file
func (l *Loader) LoadLines(filename string) ([]*entities.ProductionLine, error) {
	expectedHeader := []string{"line_id", "name", "daily_capacity", "operator_count", "active"}
	records, err := readRecords(filename, "lines", expectedHeader, true)
	if err != nil {
		return nil, err
	}

	var lines []*entities.ProductionLine
	for i, record := range records {
		capacity, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("lines CSV row %d: invalid daily_capacity: %s", i+2, record[2])
		}
		operators, err := strconv.Atoi(record[3])
		if err != nil {
			return nil, fmt.Errorf("lines CSV row %d: invalid operator_count: %s", i+2, record[3])
		}
		active, err := strconv.ParseBool(record[4])
		if err != nil {
			return nil, fmt.Errorf("lines CSV row %d: invalid active flag: %s", i+2, record[4])
		}

		line, err := entities.NewProductionLine(entities.LineID(record[0]), record[1], entities.Quantity(capacity), operators, active)
		if err != nil {
			return nil, fmt.Errorf("lines CSV row %d: %w", i+2, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// LoadHolidays loads holidays. Scope is "global" or a semicolon separated
// list of line IDs.
func (l *Loader) LoadHolidays(filename string) ([]*entities.Holiday, error) {
	expectedHeader := []string{"date", "scope", "description"}
	records, err := readRecords(filename, "holidays", expectedHeader, false)
	if err != nil {
		return nil, err
	}

	var holidays []*entities.Holiday
	for i, record := range records {
		date, err := entities.ParseDate(record[0])
		if err != nil {
			return nil, fmt.Errorf("holidays CSV row %d: %w", i+2, err)
		}

		scope := strings.TrimSpace(record[1])
		global := strings.EqualFold(scope, "global")
		var lineIDs []entities.LineID
		if !global {
			for _, id := range strings.Split(scope, ";") {
				if id = strings.TrimSpace(id); id != "" {
					lineIDs = append(lineIDs, entities.LineID(id))
				}
			}
		}

		holiday, err := entities.NewHoliday(date, global, lineIDs, record[2])
		if err != nil {
			return nil, fmt.Errorf("holidays CSV row %d: %w", i+2, err)
		}
		holidays = append(holidays, holiday)
	}
	return holidays, nil
}

// LoadRampUpPlans loads ramp-up curves, one row per working day. A row with
// working_day "final" sets the efficiency used past the table.
func (l *Loader) LoadRampUpPlans(filename string) ([]*entities.RampUpPlan, error) {
	expectedHeader := []string{"plan_id", "name", "working_day", "efficiency_percent"}
	records, err := readRecords(filename, "ramp-up plans", expectedHeader, false)
	if err != nil {
		return nil, err
	}

	type draft struct {
		name  string
		steps []entities.RampUpStep
		final *decimal.Decimal
	}
	drafts := make(map[entities.RampUpPlanID]*draft)
	var order []entities.RampUpPlanID

	for i, record := range records {
		id := entities.RampUpPlanID(record[0])
		d, ok := drafts[id]
		if !ok {
			d = &draft{name: record[1]}
			drafts[id] = d
			order = append(order, id)
		}

		efficiency, err := decimal.NewFromString(strings.TrimSpace(record[3]))
		if err != nil {
			return nil, fmt.Errorf("ramp-up plans CSV row %d: invalid efficiency_percent: %s", i+2, record[3])
		}

		if strings.EqualFold(strings.TrimSpace(record[2]), "final") {
			d.final = &efficiency
			continue
		}
		day, err := strconv.Atoi(record[2])
		if err != nil {
			return nil, fmt.Errorf("ramp-up plans CSV row %d: invalid working_day: %s", i+2, record[2])
		}
		d.steps = append(d.steps, entities.RampUpStep{WorkingDay: day, EfficiencyPercent: efficiency})
	}

	var plans []*entities.RampUpPlan
	for _, id := range order {
		d := drafts[id]
		if d.final == nil {
			return nil, fmt.Errorf("ramp-up plan %s has no final efficiency row", id)
		}
		plan, err := entities.NewRampUpPlan(id, d.name, d.steps, *d.final)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// LoadOrders loads pending orders from a CSV file
func (l *Loader) LoadOrders(filename string) ([]*entities.Order, error) {
	expectedHeader := []string{"order_id", "po_number", "style_id", "order_quantity", "smv"}
	records, err := readRecords(filename, "orders", expectedHeader, true)
	if err != nil {
		return nil, err
	}

	var orders []*entities.Order
	for i, record := range records {
		quantity, err := strconv.ParseInt(record[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("orders CSV row %d: invalid order_quantity: %s", i+2, record[3])
		}
		smv, err := decimal.NewFromString(strings.TrimSpace(record[4]))
		if err != nil {
			return nil, fmt.Errorf("orders CSV row %d: invalid smv: %s", i+2, record[4])
		}

		order, err := entities.NewOrder(entities.OrderID(record[0]), record[1], record[2], entities.Quantity(quantity), smv)
		if err != nil {
			return nil, fmt.Errorf("orders CSV row %d: %w", i+2, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// Import writes a scenario into a store. Existing lines and plans are
// overwritten; orders must be new.
func Import(ctx context.Context, store repositories.Store, s *Scenario) error {
	for _, line := range s.Lines {
		if err := store.SaveLine(ctx, line); err != nil {
			return fmt.Errorf("failed to import line %s: %w", line.ID, err)
		}
	}
	for _, h := range s.Holidays {
		if err := store.SaveHoliday(ctx, h); err != nil {
			return fmt.Errorf("failed to import holiday %s: %w", entities.FormatDate(h.Date), err)
		}
	}
	for _, plan := range s.RampUpPlans {
		if err := store.SaveRampUpPlan(ctx, plan); err != nil {
			return fmt.Errorf("failed to import ramp-up plan %s: %w", plan.ID, err)
		}
	}
	for _, order := range s.Orders {
		if err := store.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to import order %s: %w", order.ID, err)
		}
	}
	return nil
}

// Helper functions for parsing CSV records

func readRecords(filename, kind string, expectedHeader []string, needRows bool) ([][]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file %s: %w", kind, filename, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s CSV: %w", kind, err)
	}

	if len(records) == 0 || (needRows && len(records) < 2) {
		return nil, fmt.Errorf("%s CSV must have header and at least one data row", kind)
	}

	header := records[0]
	if !validateHeader(header, expectedHeader) {
		return nil, fmt.Errorf("%s CSV header mismatch. Expected: %v, Got: %v", kind, expectedHeader, header)
	}

	rows := records[1:]
	for i, record := range rows {
		if len(record) != len(expectedHeader) {
			return nil, fmt.Errorf("%s CSV row %d: expected %d columns, got %d", kind, i+2, len(expectedHeader), len(record))
		}
	}
	return rows, nil
}

func validateHeader(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}

	for i, col := range expected {
		if strings.ToLower(strings.TrimSpace(actual[i])) != col {
			return false
		}
	}

	return true
}
