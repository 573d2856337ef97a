package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/application/services/capacity"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// Formats accepted by NewPrinter
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Printer renders planning results in one output format
type Printer struct {
	w      io.Writer
	format string
}

// NewPrinter creates a printer writing to w
func NewPrinter(w io.Writer, format string) (*Printer, error) {
	switch format {
	case FormatText, FormatJSON, FormatCSV:
		return &Printer{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

var (
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	moved   = color.New(color.FgYellow).SprintFunc()
	good    = color.New(color.FgGreen).SprintFunc()
	muted   = color.New(color.FgHiBlack).SprintFunc()
	alert   = color.New(color.FgRed, color.Bold).SprintFunc()
)

// ScheduleResult prints the committed plans of an intent
func (p *Printer) ScheduleResult(result *dto.ScheduleResult) error {
	switch p.format {
	case FormatJSON:
		return p.json(result)
	case FormatCSV:
		rows := [][]string{{"order_id", "line_id", "plan_start_date", "plan_end_date", "quantity", "method", "displaced", "version"}}
		for _, c := range result.Committed {
			rows = append(rows, []string{
				string(c.OrderID),
				string(c.LineID),
				entities.FormatDate(c.PlanStartDate),
				entities.FormatDate(c.PlanEndDate),
				qty(c.DailyPlan.Total()),
				c.Method.String(),
				strconv.FormatBool(c.Displaced),
				strconv.FormatInt(c.Version, 10),
			})
		}
		for _, id := range result.Released {
			rows = append(rows, []string{string(id), "", "", "", "0", "", "false", ""})
		}
		return p.csv(rows)
	}

	fmt.Fprintf(p.w, "%s\n", heading("Committed Plans"))
	if len(result.Committed) > 0 {
		fmt.Fprintf(p.w, "%-12s %-6s %-12s %-12s %-8s %-8s %s\n",
			"Order", "Line", "Start", "End", "Qty", "Method", "")
		for _, c := range result.Committed {
			note := good("placed")
			if c.Displaced {
				note = moved("displaced")
			}
			fmt.Fprintf(p.w, "%-12s %-6s %-12s %-12s %-8d %-8s %s\n",
				c.OrderID, c.LineID,
				entities.FormatDate(c.PlanStartDate), entities.FormatDate(c.PlanEndDate),
				c.DailyPlan.Total(), c.Method, note)
		}
	}
	for _, id := range result.Released {
		fmt.Fprintf(p.w, "%-12s %s\n", id, moved("released to pending"))
	}
	if result.Partial {
		fmt.Fprintf(p.w, "%s\n", alert("plan is partial: the horizon ran out before the full quantity was placed"))
	}
	fmt.Fprintf(p.w, "%s\n", muted(fmt.Sprintf("attempts: %d", result.Attempts)))
	return nil
}

// PlacementChoice prints the orders standing in the way of a placement
func (p *Printer) PlacementChoice(choice *dto.PlacementChoice) error {
	switch p.format {
	case FormatJSON:
		return p.json(choice)
	case FormatCSV:
		rows := [][]string{{"order_id", "po_number", "plan_start_date", "plan_end_date", "quantity"}}
		for _, c := range choice.Conflicts {
			rows = append(rows, []string{
				string(c.OrderID), c.PONumber,
				entities.FormatDate(c.PlanStartDate), entities.FormatDate(c.PlanEndDate),
				qty(c.Quantity),
			})
		}
		return p.csv(rows)
	}

	where := ""
	if choice.BatchIndex >= 0 {
		where = fmt.Sprintf(" (batch member %d)", choice.BatchIndex)
	}
	fmt.Fprintf(p.w, "%s\n", alert(fmt.Sprintf("Order %s%s overlaps %d scheduled orders from %s",
		choice.OrderID, where, len(choice.Conflicts), entities.FormatDate(choice.StartDate))))
	for _, c := range choice.Conflicts {
		fmt.Fprintf(p.w, "  %-12s %-12s %s .. %s  qty %d\n",
			c.OrderID, c.PONumber, entities.FormatDate(c.PlanStartDate), entities.FormatDate(c.PlanEndDate), c.Quantity)
	}
	fmt.Fprintf(p.w, "%s\n", muted("re-run with --policy insert_before or --policy insert_after"))
	return nil
}

// Split prints the children of a split order
func (p *Printer) Split(result *dto.SplitResult) error {
	switch p.format {
	case FormatJSON:
		return p.json(result)
	case FormatCSV:
		rows := [][]string{{"parent_id", "order_id", "order_quantity"}}
		for _, c := range result.Children {
			rows = append(rows, []string{string(result.ParentID), string(c.ID), qty(c.OrderQuantity)})
		}
		return p.csv(rows)
	}

	fmt.Fprintf(p.w, "%s %s\n", heading("Split"), result.ParentID)
	for _, c := range result.Children {
		fmt.Fprintf(p.w, "  %-40s qty %d\n", c.ID, c.OrderQuantity)
	}
	return nil
}

// Capacity prints the per-day load of a line
func (p *Printer) Capacity(lineID entities.LineID, days []capacity.DayLoad) error {
	switch p.format {
	case FormatJSON:
		return p.json(map[string]any{"line_id": lineID, "days": days})
	case FormatCSV:
		rows := [][]string{{"date", "working", "capacity", "used", "free"}}
		for _, d := range days {
			rows = append(rows, []string{
				entities.FormatDate(d.Date), strconv.FormatBool(d.Working),
				qty(d.Capacity), qty(d.Used), qty(d.Free),
			})
		}
		return p.csv(rows)
	}

	fmt.Fprintf(p.w, "%s %s\n", heading("Capacity of line"), lineID)
	fmt.Fprintf(p.w, "%-12s %-4s %-9s %-9s %-9s\n", "Date", "Day", "Capacity", "Used", "Free")
	for _, d := range days {
		day := d.Date.Format("Mon")
		if !d.Working {
			fmt.Fprintf(p.w, "%s\n", muted(fmt.Sprintf("%-12s %-4s closed", entities.FormatDate(d.Date), day)))
			continue
		}
		free := good(qty(d.Free))
		if d.Free == 0 {
			free = alert("0")
		}
		fmt.Fprintf(p.w, "%-12s %-4s %-9d %-9d %s\n", entities.FormatDate(d.Date), day, d.Capacity, d.Used, free)
	}
	return nil
}

// Orders prints an order listing
func (p *Printer) Orders(orders []*entities.Order) error {
	switch p.format {
	case FormatJSON:
		return p.json(orders)
	case FormatCSV:
		rows := [][]string{{"order_id", "po_number", "style_id", "order_quantity", "status", "line_id", "plan_start_date", "plan_end_date", "parent_id", "version"}}
		for _, o := range orders {
			line, start, end := scheduleColumns(o)
			rows = append(rows, []string{
				string(o.ID), o.PONumber, o.StyleID, qty(o.OrderQuantity), o.Status.String(),
				line, start, end, string(o.ParentID), strconv.FormatInt(o.Version, 10),
			})
		}
		return p.csv(rows)
	}

	fmt.Fprintf(p.w, "%s\n", heading(fmt.Sprintf("Orders (%d)", len(orders))))
	fmt.Fprintf(p.w, "%-12s %-12s %-8s %-10s %-6s %-12s %-12s\n", "Order", "PO", "Qty", "Status", "Line", "Start", "End")
	for _, o := range orders {
		line, start, end := scheduleColumns(o)
		status := o.Status.String()
		if o.IsRetired() {
			status = muted("retired")
		} else if o.IsScheduled() {
			status = good(status)
		}
		fmt.Fprintf(p.w, "%-12s %-12s %-8d %-10s %-6s %-12s %-12s\n",
			o.ID, o.PONumber, o.OrderQuantity, status, line, start, end)
	}
	return nil
}

func scheduleColumns(o *entities.Order) (string, string, string) {
	if o.Schedule == nil {
		return "", "", ""
	}
	return string(o.Schedule.LineID), entities.FormatDate(o.Schedule.PlanStartDate), entities.FormatDate(o.Schedule.PlanEndDate)
}

func (p *Printer) json(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(p.w, string(data))
	return err
}

func (p *Printer) csv(rows [][]string) error {
	w := csv.NewWriter(p.w)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

func qty(q entities.Quantity) string {
	return strconv.FormatInt(int64(q), 10)
}
