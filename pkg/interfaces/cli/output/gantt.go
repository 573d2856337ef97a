package output

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// GanttChart renders the scheduled orders of one or more lines as an SVG
// timeline with one row per line
type GanttChart struct {
	Width        int
	Height       int
	MarginLeft   int
	MarginTop    int
	MarginRight  int
	MarginBottom int
	RowHeight    int
	StartDate    time.Time
	EndDate      time.Time
}

// GanttBar is one scheduled order on a line row
type GanttBar struct {
	OrderID   entities.OrderID
	LineID    entities.LineID
	Quantity  entities.Quantity
	Method    entities.PlanningMethod
	StartDate time.Time
	EndDate   time.Time
	Split     bool
	X         int
	Width     int
	Color     string
}

// NewGanttChart sizes a chart around the schedules of orders. Orders that are
// not scheduled are ignored.
func NewGanttChart(orders []*entities.Order) *GanttChart {
	gc := &GanttChart{
		Width:        1200,
		Height:       200,
		MarginLeft:   120,
		MarginTop:    60,
		MarginRight:  60,
		MarginBottom: 60,
		RowHeight:    40,
	}

	lines := make(map[entities.LineID]bool)
	for _, o := range scheduled(orders) {
		s := o.Schedule
		if gc.StartDate.IsZero() || s.PlanStartDate.Before(gc.StartDate) {
			gc.StartDate = s.PlanStartDate
		}
		if s.PlanEndDate.After(gc.EndDate) {
			gc.EndDate = s.PlanEndDate
		}
		lines[s.LineID] = true
	}
	if len(lines) > 0 {
		// the end date is inclusive, so the axis runs to the day after
		gc.EndDate = gc.EndDate.AddDate(0, 0, 1)
		gc.Height = gc.MarginTop + len(lines)*gc.RowHeight + gc.MarginBottom
	}
	return gc
}

// GenerateSVG draws the chart
func (gc *GanttChart) GenerateSVG(orders []*entities.Order) string {
	rows := gc.organizeBars(gc.createBars(scheduled(orders)))
	if len(rows) == 0 {
		return gc.generateEmptyChart()
	}

	var svg strings.Builder
	fmt.Fprintf(&svg, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`, gc.Width, gc.Height)
	svg.WriteString(`<style>`)
	svg.WriteString(`.line-label { font-family: Arial, sans-serif; font-size: 12px; fill: #333; }`)
	svg.WriteString(`.time-label { font-family: Arial, sans-serif; font-size: 10px; fill: #666; }`)
	svg.WriteString(`.title { font-family: Arial, sans-serif; font-size: 16px; font-weight: bold; fill: #333; }`)
	svg.WriteString(`.grid-line { stroke: #e0e0e0; stroke-width: 1; }`)
	svg.WriteString(`.order-bar { stroke: #333; stroke-width: 1; }`)
	svg.WriteString(`.order-text { font-family: Arial, sans-serif; font-size: 9px; fill: white; }`)
	svg.WriteString(`</style>`)
	fmt.Fprintf(&svg, `<rect width="%d" height="%d" fill="white"/>`, gc.Width, gc.Height)
	fmt.Fprintf(&svg, `<text x="%d" y="30" class="title" text-anchor="middle">Line Schedule %s to %s</text>`,
		gc.Width/2, entities.FormatDate(gc.StartDate), entities.FormatDate(gc.EndDate.AddDate(0, 0, -1)))

	gc.drawTimeAxis(&svg, len(rows))
	gc.drawLineRows(&svg, rows)
	gc.drawLegend(&svg)

	svg.WriteString(`</svg>`)
	return svg.String()
}

func (gc *GanttChart) days() int {
	return entities.DaysBetween(gc.StartDate, gc.EndDate)
}

func (gc *GanttChart) xFor(date time.Time) int {
	chartWidth := gc.Width - gc.MarginLeft - gc.MarginRight
	return gc.MarginLeft + entities.DaysBetween(gc.StartDate, date)*chartWidth/gc.days()
}

func (gc *GanttChart) createBars(orders []*entities.Order) []GanttBar {
	bars := make([]GanttBar, 0, len(orders))
	for _, o := range orders {
		s := o.Schedule
		x := gc.xFor(s.PlanStartDate)
		width := gc.xFor(s.PlanEndDate.AddDate(0, 0, 1)) - x
		if width < 2 {
			width = 2
		}
		bar := GanttBar{
			OrderID:   o.ID,
			LineID:    s.LineID,
			Quantity:  s.DailyPlan.Total(),
			Method:    s.Method,
			StartDate: s.PlanStartDate,
			EndDate:   s.PlanEndDate,
			Split:     o.ParentID != "",
			X:         x,
			Width:     width,
		}
		bar.Color = barColor(bar)
		bars = append(bars, bar)
	}
	return bars
}

func (gc *GanttChart) organizeBars(bars []GanttBar) map[entities.LineID][]GanttBar {
	rows := make(map[entities.LineID][]GanttBar)
	for _, bar := range bars {
		rows[bar.LineID] = append(rows[bar.LineID], bar)
	}
	for id := range rows {
		sort.Slice(rows[id], func(i, j int) bool {
			return rows[id][i].StartDate.Before(rows[id][j].StartDate)
		})
	}
	return rows
}

// drawTimeAxis labels days for short ranges and Mondays otherwise
func (gc *GanttChart) drawTimeAxis(svg *strings.Builder, numRows int) {
	gridBottom := gc.MarginTop + numRows*gc.RowHeight
	weekly := gc.days() > 31
	for d := gc.StartDate; d.Before(gc.EndDate); d = d.AddDate(0, 0, 1) {
		if weekly && d.Weekday() != time.Monday {
			continue
		}
		x := gc.xFor(d)
		fmt.Fprintf(svg, `<line x1="%d" y1="%d" x2="%d" y2="%d" class="grid-line"/>`, x, gc.MarginTop, x, gridBottom)
		fmt.Fprintf(svg, `<text x="%d" y="%d" class="time-label" text-anchor="middle">%s</text>`,
			x, gridBottom+15, d.Format("Jan 2"))
	}
}

func (gc *GanttChart) drawLineRows(svg *strings.Builder, rows map[entities.LineID][]GanttBar) {
	ids := make([]entities.LineID, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i, id := range ids {
		y := gc.MarginTop + i*gc.RowHeight
		fmt.Fprintf(svg, `<text x="%d" y="%d" class="line-label" text-anchor="end">%s</text>`,
			gc.MarginLeft-15, y+gc.RowHeight/2+4, html.EscapeString(string(id)))
		fmt.Fprintf(svg, `<line x1="%d" y1="%d" x2="%d" y2="%d" class="grid-line"/>`,
			gc.MarginLeft, y+gc.RowHeight, gc.Width-gc.MarginRight, y+gc.RowHeight)
		for _, bar := range rows[id] {
			gc.drawBar(svg, bar, y)
		}
	}
}

func (gc *GanttChart) drawBar(svg *strings.Builder, bar GanttBar, rowY int) {
	barHeight := gc.RowHeight - 8
	barY := rowY + 4

	svg.WriteString(`<g>`)
	fmt.Fprintf(svg, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s" class="order-bar"/>`,
		bar.X, barY, bar.Width, barHeight, bar.Color)
	if bar.Width > 50 {
		fmt.Fprintf(svg, `<text x="%d" y="%d" class="order-text" text-anchor="middle">%s</text>`,
			bar.X+bar.Width/2, barY+barHeight/2+3, html.EscapeString(string(bar.OrderID)))
	}
	fmt.Fprintf(svg, `<title>%s</title>`, html.EscapeString(fmt.Sprintf("%s on %s, qty %d, %s to %s, %s",
		bar.OrderID, bar.LineID, bar.Quantity,
		entities.FormatDate(bar.StartDate), entities.FormatDate(bar.EndDate), bar.Method)))
	svg.WriteString(`</g>`)
}

func (gc *GanttChart) drawLegend(svg *strings.Builder) {
	legendX := gc.Width - gc.MarginRight - 180
	items := []struct {
		color string
		label string
	}{
		{"#4CAF50", "Flat"},
		{"#2196F3", "Ramp-up"},
		{"#FF9800", "Split child"},
	}
	for i, item := range items {
		x := legendX + i*60
		fmt.Fprintf(svg, `<rect x="%d" y="42" width="12" height="8" fill="%s"/>`, x, item.color)
		fmt.Fprintf(svg, `<text x="%d" y="50" class="time-label">%s</text>`, x+16, item.label)
	}
}

func barColor(bar GanttBar) string {
	switch {
	case bar.Split:
		return "#FF9800"
	case bar.Method == entities.RampUp:
		return "#2196F3"
	default:
		return "#4CAF50"
	}
}

func (gc *GanttChart) generateEmptyChart() string {
	return fmt.Sprintf(`<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`+
		`<rect width="%d" height="%d" fill="white"/>`+
		`<text x="%d" y="%d" text-anchor="middle" font-family="Arial, sans-serif" font-size="16" fill="#666">No Scheduled Orders</text>`+
		`</svg>`, gc.Width, gc.Height, gc.Width, gc.Height, gc.Width/2, gc.Height/2)
}

func scheduled(orders []*entities.Order) []*entities.Order {
	var out []*entities.Order
	for _, o := range orders {
		if o.IsScheduled() && !o.IsRetired() && o.Schedule != nil {
			out = append(out, o)
		}
	}
	return out
}
