// Package records maps planning entities to the flat rows stored by the SQL
// backends. The gorm tags are used by the postgres store; the sqlite store
// reads and writes the same columns with plain SQL.
package records

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

type LineRecord struct {
	ID            string `gorm:"primaryKey"`
	Name          string
	DailyCapacity int64
	OperatorCount int
	Active        bool
	Revision      int64
}

func (LineRecord) TableName() string { return "lines" }

func NewLineRecord(line *entities.ProductionLine) LineRecord {
	return LineRecord{
		ID:            string(line.ID),
		Name:          line.Name,
		DailyCapacity: int64(line.DailyCapacity),
		OperatorCount: line.OperatorCount,
		Active:        line.Active,
	}
}

func (r LineRecord) ToEntity() *entities.ProductionLine {
	return &entities.ProductionLine{
		ID:            entities.LineID(r.ID),
		Name:          r.Name,
		DailyCapacity: entities.Quantity(r.DailyCapacity),
		OperatorCount: r.OperatorCount,
		Active:        r.Active,
	}
}

type HolidayRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Date        string `gorm:"index"`
	Global      bool
	LineIDs     string
	Description string
}

func (HolidayRecord) TableName() string { return "holidays" }

func NewHolidayRecord(h *entities.Holiday) HolidayRecord {
	ids := make([]string, len(h.LineIDs))
	for i, id := range h.LineIDs {
		ids[i] = string(id)
	}
	return HolidayRecord{
		Date:        entities.FormatDate(h.Date),
		Global:      h.Global,
		LineIDs:     strings.Join(ids, ";"),
		Description: h.Description,
	}
}

func (r HolidayRecord) ToEntity() (*entities.Holiday, error) {
	date, err := entities.ParseDate(r.Date)
	if err != nil {
		return nil, err
	}
	h := &entities.Holiday{Date: date, Global: r.Global, Description: r.Description}
	for _, id := range strings.Split(r.LineIDs, ";") {
		if id != "" {
			h.LineIDs = append(h.LineIDs, entities.LineID(id))
		}
	}
	return h, nil
}

type RampUpPlanRecord struct {
	ID              string `gorm:"primaryKey"`
	Name            string
	FinalEfficiency string
	Steps           string
}

func (RampUpPlanRecord) TableName() string { return "ramp_up_plans" }

func NewRampUpPlanRecord(p *entities.RampUpPlan) (RampUpPlanRecord, error) {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return RampUpPlanRecord{}, fmt.Errorf("failed to encode steps of plan %s: %w", p.ID, err)
	}
	return RampUpPlanRecord{
		ID:              string(p.ID),
		Name:            p.Name,
		FinalEfficiency: p.FinalEfficiencyPercent.String(),
		Steps:           string(steps),
	}, nil
}

func (r RampUpPlanRecord) ToEntity() (*entities.RampUpPlan, error) {
	final, err := decimal.NewFromString(r.FinalEfficiency)
	if err != nil {
		return nil, fmt.Errorf("plan %s: invalid final efficiency %q: %w", r.ID, r.FinalEfficiency, err)
	}
	var steps []entities.RampUpStep
	if r.Steps != "" {
		if err := json.Unmarshal([]byte(r.Steps), &steps); err != nil {
			return nil, fmt.Errorf("plan %s: invalid steps: %w", r.ID, err)
		}
	}
	return entities.NewRampUpPlan(entities.RampUpPlanID(r.ID), r.Name, steps, final)
}

// OrderRecord keeps the schedule as JSON next to the columns used to query it
type OrderRecord struct {
	ID            string `gorm:"primaryKey"`
	PONumber      string
	StyleID       string
	OrderQuantity int64
	CutQuantity   int64
	IssueQuantity int64
	SMV           string
	Status        string `gorm:"index:idx_orders_line_status,priority:2"`
	LineID        string `gorm:"index:idx_orders_line_status,priority:1"`
	PlanStartDate string
	PlanEndDate   string
	Schedule      string
	ParentID      string
	RetiredAt     *time.Time
	Version       int64
	CreatedAt     time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (OrderRecord) TableName() string { return "orders" }

func NewOrderRecord(o *entities.Order) (OrderRecord, error) {
	r := OrderRecord{
		ID:            string(o.ID),
		PONumber:      o.PONumber,
		StyleID:       o.StyleID,
		OrderQuantity: int64(o.OrderQuantity),
		CutQuantity:   int64(o.CutQuantity),
		IssueQuantity: int64(o.IssueQuantity),
		SMV:           o.SMV.String(),
		Status:        o.Status.String(),
		ParentID:      string(o.ParentID),
		RetiredAt:     o.RetiredAt,
		Version:       o.Version,
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
	}
	if s := o.Schedule; s != nil {
		data, err := json.Marshal(s)
		if err != nil {
			return OrderRecord{}, fmt.Errorf("failed to encode schedule of order %s: %w", o.ID, err)
		}
		r.LineID = string(s.LineID)
		r.PlanStartDate = entities.FormatDate(s.PlanStartDate)
		r.PlanEndDate = entities.FormatDate(s.PlanEndDate)
		r.Schedule = string(data)
	}
	return r, nil
}

func (r OrderRecord) ToEntity() (*entities.Order, error) {
	smv, err := decimal.NewFromString(r.SMV)
	if err != nil {
		return nil, fmt.Errorf("order %s: invalid smv %q: %w", r.ID, r.SMV, err)
	}
	status, err := entities.ParseOrderStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", r.ID, err)
	}
	o := &entities.Order{
		ID:            entities.OrderID(r.ID),
		PONumber:      r.PONumber,
		StyleID:       r.StyleID,
		OrderQuantity: entities.Quantity(r.OrderQuantity),
		CutQuantity:   entities.Quantity(r.CutQuantity),
		IssueQuantity: entities.Quantity(r.IssueQuantity),
		SMV:           smv,
		Status:        status,
		ParentID:      entities.OrderID(r.ParentID),
		Version:       r.Version,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.RetiredAt != nil {
		t := r.RetiredAt.UTC()
		o.RetiredAt = &t
	}
	if r.Schedule != "" {
		var s entities.Schedule
		if err := json.Unmarshal([]byte(r.Schedule), &s); err != nil {
			return nil, fmt.Errorf("order %s: invalid schedule: %w", r.ID, err)
		}
		o.Schedule = &s
	}
	return o, nil
}
