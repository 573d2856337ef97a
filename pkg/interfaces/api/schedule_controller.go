package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// defaultCapacityWindow is the number of days shown when a capacity query
// omits its end date
const defaultCapacityWindow = 14

type scheduleRequest struct {
	OrderID         entities.OrderID         `json:"order_id" binding:"required"`
	LineID          entities.LineID          `json:"line_id" binding:"required"`
	TargetDate      string                   `json:"target_date" binding:"required"`
	PlanningMethod  entities.PlanningMethod  `json:"planning_method"`
	RampUpPlanID    entities.RampUpPlanID    `json:"ramp_up_plan_id"`
	PlacementPolicy entities.PlacementPolicy `json:"placement_policy"`
}

type batchRequest struct {
	LineID        entities.LineID                               `json:"line_id" binding:"required"`
	TargetDate    string                                        `json:"target_date" binding:"required"`
	Orders        []dto.BatchMember                             `json:"orders" binding:"required"`
	DefaultPolicy entities.PlacementPolicy                      `json:"default_policy"`
	Decisions     map[entities.OrderID]entities.PlacementPolicy `json:"decisions"`
}

type splitRequest struct {
	Quantity entities.Quantity `json:"quantity" binding:"required"`
}

type ScheduleController struct {
	scheduler Scheduler
	logger    *slog.Logger
}

func NewScheduleController(scheduler Scheduler, logger *slog.Logger) *ScheduleController {
	return &ScheduleController{scheduler: scheduler, logger: logger}
}

// Schedule places one order
// POST /api/v1/schedule
func (sc *ScheduleController) Schedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	target, err := parseDate(req.TargetDate)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := sc.scheduler.Schedule(c.Request.Context(), dto.ScheduleIntent{
		OrderID:         req.OrderID,
		LineID:          req.LineID,
		TargetDate:      target,
		PlanningMethod:  req.PlanningMethod,
		RampUpPlanID:    req.RampUpPlanID,
		PlacementPolicy: req.PlacementPolicy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ScheduleBatch places an ordered selection back-to-back
// POST /api/v1/schedule/batch
func (sc *ScheduleController) ScheduleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	target, err := parseDate(req.TargetDate)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := sc.scheduler.ScheduleBatch(c.Request.Context(), dto.BatchIntent{
		LineID:        req.LineID,
		TargetDate:    target,
		Orders:        req.Orders,
		DefaultPolicy: req.DefaultPolicy,
		Decisions:     req.Decisions,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GET /api/v1/orders/:id
func (sc *ScheduleController) GetOrder(c *gin.Context) {
	order, err := sc.scheduler.GetOrder(c.Request.Context(), entities.OrderID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// POST /api/v1/orders/:id/unschedule
func (sc *ScheduleController) Unschedule(c *gin.Context) {
	result, err := sc.scheduler.Unschedule(c.Request.Context(), entities.OrderID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/v1/orders/:id/split
func (sc *ScheduleController) Split(c *gin.Context) {
	var req splitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}

	result, err := sc.scheduler.Split(c.Request.Context(), entities.OrderID(c.Param("id")), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Capacity returns the per-day load of a line
// GET /api/v1/lines/:id/capacity?from=2025-06-09&to=2025-06-20
func (sc *ScheduleController) Capacity(c *gin.Context) {
	from := entities.NormalizeDate(time.Now().UTC())
	if s := c.Query("from"); s != "" {
		parsed, err := parseDate(s)
		if err != nil {
			writeError(c, err)
			return
		}
		from = parsed
	}
	to := from.AddDate(0, 0, defaultCapacityWindow-1)
	if s := c.Query("to"); s != "" {
		parsed, err := parseDate(s)
		if err != nil {
			writeError(c, err)
			return
		}
		to = parsed
	}

	days, err := sc.scheduler.Capacity(c.Request.Context(), entities.LineID(c.Param("id")), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"line_id": c.Param("id"),
		"days":    days,
		"count":   len(days),
	})
}

func parseDate(s string) (time.Time, error) {
	t, err := entities.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", entities.ErrInvalidDate, err)
	}
	return t, nil
}
