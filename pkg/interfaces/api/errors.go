package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/application/services/orchestration"
	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/infrastructure/lock"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error  string               `json:"error"`
	Code   string               `json:"code"`
	Choice *dto.PlacementChoice `json:"choice,omitempty"`
}

// classify maps a scheduling error to an HTTP status and a stable code.
// Cascade aborts are matched before their inner cause.
func classify(err error) (int, string) {
	var choice *dto.PlacementChoice
	switch {
	case errors.As(err, &choice):
		return http.StatusConflict, "placement_choice_required"
	case errors.Is(err, entities.ErrAllocationConflict):
		return http.StatusConflict, "allocation_conflict"
	case errors.Is(err, entities.ErrCascadeAborted):
		return http.StatusUnprocessableEntity, "cascade_aborted"
	case errors.Is(err, entities.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, entities.ErrPlanningHorizonExceeded):
		return http.StatusUnprocessableEntity, "planning_horizon_exceeded"
	case errors.Is(err, entities.ErrNoAvailableCapacity):
		return http.StatusUnprocessableEntity, "no_available_capacity"
	case errors.Is(err, entities.ErrInvalidDate):
		return http.StatusUnprocessableEntity, "invalid_date"
	case errors.Is(err, entities.ErrLineInactive):
		return http.StatusUnprocessableEntity, "line_inactive"
	case errors.Is(err, entities.ErrInvalidRampUpInputs):
		return http.StatusUnprocessableEntity, "invalid_ramp_up_inputs"
	case errors.Is(err, entities.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "invalid_transition"
	case errors.Is(err, orchestration.ErrInvalidIntent):
		return http.StatusUnprocessableEntity, "invalid_intent"
	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "line_busy"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	resp := errorResponse{Error: err.Error(), Code: code}
	var choice *dto.PlacementChoice
	if errors.As(err, &choice) {
		resp.Choice = choice
	}
	c.JSON(status, resp)
}

func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "invalid_request"})
}
