package repositories

import (
	"context"
	"time"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// LineRepository provides access to production line master data
type LineRepository interface {
	GetLine(ctx context.Context, id entities.LineID) (*entities.ProductionLine, error)
	GetAllLines(ctx context.Context) ([]*entities.ProductionLine, error)
	SaveLine(ctx context.Context, line *entities.ProductionLine) error
	// GetLineRevision returns the counter bumped on every commit touching the line
	GetLineRevision(ctx context.Context, id entities.LineID) (int64, error)
}

// HolidayRepository provides access to global and line-specific holidays
type HolidayRepository interface {
	GetHolidays(ctx context.Context, from, to time.Time) ([]*entities.Holiday, error)
	SaveHoliday(ctx context.Context, holiday *entities.Holiday) error
}

// RampUpPlanRepository provides access to ramp-up efficiency plans
type RampUpPlanRepository interface {
	GetRampUpPlan(ctx context.Context, id entities.RampUpPlanID) (*entities.RampUpPlan, error)
	GetAllRampUpPlans(ctx context.Context) ([]*entities.RampUpPlan, error)
	SaveRampUpPlan(ctx context.Context, plan *entities.RampUpPlan) error
}
