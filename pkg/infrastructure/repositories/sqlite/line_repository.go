package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/records"
)

func (s *Store) GetLine(ctx context.Context, id entities.LineID) (*entities.ProductionLine, error) {
	var r records.LineRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, daily_capacity, operator_count, active, revision FROM lines WHERE id = ?`, string(id),
	).Scan(&r.ID, &r.Name, &r.DailyCapacity, &r.OperatorCount, &r.Active, &r.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("line %s: %w", id, entities.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load line %s: %w", id, err)
	}
	return r.ToEntity(), nil
}

func (s *Store) GetAllLines(ctx context.Context) ([]*entities.ProductionLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, daily_capacity, operator_count, active, revision FROM lines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	defer rows.Close()

	var lines []*entities.ProductionLine
	for rows.Next() {
		var r records.LineRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.DailyCapacity, &r.OperatorCount, &r.Active, &r.Revision); err != nil {
			return nil, err
		}
		lines = append(lines, r.ToEntity())
	}
	return lines, rows.Err()
}

// SaveLine upserts a line and bumps its revision
func (s *Store) SaveLine(ctx context.Context, line *entities.ProductionLine) error {
	if line == nil || line.ID == "" {
		return fmt.Errorf("line id cannot be empty")
	}
	r := records.NewLineRecord(line)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lines (id, name, daily_capacity, operator_count, active, revision)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			daily_capacity = excluded.daily_capacity,
			operator_count = excluded.operator_count,
			active = excluded.active,
			revision = lines.revision + 1`,
		r.ID, r.Name, r.DailyCapacity, r.OperatorCount, r.Active)
	if err != nil {
		return fmt.Errorf("failed to save line %s: %w", line.ID, err)
	}
	return nil
}

func (s *Store) GetLineRevision(ctx context.Context, id entities.LineID) (int64, error) {
	return lineRevision(ctx, s.db, id)
}

func lineRevision(ctx context.Context, q queryer, id entities.LineID) (int64, error) {
	var rev int64
	err := q.QueryRowContext(ctx, `SELECT revision FROM lines WHERE id = ?`, string(id)).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("line %s: %w", id, entities.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read revision of line %s: %w", id, err)
	}
	return rev, nil
}

// GetHolidays returns holidays within [from, to]; zero bounds are open
func (s *Store) GetHolidays(ctx context.Context, from, to time.Time) ([]*entities.Holiday, error) {
	lo, hi := "0000-01-01", "9999-12-31"
	if !from.IsZero() {
		lo = entities.FormatDate(from)
	}
	if !to.IsZero() {
		hi = entities.FormatDate(to)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, global, line_ids, description FROM holidays
		WHERE date >= ? AND date <= ? ORDER BY date, id`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	var holidays []*entities.Holiday
	for rows.Next() {
		var r records.HolidayRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.Global, &r.LineIDs, &r.Description); err != nil {
			return nil, err
		}
		h, err := r.ToEntity()
		if err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

func (s *Store) SaveHoliday(ctx context.Context, holiday *entities.Holiday) error {
	if holiday == nil || holiday.Date.IsZero() {
		return fmt.Errorf("holiday date cannot be empty")
	}
	r := records.NewHolidayRecord(holiday)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO holidays (date, global, line_ids, description) VALUES (?, ?, ?, ?)`,
		r.Date, r.Global, r.LineIDs, r.Description)
	if err != nil {
		return fmt.Errorf("failed to save holiday %s: %w", r.Date, err)
	}
	return nil
}

func (s *Store) GetRampUpPlan(ctx context.Context, id entities.RampUpPlanID) (*entities.RampUpPlan, error) {
	var r records.RampUpPlanRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, final_efficiency, steps FROM ramp_up_plans WHERE id = ?`, string(id),
	).Scan(&r.ID, &r.Name, &r.FinalEfficiency, &r.Steps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ramp-up plan %s: %w", id, entities.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ramp-up plan %s: %w", id, err)
	}
	return r.ToEntity()
}

func (s *Store) GetAllRampUpPlans(ctx context.Context) ([]*entities.RampUpPlan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, final_efficiency, steps FROM ramp_up_plans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ramp-up plans: %w", err)
	}
	defer rows.Close()

	var plans []*entities.RampUpPlan
	for rows.Next() {
		var r records.RampUpPlanRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.FinalEfficiency, &r.Steps); err != nil {
			return nil, err
		}
		plan, err := r.ToEntity()
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (s *Store) SaveRampUpPlan(ctx context.Context, plan *entities.RampUpPlan) error {
	if plan == nil || plan.ID == "" {
		return fmt.Errorf("ramp-up plan id cannot be empty")
	}
	r, err := records.NewRampUpPlanRecord(plan)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ramp_up_plans (id, name, final_efficiency, steps) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			final_efficiency = excluded.final_efficiency,
			steps = excluded.steps`,
		r.ID, r.Name, r.FinalEfficiency, r.Steps)
	if err != nil {
		return fmt.Errorf("failed to save ramp-up plan %s: %w", plan.ID, err)
	}
	return nil
}
