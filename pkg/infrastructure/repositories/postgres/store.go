package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/records"
)

// Store implements every planning repository on PostgreSQL through gorm.
// Commits lock the touched line rows FOR UPDATE before checking revisions.
type Store struct {
	db *gorm.DB
}

var _ repositories.Store = (*Store)(nil)

// Connect opens the database and migrates the schema
func Connect(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	db, err := gorm.Open(postgres.Open(databaseURL), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db)
}

// New wraps an open connection and migrates the schema
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&records.LineRecord{},
		&records.HolidayRecord{},
		&records.RampUpPlanRecord{},
		&records.OrderRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, entities.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func (s *Store) GetLine(ctx context.Context, id entities.LineID) (*entities.ProductionLine, error) {
	var r records.LineRecord
	if err := s.db.WithContext(ctx).Take(&r, "id = ?", string(id)).Error; err != nil {
		return nil, notFound(err, "line "+string(id))
	}
	return r.ToEntity(), nil
}

func (s *Store) GetAllLines(ctx context.Context) ([]*entities.ProductionLine, error) {
	var rows []records.LineRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	lines := make([]*entities.ProductionLine, len(rows))
	for i, r := range rows {
		lines[i] = r.ToEntity()
	}
	return lines, nil
}

// SaveLine upserts a line and bumps its revision
func (s *Store) SaveLine(ctx context.Context, line *entities.ProductionLine) error {
	if line == nil || line.ID == "" {
		return fmt.Errorf("line id cannot be empty")
	}
	r := records.NewLineRecord(line)
	r.Revision = 1
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"name":           r.Name,
			"daily_capacity": r.DailyCapacity,
			"operator_count": r.OperatorCount,
			"active":         r.Active,
			"revision":       gorm.Expr("lines.revision + 1"),
		}),
	}).Create(&r).Error
	if err != nil {
		return fmt.Errorf("failed to save line %s: %w", line.ID, err)
	}
	return nil
}

func (s *Store) GetLineRevision(ctx context.Context, id entities.LineID) (int64, error) {
	var r records.LineRecord
	if err := s.db.WithContext(ctx).Select("id", "revision").Take(&r, "id = ?", string(id)).Error; err != nil {
		return 0, notFound(err, "line "+string(id))
	}
	return r.Revision, nil
}

func (s *Store) GetHolidays(ctx context.Context, from, to time.Time) ([]*entities.Holiday, error) {
	q := s.db.WithContext(ctx).Order("date, id")
	if !from.IsZero() {
		q = q.Where("date >= ?", entities.FormatDate(from))
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", entities.FormatDate(to))
	}
	var rows []records.HolidayRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}

	holidays := make([]*entities.Holiday, 0, len(rows))
	for _, r := range rows {
		h, err := r.ToEntity()
		if err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	return holidays, nil
}

func (s *Store) SaveHoliday(ctx context.Context, holiday *entities.Holiday) error {
	if holiday == nil || holiday.Date.IsZero() {
		return fmt.Errorf("holiday date cannot be empty")
	}
	r := records.NewHolidayRecord(holiday)
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("failed to save holiday %s: %w", r.Date, err)
	}
	return nil
}

func (s *Store) GetRampUpPlan(ctx context.Context, id entities.RampUpPlanID) (*entities.RampUpPlan, error) {
	var r records.RampUpPlanRecord
	if err := s.db.WithContext(ctx).Take(&r, "id = ?", string(id)).Error; err != nil {
		return nil, notFound(err, "ramp-up plan "+string(id))
	}
	return r.ToEntity()
}

func (s *Store) GetAllRampUpPlans(ctx context.Context) ([]*entities.RampUpPlan, error) {
	var rows []records.RampUpPlanRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list ramp-up plans: %w", err)
	}
	plans := make([]*entities.RampUpPlan, 0, len(rows))
	for _, r := range rows {
		plan, err := r.ToEntity()
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (s *Store) SaveRampUpPlan(ctx context.Context, plan *entities.RampUpPlan) error {
	if plan == nil || plan.ID == "" {
		return fmt.Errorf("ramp-up plan id cannot be empty")
	}
	r, err := records.NewRampUpPlanRecord(plan)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "final_efficiency", "steps"}),
	}).Create(&r).Error
	if err != nil {
		return fmt.Errorf("failed to save ramp-up plan %s: %w", plan.ID, err)
	}
	return nil
}

func toOrders(rows []records.OrderRecord) ([]*entities.Order, error) {
	orders := make([]*entities.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.ToEntity()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id entities.OrderID) (*entities.Order, error) {
	var r records.OrderRecord
	if err := s.db.WithContext(ctx).Take(&r, "id = ?", string(id)).Error; err != nil {
		return nil, notFound(err, "order "+string(id))
	}
	return r.ToEntity()
}

func (s *Store) GetOrders(ctx context.Context, ids []entities.OrderID) ([]*entities.Order, error) {
	orders := make([]*entities.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *Store) ListOrders(ctx context.Context, filter repositories.OrderFilter) ([]*entities.Order, error) {
	q := s.db.WithContext(ctx).Order("id")
	if !filter.IncludeRetired {
		q = q.Where("retired_at IS NULL")
	}
	if filter.Status != nil {
		q = q.Where("status = ?", filter.Status.String())
	}
	if filter.LineID != "" {
		q = q.Where("line_id = ?", string(filter.LineID))
	}
	var rows []records.OrderRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return toOrders(rows)
}

func (s *Store) ListScheduledOrders(ctx context.Context, lineID entities.LineID) ([]*entities.Order, error) {
	return scheduledOn(s.db.WithContext(ctx), lineID)
}

func scheduledOn(db *gorm.DB, lineID entities.LineID) ([]*entities.Order, error) {
	var rows []records.OrderRecord
	err := db.Where("line_id = ? AND status = ? AND retired_at IS NULL", string(lineID), entities.Scheduled.String()).
		Order("plan_start_date, id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled orders of line %s: %w", lineID, err)
	}
	return toOrders(rows)
}

func (s *Store) CreateOrder(ctx context.Context, order *entities.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	r, err := records.NewOrderRecord(order)
	if err != nil {
		return err
	}
	r.Version = 1
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&r).Error; err != nil {
			return fmt.Errorf("failed to create order %s: %w", order.ID, err)
		}
		if order.IsScheduled() {
			return bumpRevisions(tx, []entities.LineID{order.LineID()})
		}
		return nil
	})
	if err != nil {
		return err
	}
	order.Version = 1
	return nil
}

// Commit locks the touched lines, verifies revisions and versions, runs check
// against the locked state and writes the change set in one transaction
func (s *Store) Commit(ctx context.Context, cs *repositories.ChangeSet, check repositories.CommitCheck) error {
	touched := cs.TouchedLines()
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		revisions := make(map[entities.LineID]int64, len(touched))
		if len(touched) > 0 {
			var locked []records.LineRecord
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id IN ?", lineIDs(touched)).Order("id").Find(&locked).Error
			if err != nil {
				return fmt.Errorf("failed to lock lines: %w", err)
			}
			for _, l := range locked {
				revisions[entities.LineID(l.ID)] = l.Revision
			}
		}
		for lineID, rev := range cs.LineRevisions {
			current, ok := revisions[lineID]
			if !ok {
				return fmt.Errorf("line %s: %w", lineID, entities.ErrNotFound)
			}
			if current != rev {
				return fmt.Errorf("%w: line %s moved from revision %d to %d",
					entities.ErrAllocationConflict, lineID, rev, current)
			}
		}

		for _, o := range cs.Updates {
			var stored records.OrderRecord
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id", "version").Take(&stored, "id = ?", string(o.ID)).Error
			if err != nil {
				return notFound(err, "order "+string(o.ID))
			}
			if stored.Version != o.Version {
				return fmt.Errorf("%w: order %s moved from version %d to %d",
					entities.ErrAllocationConflict, o.ID, o.Version, stored.Version)
			}
		}

		if check != nil {
			current := make(map[entities.LineID][]*entities.Order, len(touched))
			for _, lineID := range touched {
				orders, err := scheduledOn(tx, lineID)
				if err != nil {
					return err
				}
				current[lineID] = orders
			}
			if err := check(current); err != nil {
				return err
			}
		}

		for _, o := range cs.Updates {
			r, err := records.NewOrderRecord(o)
			if err != nil {
				return err
			}
			r.Version = o.Version + 1
			r.UpdatedAt = cs.CommittedAt.UTC()
			res := tx.Model(&records.OrderRecord{}).
				Where("id = ? AND version = ?", r.ID, o.Version).
				Select("*").Omit("id", "created_at").Updates(&r)
			if res.Error != nil {
				return fmt.Errorf("failed to update order %s: %w", o.ID, res.Error)
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("%w: order %s changed during commit", entities.ErrAllocationConflict, o.ID)
			}
		}
		for _, o := range cs.Creates {
			r, err := records.NewOrderRecord(o)
			if err != nil {
				return err
			}
			r.Version = 1
			if o.CreatedAt.IsZero() {
				r.CreatedAt = cs.CommittedAt.UTC()
			}
			r.UpdatedAt = cs.CommittedAt.UTC()
			if err := tx.Create(&r).Error; err != nil {
				return fmt.Errorf("failed to create order %s: %w", o.ID, err)
			}
		}
		return bumpRevisions(tx, touched)
	})
	if err != nil {
		return err
	}

	for _, o := range cs.Updates {
		o.Version++
		o.UpdatedAt = cs.CommittedAt
	}
	for _, o := range cs.Creates {
		o.Version = 1
		if o.CreatedAt.IsZero() {
			o.CreatedAt = cs.CommittedAt
		}
		o.UpdatedAt = cs.CommittedAt
	}
	return nil
}

func bumpRevisions(tx *gorm.DB, ids []entities.LineID) error {
	if len(ids) == 0 {
		return nil
	}
	err := tx.Model(&records.LineRecord{}).Where("id IN ?", lineIDs(ids)).
		UpdateColumn("revision", gorm.Expr("revision + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to bump line revisions: %w", err)
	}
	return nil
}

func lineIDs(ids []entities.LineID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
