package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/domain/repositories"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/records"
)

const orderColumns = `id, po_number, style_id, order_quantity, cut_quantity, issue_quantity, smv, status,
	line_id, plan_start_date, plan_end_date, schedule, parent_id, retired_at, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*entities.Order, error) {
	var (
		r                    records.OrderRecord
		retiredAt            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.PONumber, &r.StyleID, &r.OrderQuantity, &r.CutQuantity, &r.IssueQuantity,
		&r.SMV, &r.Status, &r.LineID, &r.PlanStartDate, &r.PlanEndDate, &r.Schedule, &r.ParentID,
		&retiredAt, &r.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("order %s: invalid created_at: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("order %s: invalid updated_at: %w", r.ID, err)
	}
	if retiredAt.Valid {
		t, err := parseTime(retiredAt.String)
		if err != nil {
			return nil, fmt.Errorf("order %s: invalid retired_at: %w", r.ID, err)
		}
		r.RetiredAt = &t
	}
	return r.ToEntity()
}

func queryOrders(ctx context.Context, q queryer, where string, args ...any) ([]*entities.Order, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*entities.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, id entities.OrderID) (*entities.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, entities.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return o, nil
}

// GetOrders returns the listed orders in the requested order
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
	var (
		conds []string
		args  []any
	)
	if !filter.IncludeRetired {
		conds = append(conds, "retired_at IS NULL")
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status.String())
	}
	if filter.LineID != "" {
		conds = append(conds, "line_id = ?")
		args = append(args, string(filter.LineID))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return queryOrders(ctx, s.db, where+" ORDER BY id", args...)
}

func (s *Store) ListScheduledOrders(ctx context.Context, lineID entities.LineID) ([]*entities.Order, error) {
	return scheduledOn(ctx, s.db, lineID)
}

func scheduledOn(ctx context.Context, q queryer, lineID entities.LineID) ([]*entities.Order, error) {
	return queryOrders(ctx, q,
		`WHERE line_id = ? AND status = ? AND retired_at IS NULL ORDER BY plan_start_date, id`,
		string(lineID), entities.Scheduled.String())
}

func (s *Store) CreateOrder(ctx context.Context, order *entities.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertOrder(ctx, tx, order, 1); err != nil {
			return err
		}
		if order.IsScheduled() {
			if err := bumpRevision(ctx, tx, order.LineID()); err != nil {
				return err
			}
		}
		order.Version = 1
		return nil
	})
}

// Commit runs the optimistic checks and the caller's check inside one
// immediate transaction, then writes every order and bumps line revisions
func (s *Store) Commit(ctx context.Context, cs *repositories.ChangeSet, check repositories.CommitCheck) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for lineID, rev := range cs.LineRevisions {
			current, err := lineRevision(ctx, tx, lineID)
			if err != nil {
				return err
			}
			if current != rev {
				return fmt.Errorf("%w: line %s moved from revision %d to %d",
					entities.ErrAllocationConflict, lineID, rev, current)
			}
		}
		for _, o := range cs.Updates {
			var stored int64
			err := tx.QueryRowContext(ctx, `SELECT version FROM orders WHERE id = ?`, string(o.ID)).Scan(&stored)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("order %s: %w", o.ID, entities.ErrNotFound)
			}
			if err != nil {
				return err
			}
			if stored != o.Version {
				return fmt.Errorf("%w: order %s moved from version %d to %d",
					entities.ErrAllocationConflict, o.ID, o.Version, stored)
			}
		}

		touched := cs.TouchedLines()
		if check != nil {
			current := make(map[entities.LineID][]*entities.Order, len(touched))
			for _, lineID := range touched {
				orders, err := scheduledOn(ctx, tx, lineID)
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
			if err := updateOrder(ctx, tx, o, cs); err != nil {
				return err
			}
		}
		for _, o := range cs.Creates {
			created := o.Clone()
			if created.CreatedAt.IsZero() {
				created.CreatedAt = cs.CommittedAt
			}
			created.UpdatedAt = cs.CommittedAt
			if err := insertOrder(ctx, tx, created, 1); err != nil {
				return err
			}
		}
		for _, lineID := range touched {
			if err := bumpRevision(ctx, tx, lineID); err != nil {
				return err
			}
		}
		return nil
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

func insertOrder(ctx context.Context, tx *sql.Tx, o *entities.Order, version int64) error {
	r, err := records.NewOrderRecord(o)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PONumber, r.StyleID, r.OrderQuantity, r.CutQuantity, r.IssueQuantity, r.SMV, r.Status,
		r.LineID, r.PlanStartDate, r.PlanEndDate, r.Schedule, r.ParentID, nullableTime(o),
		version, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("order %s already exists", o.ID)
		}
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}
	return nil
}

func updateOrder(ctx context.Context, tx *sql.Tx, o *entities.Order, cs *repositories.ChangeSet) error {
	r, err := records.NewOrderRecord(o)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET
			order_quantity = ?, cut_quantity = ?, issue_quantity = ?, status = ?,
			line_id = ?, plan_start_date = ?, plan_end_date = ?, schedule = ?,
			parent_id = ?, retired_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		r.OrderQuantity, r.CutQuantity, r.IssueQuantity, r.Status,
		r.LineID, r.PlanStartDate, r.PlanEndDate, r.Schedule,
		r.ParentID, nullableTime(o), formatTime(cs.CommittedAt),
		r.ID, o.Version)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", o.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("%w: order %s changed during commit", entities.ErrAllocationConflict, o.ID)
	}
	return nil
}

func bumpRevision(ctx context.Context, tx *sql.Tx, lineID entities.LineID) error {
	if _, err := tx.ExecContext(ctx, `UPDATE lines SET revision = revision + 1 WHERE id = ?`, string(lineID)); err != nil {
		return fmt.Errorf("failed to bump revision of line %s: %w", lineID, err)
	}
	return nil
}

func nullableTime(o *entities.Order) any {
	if o.RetiredAt == nil {
		return nil
	}
	return formatTime(*o.RetiredAt)
}
