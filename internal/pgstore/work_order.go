package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	jsoniter "github.com/json-iterator/go"

	"github.com/balkashynov/wotrack/internal/models"
)

var workOrderColumns = []string{
	"order_number", "product", "quantity", "status", "processes", "created_at", "updated_at", "finalized_at",
}

func selectWorkOrders() sq.SelectBuilder {
	return psql.Select(workOrderColumns...).
		From(WorkOrderTable).
		OrderBy("created_at", "order_number")
}

func insertWorkOrder(o *models.WorkOrder) (sq.InsertBuilder, error) {
	processes, err := encodeProcesses(o.Processes)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return psql.Insert(WorkOrderTable).
		Columns(workOrderColumns...).
		Values(o.OrderNumber, o.Product, o.Quantity, string(o.Status), processes, o.CreatedAt, o.UpdatedAt, o.FinalizedAt), nil
}

func updateWorkOrder(o *models.WorkOrder) (sq.UpdateBuilder, error) {
	processes, err := encodeProcesses(o.Processes)
	if err != nil {
		return sq.UpdateBuilder{}, err
	}
	return psql.Update(WorkOrderTable).
		Set("product", o.Product).
		Set("quantity", o.Quantity).
		Set("status", string(o.Status)).
		Set("processes", processes).
		Set("updated_at", o.UpdatedAt).
		Set("finalized_at", o.FinalizedAt).
		Where(sq.Eq{"order_number": o.OrderNumber}), nil
}

func (s *Store) GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error) {
	orders, err := s.listWorkOrders(ctx, selectWorkOrders().Where(sq.Eq{"order_number": id}).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (s *Store) ListWorkOrders(ctx context.Context) ([]models.WorkOrder, error) {
	return s.listWorkOrders(ctx, selectWorkOrders())
}

func (s *Store) CreateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	ib, err := insertWorkOrder(order)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, ib); err != nil {
		return fmt.Errorf("failed to insert work order %s: %w", order.OrderNumber, err)
	}
	return nil
}

func (s *Store) UpdateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	ub, err := updateWorkOrder(order)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, ub); err != nil {
		return fmt.Errorf("failed to update work order %s: %w", order.OrderNumber, err)
	}
	return nil
}

// DeleteWorkOrder removes the work order and its timers in one transaction
func (s *Store) DeleteWorkOrder(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, b := range []sq.DeleteBuilder{
		psql.Delete(ProcessTimerTable).Where(sq.Eq{"work_order_id": id}),
		psql.Delete(WorkOrderTable).Where(sq.Eq{"order_number": id}),
	} {
		stmt, args, err := b.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to delete work order %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *Store) listWorkOrders(ctx context.Context, b sq.SelectBuilder) ([]models.WorkOrder, error) {
	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query work orders: %w", err)
	}
	defer rows.Close()

	var orders []models.WorkOrder
	for rows.Next() {
		var (
			o         models.WorkOrder
			status    string
			processes string
			finalized sql.NullTime
		)
		if err := rows.Scan(&o.OrderNumber, &o.Product, &o.Quantity, &status, &processes, &o.CreatedAt, &o.UpdatedAt, &finalized); err != nil {
			return nil, fmt.Errorf("failed to scan work order: %w", err)
		}
		o.Status = models.WorkOrderStatus(status)
		if finalized.Valid {
			t := finalized.Time
			o.FinalizedAt = &t
		}
		if o.Processes, err = decodeProcesses(processes); err != nil {
			return nil, fmt.Errorf("work order %s: %w", o.OrderNumber, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func encodeProcesses(processes []string) (string, error) {
	if processes == nil {
		processes = []string{}
	}
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(processes)
	if err != nil {
		return "", fmt.Errorf("failed to encode process list: %w", err)
	}
	return out, nil
}

func decodeProcesses(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var processes []string
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &processes); err != nil {
		return nil, fmt.Errorf("invalid process list: %w", err)
	}
	return processes, nil
}
