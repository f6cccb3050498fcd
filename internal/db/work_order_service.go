package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/balkashynov/wotrack/internal/models"
)

// GetWorkOrder retrieves a work order by number, nil if it does not exist
func (s *Store) GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error) {
	var order models.WorkOrder

	err := s.DB.WithContext(ctx).Where("order_number = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// ListWorkOrders returns all work orders, oldest first
func (s *Store) ListWorkOrders(ctx context.Context) ([]models.WorkOrder, error) {
	var orders []models.WorkOrder

	if err := s.DB.WithContext(ctx).Order("created_at ASC, order_number ASC").Find(&orders).Error; err != nil {
		return nil, err
	}

	return orders, nil
}

// CreateWorkOrder inserts a new work order
func (s *Store) CreateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	return s.DB.WithContext(ctx).Create(order).Error
}

// UpdateWorkOrder saves every field of an existing work order
func (s *Store) UpdateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	return s.DB.WithContext(ctx).Save(order).Error
}

// DeleteWorkOrder removes the work order and its timers in one transaction
func (s *Store) DeleteWorkOrder(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("work_order_id = ?", id).Delete(&models.ProcessTimer{}).Error; err != nil {
			return err
		}
		return tx.Where("order_number = ?", id).Delete(&models.WorkOrder{}).Error
	})
}
