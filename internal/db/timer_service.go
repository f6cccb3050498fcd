package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

// LoadTimer returns the timer stored under key, nil if there is none
func (s *Store) LoadTimer(ctx context.Context, key tracker.Key) (*models.ProcessTimer, error) {
	var timer models.ProcessTimer

	err := s.DB.WithContext(ctx).
		Where("work_order_id = ? AND process_name = ?", key.WorkOrderID, key.Process).
		First(&timer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &timer, nil
}

// SaveTimer inserts or replaces the timer stored under key
func (s *Store) SaveTimer(ctx context.Context, key tracker.Key, timer *models.ProcessTimer) error {
	row := *timer
	row.WorkOrderID = key.WorkOrderID
	row.ProcessName = key.Process

	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// ListTimers returns every timer of a work order
func (s *Store) ListTimers(ctx context.Context, workOrderID string) ([]models.ProcessTimer, error) {
	var timers []models.ProcessTimer

	err := s.DB.WithContext(ctx).
		Where("work_order_id = ?", workOrderID).
		Order("process_name ASC").
		Find(&timers).Error
	if err != nil {
		return nil, err
	}

	return timers, nil
}

// RunAtomic runs fn inside a transaction; the store handed to fn is bound
// to it
func (s *Store) RunAtomic(ctx context.Context, key tracker.Key, fn func(g tracker.Gateway) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
}
