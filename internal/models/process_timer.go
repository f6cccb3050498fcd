package models

import (
	"time"
)

// TimerStatus is the state of a process stopwatch
type TimerStatus string

const (
	TimerStopped   TimerStatus = "stopped"
	TimerRunning   TimerStatus = "running"
	TimerPaused    TimerStatus = "paused"
	TimerFinalized TimerStatus = "finalized"
)

// Valid reports whether s is one of the known timer states
func (s TimerStatus) Valid() bool {
	switch s {
	case TimerStopped, TimerRunning, TimerPaused, TimerFinalized:
		return true
	}
	return false
}

// ProcessTimer holds the accumulated running time of one process of one
// work order. RunStartedAt is set only while Status is running.
type ProcessTimer struct {
	WorkOrderID string `gorm:"primaryKey" json:"work_order_id"`
	ProcessName string `gorm:"primaryKey" json:"process_name"`

	AccumulatedSeconds float64     `gorm:"not null;default:0" json:"accumulated_seconds"`
	Status             TimerStatus `gorm:"not null;default:stopped" json:"status"` // stopped, running, paused, finalized
	RunStartedAt       *time.Time  `json:"run_started_at"`
	LastUpdatedAt      time.Time   `json:"last_updated_at"`
}
