package models

import (
	"time"
)

// WorkOrderStatus is the lifecycle state of a work order
type WorkOrderStatus string

const (
	WorkOrderActive    WorkOrderStatus = "active"
	WorkOrderFinalized WorkOrderStatus = "finalized"
)

// WorkOrder represents a unit of production work: a product, a quantity
// and the fixed list of processes it goes through
type WorkOrder struct {
	OrderNumber string    `gorm:"primaryKey" json:"order_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Product     string          `gorm:"not null" json:"product"`
	Quantity    int             `gorm:"not null;default:1" json:"quantity"`
	Status      WorkOrderStatus `gorm:"default:active" json:"status"` // active, finalized
	Processes   []string        `gorm:"serializer:json" json:"processes"`
	FinalizedAt *time.Time      `json:"finalized_at"`

	// Relationships
	Timers []ProcessTimer `gorm:"foreignKey:WorkOrderID;constraint:OnDelete:CASCADE;" json:"-"`
}

// IsFinalized reports whether the work order has been closed
func (w *WorkOrder) IsFinalized() bool {
	return w.Status == WorkOrderFinalized
}

// HasProcess reports whether name is one of the work order's processes
func (w *WorkOrder) HasProcess(name string) bool {
	for _, p := range w.Processes {
		if p == name {
			return true
		}
	}
	return false
}
