package workorder

import (
	"context"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

// Store is the persistence gateway shared by the registry and the tracker.
// Getters return nil, nil for missing records; deletes are idempotent.
type Store interface {
	tracker.Gateway
	tracker.Registry

	CreateWorkOrder(ctx context.Context, order *models.WorkOrder) error
	UpdateWorkOrder(ctx context.Context, order *models.WorkOrder) error
	// DeleteWorkOrder removes the work order and every timer it owns
	DeleteWorkOrder(ctx context.Context, id string) error
	ListWorkOrders(ctx context.Context) ([]models.WorkOrder, error)
	Close() error
}
