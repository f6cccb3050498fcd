// Package workorder is the registry of work orders: it creates, deletes and
// finalizes them and builds the elapsed-time reports.
package workorder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

var (
	ErrNotFound       = errors.New("work order not found")
	ErrDuplicateOrder = errors.New("work order already exists")
	ErrInvalidOrder   = errors.New("invalid work order")
)

// CreateRequest holds the data needed to create a new work order
type CreateRequest struct {
	OrderNumber string
	Product     string
	Quantity    int
	Processes   []string // empty means the configured default list
}

// Service manages work orders on top of a Store
type Service struct {
	store     Store
	tracker   *tracker.Tracker
	processes []string
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewService creates a registry over store. defaultProcesses is used for
// work orders created without an explicit process list.
func NewService(store Store, defaultProcesses []string, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		tracker:   tracker.New(store, store, clock, logger),
		processes: defaultProcesses,
		clock:     clock,
		logger:    logger,
	}
}

// Tracker returns the timer service bound to this registry
func (s *Service) Tracker() *tracker.Tracker {
	return s.tracker
}

// Create registers a new active work order
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.WorkOrder, error) {
	number := strings.TrimSpace(req.OrderNumber)
	product := strings.TrimSpace(req.Product)
	if number == "" {
		return nil, fmt.Errorf("%w: order number is required", ErrInvalidOrder)
	}
	if product == "" {
		return nil, fmt.Errorf("%w: product is required", ErrInvalidOrder)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidOrder)
	}

	processes := cleanProcesses(req.Processes)
	if len(processes) == 0 {
		processes = cleanProcesses(s.processes)
	}
	if len(processes) == 0 {
		return nil, fmt.Errorf("%w: no processes configured", ErrInvalidOrder)
	}

	existing, err := s.store.GetWorkOrder(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to check work order %s: %w", number, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, number)
	}

	now := s.clock.Now()
	order := &models.WorkOrder{
		OrderNumber: number,
		CreatedAt:   now,
		UpdatedAt:   now,
		Product:     product,
		Quantity:    req.Quantity,
		Status:      models.WorkOrderActive,
		Processes:   processes,
	}
	if err := s.store.CreateWorkOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create work order %s: %w", number, err)
	}

	s.logger.Info("Work order created",
		zap.String("work_order", number),
		zap.String("product", product),
		zap.Int("quantity", req.Quantity))
	return order, nil
}

// Get returns the work order or ErrNotFound
func (s *Service) Get(ctx context.Context, id string) (*models.WorkOrder, error) {
	order, err := s.store.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get work order %s: %w", id, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return order, nil
}

// List returns work orders in creation order, optionally including
// finalized ones
func (s *Service) List(ctx context.Context, includeFinalized bool) ([]models.WorkOrder, error) {
	orders, err := s.store.ListWorkOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list work orders: %w", err)
	}
	if includeFinalized {
		return orders, nil
	}

	active := orders[:0]
	for _, o := range orders {
		if !o.IsFinalized() {
			active = append(active, o)
		}
	}
	return active, nil
}

// Delete removes a work order together with its timers
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteWorkOrder(ctx, id); err != nil {
		return fmt.Errorf("failed to delete work order %s: %w", id, err)
	}

	s.logger.Info("Work order deleted", zap.String("work_order", id))
	return nil
}

// Finalize freezes every timer of the work order, flushing running ones
// first, and then closes the work order
func (s *Service) Finalize(ctx context.Context, id string) (*models.WorkOrder, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.IsFinalized() {
		return nil, &tracker.TerminalStateError{Key: tracker.Key{WorkOrderID: id}, WorkOrder: true}
	}

	timers, err := s.store.ListTimers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers of %s: %w", id, err)
	}
	now := s.clock.Now()
	for i := range timers {
		// timers of processes dropped from the order are frozen as well
		key := tracker.KeyOf(&timers[i])
		_, err := s.tracker.FinalizeAt(ctx, key, now)
		var terminalErr *tracker.TerminalStateError
		if errors.As(err, &terminalErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	order.Status = models.WorkOrderFinalized
	order.FinalizedAt = &now
	order.UpdatedAt = now
	if err := s.store.UpdateWorkOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to finalize work order %s: %w", id, err)
	}

	s.logger.Info("Work order finalized", zap.String("work_order", id), zap.Int("timers", len(timers)))
	return order, nil
}

// ResolveProcess maps a process argument to a process name of the work
// order. The argument is either the exact name (case-insensitive) or its
// 1-based position in the process list.
func ResolveProcess(order *models.WorkOrder, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if index, err := strconv.Atoi(arg); err == nil {
		if index < 1 || index > len(order.Processes) {
			return "", &tracker.NotFoundError{
				Key:    tracker.Key{WorkOrderID: order.OrderNumber, Process: arg},
				Reason: fmt.Sprintf("process index must be between 1 and %d", len(order.Processes)),
			}
		}
		return order.Processes[index-1], nil
	}

	for _, p := range order.Processes {
		if strings.EqualFold(p, arg) {
			return p, nil
		}
	}
	return "", &tracker.NotFoundError{
		Key:    tracker.Key{WorkOrderID: order.OrderNumber, Process: arg},
		Reason: "process is not configured for this work order",
	}
}

// cleanProcesses trims names and drops blanks and duplicates, keeping order
func cleanProcesses(processes []string) []string {
	seen := make(map[string]bool, len(processes))
	var out []string
	for _, p := range processes {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
