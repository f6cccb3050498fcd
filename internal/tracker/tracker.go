package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/balkashynov/wotrack/internal/models"
)

// Gateway persists timer records. LoadTimer returns nil, nil when no record
// exists for the key.
type Gateway interface {
	LoadTimer(ctx context.Context, key Key) (*models.ProcessTimer, error)
	SaveTimer(ctx context.Context, key Key, timer *models.ProcessTimer) error
	ListTimers(ctx context.Context, workOrderID string) ([]models.ProcessTimer, error)
}

// Atomic is implemented by gateways that other processes write to as well.
// RunAtomic gives fn exclusive access to key until it returns; fn must go
// through the gateway it is handed.
type Atomic interface {
	RunAtomic(ctx context.Context, key Key, fn func(g Gateway) error) error
}

// Registry resolves work orders. GetWorkOrder returns nil, nil when the
// work order does not exist.
type Registry interface {
	GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error)
}

// Tracker applies timer transitions as one load-mutate-save unit per key
type Tracker struct {
	gateway  Gateway
	registry Registry
	clock    clockwork.Clock
	logger   *zap.Logger
	locks    *keyLocks
}

// New creates a Tracker. A nil clock means the real clock, a nil logger
// discards everything.
func New(gateway Gateway, registry Registry, clock clockwork.Clock, logger *zap.Logger) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		gateway:  gateway,
		registry: registry,
		clock:    clock,
		logger:   logger,
		locks:    newKeyLocks(),
	}
}

// Clock returns the clock used to timestamp transitions
func (tr *Tracker) Clock() clockwork.Clock {
	return tr.clock
}

type transition func(*models.ProcessTimer, time.Time) error

// Start starts (or resumes) the timer for key, creating it on first use
func (tr *Tracker) Start(ctx context.Context, key Key) (*models.ProcessTimer, error) {
	return tr.mutate(ctx, key, "start", Start, time.Time{}, false)
}

// Pause pauses the timer for key
func (tr *Tracker) Pause(ctx context.Context, key Key) (*models.ProcessTimer, error) {
	return tr.mutate(ctx, key, "pause", Pause, time.Time{}, false)
}

// Stop stops the timer for key
func (tr *Tracker) Stop(ctx context.Context, key Key) (*models.ProcessTimer, error) {
	return tr.mutate(ctx, key, "stop", Stop, time.Time{}, false)
}

// Finalize freezes the timer for key
func (tr *Tracker) Finalize(ctx context.Context, key Key) (*models.ProcessTimer, error) {
	return tr.mutate(ctx, key, "finalize", Finalize, time.Time{}, false)
}

// FinalizeAt freezes the timer for key as of at. Closing a work order uses
// it so every process is flushed against the same instant. Stored timers of
// processes since dropped from the work order are frozen too.
func (tr *Tracker) FinalizeAt(ctx context.Context, key Key, at time.Time) (*models.ProcessTimer, error) {
	return tr.mutate(ctx, key, "finalize", Finalize, at, true)
}

// Save persists timer under key. Callers use it to retry a save that failed
// with a PersistenceError. A stored timer that is already finalized is never
// overwritten.
func (tr *Tracker) Save(ctx context.Context, key Key, timer *models.ProcessTimer) error {
	unlock := tr.locks.lock(key)
	defer unlock()

	order, err := tr.resolve(ctx, key, true)
	if err != nil {
		return err
	}
	if !order.HasProcess(key.Process) {
		return &NotFoundError{Key: key, Reason: "process is not configured for this work order"}
	}

	var opErr error
	err = tr.atomically(ctx, key, func(g Gateway) error {
		stored, err := g.LoadTimer(ctx, key)
		if err != nil {
			opErr = &PersistenceError{Key: key, Op: "load", Err: err}
			return opErr
		}
		if stored != nil && stored.Status == models.TimerFinalized {
			opErr = &TerminalStateError{Key: key}
			return opErr
		}
		if err := g.SaveTimer(ctx, key, timer); err != nil {
			opErr = &PersistenceError{Key: key, Op: "save", Err: err}
			return opErr
		}
		return nil
	})
	if opErr != nil {
		return opErr
	}
	if err != nil {
		return &PersistenceError{Key: key, Op: "save", Err: err}
	}
	return nil
}

// Timer returns the stored timer for key, or a fresh stopped timer when the
// process has not been started yet
func (tr *Tracker) Timer(ctx context.Context, key Key) (*models.ProcessTimer, error) {
	order, err := tr.resolve(ctx, key, false)
	if err != nil {
		return nil, err
	}
	if !order.HasProcess(key.Process) {
		return nil, &NotFoundError{Key: key, Reason: "process is not configured for this work order"}
	}
	timer, err := tr.gateway.LoadTimer(ctx, key)
	if err != nil {
		return nil, &PersistenceError{Key: key, Op: "load", Err: err}
	}
	if timer == nil {
		timer = NewTimer(key, tr.clock.Now())
	}
	return timer, nil
}

// Elapsed returns the current elapsed seconds for key
func (tr *Tracker) Elapsed(ctx context.Context, key Key) (float64, error) {
	timer, err := tr.Timer(ctx, key)
	if err != nil {
		return 0, err
	}
	return CurrentElapsed(timer, tr.clock.Now()), nil
}

// TotalForWorkOrder sums the elapsed time of every stored timer of the work
// order against a single reading of the clock
func (tr *Tracker) TotalForWorkOrder(ctx context.Context, workOrderID string) (float64, error) {
	order, err := tr.registry.GetWorkOrder(ctx, workOrderID)
	if err != nil {
		return 0, fmt.Errorf("failed to get work order %s: %w", workOrderID, err)
	}
	if order == nil {
		return 0, &NotFoundError{Key: Key{WorkOrderID: workOrderID}, Reason: "no such work order"}
	}

	timers, err := tr.gateway.ListTimers(ctx, workOrderID)
	if err != nil {
		return 0, &PersistenceError{Key: Key{WorkOrderID: workOrderID}, Op: "list", Err: err}
	}
	return TotalForWorkOrder(timers, tr.clock.Now()), nil
}

// atomically runs fn with exclusive access to key, across processes when the
// gateway supports it
func (tr *Tracker) atomically(ctx context.Context, key Key, fn func(g Gateway) error) error {
	if a, ok := tr.gateway.(Atomic); ok {
		return a.RunAtomic(ctx, key, fn)
	}
	return fn(tr.gateway)
}

// mutate runs apply under the key lock. A zero at reads the clock once the
// lock is held. With orphans set, a stored timer whose process is no longer
// listed on the work order may be mutated as well.
func (tr *Tracker) mutate(ctx context.Context, key Key, op string, apply transition, at time.Time, orphans bool) (*models.ProcessTimer, error) {
	unlock := tr.locks.lock(key)
	defer unlock()

	order, err := tr.resolve(ctx, key, true)
	if err != nil {
		return nil, err
	}
	listed := order.HasProcess(key.Process)
	if !listed && !orphans {
		return nil, &NotFoundError{Key: key, Reason: "process is not configured for this work order"}
	}

	var (
		timer *models.ProcessTimer
		opErr error
	)
	err = tr.atomically(ctx, key, func(g Gateway) error {
		timer, opErr = tr.applyTransition(ctx, g, key, op, apply, at, listed)
		return opErr
	})
	if opErr != nil {
		return timer, opErr
	}
	if err != nil {
		// lock or commit failure; the mutation, if any, was not stored
		return timer, &PersistenceError{Key: key, Op: "save", Err: err}
	}
	return timer, nil
}

// applyTransition is the load-mutate-save body of mutate
func (tr *Tracker) applyTransition(ctx context.Context, g Gateway, key Key, op string, apply transition, at time.Time, listed bool) (*models.ProcessTimer, error) {
	timer, err := g.LoadTimer(ctx, key)
	if err != nil {
		return nil, &PersistenceError{Key: key, Op: "load", Err: err}
	}
	if timer == nil && !listed {
		return nil, &NotFoundError{Key: key, Reason: "process is not configured for this work order"}
	}

	now := at
	if now.IsZero() {
		now = tr.clock.Now()
	}
	if timer == nil {
		timer = NewTimer(key, now)
	}
	before := *timer

	if err := apply(timer, now); err != nil {
		tr.logger.Debug("Timer transition rejected",
			zap.String("op", op),
			zap.String("work_order", key.WorkOrderID),
			zap.String("process", key.Process),
			zap.Error(err))
		return nil, err
	}
	if sameState(&before, timer) {
		return timer, nil
	}

	if err := g.SaveTimer(ctx, key, timer); err != nil {
		tr.logger.Warn("Failed to persist timer, keeping local state",
			zap.String("op", op),
			zap.String("work_order", key.WorkOrderID),
			zap.String("process", key.Process),
			zap.Error(err))
		return timer, &PersistenceError{Key: key, Op: "save", Err: err}
	}

	tr.logger.Debug("Timer updated",
		zap.String("op", op),
		zap.String("work_order", key.WorkOrderID),
		zap.String("process", key.Process),
		zap.String("status", string(timer.Status)),
		zap.Float64("accumulated_seconds", timer.AccumulatedSeconds))
	return timer, nil
}

// resolve looks up the work order of key. With forMutation set, a
// finalized work order is rejected. Callers check the process themselves.
func (tr *Tracker) resolve(ctx context.Context, key Key, forMutation bool) (*models.WorkOrder, error) {
	order, err := tr.registry.GetWorkOrder(ctx, key.WorkOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get work order %s: %w", key.WorkOrderID, err)
	}
	if order == nil {
		return nil, &NotFoundError{Key: key, Reason: "no such work order"}
	}
	if forMutation && order.IsFinalized() {
		return nil, &TerminalStateError{Key: key, WorkOrder: true}
	}
	return order, nil
}
