// Package tracker keeps the elapsed-time accounting for production process
// timers. Time is never counted by a ticking clock: every query re-derives
// the elapsed time from the stored timestamps and the current instant.
package tracker

import (
	"time"

	"github.com/balkashynov/wotrack/internal/models"
)

// NewTimer returns a stopped timer with no accumulated time
func NewTimer(key Key, now time.Time) *models.ProcessTimer {
	return &models.ProcessTimer{
		WorkOrderID:   key.WorkOrderID,
		ProcessName:   key.Process,
		Status:        models.TimerStopped,
		LastUpdatedAt: now,
	}
}

// Start moves the timer to running. Starting a running timer is a no-op and
// keeps the original start instant.
func Start(t *models.ProcessTimer, now time.Time) error {
	switch t.Status {
	case models.TimerFinalized:
		return terminal(t)
	case models.TimerRunning:
		return nil
	}

	startedAt := now
	t.Status = models.TimerRunning
	t.RunStartedAt = &startedAt
	t.LastUpdatedAt = now
	return nil
}

// Pause folds the in-flight interval into the accumulated time. Pausing a
// timer that is not running does nothing.
func Pause(t *models.ProcessTimer, now time.Time) error {
	if t.Status == models.TimerFinalized {
		return terminal(t)
	}
	if t.Status != models.TimerRunning {
		return nil
	}

	flush(t, now)
	t.Status = models.TimerPaused
	t.LastUpdatedAt = now
	return nil
}

// Stop flushes a running interval and moves the timer to stopped
func Stop(t *models.ProcessTimer, now time.Time) error {
	switch t.Status {
	case models.TimerFinalized:
		return terminal(t)
	case models.TimerStopped:
		return nil
	case models.TimerRunning:
		flush(t, now)
	}

	t.Status = models.TimerStopped
	t.RunStartedAt = nil
	t.LastUpdatedAt = now
	return nil
}

// Finalize stops the timer and freezes it. No transition leaves finalized.
func Finalize(t *models.ProcessTimer, now time.Time) error {
	if t.Status == models.TimerFinalized {
		return terminal(t)
	}
	if t.Status == models.TimerRunning {
		flush(t, now)
	}

	t.Status = models.TimerFinalized
	t.RunStartedAt = nil
	t.LastUpdatedAt = now
	return nil
}

// CurrentElapsed returns the accumulated seconds plus the in-flight interval
// when the timer is running. It never mutates t.
func CurrentElapsed(t *models.ProcessTimer, now time.Time) float64 {
	if t == nil {
		return 0
	}
	elapsed := t.AccumulatedSeconds
	if t.Status == models.TimerRunning {
		elapsed += runningDelta(t, now)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// runningDelta is the length of the current run, clamped to zero when the
// stored start is ahead of now (clock skew between writers).
func runningDelta(t *models.ProcessTimer, now time.Time) float64 {
	if t.RunStartedAt == nil {
		return 0
	}
	delta := now.Sub(*t.RunStartedAt).Seconds()
	if delta < 0 {
		return 0
	}
	return delta
}

func flush(t *models.ProcessTimer, now time.Time) {
	t.AccumulatedSeconds += runningDelta(t, now)
	t.RunStartedAt = nil
}

func terminal(t *models.ProcessTimer) error {
	return &TerminalStateError{Key: KeyOf(t)}
}

// sameState reports whether two snapshots of a timer are indistinguishable
func sameState(a, b *models.ProcessTimer) bool {
	if a.Status != b.Status || a.AccumulatedSeconds != b.AccumulatedSeconds || !a.LastUpdatedAt.Equal(b.LastUpdatedAt) {
		return false
	}
	if (a.RunStartedAt == nil) != (b.RunStartedAt == nil) {
		return false
	}
	return a.RunStartedAt == nil || a.RunStartedAt.Equal(*b.RunStartedAt)
}
