package tracker

import (
	"fmt"

	"github.com/balkashynov/wotrack/internal/models"
)

// Key identifies one process timer
type Key struct {
	WorkOrderID string
	Process     string
}

// KeyOf returns the key a timer record is stored under
func KeyOf(t *models.ProcessTimer) Key {
	return Key{WorkOrderID: t.WorkOrderID, Process: t.ProcessName}
}

func (k Key) String() string {
	return fmt.Sprintf("work order %s / %q", k.WorkOrderID, k.Process)
}

// NotFoundError is returned when the work order does not exist or the
// process is not part of its configured process list
type NotFoundError struct {
	Key    Key
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s not found", e.Key)
	}
	return fmt.Sprintf("%s not found: %s", e.Key, e.Reason)
}

// TerminalStateError is returned for any mutation of a finalized timer, or of
// any timer that belongs to a finalized work order
type TerminalStateError struct {
	Key       Key
	WorkOrder bool
}

func (e *TerminalStateError) Error() string {
	if e.WorkOrder {
		return fmt.Sprintf("work order %s is finalized", e.Key.WorkOrderID)
	}
	return fmt.Sprintf("%s is finalized", e.Key)
}

// PersistenceError is returned when the gateway fails. For a failed save the
// returned timer already carries the mutation; nothing is rolled back.
type PersistenceError struct {
	Key Key
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
