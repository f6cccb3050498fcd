package pgstore

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

func TestConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		cp       ConnParam
		expected string
	}{
		{
			name:     "ssl required by default",
			cp:       ConnParam{Host: "db", Port: "5432", User: "wotrack", Password: "secret", DBName: "shop"},
			expected: "host=db port=5432 user=wotrack password=secret dbname=shop sslmode=require",
		},
		{
			name:     "explicit ssl mode",
			cp:       ConnParam{Host: "localhost", DBName: "shop", SSLMode: "disable"},
			expected: "host=localhost dbname=shop sslmode=disable",
		},
		{
			name:     "quoted password",
			cp:       ConnParam{Host: "db", Password: "it's a pass", SSLMode: "disable"},
			expected: `host=db password='it\'s a pass' sslmode=disable`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cp.ConnectionString())
		})
	}
}

func TestStoreSerializesTimerMutations(t *testing.T) {
	var g tracker.Gateway = &Store{}
	_, ok := g.(tracker.Atomic)
	assert.True(t, ok)
	assert.Contains(t, lockTimerStmt, "pg_advisory_xact_lock")
}

func TestUpsertTimerStatement(t *testing.T) {
	started := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	key := tracker.Key{WorkOrderID: "4410", Process: "Montagem do kit"}
	timer := &models.ProcessTimer{
		AccumulatedSeconds: 42.5,
		Status:             models.TimerRunning,
		RunStartedAt:       &started,
		LastUpdatedAt:      started,
	}

	stmt, args, err := upsertTimer(key, timer).ToSql()
	require.NoError(t, err)

	assert.Contains(t, stmt, "INSERT INTO process_timer (work_order_id,process_name,accumulated_seconds,status,run_started_at,last_updated_at)")
	assert.Contains(t, stmt, "$6")
	assert.NotContains(t, stmt, "$7")
	assert.Contains(t, stmt, "ON CONFLICT (work_order_id, process_name) DO UPDATE")

	expected := []interface{}{"4410", "Montagem do kit", 42.5, "running", started, started}
	if diff := cmp.Diff(expected, args); diff != "" {
		t.Errorf("unexpected args (-want +got):\n%s", diff)
	}
}

func TestUpsertTimerDropsStartForStoppedTimer(t *testing.T) {
	started := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	timer := &models.ProcessTimer{
		Status:        models.TimerPaused,
		RunStartedAt:  &started,
		LastUpdatedAt: started,
	}

	_, args, err := upsertTimer(tracker.Key{WorkOrderID: "1", Process: "A"}, timer).ToSql()
	require.NoError(t, err)
	require.Len(t, args, 6)
	assert.Nil(t, args[4])
}

func TestSelectStatements(t *testing.T) {
	stmt, args, err := selectTimers("4410").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT work_order_id, process_name, accumulated_seconds, status, run_started_at, last_updated_at FROM process_timer WHERE work_order_id = $1 ORDER BY process_name", stmt)
	assert.Equal(t, []interface{}{"4410"}, args)

	stmt, _, err = selectWorkOrders().ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT order_number, product, quantity, status, processes, created_at, updated_at, finalized_at FROM work_order ORDER BY created_at, order_number", stmt)
}

func TestWorkOrderStatements(t *testing.T) {
	created := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	order := &models.WorkOrder{
		OrderNumber: "4410",
		Product:     "Caderno",
		Quantity:    200,
		Status:      models.WorkOrderActive,
		Processes:   []string{"Aviamento de capa", "Montagem do kit"},
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	ib, err := insertWorkOrder(order)
	require.NoError(t, err)
	_, args, err := ib.ToSql()
	require.NoError(t, err)
	require.Len(t, args, 8)
	assert.Equal(t, `["Aviamento de capa","Montagem do kit"]`, args[4])

	ub, err := updateWorkOrder(order)
	require.NoError(t, err)
	stmt, args, err := ub.ToSql()
	require.NoError(t, err)
	assert.Contains(t, stmt, "UPDATE work_order SET product = $1")
	assert.Contains(t, stmt, "WHERE order_number = $7")
	assert.Equal(t, "4410", args[len(args)-1])
}

func TestProcessListEncoding(t *testing.T) {
	raw, err := encodeProcesses(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	processes, err := decodeProcesses(`["Encadernação e Finalização"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Encadernação e Finalização"}, processes)

	_, err = decodeProcesses("not json")
	assert.Error(t, err)
}
