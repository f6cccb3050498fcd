package workorder_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balkashynov/wotrack/internal/db"
	"github.com/balkashynov/wotrack/internal/filestore"
	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
	"github.com/balkashynov/wotrack/internal/workorder"
)

var defaultProcesses = []string{"Aviamento de capa", "Montagem de Miolo", "Montagem do kit"}

type registryFixture struct {
	t       *testing.T
	ctx     context.Context
	clock   clockwork.FakeClock
	store   workorder.Store
	service *workorder.Service
}

func stores(t *testing.T) map[string]func() workorder.Store {
	return map[string]func() workorder.Store{
		"sqlite": func() workorder.Store {
			s, err := db.Open(filepath.Join(t.TempDir(), "wotrack.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"csv": func() workorder.Store {
			s, err := filestore.OpenCSV(t.TempDir(), nil)
			require.NoError(t, err)
			return s
		},
		"json": func() workorder.Store {
			s, err := filestore.OpenJSON(t.TempDir(), nil)
			require.NoError(t, err)
			return s
		},
	}
}

func newRegistryFixture(t *testing.T, store workorder.Store) *registryFixture {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.April, 7, 8, 0, 0, 0, time.UTC))
	return &registryFixture{
		t:       t,
		ctx:     context.Background(),
		clock:   clock,
		store:   store,
		service: workorder.NewService(store, defaultProcesses, clock, zap.NewNop()),
	}
}

func (f *registryFixture) create(number string, qty int, processes ...string) *models.WorkOrder {
	f.t.Helper()
	order, err := f.service.Create(f.ctx, workorder.CreateRequest{
		OrderNumber: number,
		Product:     "Agenda " + number,
		Quantity:    qty,
		Processes:   processes,
	})
	require.NoError(f.t, err)
	return order
}

func (f *registryFixture) key(number, process string) tracker.Key {
	return tracker.Key{WorkOrderID: number, Process: process}
}

func forEachStore(t *testing.T, fn func(t *testing.T, f *registryFixture)) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, newRegistryFixture(t, open()))
		})
	}
}

func TestCreateValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *registryFixture) {
		order := f.create("100", 5)
		assert.Equal(t, defaultProcesses, order.Processes)
		assert.Equal(t, models.WorkOrderActive, order.Status)

		custom := f.create("101", 1, " Corte ", "Dobra", "Corte", "")
		assert.Equal(t, []string{"Corte", "Dobra"}, custom.Processes)

		_, err := f.service.Create(f.ctx, workorder.CreateRequest{OrderNumber: "100", Product: "x", Quantity: 1})
		assert.True(t, errors.Is(err, workorder.ErrDuplicateOrder))

		for _, req := range []workorder.CreateRequest{
			{OrderNumber: "", Product: "x", Quantity: 1},
			{OrderNumber: "102", Product: "  ", Quantity: 1},
			{OrderNumber: "102", Product: "x", Quantity: 0},
		} {
			_, err := f.service.Create(f.ctx, req)
			assert.True(t, errors.Is(err, workorder.ErrInvalidOrder), "%+v", req)
		}

		_, err = f.service.Get(f.ctx, "102")
		assert.True(t, errors.Is(err, workorder.ErrNotFound))
	})
}

func TestFinalizeFlushesRunningTimers(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *registryFixture) {
		f.create("200", 4)
		tr := f.service.Tracker()

		_, err := tr.Start(f.ctx, f.key("200", "Aviamento de capa"))
		require.NoError(t, err)
		_, err = tr.Start(f.ctx, f.key("200", "Montagem do kit"))
		require.NoError(t, err)
		f.clock.Advance(30 * time.Second)
		_, err = tr.Pause(f.ctx, f.key("200", "Montagem do kit"))
		require.NoError(t, err)
		f.clock.Advance(20 * time.Second)

		order, err := f.service.Finalize(f.ctx, "200")
		require.NoError(t, err)
		assert.True(t, order.IsFinalized())
		require.NotNil(t, order.FinalizedAt)
		assert.True(t, f.clock.Now().Equal(*order.FinalizedAt))

		capa, err := tr.Timer(f.ctx, f.key("200", "Aviamento de capa"))
		require.NoError(t, err)
		assert.Equal(t, models.TimerFinalized, capa.Status)
		assert.Equal(t, 50.0, capa.AccumulatedSeconds)
		assert.Nil(t, capa.RunStartedAt)

		kit, err := tr.Timer(f.ctx, f.key("200", "Montagem do kit"))
		require.NoError(t, err)
		assert.Equal(t, models.TimerFinalized, kit.Status)
		assert.Equal(t, 30.0, kit.AccumulatedSeconds)

		// time no longer moves and nothing can be restarted
		f.clock.Advance(time.Hour)
		total, err := tr.TotalForWorkOrder(f.ctx, "200")
		require.NoError(t, err)
		assert.Equal(t, 80.0, total)

		_, err = tr.Start(f.ctx, f.key("200", "Montagem de Miolo"))
		var terminal *tracker.TerminalStateError
		require.True(t, errors.As(err, &terminal))
		assert.True(t, terminal.WorkOrder)

		_, err = f.service.Finalize(f.ctx, "200")
		assert.True(t, errors.As(err, &terminal))
	})
}

// dropProcess removes a process from the stored order, leaving its timer
func (f *registryFixture) dropProcess(number, process string) {
	f.t.Helper()
	order, err := f.store.GetWorkOrder(f.ctx, number)
	require.NoError(f.t, err)
	require.NotNil(f.t, order)
	var kept []string
	for _, p := range order.Processes {
		if p != process {
			kept = append(kept, p)
		}
	}
	order.Processes = kept
	require.NoError(f.t, f.store.UpdateWorkOrder(f.ctx, order))
}

func TestFinalizeFreezesDroppedProcesses(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *registryFixture) {
		f.create("210", 2)
		tr := f.service.Tracker()

		_, err := tr.Start(f.ctx, f.key("210", "Aviamento de capa"))
		require.NoError(t, err)
		_, err = tr.Start(f.ctx, f.key("210", "Montagem do kit"))
		require.NoError(t, err)
		f.clock.Advance(15 * time.Second)
		f.dropProcess("210", "Montagem do kit")
		f.clock.Advance(5 * time.Second)

		_, err = f.service.Finalize(f.ctx, "210")
		require.NoError(t, err)

		timers, err := f.store.ListTimers(f.ctx, "210")
		require.NoError(t, err)
		require.Len(t, timers, 2)
		for _, timer := range timers {
			assert.Equal(t, models.TimerFinalized, timer.Status, timer.ProcessName)
			assert.Equal(t, 20.0, timer.AccumulatedSeconds, timer.ProcessName)
		}

		f.clock.Advance(time.Hour)
		total, err := tr.TotalForWorkOrder(f.ctx, "210")
		require.NoError(t, err)
		assert.Equal(t, 40.0, total)
	})
}

func TestTotalMatchesReportWithDroppedProcess(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *registryFixture) {
		f.create("220", 4)
		tr := f.service.Tracker()

		_, err := tr.Start(f.ctx, f.key("220", "Aviamento de capa"))
		require.NoError(t, err)
		_, err = tr.Start(f.ctx, f.key("220", "Montagem do kit"))
		require.NoError(t, err)
		f.clock.Advance(30 * time.Second)
		_, err = tr.Stop(f.ctx, f.key("220", "Montagem do kit"))
		require.NoError(t, err)
		f.dropProcess("220", "Montagem do kit")
		f.clock.Advance(10 * time.Second)

		report, err := f.service.Report(f.ctx, "220")
		require.NoError(t, err)
		total, err := tr.TotalForWorkOrder(f.ctx, "220")
		require.NoError(t, err)
		assert.Equal(t, 70.0, report.TotalSeconds)
		assert.Equal(t, report.TotalSeconds, total)
	})
}

func TestDeleteCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *registryFixture) {
		f.create("300", 1)
		f.create("301", 1)
		tr := f.service.Tracker()
		_, err := tr.Start(f.ctx, f.key("300", "Montagem do kit"))
		require.NoError(t, err)
		_, err = tr.Start(f.ctx, f.key("301", "Montagem do kit"))
		require.NoError(t, err)

		require.NoError(t, f.service.Delete(f.ctx, "300"))

		_, err = f.service.Get(f.ctx, "300")
		assert.True(t, errors.Is(err, workorder.ErrNotFound))
		_, err = tr.Timer(f.ctx, f.key("300", "Montagem do kit"))
		var notFound *tracker.NotFoundError
		assert.True(t, errors.As(err, &notFound))

		// a new order reusing the number starts from zero
		f.create("300", 1)
		timer, err := tr.Timer(f.ctx, f.key("300", "Montagem do kit"))
		require.NoError(t, err)
		assert.Equal(t, models.TimerStopped, timer.Status)
		assert.Zero(t, timer.AccumulatedSeconds)

		other, err := tr.Timer(f.ctx, f.key("301", "Montagem do kit"))
		require.NoError(t, err)
		assert.Equal(t, models.TimerRunning, other.Status)

		assert.True(t, errors.Is(f.service.Delete(f.ctx, "999"), workorder.ErrNotFound))
	})
}

func TestReportAndSummary(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *registryFixture) {
		f.create("400", 5)
		f.create("401", 2)
		tr := f.service.Tracker()

		_, err := tr.Start(f.ctx, f.key("400", "Montagem do kit"))
		require.NoError(t, err)
		f.clock.Advance(60 * time.Second)
		_, err = tr.Stop(f.ctx, f.key("400", "Montagem do kit"))
		require.NoError(t, err)
		_, err = tr.Start(f.ctx, f.key("400", "Aviamento de capa"))
		require.NoError(t, err)
		f.clock.Advance(40 * time.Second)

		report, err := f.service.Report(f.ctx, "400")
		require.NoError(t, err)
		assert.Equal(t, 100.0, report.TotalSeconds)
		assert.Equal(t, 20.0, report.PerPieceSeconds)
		assert.True(t, f.clock.Now().Equal(report.GeneratedAt))
		require.Len(t, report.Lines, 3)

		assert.Equal(t, "Aviamento de capa", report.Lines[0].Process)
		assert.Equal(t, "running", report.Lines[0].Status)
		assert.Equal(t, 40.0, report.Lines[0].ElapsedSeconds)
		assert.Equal(t, 8.0, report.Lines[0].PerPieceSeconds)

		assert.Equal(t, workorder.StatusNotStarted, report.Lines[1].Status)
		assert.Zero(t, report.Lines[1].ElapsedSeconds)
		assert.Nil(t, report.Lines[1].LastUpdatedAt)

		assert.Equal(t, "stopped", report.Lines[2].Status)
		assert.Equal(t, 60.0, report.Lines[2].ElapsedSeconds)

		summary, err := f.service.Summary(f.ctx, false)
		require.NoError(t, err)
		require.Len(t, summary, 2)
		assert.Equal(t, "400", summary[0].OrderNumber)
		assert.Equal(t, 100.0, summary[0].TotalSeconds)
		assert.Equal(t, 20.0, summary[0].PerPieceSeconds)
		assert.Equal(t, 2, summary[0].Processes)
		assert.Equal(t, 1, summary[0].Running)
		assert.Zero(t, summary[1].TotalSeconds)

		_, err = f.service.Finalize(f.ctx, "401")
		require.NoError(t, err)
		summary, err = f.service.Summary(f.ctx, false)
		require.NoError(t, err)
		assert.Len(t, summary, 1)
		summary, err = f.service.Summary(f.ctx, true)
		require.NoError(t, err)
		assert.Len(t, summary, 2)
	})
}

func TestResolveProcess(t *testing.T) {
	order := &models.WorkOrder{OrderNumber: "500", Processes: defaultProcesses}

	name, err := workorder.ResolveProcess(order, "2")
	require.NoError(t, err)
	assert.Equal(t, "Montagem de Miolo", name)

	name, err = workorder.ResolveProcess(order, " montagem DO kit ")
	require.NoError(t, err)
	assert.Equal(t, "Montagem do kit", name)

	var notFound *tracker.NotFoundError
	_, err = workorder.ResolveProcess(order, "4")
	assert.True(t, errors.As(err, &notFound))
	_, err = workorder.ResolveProcess(order, "Corte")
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, "Corte", notFound.Key.Process)
}
