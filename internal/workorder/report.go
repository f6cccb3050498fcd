package workorder

import (
	"context"
	"fmt"
	"time"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

// StatusNotStarted is reported for processes that have no timer record yet
const StatusNotStarted = "not_started"

// ProcessLine is one row of a work order report
type ProcessLine struct {
	Process         string     `json:"process"`
	Status          string     `json:"status"`
	ElapsedSeconds  float64    `json:"elapsed_seconds"`
	PerPieceSeconds float64    `json:"per_piece_seconds"`
	LastUpdatedAt   *time.Time `json:"last_updated_at,omitempty"`
}

// Report is the elapsed-time breakdown of one work order, evaluated at
// GeneratedAt for every process
type Report struct {
	WorkOrder       models.WorkOrder `json:"work_order"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Lines           []ProcessLine    `json:"processes"`
	TotalSeconds    float64          `json:"total_seconds"`
	PerPieceSeconds float64          `json:"per_piece_seconds"`
}

// SummaryLine is one row of the all-orders summary
type SummaryLine struct {
	OrderNumber     string                 `json:"order_number"`
	Product         string                 `json:"product"`
	Quantity        int                    `json:"quantity"`
	Status          models.WorkOrderStatus `json:"status"`
	TotalSeconds    float64                `json:"total_seconds"`
	PerPieceSeconds float64                `json:"per_piece_seconds"`
	Processes       int                    `json:"processes"`
	Running         int                    `json:"running"`
}

// Report builds the per-process breakdown of a work order
func (s *Service) Report(ctx context.Context, id string) (*Report, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	timers, err := s.store.ListTimers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers of %s: %w", id, err)
	}
	return buildReport(order, timers, s.clock.Now()), nil
}

// Summary reports the total and per-piece time of every work order against
// one reading of the clock
func (s *Service) Summary(ctx context.Context, includeFinalized bool) ([]SummaryLine, error) {
	orders, err := s.List(ctx, includeFinalized)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	lines := make([]SummaryLine, 0, len(orders))
	for _, order := range orders {
		timers, err := s.store.ListTimers(ctx, order.OrderNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to list timers of %s: %w", order.OrderNumber, err)
		}

		running := 0
		for _, t := range timers {
			if t.Status == models.TimerRunning {
				running++
			}
		}
		total := tracker.TotalForWorkOrder(timers, now)
		lines = append(lines, SummaryLine{
			OrderNumber:     order.OrderNumber,
			Product:         order.Product,
			Quantity:        order.Quantity,
			Status:          order.Status,
			TotalSeconds:    total,
			PerPieceSeconds: tracker.PerPieceTime(total, order.Quantity),
			Processes:       len(timers),
			Running:         running,
		})
	}
	return lines, nil
}

func buildReport(order *models.WorkOrder, timers []models.ProcessTimer, now time.Time) *Report {
	byProcess := make(map[string]*models.ProcessTimer, len(timers))
	for i := range timers {
		byProcess[timers[i].ProcessName] = &timers[i]
	}

	report := &Report{WorkOrder: *order, GeneratedAt: now}
	addLine := func(process string, t *models.ProcessTimer) {
		line := ProcessLine{Process: process, Status: StatusNotStarted}
		if t != nil {
			updated := t.LastUpdatedAt
			line.Status = string(t.Status)
			line.ElapsedSeconds = tracker.CurrentElapsed(t, now)
			line.LastUpdatedAt = &updated
		}
		line.PerPieceSeconds = tracker.PerPieceTime(line.ElapsedSeconds, order.Quantity)
		report.TotalSeconds += line.ElapsedSeconds
		report.Lines = append(report.Lines, line)
	}

	for _, process := range order.Processes {
		addLine(process, byProcess[process])
		delete(byProcess, process)
	}
	// timers of processes that were since removed from the list still count
	for i := range timers {
		if t, ok := byProcess[timers[i].ProcessName]; ok {
			addLine(t.ProcessName, t)
		}
	}

	report.PerPieceSeconds = tracker.PerPieceTime(report.TotalSeconds, order.Quantity)
	return report
}
