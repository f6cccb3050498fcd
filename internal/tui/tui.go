package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"github.com/balkashynov/wotrack/internal/models"
)

// RunBoard opens the live timer board of a work order
func RunBoard(ctx context.Context, control TimerControl, clock clockwork.Clock, order *models.WorkOrder) error {
	p := tea.NewProgram(NewBoardModel(ctx, control, clock, order), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunOrderForm starts the interactive new work order form
func RunOrderForm(ctx context.Context, creator OrderCreator, available []string, prefilled map[string]string) error {
	model := NewOrderFormModel(ctx, creator, available, prefilled)

	p := tea.NewProgram(model, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	if m, ok := finalModel.(OrderFormModel); ok {
		switch {
		case m.cancelled:
			fmt.Println("❌ Work order creation cancelled.")
		case m.completed && m.created != nil:
			fmt.Printf("✅ Work order OS %s created: %s, %d pcs, %d processes\n",
				m.created.OrderNumber, m.created.Product, m.created.Quantity, len(m.created.Processes))
		}
	}
	return nil
}
