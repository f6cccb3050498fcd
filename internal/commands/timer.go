package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
	"github.com/balkashynov/wotrack/internal/tui"
	"github.com/balkashynov/wotrack/internal/workorder"
)

type transitionFunc func(ctx context.Context, key tracker.Key) (*models.ProcessTimer, error)

var startCmd = &cobra.Command{
	Use:   "start [order] [process]",
	Short: "Start or resume the timer of a process",
	Long: `Start or resume the timer of a process. The process is its name or its
position in the work order's process list.

Examples:
  wotrack start 4410 2
  wotrack start 4410 "Montagem do kit"`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runTransition(cmd, args, "▶️  Started", service.Tracker().Start)
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause [order] [process]",
	Short: "Pause a running process timer",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runTransition(cmd, args, "⏸️  Paused", service.Tracker().Pause)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop [order] [process]",
	Short: "Stop a process timer, keeping its accumulated time",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runTransition(cmd, args, "⏹️  Stopped", service.Tracker().Stop)
	},
}

var closeCmd = &cobra.Command{
	Use:   "close [order] [process]",
	Short: "Finalize one process; its time can no longer change",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runTransition(cmd, args, "🔒 Closed", service.Tracker().Finalize)
	},
}

// runTransition resolves "<order> <process...>" and applies fn to the timer
func runTransition(cmd *cobra.Command, args []string, verb string, fn transitionFunc) {
	order, err := lookupOrder(cmd, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	process, err := workorder.ResolveProcess(order, strings.Join(args[1:], " "))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	key := tracker.Key{WorkOrderID: order.OrderNumber, Process: process}
	timer, err := fn(cmd.Context(), key)
	var persistErr *tracker.PersistenceError
	switch {
	case errors.As(err, &persistErr) && timer != nil:
		// the transition happened but was not saved
		fmt.Printf("⚠️  %v\n", err)
	case err != nil:
		fmt.Printf("Error: %v\n", err)
		return
	}

	elapsed := tracker.CurrentElapsed(timer, service.Tracker().Clock().Now())
	fmt.Printf("%s OS %s / %s\n", verb, order.OrderNumber, process)
	fmt.Printf("Status: %s   Elapsed: %s\n", timer.Status, tracker.FormatDuration(elapsed))
}

var statusCmd = &cobra.Command{
	Use:   "status [order]",
	Short: "Show the timers of a work order, or every running timer",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 1 {
			order, err := lookupOrder(cmd, args[0])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			printReport(cmd, order.OrderNumber)
			return
		}

		orders, err := service.List(cmd.Context(), false)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		found := 0
		for _, order := range orders {
			report, err := service.Report(cmd.Context(), order.OrderNumber)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			for _, line := range report.Lines {
				if line.Status != string(models.TimerRunning) {
					continue
				}
				found++
				fmt.Printf("⏱️  OS %-10s %-30s %s\n", order.OrderNumber, line.Process, tracker.FormatDuration(line.ElapsedSeconds))
			}
		}
		if found == 0 {
			fmt.Println("No running timers")
		}
	},
}

var boardCmd = &cobra.Command{
	Use:   "board [order]",
	Short: "Live board to start, pause and stop the timers of a work order",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		order, err := lookupOrder(cmd, args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		tr := service.Tracker()
		if err := tui.RunBoard(cmd.Context(), tr, tr.Clock(), order); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	},
}
