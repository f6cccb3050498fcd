package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/balkashynov/wotrack/internal/tracker"
	"github.com/balkashynov/wotrack/internal/workorder"
)

var reportCmd = &cobra.Command{
	Use:   "report [order]",
	Short: "Per-process elapsed and per-piece times",
	Long: `Show the elapsed and per-piece time of every process of a work order.
Without an order, show the totals of every work order.

Examples:
  wotrack report 4410
  wotrack report --all --json`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		all, _ := cmd.Flags().GetBool("all")

		if len(args) == 0 {
			lines, err := service.Summary(cmd.Context(), all)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			if asJSON {
				printJSON(lines)
				return
			}
			printSummary(lines)
			return
		}

		order, err := lookupOrder(cmd, args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if asJSON {
			report, err := service.Report(cmd.Context(), order.OrderNumber)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			printJSON(report)
			return
		}
		printReport(cmd, order.OrderNumber)
	},
}

func printReport(cmd *cobra.Command, id string) {
	report, err := service.Report(cmd.Context(), id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	o := report.WorkOrder
	fmt.Printf("\nOS %s  %s  (%d pcs, %s)\n\n", o.OrderNumber, o.Product, o.Quantity, o.Status)
	fmt.Printf("%-3s %-32s %-11s %10s %10s %s\n", "#", "PROCESS", "STATUS", "ELAPSED", "PER PIECE", "UPDATED")
	fmt.Println(strings.Repeat("-", 86))
	for i, l := range report.Lines {
		updated := "-"
		if l.LastUpdatedAt != nil {
			updated = l.LastUpdatedAt.Local().Format("02/01/2006 15:04")
		}
		fmt.Printf("%-3d %-32s %-11s %10s %10s %s\n",
			i+1,
			truncate(l.Process, 32),
			l.Status,
			tracker.FormatDuration(l.ElapsedSeconds),
			tracker.FormatDuration(l.PerPieceSeconds),
			updated)
	}
	fmt.Println(strings.Repeat("-", 86))
	fmt.Printf("%-3s %-32s %-11s %10s %10s\n\n", "", "TOTAL", "",
		tracker.FormatDuration(report.TotalSeconds),
		tracker.FormatDuration(report.PerPieceSeconds))
}

func printSummary(lines []workorder.SummaryLine) {
	if len(lines) == 0 {
		fmt.Println("No work orders found.")
		return
	}

	var total float64
	fmt.Printf("%-10s %-32s %6s %-10s %10s %10s\n", "OS", "PRODUCT", "QTY", "STATUS", "TOTAL", "PER PIECE")
	fmt.Println(strings.Repeat("-", 84))
	for _, l := range lines {
		total += l.TotalSeconds
		fmt.Printf("%-10s %-32s %6d %-10s %10s %10s\n",
			l.OrderNumber,
			truncate(l.Product, 32),
			l.Quantity,
			l.Status,
			tracker.FormatDuration(l.TotalSeconds),
			tracker.FormatDuration(l.PerPieceSeconds))
	}
	fmt.Println(strings.Repeat("-", 84))
	fmt.Printf("%-10s %-32s %6s %-10s %10s\n", "", fmt.Sprintf("%d work orders", len(lines)), "", "", tracker.FormatDuration(total))
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

func init() {
	reportCmd.Flags().Bool("json", false, "JSON output")
	reportCmd.Flags().BoolP("all", "a", false, "Include finalized work orders")
}
