package commands

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/parser"
	"github.com/balkashynov/wotrack/internal/tracker"
	"github.com/balkashynov/wotrack/internal/tui"
	"github.com/balkashynov/wotrack/internal/workorder"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var orderCmd = &cobra.Command{
	Use:     "order",
	Aliases: []string{"os"},
	Short:   "Manage work orders",
}

var orderAddCmd = &cobra.Command{
	Use:   "add [order line]",
	Short: "Register a new work order",
	Long: `Register a new work order.

Modes:
  Interactive: wotrack order add -i (or just 'wotrack order add' with no arguments)
  Flags:       wotrack order add --number 4410 --product "Caderno espiral" --qty 200
  Smart line:  wotrack order add "#4410 Caderno espiral x200 procs:1,3,6"

Smart line syntax:
  #4410 or OS-4410        Order number
  x200, 200pcs, qty:200   Quantity
  procs:1,3 or procs:"Montagem do kit,Aviamento de capa"
                          Processes by position or name (default: configured list)
  everything else         Product`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		interactive, _ := cmd.Flags().GetBool("interactive")
		number, _ := cmd.Flags().GetString("number")
		product, _ := cmd.Flags().GetString("product")
		qty, _ := cmd.Flags().GetInt("qty")
		processes, _ := cmd.Flags().GetStringSlice("process")

		if len(args) == 0 && number == "" && product == "" {
			interactive = true
		}

		if interactive {
			prefilled := map[string]string{}
			if number != "" {
				prefilled["number"] = number
			}
			if product != "" {
				prefilled["product"] = product
			}
			if qty > 0 {
				prefilled["quantity"] = strconv.Itoa(qty)
			}
			if len(processes) > 0 {
				prefilled["processes"] = strings.Join(processes, ",")
			}
			if err := tui.RunOrderForm(cmd.Context(), service, cfg.Processes, prefilled); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			return
		}

		req, err := buildCreateRequest(strings.Join(args, " "), number, product, qty, processes, cfg.Processes)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		order, err := service.Create(cmd.Context(), req)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		fmt.Printf("✅ Created OS %s: %s, %d pcs\n", order.OrderNumber, order.Product, order.Quantity)
		for i, p := range order.Processes {
			fmt.Printf("   %d. %s\n", i+1, p)
		}
	},
}

// buildCreateRequest merges the smart line with the explicit flags; flags win
func buildCreateRequest(line, number, product string, qty int, processRefs, available []string) (workorder.CreateRequest, error) {
	parsed := parser.ParseOrderLine(line)
	if len(parsed.Errors) > 0 {
		return workorder.CreateRequest{}, fmt.Errorf("%s", strings.Join(parsed.Errors, "; "))
	}

	req := workorder.CreateRequest{
		OrderNumber: parsed.OrderNumber,
		Product:     parsed.Product,
		Quantity:    parsed.Quantity,
	}
	if number != "" {
		normalized, err := parser.NormalizeOrderNumber(number)
		if err != nil {
			return workorder.CreateRequest{}, err
		}
		req.OrderNumber = normalized
	}
	if product != "" {
		req.Product = product
	}
	if qty != 0 {
		req.Quantity = qty
	}

	refs := parsed.ProcessRefs
	if len(processRefs) > 0 {
		refs = processRefs
	}
	if len(refs) > 0 {
		resolved, errs := parser.ResolveProcessRefs(refs, available)
		if len(errs) > 0 {
			return workorder.CreateRequest{}, fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		req.Processes = resolved
	}
	return req, nil
}

var orderListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List work orders with their total time",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")

		lines, err := service.Summary(cmd.Context(), all)
		if err != nil {
			fmt.Printf("Error fetching work orders: %v\n", err)
			return
		}

		if asJSON {
			printJSON(lines)
			return
		}

		if len(lines) == 0 {
			fmt.Println("No work orders found. Use 'wotrack order add' to register one.")
			return
		}

		fmt.Printf("%-10s %-32s %6s %-10s %10s %10s %s\n", "OS", "PRODUCT", "QTY", "STATUS", "TOTAL", "PER PIECE", "RUNNING")
		fmt.Println(strings.Repeat("-", 92))
		for _, l := range lines {
			fmt.Printf("%-10s %-32s %6d %-10s %10s %10s %d/%d\n",
				l.OrderNumber,
				truncate(l.Product, 32),
				l.Quantity,
				l.Status,
				tracker.FormatDuration(l.TotalSeconds),
				tracker.FormatDuration(l.PerPieceSeconds),
				l.Running,
				l.Processes)
		}
	},
}

var orderRemoveCmd = &cobra.Command{
	Use:     "rm [order]",
	Aliases: []string{"delete"},
	Short:   "Delete a work order and all of its timers",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parser.NormalizeOrderNumber(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if err := service.Delete(cmd.Context(), id); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("🗑️  Deleted OS %s\n", id)
	},
}

var orderFinalizeCmd = &cobra.Command{
	Use:     "finalize [order]",
	Aliases: []string{"done"},
	Short:   "Close a work order, stopping every timer",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parser.NormalizeOrderNumber(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		order, err := service.Finalize(cmd.Context(), id)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("✅ Finalized OS %s: %s\n", order.OrderNumber, order.Product)
		printReport(cmd, order.OrderNumber)
	},
}

// lookupOrder normalizes the argument and loads the work order
func lookupOrder(cmd *cobra.Command, arg string) (*models.WorkOrder, error) {
	id, err := parser.NormalizeOrderNumber(arg)
	if err != nil {
		return nil, err
	}
	return service.Get(cmd.Context(), id)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func init() {
	orderAddCmd.Flags().BoolP("interactive", "i", false, "Open the interactive form")
	orderAddCmd.Flags().StringP("number", "n", "", "Order number")
	orderAddCmd.Flags().StringP("product", "p", "", "Product description")
	orderAddCmd.Flags().IntP("qty", "q", 0, "Quantity of pieces")
	orderAddCmd.Flags().StringSlice("process", nil, "Process by name or position (repeatable)")

	orderListCmd.Flags().BoolP("all", "a", false, "Include finalized work orders")
	orderListCmd.Flags().Bool("json", false, "JSON output")

	orderCmd.AddCommand(orderAddCmd)
	orderCmd.AddCommand(orderListCmd)
	orderCmd.AddCommand(orderRemoveCmd)
	orderCmd.AddCommand(orderFinalizeCmd)
}
