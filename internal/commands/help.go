package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var helpCmd = &cobra.Command{
	Use:         "help [command]",
	Short:       "Show help for wotrack",
	Long:        `Display the command overview, or the help of a single command.`,
	Annotations: map[string]string{skipSetup: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			target, _, err := rootCmd.Find(args)
			if err != nil || target == rootCmd {
				fmt.Printf("Error: unknown command %q\n", strings.Join(args, " "))
				return
			}
			_ = target.Help()
			return
		}
		showCustomHelp()
	},
}

func showCustomHelp() {
	fmt.Print(`
██╗    ██╗ ██████╗ ████████╗██████╗  █████╗  ██████╗██╗  ██╗
██║    ██║██╔═══██╗╚══██╔══╝██╔══██╗██╔══██╗██╔════╝██║ ██╔╝
██║ █╗ ██║██║   ██║   ██║   ██████╔╝███████║██║     █████╔╝
██║███╗██║██║   ██║   ██║   ██╔══██╗██╔══██║██║     ██╔═██╗
╚███╔███╔╝╚██████╔╝   ██║   ██║  ██║██║  ██║╚██████╗██║  ██╗
 ╚══╝╚══╝  ╚═════╝    ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝

wotrack - work order elapsed-time tracker

WORK ORDERS:

  order add [line]        Register a work order
    -i, --interactive     Step-by-step form
    -n, --number          Order number
    -p, --product         Product description
    -q, --qty             Quantity of pieces
    --process             Process by name or position (repeatable)

    Smart syntax:
      #4410 / OS-4410     Order number
      x200 / 200pcs       Quantity
      procs:1,3,6         Processes (default: configured list)

    Example:
      wotrack order add "#4410 Caderno espiral x200 procs:1,3,6"

  order ls                List work orders with total and per-piece time
    -a, --all             Include finalized orders
    --json                JSON output
  order rm <os>           Delete a work order and its timers
  order finalize <os>     Stop every timer and close the work order

TIMERS:

  start <os> <process>    Start or resume a process timer
  pause <os> <process>    Pause it
  stop <os> <process>     Stop it, keeping the accumulated time
  close <os> <process>    Finalize one process
  status [os]             Timers of a work order, or all running timers
  board <os>              Live board
      ↑/↓ select   s start   p pause   x stop   r reload   q quit

  <process> is the name (case-insensitive) or the position in the list.

REPORTS:

  report [os]             Per-process report, or totals of every order
    -a, --all             Include finalized orders
    --json                JSON output

MIRROR (csv/json storage):

  sync push               Upload the data files
  sync pull               Replace the local files with the remote copies
  sync status             Compare local and remote

SETUP:

  config init             Write ~/.wotrack/config.yaml with defaults
  config show             Print the effective config
  version                 Print version information

Global flags: --config <file>, -v/--verbose.

`)
}
