package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-cox/tempoledger/internal/period"
	"github.com/bryan-cox/tempoledger/internal/report"
)

var (
	overheadCmd = &cobra.Command{
		Use:   "overhead",
		Short: "Inspect the overhead story configuration.",
	}

	// overheadShowCmd represents the overhead show command
	overheadShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the current PI, its stories and the next planning week.",
		Args:  cobra.NoArgs,
		RunE:  runOverheadShowCommand,
	}
)

func init() {
	overheadCmd.AddCommand(overheadShowCmd)
	rootCmd.AddCommand(overheadCmd)
}

func runOverheadShowCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	oh := a.cfg.Overhead
	resolver := period.NewResolver(a.policy)

	var end time.Time
	var window *period.Window
	if e, ok := resolver.EndDate(oh.CurrentPI); ok {
		end = e
		if w, ok := resolver.Window(oh.CurrentPI); ok {
			window = &w
		}
	}
	report.NewPrinter(cmd.OutOrStdout()).Overhead(oh, end, window)
	return nil
}
