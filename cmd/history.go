package main

import (
	"github.com/spf13/cobra"

	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/report"
)

var (
	historyLimit int

	// historyCmd represents the history command
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recent sync, verification and submission runs.",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCommand,
	}
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultLimit, "Number of runs to show.")
	rootCmd.AddCommand(historyCmd)
}

func runHistoryCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	store, err := history.Open(a.historyPath())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(historyLimit)
	if err != nil {
		return err
	}
	report.NewPrinter(cmd.OutOrStdout()).History(runs)
	return nil
}
