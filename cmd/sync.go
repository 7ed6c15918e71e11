package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/model"
)

var (
	syncDate string

	// syncCmd represents the sync command
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Fill one day with the configured hours.",
		Long: `Reconciles one day: non-overhead worklogs are replaced by an equal split of the remaining
hours across your active tickets. PTO and holidays are booked on the overhead stories,
planning weeks on the planning PI stories. Defaults to today.`,
		Args: cobra.NoArgs,
		RunE: runSyncCommand,
	}

	// verifyWeekCmd represents the verify-week command
	verifyWeekCmd = &cobra.Command{
		Use:   "verify-week",
		Short: "Check Monday to Friday of this week and backfill gaps.",
		Args:  cobra.NoArgs,
		RunE:  runVerifyWeekCommand,
	}

	// submitCmd represents the submit command
	submitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Submit the monthly timesheet when run on the last day of the month.",
		Long:  `Submits the current Tempo period for approval when today is the last day of the month and the month's hours are complete.`,
		Args:  cobra.NoArgs,
		RunE:  runSubmitCommand,
	}
)

func init() {
	syncCmd.Flags().StringVar(&syncDate, "date", "", "Date to sync (YYYY-MM-DD), defaults to today.")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(verifyWeekCmd)
	rootCmd.AddCommand(submitCmd)
}

// --- Command Execution Logic ---

// withServices loads the configuration, builds the engine and prints the
// start-up warnings before running fn.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *services) error) error {
	ctx := history.WithTrigger(cmd.Context(), history.TriggerCLI)
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	s, err := a.newServices(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer s.Close()
	s.engine.Start(ctx)
	return fn(ctx, s)
}

func runSyncCommand(cmd *cobra.Command, args []string) error {
	var date time.Time
	if syncDate != "" {
		d, err := model.ParseDate(syncDate)
		if err != nil {
			return err
		}
		date = d
	}
	return withServices(cmd, func(ctx context.Context, s *services) error {
		_, err := s.engine.ReconcileDay(ctx, date)
		return err
	})
}

func runVerifyWeekCommand(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, s *services) error {
		_, err := s.engine.VerifyWeek(ctx)
		return err
	})
}

func runSubmitCommand(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, s *services) error {
		_, err := s.engine.SubmitMonth(ctx)
		return err
	})
}
