package main

import (
	"github.com/spf13/cobra"

	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/daemon"
	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/report"
)

var (
	daemonCmd = &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduled sync in the background.",
	}

	// daemonRunCmd represents the daemon run command
	daemonRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Sync every weekday at daemon.sync_time and submit at month end.",
		Long: `Runs in the foreground until interrupted, stopped through the local API (POST /stop)
or asked to stop with "tempoledger daemon stop". Only one sync runs at a time.`,
		Args: cobra.NoArgs,
		RunE: runDaemonRunCommand,
	}

	// daemonStopCmd represents the daemon stop command
	daemonStopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Ask a running daemon to exit.",
		Args:  cobra.NoArgs,
		RunE:  runDaemonStopCommand,
	}
)

func init() {
	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonRunCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	s, err := a.newServices(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer s.Close()
	s.engine.Start(history.WithTrigger(ctx, history.TriggerCron))

	opts := daemon.Options{
		Engine:   s.engine,
		Notifier: s.notifier,
		SyncTime: a.cfg.Daemon.SyncTime,
		Listen:   a.cfg.Daemon.Listen,
		StopFile: a.stopFilePath(),
	}
	if s.history != nil {
		opts.Runs = s.history
	}
	d, err := daemon.New(opts)
	if err != nil {
		return err
	}
	report.NewPrinter(cmd.OutOrStdout()).Info("Daemon running: sync at %s on weekdays, next run %s, API on %s",
		a.cfg.Daemon.SyncTime, d.NextSync().Format("2006-01-02 15:04"), a.cfg.Daemon.Listen)
	return d.Run(ctx)
}

func runDaemonStopCommand(cmd *cobra.Command, args []string) error {
	store := config.NewStore(configPath)
	path := (&app{store: store}).stopFilePath()
	if err := daemon.WriteStopFile(path); err != nil {
		return err
	}
	report.NewPrinter(cmd.OutOrStdout()).OK("Stop requested, the daemon exits within a second")
	return nil
}
