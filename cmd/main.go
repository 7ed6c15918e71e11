package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bryan-cox/tempoledger/internal/config"
)

// --- Cobra Command Definitions ---

var (
	// Used for flags.
	configPath string
	logFile    string
	verbose    bool

	// logCloser is the open log file of the running command.
	logCloser io.Closer

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "tempoledger",
		Short: "Keep Jira worklogs and Tempo timesheets in line with your working calendar.",
		Long: `tempoledger fills each working day with the configured number of hours, spreading them
across your active Jira tickets (or overhead stories on PTO, holidays and planning weeks),
verifies the week, and submits the monthly Tempo timesheet on the last day of the month.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  setupLogging,
		PersistentPostRunE: closeLogging,
	}
)

func init() {
	// Add persistent flags to the root command (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML configuration file.")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", defaultLogFile(), "Path to the log file.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug messages.")
}

func defaultLogFile() string {
	return filepath.Join(config.DefaultDir(), "tempoledger.log")
}

// --- Main Application Entry Point ---

func main() {
	// Setup structured JSON logger until the log file is known.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		fmt.Fprintf(os.Stderr, "See %s for details\n", logFile)
		closeLogging(nil, nil)
		os.Exit(1)
	}
}

// setupLogging sends JSON logs to stderr and to the append-mode log file.
func setupLogging(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var w io.Writer = cmd.ErrOrStderr()
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
			return fmt.Errorf("could not create log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("could not open log file '%s': %w", logFile, err)
		}
		logCloser = f
		w = io.MultiWriter(cmd.ErrOrStderr(), f)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

func closeLogging(_ *cobra.Command, _ []string) error {
	if logCloser == nil {
		return nil
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	err := logCloser.Close()
	logCloser = nil
	return err
}
