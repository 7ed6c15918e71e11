package main

import (
	"github.com/spf13/cobra"

	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/report"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file.",
	Args:  cobra.NoArgs,
	RunE:  runInitCommand,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInitCommand(cmd *cobra.Command, args []string) error {
	store := config.NewStore(configPath)
	_, created, err := store.Init()
	if err != nil {
		return err
	}
	out := report.NewPrinter(cmd.OutOrStdout())
	if !created {
		out.Skip("Configuration already exists at %s", store.Path())
		return nil
	}
	out.OK("Wrote default configuration to %s", store.Path())
	out.Line("    Fill in user, jira and overhead, then put %s and %s in %s/.env",
		config.EnvJiraToken, config.EnvTempoToken, store.Dir())
	return nil
}
