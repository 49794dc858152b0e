package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevel string
	var jsonOutput bool

	ctx := newCommandContext(&configFlag, &logLevel)

	rootCmd := &cobra.Command{
		Use:           "tunectl",
		Short:         "Search, resolve and ingest music",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level for diagnostics on stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newSearchCommand(ctx, &jsonOutput))
	rootCmd.AddCommand(newResolveCommand(ctx, &jsonOutput))
	rootCmd.AddCommand(newIngestCommand(ctx, &jsonOutput))
	rootCmd.AddCommand(newJobCommand(ctx, &jsonOutput))
	return rootCmd
}
