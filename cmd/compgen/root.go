package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var (
		configFlag  string
		logFileFlag string
		prettyFlag  bool
	)

	ctx := newCommandContext(&configFlag, &logFileFlag, &prettyFlag)

	rootCmd := &cobra.Command{
		Use:           "compgen",
		Short:         "Generate AEM components with a language model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.initLogger(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default ~/.compgen/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "logfile", "", "Path to log file. If not set, logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&prettyFlag, "pretty", false, "Use pretty console output (only valid when logfile is not set)")

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newTestConnectionCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newModelsCommand(ctx))
	rootCmd.AddCommand(newKeepWarmCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}
