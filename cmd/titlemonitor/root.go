package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var flags monitorFlags

	ctx := newCommandContext(&configFlag, &flags)

	rootCmd := &cobra.Command{
		Use:           "titlemonitor",
		Short:         "Watch a CISIS title database and publish journal changes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "Configuration file path")
	pf.StringVarP(&flags.monitoredFile, "monitored-file", "f", "", "CISIS master file (.mst) to watch")
	pf.StringVarP(&flags.cisisPath, "cisis-path", "c", "", "Directory containing the CISIS utilities")
	pf.StringVarP(&flags.collection, "collection", "a", "", "Collection acronym (scl, arg, sza)")
	pf.StringVarP(&flags.throttle, "throttle", "t", "", "Seconds between checks")
	pf.StringVarP(&flags.logFile, "log-file", "o", "", "Write logs to this file as well")
	pf.StringVarP(&flags.logLevel, "log-level", "l", "", "Log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newConvertCommand(ctx))
	rootCmd.AddCommand(newDepsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newStateCommand(ctx))

	return rootCmd
}
