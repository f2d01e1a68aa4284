package main

import (
	"github.com/spf13/cobra"

	"titlemonitor/internal/daemonrun"
	"titlemonitor/internal/services"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var strict bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the master file and send changed journals until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("strict") {
				cfg.Monitor.Strict = strict
			}
			if cmd.Flags().Changed("watch") {
				cfg.Monitor.Watch = watch
			}
			if err := cfg.ValidateMonitor(); err != nil {
				return services.Wrap(services.ErrConfiguration, "cli", "run", "", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{})
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Stop on read or conversion failures")
	cmd.Flags().BoolVar(&watch, "watch", false, "Check early when the master file is written")
	return cmd
}
