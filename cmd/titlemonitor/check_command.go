package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"titlemonitor/internal/catalog"
	"titlemonitor/internal/daemonrun"
	"titlemonitor/internal/detector"
	"titlemonitor/internal/dispatch"
	"titlemonitor/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single check of the master file",
		Long: "Validate the environment, convert the master file, and send every journal.\n" +
			"With --dry-run the journals are printed instead of sent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateMonitor(); err != nil {
				return services.Wrap(services.ErrConfiguration, "cli", "check", "", err)
			}
			logger, err := ctx.commandLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			out := cmd.OutOrStdout()
			var sink dispatch.Sink
			if dryRun {
				sink = catalog.NewRecorder(out)
			}
			rt, err := daemonrun.Build(cfg, logger, sink)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Scheduler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			fprintf(out, "Monitored file: %s\n", cfg.Monitor.MonitoredFile)
			fprintf(out, "Status: %s\n", detector.Describe(result.Records, result.Changed))
			if result.Changed {
				report := result.Report
				fmt.Fprintln(out, renderTable(out,
					[]string{"Total", "Sent", "Skipped", "Failed"},
					[][]string{{
						strconv.Itoa(report.Total),
						strconv.Itoa(report.Sent),
						strconv.Itoa(report.Skipped),
						strconv.Itoa(report.Failed),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
				))
				if len(report.Failures) > 0 {
					rows := make([][]string, 0, len(report.Failures))
					for _, failure := range report.Failures {
						rows = append(rows, []string{failure.Key, failure.Title, failure.Err.Error()})
					}
					fmt.Fprintln(out, renderTable(out, []string{"Key", "Title", "Error"}, rows, nil))
				}
				return report.Err()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the add_journal calls instead of sending them")
	return cmd
}
