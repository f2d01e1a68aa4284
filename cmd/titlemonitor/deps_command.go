package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"titlemonitor/internal/deps"
	"titlemonitor/internal/isis"
	"titlemonitor/internal/preflight"
)

const versionTimeout = 10 * time.Second

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Report CISIS availability and environment checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			statuses := deps.Check(cfg)
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				rows = append(rows, []string{status.Name, status.Command, yesNo(status.Available), status.Detail})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Dependency", "Binary", "Available", "Detail"}, rows, nil))

			results := preflight.RunAll(cmd.Context(), cfg)
			rows = rows[:0]
			for _, result := range results {
				state := "ok"
				switch {
				case !result.Passed && result.Optional:
					state = "warn"
				case !result.Passed:
					state = "fail"
				}
				rows = append(rows, []string{result.Name, state, result.Detail})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Check", "Result", "Detail"}, rows, nil))

			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required dependency %s (%s)", missing[0].Name, missing[0].Detail)
			}

			converter, err := isis.New(cfg.CISIS.Path, cfg.CISIS.ExportTimeoutSeconds)
			if err != nil {
				return err
			}
			probeCtx, cancel := context.WithTimeout(cmd.Context(), versionTimeout)
			defer cancel()
			version, err := converter.Version(probeCtx)
			if err != nil {
				return fmt.Errorf("mx version: %w", err)
			}
			fprintf(out, "mx version: %s\n", version)
			return nil
		},
	}
}
