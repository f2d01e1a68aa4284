package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"titlemonitor/internal/isis"
	"titlemonitor/internal/preflight"
	"titlemonitor/internal/record"
	"titlemonitor/internal/services"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "convert [file.mst]",
		Short: "Export a master file through mx and print its records as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Monitor.MonitoredFile
			if len(args) == 1 {
				path = args[0]
			}
			if check := preflight.CheckMonitoredFile(path); !check.Passed {
				return services.Wrap(services.ErrConfiguration, "cli", "convert", check.Detail, nil)
			}
			logger, err := ctx.commandLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			converter, err := isis.New(cfg.CISIS.Path, cfg.CISIS.ExportTimeoutSeconds,
				isis.WithEncoding(cfg.CISIS.Encoding),
				isis.WithLogger(logger),
			)
			if err != nil {
				return err
			}
			records, err := converter.Convert(cmd.Context(), path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary {
				fmt.Fprintln(out, renderTable(out, []string{"#", "ISSN", "Title"}, summaryRows(records),
					[]columnAlignment{alignRight, alignLeft, alignLeft}))
				return nil
			}
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			if records == nil {
				records = []record.Record{}
			}
			return encoder.Encode(records)
		},
	}

	cmd.Flags().BoolVar(&summary, "summary", false, "Print a table of ISSNs and titles instead of JSON")
	return cmd
}

func summaryRows(records []record.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		rows = append(rows, []string{fmt.Sprint(i + 1), rec.Identifier(), rec.Title()})
	}
	return rows
}
