package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"titlemonitor/internal/config"
	"titlemonitor/internal/fingerprint"
	"titlemonitor/internal/logging"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset persisted fingerprints",
	}
	stateCmd.AddCommand(newStateListCommand(ctx))
	stateCmd.AddCommand(newStateClearCommand(ctx))
	return stateCmd
}

func openPersistedStore(cfg *config.Config) (*fingerprint.SQLite, bool, error) {
	path := cfg.FingerprintDBPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, false, nil
	}
	store, err := fingerprint.OpenSQLite(path, logging.NewNop())
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

func newStateListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted fingerprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			store, ok, err := openPersistedStore(cfg)
			if err != nil {
				return err
			}
			if !ok {
				fprintf(out, "No persisted fingerprints at %s\n", cfg.FingerprintDBPath())
				return nil
			}
			defer store.Close()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No fingerprints recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{entry.Key, shortDigest(entry.Digest), entry.UpdatedAt.UTC().Format("2006-01-02 15:04:05")})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Key", "Digest", "Updated"}, rows, nil))
			return nil
		},
	}
}

func newStateClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget every persisted fingerprint so the next check resends all journals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			store, ok, err := openPersistedStore(cfg)
			if err != nil {
				return err
			}
			if !ok {
				fprintf(out, "No persisted fingerprints at %s\n", cfg.FingerprintDBPath())
				return nil
			}
			defer store.Close()

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fprintf(out, "Cleared %d fingerprints\n", removed)
			return nil
		},
	}
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
