// Command quakewatch ingests JMA and CEA earthquake early-warning feeds and
// pushes qualifying events to a Gotify server.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("quakewatch: exiting", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quakewatch",
		Short:         "Earthquake early-warning ingest and Gotify alerting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", envDefault("QUAKE_CONFIG", ""),
		"path to config.yaml (defaults and QUAKE_* env vars apply when empty)")

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newCheckConfigCmd(),
		newTestNotifyCmd(),
	)
	return root
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
