package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quakewatch/quakewatch/internal/config"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, src := range cfg.EnabledSources() {
				th, _ := cfg.Threshold(src)
				fmt.Fprintf(w, "%s\t%s\tthreshold %s\n", src, cfg.Source(src).Endpoint, th)
			}
			fmt.Fprintf(w, "cooldown\t%s (dedupe %v)\n", cfg.Cooldown, cfg.DedupeEvents)
			fmt.Fprintf(w, "gotify\t%s (priority %d, %d attempts)\n", cfg.Gotify.URL, cfg.Gotify.Priority, cfg.Gotify.Retry.MaxAttempts)
			fmt.Fprintf(w, "http\t%s (auth %s)\n", cfg.HTTP.Addr, cfg.HTTP.Auth.Mode)
			if cfg.NATS.Enabled() {
				fmt.Fprintf(w, "nats\t%s subject %s\n", cfg.NATS.URL, cfg.NATS.Subject)
			}
			fmt.Fprintln(w, "config OK")
			return nil
		},
	}
}
