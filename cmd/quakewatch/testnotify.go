package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quakewatch/quakewatch/internal/config"
	"github.com/quakewatch/quakewatch/internal/notify"
)

func newTestNotifyCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send one test message to the configured Gotify server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			g := notify.NewGotify(notify.Config{
				URL:      cfg.Gotify.URL,
				Token:    cfg.Gotify.Token(),
				Priority: cfg.Gotify.Priority,
				Timeout:  cfg.Gotify.Timeout,
			})

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Gotify.Timeout+time.Second)
			defer cancel()
			if err := g.SendTest(ctx, "quakewatch test", message); err != nil {
				return fmt.Errorf("test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "test notification delivered")
			return nil
		},
	}
	cmd.Flags().StringVar(&message, "message", "quakewatch can reach this Gotify server.", "message body")
	return cmd
}
