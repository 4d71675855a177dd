package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quakewatch/quakewatch/internal/api"
)

func newStatusCmd() *cobra.Command {
	var (
		url     string
		apiKey  string
		header  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print per-source stream status from a running instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			resp, err := fetchStatus(ctx, strings.TrimRight(url, "/")+"/api/v1/sources", header, apiKey)
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}
			printStatus(resp, cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", envDefault("QUAKE_STATUS_URL", "http://127.0.0.1:5000"), "base URL of the running instance")
	cmd.Flags().StringVar(&apiKey, "api-key", envDefault("QUAKE_API_KEY", ""), "API key when auth is enabled")
	cmd.Flags().StringVar(&header, "api-key-header", "X-API-Key", "header carrying the API key")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "HTTP request timeout")
	return cmd
}

func fetchStatus(ctx context.Context, url, header, key string) (api.SourcesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return api.SourcesResponse{}, fmt.Errorf("build request: %w", err)
	}
	if key != "" {
		req.Header.Set(header, key)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return api.SourcesResponse{}, fmt.Errorf("request status: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return api.SourcesResponse{}, fmt.Errorf("unexpected status %s: %s", res.Status, strings.TrimSpace(string(body)))
	}

	var status api.SourcesResponse
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return api.SourcesResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return status, nil
}

func printStatus(resp api.SourcesResponse, w io.Writer) {
	fmt.Fprintf(w, "Generated at: %s\n", fallback(resp.GeneratedAt, time.Now().UTC().Format(time.RFC3339)))

	if len(resp.Sources) == 0 {
		fmt.Fprintln(w, "No sources configured.")
		return
	}
	fmt.Fprintln(w)

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSOURCE\tTHRESHOLD\tLAST MESSAGE\tRECONNECTS\tDETAILS")
	unhealthy := 0
	for _, s := range resp.Sources {
		status, details := summarizeSource(s)
		if status != "OK" {
			unhealthy++
		}
		last := "-"
		if s.LastMessageAt != nil {
			last = s.LastMessageAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", status, s.Source, s.Threshold, last, s.Reconnects, details)
	}
	_ = tw.Flush()

	fmt.Fprint(w, buf.String())
	fmt.Fprintf(w, "\n%d of %d source(s) unhealthy\n", unhealthy, len(resp.Sources))
}

func summarizeSource(s api.SourceResponse) (string, string) {
	switch {
	case !s.Connected:
		return "DOWN", fallback(s.LastError, string(s.State))
	case s.Stale:
		return "STALE", fmt.Sprintf("silent for %.0fs", s.AgeSeconds)
	}
	details := fmt.Sprintf("heartbeat %s", s.HeartbeatInterval)
	if s.CooldownRemaining > 0 {
		details += fmt.Sprintf(", cooldown %.0fs", s.CooldownRemaining)
	}
	return "OK", details
}

func fallback(v, defaultVal string) string {
	if strings.TrimSpace(v) == "" {
		return defaultVal
	}
	return v
}
