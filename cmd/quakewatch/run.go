package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quakewatch/quakewatch/internal/api"
	"github.com/quakewatch/quakewatch/internal/auth"
	"github.com/quakewatch/quakewatch/internal/backoff"
	"github.com/quakewatch/quakewatch/internal/config"
	"github.com/quakewatch/quakewatch/internal/cooldown"
	"github.com/quakewatch/quakewatch/internal/health"
	"github.com/quakewatch/quakewatch/internal/heartbeat"
	"github.com/quakewatch/quakewatch/internal/logging"
	"github.com/quakewatch/quakewatch/internal/metrics"
	"github.com/quakewatch/quakewatch/internal/notify"
	"github.com/quakewatch/quakewatch/internal/pipeline"
	"github.com/quakewatch/quakewatch/internal/quake"
	"github.com/quakewatch/quakewatch/internal/stream"
	"github.com/quakewatch/quakewatch/internal/ws"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the feeds and dispatch alerts until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath(cmd))
		},
	}
}

// service is the wired object graph for one process.
type service struct {
	cfg         *config.Config
	health      *health.Monitor
	coordinator *pipeline.Coordinator
	hub         *ws.Hub
	handler     http.Handler
}

func run(parent context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	svc, err := build(cfg)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("quakewatch starting",
		"sources", cfg.EnabledSources(),
		"cooldown", cfg.Cooldown,
		"gotify", cfg.Gotify.URL,
		"http_addr", cfg.HTTP.Addr,
		"auth_mode", cfg.HTTP.Auth.Mode,
	)

	go svc.hub.Run(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           svc.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	if cfg.NATS.Enabled() {
		go runHeartbeat(ctx, cfg.NATS, svc.health)
	}

	if path != "" {
		go func() {
			err := config.Watch(ctx, path, func(next *config.Config) {
				logPending(cfg, next)
			})
			if err != nil {
				slog.Error("config: watcher stopped", "err", err)
			}
		}()
	}

	// Blocks until the signal arrives and notifications have drained.
	svc.coordinator.Run(ctx)

	slog.Info("quakewatch shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	return nil
}

// build wires every component from cfg without starting anything.
func build(cfg *config.Config) (*service, error) {
	sources := cfg.EnabledSources()

	counters := metrics.New(sources...)
	mon := health.New(cfg.Health.StaleFactor)
	thresholds := make(map[quake.Source]quake.Severity, len(sources))
	for _, src := range sources {
		th, err := cfg.Threshold(src)
		if err != nil {
			return nil, fmt.Errorf("threshold %s: %w", src, err)
		}
		thresholds[src] = th
		mon.Register(src, cfg.Source(src).HeartbeatInterval)
	}

	tracker := cooldown.New(cooldown.Options{
		Window:    cfg.Cooldown,
		Dedupe:    cfg.DedupeEvents,
		DedupeTTL: cfg.DedupeTTL,
	})

	gotify := notify.NewGotify(notify.Config{
		URL:         cfg.Gotify.URL,
		Token:       cfg.Gotify.Token(),
		Priority:    cfg.Gotify.Priority,
		Timeout:     cfg.Gotify.Timeout,
		MaxAttempts: cfg.Gotify.Retry.MaxAttempts,
		Retry:       policy(cfg.Gotify.Retry.BackoffConfig),
	})
	queue := notify.NewQueue(gotify, cfg.Gotify.QueueSize, cfg.Gotify.Workers)
	queue.OnResult(pipeline.DeliveryObserver(counters))

	client := stream.NewClient(stream.Options{
		PingInterval:     cfg.Stream.PingInterval,
		ReadTimeout:      cfg.Stream.ReadTimeout,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
	})

	deps := pipeline.Deps{
		Dialer:   client,
		Cooldown: tracker,
		Health:   mon,
		Queue:    queue,
		Metrics:  counters,
	}
	runners := make([]*pipeline.Runner, 0, len(sources))
	for _, src := range sources {
		r, err := pipeline.NewRunner(pipeline.SourceConfig{
			Source:    src,
			Endpoint:  cfg.Source(src).Endpoint,
			Threshold: thresholds[src],
		}, policy(cfg.Stream.Reconnect), deps)
		if err != nil {
			return nil, err
		}
		runners = append(runners, r)
	}

	apiDeps := api.Deps{
		Health:     mon,
		Cooldown:   tracker,
		Metrics:    counters,
		Gateway:    gotify,
		Queue:      queue,
		Thresholds: thresholds,
	}
	hub := ws.New(apiDeps, cfg.HTTP.StatusInterval)

	// /health stays open for probes; everything else needs the key.
	guard := auth.APIKey(cfg.HTTP.Auth.Mode, cfg.HTTP.Auth.Header, cfg.HTTP.Auth.Key())
	handler := api.New(apiDeps)
	mux := http.NewServeMux()
	mux.Handle("/health", handler)
	mux.Handle("/api/", guard(handler))
	mux.Handle("/metrics", guard(handler))
	mux.Handle("/ws/status", guard(hub))

	return &service{
		cfg:         cfg,
		health:      mon,
		coordinator: pipeline.NewCoordinator(runners, queue, cfg.ShutdownGrace),
		hub:         hub,
		handler:     mux,
	}, nil
}

func runHeartbeat(ctx context.Context, cfg config.NATSConfig, mon *health.Monitor) {
	nc, err := heartbeat.Connect(ctx, cfg.URL)
	if err != nil {
		slog.Error("heartbeat: giving up", "err", err)
		return
	}
	defer nc.Drain() //nolint:errcheck

	heartbeat.NewPublisher(nc, heartbeat.Config{
		Subject:     cfg.Subject,
		Interval:    cfg.Interval,
		Grace:       cfg.Grace,
		Description: cfg.Description,
	}, mon.Healthy).Run(ctx)
}

func policy(b config.BackoffConfig) backoff.Policy {
	return backoff.Policy{Initial: b.Initial, Max: b.Max, Factor: b.Factor}
}

// logPending names the config sections an edited file would change.
func logPending(cur, next *config.Config) {
	var changed []string
	a, b := reflect.ValueOf(*cur), reflect.ValueOf(*next)
	for i := 0; i < a.NumField(); i++ {
		if !reflect.DeepEqual(a.Field(i).Interface(), b.Field(i).Interface()) {
			changed = append(changed, a.Type().Field(i).Tag.Get("yaml"))
		}
	}
	if len(changed) == 0 {
		slog.Info("config: file rewritten with no effective change")
		return
	}
	slog.Warn("config: restart quakewatch to apply", "changed", changed)
}
