package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quakewatch/quakewatch/internal/backoff"
	"github.com/quakewatch/quakewatch/internal/cooldown"
	"github.com/quakewatch/quakewatch/internal/health"
	"github.com/quakewatch/quakewatch/internal/metrics"
	"github.com/quakewatch/quakewatch/internal/quake"
	"github.com/quakewatch/quakewatch/internal/stream"
)

// Submitter accepts admitted events without blocking.
type Submitter interface {
	Submit(ev quake.Event) bool
}

// SourceConfig describes one feed.
type SourceConfig struct {
	Source    quake.Source
	Endpoint  string
	Threshold quake.Severity
}

// Deps are the shared collaborators every Runner uses.
type Deps struct {
	Dialer   stream.Dialer
	Cooldown *cooldown.Tracker
	Health   *health.Monitor
	Queue    Submitter
	Metrics  *metrics.Counters
}

// Outcome is what happened to one frame.
type Outcome int

const (
	OutcomeMalformed Outcome = iota + 1
	OutcomeIgnored
	OutcomeBelowThreshold
	OutcomeSuppressed
	OutcomeQueued
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMalformed:
		return "malformed"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeBelowThreshold:
		return "below_threshold"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeQueued:
		return "queued"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Runner drives a single source.
type Runner struct {
	cfg       SourceConfig
	reconnect backoff.Policy
	decode    quake.Decoder
	deps      Deps

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewRunner returns a Runner for cfg. It fails for sources without a decoder
// or a threshold on the wrong scale.
func NewRunner(cfg SourceConfig, reconnect backoff.Policy, deps Deps) (*Runner, error) {
	decode := quake.DecoderFor(cfg.Source)
	if decode == nil {
		return nil, errors.New("pipeline: no decoder for source " + string(cfg.Source))
	}
	if cfg.Threshold.Kind() != cfg.Source.Kind() {
		return nil, errors.New("pipeline: threshold scale does not match source " + string(cfg.Source))
	}
	return &Runner{
		cfg:       cfg,
		reconnect: reconnect,
		decode:    decode,
		deps:      deps,
		now:       time.Now,
		sleep:     backoff.Sleep,
	}, nil
}

// Source returns the feed this runner drives.
func (r *Runner) Source() quake.Source { return r.cfg.Source }

// Run connects, streams and reconnects until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	src := r.cfg.Source
	bo := backoff.New(r.reconnect)
	log := slog.With("source", src, "endpoint", r.cfg.Endpoint)

	for {
		if ctx.Err() != nil {
			r.deps.Health.Disconnected(src, nil)
			return
		}

		r.deps.Health.Connecting(src)
		conn, err := r.deps.Dialer.Dial(ctx, r.cfg.Endpoint)
		if err != nil {
			r.deps.Health.Disconnected(src, err)
			if ctx.Err() != nil {
				return
			}
			wait := bo.Next()
			log.Error("pipeline: dial failed, will retry", "err", err, "retry_in", wait)
			if !r.sleep(ctx, wait) {
				return
			}
			continue
		}

		log.Info("pipeline: connected")
		r.deps.Health.Connected(src, r.now())
		bo.Reset()

		err = r.stream(conn)
		conn.Close() //nolint:errcheck

		if ctx.Err() != nil {
			r.deps.Health.Disconnected(src, nil)
			log.Info("pipeline: stream closed for shutdown")
			return
		}

		r.deps.Health.Disconnected(src, err)
		r.deps.Metrics.Inc(src, metrics.Reconnects)
		wait := bo.Next()
		log.Warn("pipeline: connection lost, will reconnect", "err", err, "retry_in", wait)
		if !r.sleep(ctx, wait) {
			return
		}
	}
}

// stream handles frames until the connection fails.
func (r *Runner) stream(conn stream.Conn) error {
	for {
		f, err := conn.Next()
		if err != nil {
			return err
		}
		r.handle(f)
	}
}

// handle processes one frame. Each step's failure ends processing of this
// frame only.
func (r *Runner) handle(f stream.Frame) Outcome {
	src := r.cfg.Source
	r.deps.Health.RecordFrame(src, f.ReceivedAt)
	r.deps.Metrics.Inc(src, metrics.FramesReceived)

	ev, err := r.decode(f.Data, f.ReceivedAt)
	switch {
	case errors.Is(err, quake.ErrNotEvent):
		r.deps.Metrics.Inc(src, metrics.FramesIgnored)
		slog.Debug("pipeline: frame skipped", "source", src, "reason", err)
		return OutcomeIgnored
	case err != nil:
		r.deps.Metrics.Inc(src, metrics.FramesMalformed)
		slog.Warn("pipeline: malformed frame", "source", src, "err", err, "bytes", len(f.Data))
		return OutcomeMalformed
	}

	if !quake.Qualifies(ev, r.cfg.Threshold) {
		r.deps.Metrics.Inc(src, metrics.EventsBelowThreshold)
		slog.Info("pipeline: event below threshold",
			"source", src, "severity", ev.Severity.Label(), "threshold", r.cfg.Threshold.Label())
		return OutcomeBelowThreshold
	}
	r.deps.Metrics.Inc(src, metrics.EventsQualified)

	if !r.deps.Cooldown.Admit(ev) {
		r.deps.Metrics.Inc(src, metrics.EventsSuppressed)
		slog.Info("pipeline: event suppressed by cooldown",
			"source", src, "severity", ev.Severity.Label(), "key", ev.Key)
		return OutcomeSuppressed
	}

	if !r.deps.Queue.Submit(ev) {
		slog.Warn("pipeline: dispatcher closed, notification dropped", "source", src, "key", ev.Key)
		return OutcomeDropped
	}
	r.deps.Metrics.Inc(src, metrics.NotificationsQueued)
	slog.Warn("pipeline: earthquake alert",
		"source", src,
		"severity", ev.Severity.Label(),
		"region", ev.Details.Region,
		"magnitude", ev.Details.Magnitude,
		"key", ev.Key)
	return OutcomeQueued
}
