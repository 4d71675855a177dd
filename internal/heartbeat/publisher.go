package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/quakewatch/quakewatch/internal/backoff"
)

// MsgPublisher is the slice of *nats.Conn the publisher uses.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Config configures a Publisher.
type Config struct {
	Subject     string
	Interval    time.Duration
	Grace       time.Duration
	Description string
}

// Publisher emits a beat every Interval while healthy reports true.
type Publisher struct {
	conn    MsgPublisher
	cfg     Config
	healthy func(time.Time) bool
	host    string
	now     func() time.Time
}

var hostname = os.Hostname

// NewPublisher returns a Publisher. healthy is consulted before every beat;
// *health.Monitor's Healthy method fits.
func NewPublisher(conn MsgPublisher, cfg Config, healthy func(time.Time) bool) *Publisher {
	host, _ := hostname()
	return &Publisher{
		conn:    conn,
		cfg:     cfg,
		healthy: healthy,
		host:    host,
		now:     time.Now,
	}
}

// Run publishes until ctx is cancelled. The first beat is attempted
// immediately.
func (p *Publisher) Run(ctx context.Context) {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()

	for {
		p.beat()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// beat publishes one message if the pipeline is healthy. It reports whether
// a message was sent.
func (p *Publisher) beat() bool {
	now := p.now()
	if !p.healthy(now) {
		slog.Debug("heartbeat: streams unhealthy, skipping beat", "subject", p.cfg.Subject)
		return false
	}

	msg := Message{
		Subject:     p.cfg.Subject,
		GeneratedAt: now.UTC(),
		Interval:    p.cfg.Interval,
		Description: p.cfg.Description,
		Host:        p.host,
	}
	if p.cfg.Grace > 0 {
		g := p.cfg.Grace
		msg.GracePeriod = &g
	}
	payload, err := msg.Marshal()
	if err != nil {
		slog.Error("heartbeat: invalid message", "err", err)
		return false
	}
	if err := p.conn.PublishMsg(&nats.Msg{Subject: msg.Subject, Data: payload}); err != nil {
		slog.Error("heartbeat: publish failed", "subject", msg.Subject, "err", err)
		return false
	}
	slog.Debug("heartbeat: published", "subject", msg.Subject)
	return true
}

// Connect dials NATS, retrying the initial connect with backoff until ctx is
// cancelled. Once connected the client reconnects on its own.
func Connect(ctx context.Context, url string) (*nats.Conn, error) {
	bo := backoff.New(backoff.Policy{Initial: time.Second, Max: 30 * time.Second, Factor: 2})

	for {
		nc, err := nats.Connect(
			url,
			nats.Name("quakewatch"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("heartbeat: nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				slog.Info("heartbeat: nats reconnected")
			}),
		)
		if err == nil {
			return nc, nil
		}

		wait := bo.Next()
		slog.Error("heartbeat: connect to nats failed", "url", url, "err", err, "retry_in", wait)
		if !backoff.Sleep(ctx, wait) {
			return nil, fmt.Errorf("heartbeat: connect %s: %w", url, ctx.Err())
		}
	}
}
