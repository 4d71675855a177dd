package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quakewatch/quakewatch/internal/backoff"
	"github.com/quakewatch/quakewatch/internal/quake"
)

const (
	defaultPriority    = 10
	defaultTimeout     = 8 * time.Second
	defaultMaxAttempts = 3

	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 512
)

// Config configures a Gotify client.
type Config struct {
	URL         string // base URL, e.g. https://push.example.com
	Token       string // application token
	Priority    int
	Timeout     time.Duration // per request
	MaxAttempts int
	Retry       backoff.Policy
}

// Result is the outcome of one Deliver call.
type Result struct {
	DeliveryID string
	Attempts   int
	Err        error
}

// Delivered reports whether the gateway accepted the message.
func (r Result) Delivered() bool { return r.Err == nil }

// Permanent reports whether delivery stopped on a non-retryable error.
func (r Result) Permanent() bool { return r.Err != nil && isPermanent(r.Err) }

// Status summarises recent gateway outcomes for the HTTP surface.
type Status struct {
	Delivered      uint64    `json:"delivered"`
	Failed         uint64    `json:"failed"`
	LastSuccessAt  time.Time `json:"last_success_at,omitempty"`
	LastFailureAt  time.Time `json:"last_failure_at,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	LastStatusCode int       `json:"last_status_code,omitempty"`
	// ActionRequired is set after a permanent failure and cleared by the
	// next successful delivery.
	ActionRequired bool `json:"action_required"`
}

// Gotify posts messages to a Gotify server. It is safe for concurrent use.
type Gotify struct {
	cfg    Config
	client *http.Client

	// injectable for tests
	sleep func(ctx context.Context, d time.Duration) bool
	now   func() time.Time

	mu     sync.Mutex
	status Status
}

// NewGotify returns a client for cfg. Zero fields take defaults.
func NewGotify(cfg Config) *Gotify {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Priority == 0 {
		cfg.Priority = defaultPriority
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Retry.Initial <= 0 {
		cfg.Retry = backoff.Policy{Initial: 4 * time.Second, Max: 10 * time.Second, Factor: 2}
	}
	return &Gotify{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sleep:  backoff.Sleep,
		now:    time.Now,
	}
}

// Deliver posts ev, retrying transient failures up to MaxAttempts. It never
// returns before ctx is done or the attempts are used up.
func (g *Gotify) Deliver(ctx context.Context, ev quake.Event) Result {
	title, body := Format(ev)
	id := uuid.NewString()
	msg := message{
		Title:    title,
		Message:  body,
		Priority: g.cfg.Priority,
		Extras: map[string]any{
			"client::display": map[string]string{"contentType": "text/plain"},
			"quakewatch::delivery": map[string]string{
				"id":     id,
				"source": string(ev.Source),
				"key":    ev.Key,
			},
		},
	}

	res := Result{DeliveryID: id}
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("delivery abandoned: %w", err)
			break
		}

		res.Attempts++
		err := g.send(ctx, msg)
		if err == nil {
			res.Err = nil
			if attempt > 0 {
				slog.Info("notify: delivered after retry",
					"source", ev.Source, "delivery_id", id, "attempts", res.Attempts)
			}
			break
		}
		res.Err = err

		if isPermanent(err) {
			slog.Error("notify: gateway rejected message, operator action required",
				"source", ev.Source, "delivery_id", id, "err", err)
			break
		}
		if attempt == g.cfg.MaxAttempts-1 {
			slog.Error("notify: retries exhausted, dropping notification",
				"source", ev.Source, "delivery_id", id, "attempts", res.Attempts, "err", err)
			break
		}

		wait := g.cfg.Retry.Delay(attempt)
		slog.Warn("notify: delivery failed, will retry",
			"source", ev.Source,
			"delivery_id", id,
			"attempt", res.Attempts,
			"max_attempts", g.cfg.MaxAttempts,
			"retry_in", wait,
			"err", err)
		if !g.sleep(ctx, wait) {
			res.Err = fmt.Errorf("delivery abandoned: %w", ctx.Err())
			break
		}
	}

	g.record(res)
	return res
}

// SendTest posts a plain message without retry. Used to verify credentials.
func (g *Gotify) SendTest(ctx context.Context, title, body string) error {
	return g.send(ctx, message{Title: title, Message: body, Priority: g.cfg.Priority})
}

// Status returns a copy of the current gateway status.
func (g *Gotify) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

type message struct {
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Priority int            `json:"priority"`
	Extras   map[string]any `json:"extras,omitempty"`
}

func (g *Gotify) send(ctx context.Context, msg message) error {
	if g.cfg.URL == "" || g.cfg.Token == "" {
		return fmt.Errorf("gotify url and token are required: %w", ErrPermanent)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL+"/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %v: %w", err, ErrPermanent)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gotify-Key", g.cfg.Token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

func (g *Gotify) record(res Result) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if res.Delivered() {
		g.status.Delivered++
		g.status.LastSuccessAt = now
		g.status.ActionRequired = false
		return
	}

	g.status.Failed++
	g.status.LastFailureAt = now
	g.status.LastError = res.Err.Error()
	g.status.LastStatusCode = 0
	var se *StatusError
	if errors.As(res.Err, &se) {
		g.status.LastStatusCode = se.Code
	}
	if res.Permanent() {
		g.status.ActionRequired = true
	}
}
