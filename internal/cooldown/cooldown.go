// Package cooldown gates qualifying events so that each source notifies at
// most once per cooldown window.
package cooldown

import (
	"sync"
	"time"

	"github.com/quakewatch/quakewatch/internal/quake"
)

// DefaultWindow is used when Options.Window is zero.
const DefaultWindow = 6 * time.Minute

// Options configure a Tracker.
type Options struct {
	// Window is the minimum time between two notifications for one source.
	Window time.Duration

	// Dedupe additionally rejects an event whose feed-provided id was already
	// admitted within DedupeTTL, even after Window has elapsed. Events without
	// an id are only ever gated by time.
	Dedupe    bool
	DedupeTTL time.Duration
}

// Tracker owns the per-source cooldown state. It is safe for concurrent use;
// admissions for different sources never contend on the same lock.
type Tracker struct {
	opts Options

	mu    sync.RWMutex
	gates map[quake.Source]*gate
}

type gate struct {
	mu           sync.Mutex
	lastNotified time.Time
	seen         map[string]time.Time // event key → admitted at
}

// New returns a Tracker with no recorded notifications.
func New(opts Options) *Tracker {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Dedupe && opts.DedupeTTL <= 0 {
		opts.DedupeTTL = time.Hour
	}
	return &Tracker{
		opts:  opts,
		gates: make(map[quake.Source]*gate),
	}
}

// Window returns the configured cooldown window.
func (t *Tracker) Window() time.Duration { return t.opts.Window }

// Admit reports whether ev may be notified. On true it records ev.ReceivedAt
// as the source's last notification; on false no state changes. The check
// and the update happen under one lock per source.
func (t *Tracker) Admit(ev quake.Event) bool {
	g := t.gate(ev.Source)

	g.mu.Lock()
	defer g.mu.Unlock()

	at := ev.ReceivedAt
	if !g.lastNotified.IsZero() && at.Sub(g.lastNotified) < t.opts.Window {
		return false
	}

	if t.opts.Dedupe && ev.HasIdentity() {
		g.prune(at, t.opts.DedupeTTL)
		if first, ok := g.seen[ev.Key]; ok && at.Sub(first) < t.opts.DedupeTTL {
			return false
		}
		if g.seen == nil {
			g.seen = make(map[string]time.Time)
		}
		g.seen[ev.Key] = at
	}

	g.lastNotified = at
	return true
}

// LastNotified returns when src last passed the gate.
func (t *Tracker) LastNotified(src quake.Source) (time.Time, bool) {
	t.mu.RLock()
	g, ok := t.gates[src]
	t.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastNotified, !g.lastNotified.IsZero()
}

func (t *Tracker) gate(src quake.Source) *gate {
	t.mu.RLock()
	g, ok := t.gates[src]
	t.mu.RUnlock()
	if ok {
		return g
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if g, ok = t.gates[src]; !ok {
		g = &gate{}
		t.gates[src] = g
	}
	return g
}

// prune drops seen keys older than ttl. Caller holds g.mu.
func (g *gate) prune(now time.Time, ttl time.Duration) {
	for k, at := range g.seen {
		if now.Sub(at) >= ttl {
			delete(g.seen, k)
		}
	}
}
