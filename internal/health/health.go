// Package health tracks per-source stream connectivity and freshness.
//
// The pipeline runners are the only writers. Readers get copies from Status,
// so the query path holds the lock only long enough to copy a few fields.
package health

import (
	"sync"
	"time"

	"github.com/quakewatch/quakewatch/internal/quake"
)

// DefaultStaleFactor multiplies a source's heartbeat interval to get the
// silence after which it is reported stale.
const DefaultStaleFactor = 3

// State is a runner's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
)

// SourceStatus is a point-in-time copy of one source's health.
type SourceStatus struct {
	Source            quake.Source `json:"source"`
	State             State        `json:"state"`
	Connected         bool         `json:"connected"`
	Stale             bool         `json:"stale"`
	Healthy           bool         `json:"healthy"`
	LastMessageAt     *time.Time   `json:"last_message_at,omitempty"`
	AgeSeconds        float64      `json:"age_seconds"`
	ConnectedSince    *time.Time   `json:"connected_since,omitempty"`
	HeartbeatInterval string       `json:"heartbeat_interval"`
	Reconnects        uint64       `json:"reconnects"`
	Frames            uint64       `json:"frames"`
	LastError         string       `json:"last_error,omitempty"`
}

type entry struct {
	heartbeat      time.Duration
	state          State
	lastMessageAt  time.Time
	connectedSince time.Time
	reconnects     uint64
	frames         uint64
	lastError      string
}

// Monitor holds HealthState for every registered source.
type Monitor struct {
	staleFactor float64

	mu      sync.RWMutex
	entries map[quake.Source]*entry
	order   []quake.Source
}

// New returns an empty Monitor. A non-positive staleFactor uses the default.
func New(staleFactor float64) *Monitor {
	if staleFactor <= 0 {
		staleFactor = DefaultStaleFactor
	}
	return &Monitor{
		staleFactor: staleFactor,
		entries:     make(map[quake.Source]*entry),
	}
}

// Register adds src with its expected heartbeat interval. Registering twice
// only updates the interval.
func (m *Monitor) Register(src quake.Source, heartbeat time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[src]; ok {
		e.heartbeat = heartbeat
		return
	}
	m.entries[src] = &entry{heartbeat: heartbeat, state: StateDisconnected}
	m.order = append(m.order, src)
}

// Connecting marks a dial attempt in progress.
func (m *Monitor) Connecting(src quake.Source) {
	m.update(src, func(e *entry) {
		e.state = StateConnecting
	})
}

// Connected marks the stream as open at t.
func (m *Monitor) Connected(src quake.Source, t time.Time) {
	m.update(src, func(e *entry) {
		e.state = StateStreaming
		e.connectedSince = t
		e.lastError = ""
	})
}

// Disconnected marks the stream as lost. A nil err records a clean close.
func (m *Monitor) Disconnected(src quake.Source, err error) {
	m.update(src, func(e *entry) {
		if e.state == StateStreaming {
			e.reconnects++
		}
		e.state = StateDisconnected
		e.connectedSince = time.Time{}
		if err != nil {
			e.lastError = err.Error()
		}
	})
}

// RecordFrame notes a frame received at t, whether or not it decodes.
func (m *Monitor) RecordFrame(src quake.Source, t time.Time) {
	m.update(src, func(e *entry) {
		e.frames++
		if t.After(e.lastMessageAt) {
			e.lastMessageAt = t
		}
	})
}

// Status returns a copy of every source's health as of now, in registration
// order.
func (m *Monitor) Status(now time.Time) []SourceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SourceStatus, 0, len(m.order))
	for _, src := range m.order {
		out = append(out, m.statusLocked(src, m.entries[src], now))
	}
	return out
}

// Healthy reports whether every registered source is connected and fresh.
// A Monitor with no sources is not healthy.
func (m *Monitor) Healthy(now time.Time) bool {
	st := m.Status(now)
	if len(st) == 0 {
		return false
	}
	for _, s := range st {
		if !s.Healthy {
			return false
		}
	}
	return true
}

func (m *Monitor) statusLocked(src quake.Source, e *entry, now time.Time) SourceStatus {
	s := SourceStatus{
		Source:            src,
		State:             e.state,
		Connected:         e.state == StateStreaming,
		HeartbeatInterval: e.heartbeat.String(),
		Reconnects:        e.reconnects,
		Frames:            e.frames,
		LastError:         e.lastError,
	}
	if !e.lastMessageAt.IsZero() {
		t := e.lastMessageAt
		s.LastMessageAt = &t
	}
	if !e.connectedSince.IsZero() {
		t := e.connectedSince
		s.ConnectedSince = &t
	}

	// Freshness counts from the last frame, or from the connect if none has
	// arrived yet on this connection.
	ref := e.lastMessageAt
	if e.connectedSince.After(ref) {
		ref = e.connectedSince
	}
	if ref.IsZero() {
		s.Stale = true
	} else {
		age := now.Sub(ref)
		s.AgeSeconds = age.Seconds()
		limit := time.Duration(float64(e.heartbeat) * m.staleFactor)
		s.Stale = e.heartbeat > 0 && age > limit
	}
	s.Healthy = s.Connected && !s.Stale
	return s
}

func (m *Monitor) update(src quake.Source, fn func(*entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[src]
	if !ok {
		e = &entry{state: StateDisconnected}
		m.entries[src] = e
		m.order = append(m.order, src)
	}
	fn(e)
}
