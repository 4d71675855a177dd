package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quakewatch/quakewatch/internal/api"
)

const (
	writeTimeout = 10 * time.Second

	// idleTimeout drops a subscriber whose pongs stop arriving.
	idleTimeout = 60 * time.Second
	pingEvery   = idleTimeout * 9 / 10

	// backlog is how many reports may queue for one subscriber before it is
	// considered too slow and dropped.
	backlog = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the JSON envelope of every report.
type Message struct {
	Event string              `json:"event"`
	Data  api.SourcesResponse `json:"data"`
}

// Hub pushes the per-source report to websocket subscribers.
type Hub struct {
	deps     api.Deps
	interval time.Duration

	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	stopped bool
}

type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() { s.once.Do(func() { close(s.done) }) }

// New returns a Hub reporting on deps every interval.
func New(deps api.Deps, interval time.Duration) *Hub {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Hub{
		deps:     deps,
		interval: interval,
		subs:     make(map[*subscriber]struct{}),
	}
}

// Run publishes a report every interval until ctx is cancelled, then
// disconnects all subscribers and refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-t.C:
			h.publish()
		}
	}
}

// ServeHTTP upgrades the request and streams reports until the subscriber
// leaves or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := &subscriber{
		conn: conn,
		out:  make(chan []byte, backlog),
		done: make(chan struct{}),
	}
	if report, err := h.report(); err == nil {
		s.out <- report
	}
	if !h.add(s) {
		conn.Close()
		return
	}
	defer h.remove(s)

	go s.write()
	s.read()
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.subs[s] = struct{}{}
	return true
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.stop()
}

func (h *Hub) snapshot() []*subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		out = append(out, s)
	}
	return out
}

func (h *Hub) publish() {
	subs := h.snapshot()
	if len(subs) == 0 {
		return
	}
	report, err := h.report()
	if err != nil {
		slog.Error("ws: encode report", "err", err)
		return
	}
	for _, s := range subs {
		select {
		case s.out <- report:
		default:
			slog.Warn("ws: dropping slow subscriber", "remote", s.conn.RemoteAddr().String())
			h.remove(s)
		}
	}
}

func (h *Hub) report() ([]byte, error) {
	return json.Marshal(Message{
		Event: "sources",
		Data:  api.BuildSources(h.deps, h.deps.Now()),
	})
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.stopped = true
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

// write owns all writes on the connection.
func (s *subscriber) write() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case report := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.TextMessage, report); err != nil {
				return
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)) //nolint:errcheck
			return
		}
	}
}

// read discards client frames and keeps the idle deadline moving on pongs.
func (s *subscriber) read() {
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(idleTimeout)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
