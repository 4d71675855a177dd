package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quakewatch/quakewatch/internal/api"
	"github.com/quakewatch/quakewatch/internal/health"
	"github.com/quakewatch/quakewatch/internal/quake"
	"github.com/quakewatch/quakewatch/internal/ws"
)

const tick = 20 * time.Millisecond

func TestHub_FirstReportOnConnect(t *testing.T) {
	url, _, _ := runHub(t, monitorDeps(quake.JMA, quake.CEA))

	m := nextReport(t, subscribe(t, url))
	if m.Event != "sources" {
		t.Errorf("event: got %q, want sources", m.Event)
	}
	if len(m.Data.Sources) != 2 || m.Data.GeneratedAt == "" {
		t.Errorf("data: %+v", m.Data)
	}
	if m.Data.Sources[0].Source != quake.JMA {
		t.Errorf("order: got %s first", m.Data.Sources[0].Source)
	}
}

func TestHub_TickReflectsHealthChange(t *testing.T) {
	deps := monitorDeps(quake.JMA)
	url, _, _ := runHub(t, deps)

	conn := subscribe(t, url)
	if nextReport(t, conn).Data.Sources[0].Connected {
		t.Fatal("source should start disconnected")
	}

	deps.Health.Connected(quake.JMA, time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if nextReport(t, conn).Data.Sources[0].Connected {
			return
		}
	}
	t.Error("no report showed the source connected")
}

func TestHub_CountTracksSubscribers(t *testing.T) {
	url, hub, _ := runHub(t, monitorDeps(quake.JMA))

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = subscribe(t, url)
		nextReport(t, conns[i])
	}
	waitCount(t, hub, 3)

	conns[0].Close()
	waitCount(t, hub, 2)
}

func TestHub_StopDisconnectsAndRefuses(t *testing.T) {
	url, hub, stop := runHub(t, monitorDeps(quake.CEA))

	conn := subscribe(t, url)
	nextReport(t, conn)
	waitCount(t, hub, 1)

	stop()
	waitCount(t, hub, 0)

	// The subscriber sees a close frame.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail after stop")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after stop, got %v", resp)
	}
}

// --- helpers ---

func monitorDeps(sources ...quake.Source) api.Deps {
	mon := health.New(3)
	for _, s := range sources {
		mon.Register(s, time.Minute)
	}
	return api.Deps{Health: mon}
}

// runHub serves a hub over httptest and returns its ws:// URL and a stop func.
func runHub(t *testing.T, deps api.Deps) (string, *ws.Hub, func()) {
	t.Helper()

	hub := ws.New(deps, tick)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancel
}

func subscribe(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func nextReport(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m ws.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return m
}

func waitCount(t *testing.T, hub *ws.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Count: got %d, want %d", hub.Count(), want)
}
