package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/quakewatch/quakewatch/internal/api"
	"github.com/quakewatch/quakewatch/internal/cooldown"
	"github.com/quakewatch/quakewatch/internal/health"
	"github.com/quakewatch/quakewatch/internal/metrics"
	"github.com/quakewatch/quakewatch/internal/notify"
	"github.com/quakewatch/quakewatch/internal/quake"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- test helpers -----------------------------------------------------------

type fakeGateway struct{ st notify.Status }

func (f fakeGateway) Status() notify.Status { return f.st }

type fakeQueue struct {
	n       int
	evicted uint64
}

func (f fakeQueue) Len() int        { return f.n }
func (f fakeQueue) Evicted() uint64 { return f.evicted }

// newDeps returns deps with JMA and CEA registered and both streaming.
func newDeps() api.Deps {
	mon := health.New(3)
	for _, s := range quake.Sources {
		mon.Register(s, time.Minute)
		mon.Connected(s, now.Add(-10*time.Second))
		mon.RecordFrame(s, now.Add(-5*time.Second))
	}
	jma, _ := quake.ParseThreshold(quake.JMA, "5弱")
	cea, _ := quake.ParseThreshold(quake.CEA, "7.0")
	return api.Deps{
		Health:     mon,
		Cooldown:   cooldown.New(cooldown.Options{Window: 6 * time.Minute}),
		Metrics:    metrics.New(quake.Sources...),
		Gateway:    fakeGateway{},
		Queue:      fakeQueue{},
		Thresholds: map[quake.Source]quake.Severity{quake.JMA: jma, quake.CEA: cea},
		Now:        func() time.Time { return now },
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /health ----------------------------------------------------------------

func TestHealth_AllStreaming(t *testing.T) {
	rr := get(t, api.New(newDeps()), "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || len(resp.Sources) != 2 {
		t.Errorf("response: %+v", resp)
	}
	if !resp.Sources[0].Connected || resp.Sources[0].LastMessageAt == nil {
		t.Errorf("JMA status: %+v", resp.Sources[0])
	}
}

func TestHealth_DisconnectedSourceIs503(t *testing.T) {
	d := newDeps()
	d.Health.Disconnected(quake.CEA, errors.New("read: eof"))

	rr := get(t, api.New(d), "/health")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status field: %q", resp.Status)
	}
}

func TestHealth_StaleSourceIs503(t *testing.T) {
	d := newDeps()
	d.Now = func() time.Time { return now.Add(10 * time.Minute) }

	if rr := get(t, api.New(d), "/health"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rr.Code)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	api.New(newDeps()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/sources --------------------------------------------------------

func TestSources_ReportsCooldownAndCounters(t *testing.T) {
	d := newDeps()
	level, _ := quake.ParseIntensity("6弱")
	d.Cooldown.Admit(quake.Event{Source: quake.JMA, ReceivedAt: now.Add(-time.Minute),
		Severity: quake.IntensitySeverity(level), Key: "JMA"})
	d.Metrics.Inc(quake.JMA, metrics.FramesReceived)
	d.Metrics.Inc(quake.JMA, metrics.EventsQualified)

	rr := get(t, api.New(d), "/api/v1/sources")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	var resp api.SourcesResponse
	decode(t, rr, &resp)

	jma := resp.Sources[0]
	if jma.Source != quake.JMA || jma.Threshold != "5弱" {
		t.Errorf("JMA entry: %+v", jma)
	}
	if jma.LastNotifiedAt == nil || jma.CooldownRemaining != 300 {
		t.Errorf("cooldown: last=%v remaining=%v", jma.LastNotifiedAt, jma.CooldownRemaining)
	}
	if jma.Counters["frames_received"] != 1 || jma.Counters["events_qualified"] != 1 {
		t.Errorf("counters: %v", jma.Counters)
	}
	if !hasHint(jma.Diagnostics, "cooldown") {
		t.Errorf("want cooldown hint, got %+v", jma.Diagnostics)
	}

	cea := resp.Sources[1]
	if cea.Threshold != "7" || cea.LastNotifiedAt != nil {
		t.Errorf("CEA entry: %+v", cea)
	}
}

func TestSources_DisconnectedHint(t *testing.T) {
	d := newDeps()
	d.Health.Disconnected(quake.JMA, errors.New("dial: refused"))

	var resp api.SourcesResponse
	decode(t, get(t, api.New(d), "/api/v1/sources"), &resp)
	if !hasHint(resp.Sources[0].Diagnostics, "disconnected") {
		t.Errorf("want disconnected hint, got %+v", resp.Sources[0].Diagnostics)
	}
}

// --- /api/v1/gateway --------------------------------------------------------

func TestGateway_PermanentFailure(t *testing.T) {
	d := newDeps()
	d.Gateway = fakeGateway{st: notify.Status{
		Failed:         1,
		LastFailureAt:  now,
		LastError:      "gotify returned HTTP 401",
		LastStatusCode: 401,
		ActionRequired: true,
	}}
	d.Queue = fakeQueue{n: 2, evicted: 3}

	rr := get(t, api.New(d), "/api/v1/gateway")
	var resp api.GatewayResponse
	decode(t, rr, &resp)

	if !resp.ActionRequired || resp.LastStatusCode != 401 {
		t.Errorf("status: %+v", resp.Status)
	}
	if resp.QueueLength != 2 || resp.Evicted != 3 {
		t.Errorf("queue: len=%d evicted=%d", resp.QueueLength, resp.Evicted)
	}
	if !hasHint(resp.Diagnostics, "gateway_rejected") || !hasHint(resp.Diagnostics, "queue_evictions") {
		t.Errorf("diagnostics: %+v", resp.Diagnostics)
	}
}

// --- /metrics ---------------------------------------------------------------

func TestMetrics_TextExposition(t *testing.T) {
	d := newDeps()
	d.Metrics.Inc(quake.CEA, metrics.FramesReceived)

	rr := get(t, api.New(d), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type: %q", ct)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, name := range []string{
		"quakewatch_frames_received_total",
		"quakewatch_stream_connected",
		"quakewatch_last_message_age_seconds",
	} {
		if mfs[name] == nil {
			t.Errorf("missing family %s", name)
		}
	}
}

func hasHint(hints []api.DiagnosticHint, key string) bool {
	for _, h := range hints {
		if h.Key == key {
			return true
		}
	}
	return false
}
