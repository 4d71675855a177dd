package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/quakewatch/quakewatch/internal/cooldown"
	"github.com/quakewatch/quakewatch/internal/health"
	"github.com/quakewatch/quakewatch/internal/metrics"
	"github.com/quakewatch/quakewatch/internal/notify"
	"github.com/quakewatch/quakewatch/internal/quake"
)

// Gateway exposes delivery status. *notify.Gotify satisfies it.
type Gateway interface {
	Status() notify.Status
}

// QueueStats exposes dispatch queue depth. *notify.Queue satisfies it.
type QueueStats interface {
	Len() int
	Evicted() uint64
}

// Deps are the read-only views the handler reports on.
type Deps struct {
	Health     *health.Monitor
	Cooldown   *cooldown.Tracker
	Metrics    *metrics.Counters
	Gateway    Gateway
	Queue      QueueStats
	Thresholds map[quake.Source]quake.Severity

	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler serves the health and status endpoints.
type Handler struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(deps Deps) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &Handler{deps: deps, mux: http.NewServeMux()}

	h.mux.HandleFunc("/health", h.health)
	h.mux.HandleFunc("/api/v1/sources", h.sources)
	h.mux.HandleFunc("/api/v1/gateway", h.gateway)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /health: 200 when all streams are healthy, 503 otherwise.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := h.deps.Now()
	resp := HealthResponse{
		Status:      "ok",
		Sources:     h.deps.Health.Status(now),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if !h.deps.Health.Healthy(now) {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

// sources returns GET /api/v1/sources.
func (h *Handler) sources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSources(h.deps, h.deps.Now()))
}

// gateway returns GET /api/v1/gateway.
func (h *Handler) gateway(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var resp GatewayResponse
	if h.deps.Gateway != nil {
		resp.Status = h.deps.Gateway.Status()
	}
	if h.deps.Queue != nil {
		resp.QueueLength = h.deps.Queue.Len()
		resp.Evicted = h.deps.Queue.Evicted()
	}
	resp.Diagnostics = gatewayDiagnostics(resp)
	jsonResp(w, http.StatusOK, resp)
}

// metrics returns GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := h.deps.Now()
	connected := make(map[quake.Source]float64)
	age := make(map[quake.Source]float64)
	for _, s := range h.deps.Health.Status(now) {
		connected[s.Source] = boolFloat(s.Connected)
		age[s.Source] = s.AgeSeconds
	}
	families := append(h.deps.Metrics.Families(),
		metrics.Gauge("stream_connected", "1 while the source stream is open.", connected),
		metrics.Gauge("last_message_age_seconds", "Seconds since the last frame or connect.", age),
	)

	var buf bytes.Buffer
	if err := metrics.Write(&buf, families); err != nil {
		slog.Error("api: encode metrics", "err", err)
		jsonErr(w, http.StatusInternalServerError, "encode metrics")
		return
	}
	w.Header().Set("Content-Type", string(metrics.Format))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// BuildSources assembles the per-source report. It is shared with the
// websocket status hub.
func BuildSources(d Deps, now time.Time) SourcesResponse {
	statuses := d.Health.Status(now)
	out := make([]SourceResponse, 0, len(statuses))
	for _, st := range statuses {
		sr := SourceResponse{
			SourceStatus: st,
			Counters:     make(map[string]uint64),
		}
		if th, ok := d.Thresholds[st.Source]; ok {
			sr.Threshold = th.Label()
		}
		if d.Cooldown != nil {
			if last, ok := d.Cooldown.LastNotified(st.Source); ok {
				t := last
				sr.LastNotifiedAt = &t
				if rem := d.Cooldown.Window() - now.Sub(last); rem > 0 {
					sr.CooldownRemaining = rem.Seconds()
				}
			}
		}
		if d.Metrics != nil {
			for _, c := range reportedCounters {
				sr.Counters[counterKey(c)] = d.Metrics.Get(st.Source, c)
			}
		}
		sr.Diagnostics = sourceDiagnostics(sr)
		out = append(out, sr)
	}
	return SourcesResponse{
		Sources:     out,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

var reportedCounters = []metrics.Counter{
	metrics.FramesReceived,
	metrics.FramesMalformed,
	metrics.FramesIgnored,
	metrics.EventsQualified,
	metrics.EventsSuppressed,
	metrics.NotificationsDelivered,
	metrics.NotificationsFailed,
}

// counterKey strips the namespace and _total suffix for JSON keys.
func counterKey(c metrics.Counter) string {
	name := c.Name()
	name = name[len(metrics.Namespace)+1:]
	if n := len(name) - len("_total"); n > 0 && name[n:] == "_total" {
		name = name[:n]
	}
	return name
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
