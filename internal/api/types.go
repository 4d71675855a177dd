package api

import (
	"time"

	"github.com/quakewatch/quakewatch/internal/health"
	"github.com/quakewatch/quakewatch/internal/notify"
)

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status      string                `json:"status"` // "ok" | "degraded"
	Sources     []health.SourceStatus `json:"sources"`
	GeneratedAt string                `json:"generated_at"` // RFC3339
}

// SourceResponse is one entry in GET /api/v1/sources.
type SourceResponse struct {
	health.SourceStatus

	Threshold         string            `json:"threshold"`
	LastNotifiedAt    *time.Time        `json:"last_notified_at,omitempty"`
	CooldownRemaining float64           `json:"cooldown_remaining_seconds"`
	Counters          map[string]uint64 `json:"counters"`
	Diagnostics       []DiagnosticHint  `json:"diagnostics"`
}

// SourcesResponse is the payload for GET /api/v1/sources and the /ws/status
// broadcast.
type SourcesResponse struct {
	Sources     []SourceResponse `json:"sources"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// GatewayResponse is the payload for GET /api/v1/gateway.
type GatewayResponse struct {
	notify.Status

	QueueLength int              `json:"queue_length"`
	Evicted     uint64           `json:"evicted"`
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
