package api

import (
	"fmt"

	"github.com/quakewatch/quakewatch/internal/health"
)

// DiagnosticHint is one human-readable observation about a source or the
// gateway, ordered critical first.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "info" | "warning" | "critical".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// sourceDiagnostics derives hints from one source report.
func sourceDiagnostics(s SourceResponse) []DiagnosticHint {
	hints := []DiagnosticHint{}

	switch s.State {
	case health.StateDisconnected:
		detail := "The stream is not connected and is waiting to reconnect."
		if s.LastError != "" {
			detail = fmt.Sprintf("The stream is not connected. Last error: %q. "+
				"Reconnects continue with exponential backoff.", s.LastError)
		}
		hints = append(hints, DiagnosticHint{
			Key: "disconnected", Level: "critical", Title: "Stream down", Detail: detail,
		})
		return hints
	case health.StateConnecting:
		hints = append(hints, DiagnosticHint{
			Key: "connecting", Level: "warning", Title: "Connecting",
			Detail: "A connection attempt is in progress.",
		})
		return hints
	}

	if s.Stale {
		hints = append(hints, DiagnosticHint{
			Key:   "stale",
			Level: "critical",
			Title: "No recent frames",
			Detail: fmt.Sprintf("Nothing has arrived for %.0fs although the feed normally "+
				"sends something every %s. The connection is probably stuck; it will be "+
				"dropped once the read timeout passes.", s.AgeSeconds, s.HeartbeatInterval),
		})
	}

	if bad := s.Counters["frames_malformed"]; bad > 0 {
		total := s.Counters["frames_received"]
		level := "info"
		if total > 0 && float64(bad)/float64(total) > 0.1 {
			level = "warning"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "malformed_frames",
			Level: level,
			Title: fmt.Sprintf("%d malformed frames", bad),
			Detail: fmt.Sprintf("%d of %d frames could not be decoded. The upstream "+
				"format may have changed.", bad, total),
		})
	}

	if s.CooldownRemaining > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "cooldown",
			Level: "info",
			Title: "Cooling down",
			Detail: fmt.Sprintf("An alert was sent recently. Further alerts from this "+
				"source are suppressed for another %.0fs.", s.CooldownRemaining),
		})
	}
	return hints
}

// gatewayDiagnostics derives hints from the delivery status.
func gatewayDiagnostics(g GatewayResponse) []DiagnosticHint {
	hints := []DiagnosticHint{}

	if g.ActionRequired {
		hints = append(hints, DiagnosticHint{
			Key:   "gateway_rejected",
			Level: "critical",
			Title: "Gateway rejected message",
			Detail: fmt.Sprintf("Gotify answered HTTP %d (%s). Retrying will not help: "+
				"check the application token and server URL.", g.LastStatusCode, g.LastError),
		})
	} else if g.LastError != "" && g.LastFailureAt.After(g.LastSuccessAt) {
		hints = append(hints, DiagnosticHint{
			Key:    "gateway_failing",
			Level:  "warning",
			Title:  "Delivery failing",
			Detail: fmt.Sprintf("The last delivery failed after all retries: %s.", g.LastError),
		})
	}

	if g.Evicted > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "queue_evictions",
			Level: "warning",
			Title: fmt.Sprintf("%d notifications evicted", g.Evicted),
			Detail: "The dispatch queue filled up and the oldest pending notifications " +
				"were dropped. The gateway is slower than the alert rate.",
		})
	}
	return hints
}
