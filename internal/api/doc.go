// Package api implements the HTTP surface of quakewatch.
//
// New(deps) returns an http.Handler that serves:
//
//	GET /health           200 when every stream is connected and fresh, else 503
//	GET /api/v1/sources   per-source health, threshold, cooldown and counters
//	GET /api/v1/gateway   Gotify delivery status and queue depth
//	GET /metrics          Prometheus text exposition
//
// All JSON endpoints return 405 for non-GET methods. /health is meant for
// container and load-balancer probes and carries no auth; mount the rest
// behind auth.APIKey when exposed beyond localhost.
package api
