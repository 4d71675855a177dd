// Package config loads and watches the quakewatch configuration file.
//
// Top-level keys:
//   - cooldown, dedupe_events, dedupe_ttl: alert gating
//   - sources.jma / sources.cea: enabled, endpoint, threshold,
//     heartbeat_interval
//   - stream: ping_interval, read_timeout, handshake_timeout, reconnect
//   - gotify: url, token_env, priority, timeout, retry, queue_size, workers
//   - http: addr, status_interval, auth (mode, header, key_env)
//   - health: stale_factor
//   - nats: optional liveness heartbeat (url, subject, interval, grace)
//   - log: level, format, dir
//   - shutdown_grace
//
// Load(path) applies defaults, then the YAML file (if path is non-empty),
// then QUAKE_* environment overrides, then validates. Secrets never live in
// the file: token_env and key_env name environment variables.
//
// Configuration is immutable for the life of the process. Watch reports
// edits so the operator knows a restart is needed; it never applies them.
package config
