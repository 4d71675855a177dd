package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quakewatch/quakewatch/internal/quake"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCooldown          = 360 * time.Second
	DefaultDedupeTTL         = time.Hour
	DefaultJMAEndpoint       = "wss://ws-api.wolfx.jp/jma_eew"
	DefaultCEAEndpoint       = "wss://ws.fanstudio.tech/cea"
	DefaultJMAThreshold      = "5弱"
	DefaultCEAThreshold      = "7.0"
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultHTTPAddr          = ":5000"
	DefaultShutdownGrace     = 10 * time.Second
	DefaultTokenEnv          = "QUAKE_GOTIFY_APP_TOKEN"
)

// Config is the full configuration tree.
type Config struct {
	// Cooldown is the minimum time between two notifications per source.
	Cooldown time.Duration `yaml:"cooldown"`

	// DedupeEvents additionally suppresses repeated reports of one event id.
	DedupeEvents bool          `yaml:"dedupe_events"`
	DedupeTTL    time.Duration `yaml:"dedupe_ttl"`

	Sources SourcesConfig `yaml:"sources"`
	Stream  StreamConfig  `yaml:"stream"`
	Gotify  GotifyConfig  `yaml:"gotify"`
	HTTP    HTTPConfig    `yaml:"http"`
	Health  HealthConfig  `yaml:"health"`
	NATS    NATSConfig    `yaml:"nats"`
	Log     LogConfig     `yaml:"log"`

	// ShutdownGrace bounds how long in-flight notifications may run after a
	// shutdown signal.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// SourcesConfig holds one block per feed.
type SourcesConfig struct {
	JMA SourceConfig `yaml:"jma"`
	CEA SourceConfig `yaml:"cea"`
}

// SourceConfig describes one websocket feed.
type SourceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`

	// Threshold is a JMA intensity label (e.g. "5弱", "5-") or a CEA
	// estimated intensity (e.g. "7.0").
	Threshold string `yaml:"threshold"`

	// HeartbeatInterval is how often the feed is expected to send something.
	// Silence for HeartbeatInterval × health.stale_factor marks it stale.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// StreamConfig tunes the websocket client.
type StreamConfig struct {
	PingInterval     time.Duration `yaml:"ping_interval"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	Reconnect        BackoffConfig `yaml:"reconnect"`
}

// BackoffConfig is an exponential schedule.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
	Factor  float64       `yaml:"factor"`
}

// RetryConfig bounds delivery retries.
type RetryConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	BackoffConfig `yaml:",inline"`
}

// GotifyConfig configures the push gateway.
type GotifyConfig struct {
	URL string `yaml:"url"`

	// TokenEnv is the environment variable holding the application token.
	TokenEnv string `yaml:"token_env"`

	Priority  int           `yaml:"priority"`
	Timeout   time.Duration `yaml:"timeout"`
	Retry     RetryConfig   `yaml:"retry"`
	QueueSize int           `yaml:"queue_size"`
	Workers   int           `yaml:"workers"`
}

// Token returns the application token resolved from the environment.
func (g GotifyConfig) Token() string {
	if g.TokenEnv == "" {
		return ""
	}
	return os.Getenv(g.TokenEnv)
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`

	// StatusInterval is the /ws/status broadcast period.
	StatusInterval time.Duration `yaml:"status_interval"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig guards /api/ and /ws/.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode   string `yaml:"mode"`
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// HealthConfig configures staleness detection.
type HealthConfig struct {
	StaleFactor float64 `yaml:"stale_factor"`
}

// NATSConfig configures the optional liveness heartbeat. Empty URL disables it.
type NATSConfig struct {
	URL         string        `yaml:"url"`
	Subject     string        `yaml:"subject"`
	Interval    time.Duration `yaml:"interval"`
	Grace       time.Duration `yaml:"grace"`
	Description string        `yaml:"description"`
}

// Enabled reports whether a NATS URL is configured.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
	// Dir, when set, receives an append-only quakewatch.log alongside stdout.
	Dir string `yaml:"dir"`
}

// Source returns the block for src.
func (c *Config) Source(src quake.Source) SourceConfig {
	if src == quake.CEA {
		return c.Sources.CEA
	}
	return c.Sources.JMA
}

// EnabledSources lists enabled feeds in a stable order.
func (c *Config) EnabledSources() []quake.Source {
	var out []quake.Source
	for _, s := range quake.Sources {
		if c.Source(s).Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Threshold parses the configured threshold for src.
func (c *Config) Threshold(src quake.Source) (quake.Severity, error) {
	return quake.ParseThreshold(src, c.Source(src).Threshold)
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), and QUAKE_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Cooldown:  DefaultCooldown,
		DedupeTTL: DefaultDedupeTTL,
		Sources: SourcesConfig{
			JMA: SourceConfig{
				Enabled:           true,
				Endpoint:          DefaultJMAEndpoint,
				Threshold:         DefaultJMAThreshold,
				HeartbeatInterval: DefaultHeartbeatInterval,
			},
			CEA: SourceConfig{
				Enabled:           true,
				Endpoint:          DefaultCEAEndpoint,
				Threshold:         DefaultCEAThreshold,
				HeartbeatInterval: DefaultHeartbeatInterval,
			},
		},
		Stream: StreamConfig{
			PingInterval:     25 * time.Second,
			ReadTimeout:      90 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			Reconnect:        BackoffConfig{Initial: time.Second, Max: 60 * time.Second, Factor: 2},
		},
		Gotify: GotifyConfig{
			TokenEnv: DefaultTokenEnv,
			Priority: 10,
			Timeout:  8 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:   3,
				BackoffConfig: BackoffConfig{Initial: 4 * time.Second, Max: 10 * time.Second, Factor: 2},
			},
			QueueSize: 16,
			Workers:   2,
		},
		HTTP: HTTPConfig{
			Addr:           DefaultHTTPAddr,
			StatusInterval: 5 * time.Second,
			Auth:           AuthConfig{Mode: "none", Header: "X-API-Key"},
		},
		Health: HealthConfig{StaleFactor: 3},
		NATS: NATSConfig{
			Subject:     "heartbeat.quakewatch",
			Interval:    15 * time.Second,
			Description: "quakewatch EEW streams",
		},
		Log: LogConfig{Level: "info", Format: "json"},

		ShutdownGrace: DefaultShutdownGrace,
	}
}

// applyEnv overlays the QUAKE_* variables. QUAKE_COOLDOWN accepts plain
// seconds or a Go duration.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("QUAKE_COOLDOWN"); ok && v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return fmt.Errorf("QUAKE_COOLDOWN: %w", err)
		}
		cfg.Cooldown = d
	}
	str("QUAKE_TRIGGER_JMA_INTENSITY", &cfg.Sources.JMA.Threshold)
	str("QUAKE_TRIGGER_CEA_INTENSITY", &cfg.Sources.CEA.Threshold)
	str("QUAKE_WS_JMA", &cfg.Sources.JMA.Endpoint)
	str("QUAKE_WS_CEA", &cfg.Sources.CEA.Endpoint)
	str("QUAKE_GOTIFY_URL", &cfg.Gotify.URL)
	str("QUAKE_LOG_DIR", &cfg.Log.Dir)
	str("QUAKE_HTTP_ADDR", &cfg.HTTP.Addr)
	str("QUAKE_NATS_URL", &cfg.NATS.URL)
	return nil
}

func parseSecondsOrDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Cooldown <= 0 {
		return errors.New("cooldown must be positive")
	}
	if cfg.DedupeEvents && cfg.DedupeTTL <= 0 {
		return errors.New("dedupe_ttl must be positive when dedupe_events is set")
	}

	enabled := cfg.EnabledSources()
	if len(enabled) == 0 {
		return errors.New("at least one of sources.jma, sources.cea must be enabled")
	}
	for _, src := range enabled {
		name := "sources." + strings.ToLower(string(src))
		sc := cfg.Source(src)
		if err := validateWS(sc.Endpoint); err != nil {
			return fmt.Errorf("%s.endpoint: %w", name, err)
		}
		if _, err := cfg.Threshold(src); err != nil {
			return fmt.Errorf("%s.threshold: %w", name, err)
		}
		if sc.HeartbeatInterval <= 0 {
			return fmt.Errorf("%s.heartbeat_interval must be positive", name)
		}
	}

	if cfg.Stream.PingInterval <= 0 || cfg.Stream.ReadTimeout <= 0 {
		return errors.New("stream.ping_interval and stream.read_timeout must be positive")
	}
	if cfg.Stream.ReadTimeout <= cfg.Stream.PingInterval {
		return errors.New("stream.read_timeout must exceed stream.ping_interval")
	}
	if err := validateBackoff("stream.reconnect", cfg.Stream.Reconnect); err != nil {
		return err
	}

	if cfg.Gotify.URL == "" {
		return errors.New("gotify.url is required")
	}
	if u, err := url.Parse(cfg.Gotify.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("gotify.url %q must be an http(s) URL", cfg.Gotify.URL)
	}
	if cfg.Gotify.Token() == "" {
		return fmt.Errorf("gotify token: environment variable %q is empty", cfg.Gotify.TokenEnv)
	}
	if cfg.Gotify.Retry.MaxAttempts <= 0 {
		return errors.New("gotify.retry.max_attempts must be positive")
	}
	if err := validateBackoff("gotify.retry", cfg.Gotify.Retry.BackoffConfig); err != nil {
		return err
	}
	if cfg.Gotify.QueueSize <= 0 || cfg.Gotify.Workers <= 0 {
		return errors.New("gotify.queue_size and gotify.workers must be positive")
	}

	switch cfg.HTTP.Auth.Mode {
	case "apikey":
		if cfg.HTTP.Auth.Header == "" || cfg.HTTP.Auth.KeyEnv == "" {
			return errors.New("http.auth: apikey mode needs header and key_env")
		}
	case "none", "":
	default:
		return fmt.Errorf("http.auth: unknown mode %q", cfg.HTTP.Auth.Mode)
	}

	if cfg.Health.StaleFactor < 1 {
		return errors.New("health.stale_factor must be at least 1")
	}
	if cfg.NATS.Enabled() && (cfg.NATS.Subject == "" || cfg.NATS.Interval <= 0) {
		return errors.New("nats: subject and interval are required when url is set")
	}

	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	if cfg.ShutdownGrace <= 0 {
		return errors.New("shutdown_grace must be positive")
	}
	return nil
}

func validateWS(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%q: scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}

func validateBackoff(name string, b BackoffConfig) error {
	if b.Initial <= 0 || b.Max < b.Initial {
		return fmt.Errorf("%s: need 0 < initial <= max", name)
	}
	if b.Factor < 1 {
		return fmt.Errorf("%s.factor must be at least 1", name)
	}
	return nil
}
