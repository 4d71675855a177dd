package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quakewatch/quakewatch/internal/config"
)

const testConfig = `
gotify:
  url: "https://push.example.org"
http:
  auth:
    mode: apikey
    header: X-API-Key
    key_env: QUAKE_TEST_API_KEY
`

func TestBuild_RoutesAndAuth(t *testing.T) {
	svc := buildFromString(t, testConfig)

	// No stream has connected yet.
	rec := serve(svc.handler, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/health: got %d, want 503", rec.Code)
	}

	rec = serve(svc.handler, "/api/v1/sources", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/v1/sources without key: got %d, want 401", rec.Code)
	}

	rec = serve(svc.handler, "/api/v1/sources", "secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/v1/sources: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"JMA"`) || !strings.Contains(rec.Body.String(), `"CEA"`) {
		t.Errorf("sources body: %s", rec.Body.String())
	}

	rec = serve(svc.handler, "/metrics", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("/metrics without key: got %d, want 401", rec.Code)
	}
	rec = serve(svc.handler, "/metrics", "secret")
	if !strings.Contains(rec.Body.String(), "quakewatch_") {
		t.Errorf("metrics body: %s", rec.Body.String())
	}
}

func TestBuild_SingleSource(t *testing.T) {
	svc := buildFromString(t, testConfig+`
sources:
  cea:
    enabled: false
`)
	rec := serve(svc.handler, "/api/v1/sources", "secret")
	if strings.Contains(rec.Body.String(), `"CEA"`) {
		t.Errorf("disabled source reported: %s", rec.Body.String())
	}
}

func TestCheckConfigCmd(t *testing.T) {
	t.Setenv(config.DefaultTokenEnv, "tok")
	path := writeFile(t, testConfig)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check-config", "--config", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if !strings.Contains(out.String(), "config OK") || !strings.Contains(out.String(), "threshold 5弱") {
		t.Errorf("output: %s", out.String())
	}
}

func TestCheckConfigCmd_Invalid(t *testing.T) {
	t.Setenv(config.DefaultTokenEnv, "tok")
	path := writeFile(t, "cooldown: -1s\n")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check-config", "--config", path})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestLogPending_NoPanic(t *testing.T) {
	svc := buildFromString(t, testConfig)
	next := *svc.cfg
	next.Cooldown = 1
	logPending(svc.cfg, &next)
	logPending(svc.cfg, svc.cfg)
}

func TestTestNotifyCmd(t *testing.T) {
	var gotKey, gotPath string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Gotify-Key")
		gotPath = r.URL.Path
		w.Write([]byte(`{"id":1}`)) //nolint:errcheck
	}))
	defer gw.Close()

	t.Setenv(config.DefaultTokenEnv, "tok")
	path := writeFile(t, "gotify:\n  url: \""+gw.URL+"\"\n")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"test-notify", "--config", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if gotKey != "tok" || gotPath != "/message" {
		t.Errorf("request: key=%q path=%q", gotKey, gotPath)
	}
	if !strings.Contains(out.String(), "delivered") {
		t.Errorf("output: %s", out.String())
	}
}

func TestTestNotifyCmd_Rejected(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer gw.Close()

	t.Setenv(config.DefaultTokenEnv, "bad")
	path := writeFile(t, "gotify:\n  url: \""+gw.URL+"\"\n")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"test-notify", "--config", path})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
}

// --- helpers ---

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func buildFromString(t *testing.T, content string) *service {
	t.Helper()
	t.Setenv(config.DefaultTokenEnv, "tok")
	t.Setenv("QUAKE_TEST_API_KEY", "secret")
	cfg, err := config.Load(writeFile(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	svc, err := build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return svc
}

func serve(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
