package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quakewatch/quakewatch/internal/api"
	"github.com/quakewatch/quakewatch/internal/health"
	"github.com/quakewatch/quakewatch/internal/quake"
)

func TestFetchStatus_SendsKey(t *testing.T) {
	want := sampleSources()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(want) //nolint:errcheck
	}))
	defer srv.Close()

	got, err := fetchStatus(context.Background(), srv.URL, "X-API-Key", "k")
	if err != nil {
		t.Fatalf("fetchStatus: %v", err)
	}
	if len(got.Sources) != 2 || got.Sources[0].Source != quake.JMA {
		t.Errorf("sources: got %+v", got.Sources)
	}

	_, err = fetchStatus(context.Background(), srv.URL, "X-API-Key", "wrong")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected 401 error, got %v", err)
	}
}

func TestPrintStatus_Table(t *testing.T) {
	var buf bytes.Buffer
	printStatus(sampleSources(), &buf)
	out := buf.String()

	for _, want := range []string{"STATUS", "OK", "JMA", "5弱", "DOWN", "CEA", "dial: refused", "1 of 2 source(s) unhealthy"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStatus_Empty(t *testing.T) {
	var buf bytes.Buffer
	printStatus(api.SourcesResponse{}, &buf)
	if !strings.Contains(buf.String(), "No sources configured.") {
		t.Errorf("got %q", buf.String())
	}
}

func TestSummarizeSource_Stale(t *testing.T) {
	s := api.SourceResponse{SourceStatus: health.SourceStatus{Connected: true, Stale: true, AgeSeconds: 200}}
	status, details := summarizeSource(s)
	if status != "STALE" || details != "silent for 200s" {
		t.Errorf("got %q %q", status, details)
	}
}

// --- helpers ---

func sampleSources() api.SourcesResponse {
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return api.SourcesResponse{
		GeneratedAt: "2026-01-01T00:00:05Z",
		Sources: []api.SourceResponse{
			{
				SourceStatus: health.SourceStatus{
					Source:            quake.JMA,
					State:             health.StateStreaming,
					Connected:         true,
					Healthy:           true,
					LastMessageAt:     &last,
					HeartbeatInterval: "1m0s",
				},
				Threshold: "5弱",
			},
			{
				SourceStatus: health.SourceStatus{
					Source:     quake.CEA,
					State:      health.StateDisconnected,
					Reconnects: 3,
					LastError:  "dial: refused",
				},
				Threshold: "7.0",
			},
		},
	}
}
