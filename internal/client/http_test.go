package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/reconciler/internal/health"
)

// testHandler captures the incoming request and returns a canned response.
type testHandler struct {
	method string
	path   string

	statusCode   int
	contentType  string
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path

	ct := h.contentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	}
	_, _ = w.Write([]byte(h.responseBody))
}

func newTestClient(t *testing.T, h http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL + "/")
}

func TestHTTPClient_Health(t *testing.T) {
	h := &testHandler{responseBody: `{
		"status": "healthy",
		"uptime_seconds": 12.5,
		"eventsProcessed": 3,
		"errors": 1,
		"lastEventId": "0xp3",
		"lastEventProcessed": "2026-01-15T10:00:00Z",
		"lastError": "event 2: boom"
	}`}
	c := newTestClient(t, h)

	report, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.method != http.MethodGet || h.path != "/health" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if !report.Healthy() || report.EventsProcessed != 3 || report.Errors != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.LastError == nil || *report.LastError != "event 2: boom" {
		t.Errorf("lastError = %v", report.LastError)
	}
	if report.LastEventProcessed == nil || report.LastEventProcessed.Year() != 2026 {
		t.Errorf("lastEventProcessed = %v", report.LastEventProcessed)
	}
}

func TestHTTPClient_HealthDegraded(t *testing.T) {
	c := newTestClient(t, &testHandler{
		statusCode:   http.StatusServiceUnavailable,
		responseBody: `{"status":"degraded","errors":9,"lastEventProcessed":null,"lastError":"fetch events: timeout"}`,
	})

	report, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Healthy() || report.Status != "degraded" || report.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("report = %+v", report)
	}
}

func TestHTTPClient_Ready(t *testing.T) {
	for _, tc := range []struct {
		name       string
		status     int
		body       string
		wantReady  bool
		wantReason string
	}{
		{"ready", http.StatusOK, `{"ready":true}`, true, ""},
		{"starting", http.StatusServiceUnavailable, `{"ready":false,"reason":"Starting up"}`, false, "Starting up"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{statusCode: tc.status, responseBody: tc.body}
			c := newTestClient(t, h)

			report, err := c.Ready(context.Background())
			if err != nil {
				t.Fatalf("Ready: %v", err)
			}
			if h.path != "/ready" {
				t.Errorf("path = %s", h.path)
			}
			if report.Ready != tc.wantReady || report.Reason != tc.wantReason {
				t.Errorf("report = %+v", report)
			}
		})
	}
}

func TestHTTPClient_Metrics(t *testing.T) {
	h := &testHandler{contentType: "text/plain", responseBody: "reconciler_errors_total 0\n"}
	c := newTestClient(t, h)

	text, err := c.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if h.path != "/metrics" || !strings.Contains(text, "reconciler_errors_total") {
		t.Errorf("path = %s text = %q", h.path, text)
	}
}

func TestHTTPClient_Errors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		handler *testHandler
		wantAPI bool
		wantMsg string
	}{
		{"json error body", &testHandler{statusCode: http.StatusNotFound, responseBody: `{"error":"Not found"}`}, true, "Not found"},
		{"plain error body", &testHandler{statusCode: http.StatusBadGateway, responseBody: "upstream down\n"}, true, "upstream down"},
		{"undecodable", &testHandler{responseBody: `not json`}, false, "decoding"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			_, err := c.Health(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) != tc.wantAPI {
				t.Fatalf("err = %v (%T), want APIError=%v", err, err, tc.wantAPI)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("err = %q, want it to contain %q", err, tc.wantMsg)
			}
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := NewHTTPClient(url).Ready(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}

// TestHTTPClient_AgainstMonitor exercises the client against the real
// health handler.
func TestHTTPClient_AgainstMonitor(t *testing.T) {
	stats := health.NewStats()
	stats.RecordEvent("0xp1")
	stats.RecordError("event 2: boom")
	m := health.NewMonitor(stats, health.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := newTestClient(t, m)

	report, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !report.Healthy() || report.EventsProcessed != 1 || report.Errors != 1 || report.LastEventID != "0xp1" {
		t.Errorf("report = %+v", report)
	}

	ready, err := c.Ready(context.Background())
	if err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if ready.Ready || ready.Reason != "Starting up" {
		t.Errorf("ready = %+v, want not ready during startup", ready)
	}
}
