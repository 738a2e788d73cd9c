// Package health exposes the reconciler's liveness, readiness and counters
// over HTTP (and optionally the standard gRPC health service). It has no
// chain dependency.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultReadyAfter is the startup grace period before /ready reports true.
const DefaultReadyAfter = 5 * time.Second

// Options configures a Monitor.
type Options struct {
	// Addr is the listen address, e.g. ":3001".
	Addr string
	// ReadyAfter overrides DefaultReadyAfter when positive.
	ReadyAfter time.Duration
	// UnhealthyErrorStreak, when positive, makes /health report "degraded"
	// with 503 after that many consecutive errors. Zero keeps /health always
	// healthy.
	UnhealthyErrorStreak int64
}

// Monitor serves /health, /metrics and /ready for one Stats instance.
type Monitor struct {
	stats       *Stats
	opts        Options
	logger      *slog.Logger
	metrics     http.Handler
	readyAfter  time.Duration
	errorStreak int64

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewMonitor creates a Monitor over stats. It does not listen until Start.
func NewMonitor(stats *Stats, opts Options, logger *slog.Logger) *Monitor {
	readyAfter := opts.ReadyAfter
	if readyAfter <= 0 {
		readyAfter = DefaultReadyAfter
	}
	return &Monitor{
		stats:       stats,
		opts:        opts,
		logger:      logger,
		metrics:     newMetricsHandler(stats),
		readyAfter:  readyAfter,
		errorStreak: opts.UnhealthyErrorStreak,
	}
}

// Stats returns the counters this monitor reports.
func (m *Monitor) Stats() *Stats { return m.stats }

// Ready reports whether the process has passed the startup grace period.
func (m *Monitor) Ready() bool {
	return m.stats.Uptime() >= m.readyAfter
}

// Start binds the listener and serves in the background. Calling Start on a
// running monitor is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		return nil
	}

	lis, err := net.Listen("tcp", m.opts.Addr)
	if err != nil {
		return fmt.Errorf("health listen on %s: %w", m.opts.Addr, err)
	}
	srv := &http.Server{
		Handler:           m,
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})
	m.server, m.listener, m.done = srv, lis, done

	go func() {
		defer close(done)
		m.logger.Info("health server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("health server error", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (m *Monitor) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Stop shuts the HTTP server down, waiting for in-flight requests until ctx
// expires.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	srv, done := m.server, m.done
	m.server, m.listener, m.done = nil, nil, nil
	m.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	<-done
	m.logger.Info("health server stopped")
	return err
}

// ServeHTTP routes the fixed set of monitoring endpoints. Every response
// carries a permissive CORS header.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodGet {
		switch r.URL.Path {
		case "/health":
			m.handleHealth(w, r)
			return
		case "/metrics":
			m.metrics.ServeHTTP(w, r)
			return
		case "/ready":
			m.handleReady(w, r)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Not found")
}

type healthResponse struct {
	Status             string     `json:"status"`
	UptimeSeconds      float64    `json:"uptime_seconds"`
	EventsProcessed    int64      `json:"eventsProcessed"`
	Errors             int64      `json:"errors"`
	LastEventID        string     `json:"lastEventId,omitempty"`
	LastEventProcessed *time.Time `json:"lastEventProcessed"`
	LastError          *string    `json:"lastError"`
	LastPoll           *time.Time `json:"lastPoll,omitempty"`
}

// handleHealth handles GET /health.
func (m *Monitor) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := m.stats.Snapshot()
	resp := healthResponse{
		Status:             "healthy",
		UptimeSeconds:      snap.Uptime.Seconds(),
		EventsProcessed:    snap.EventsProcessed,
		Errors:             snap.Errors,
		LastEventID:        snap.LastEventID,
		LastEventProcessed: snap.LastEventProcessed,
		LastError:          snap.LastError,
		LastPoll:           snap.LastPoll,
	}
	code := http.StatusOK
	if m.errorStreak > 0 && snap.ErrorStreak >= m.errorStreak {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// handleReady handles GET /ready.
func (m *Monitor) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !m.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "reason": "Starting up"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
