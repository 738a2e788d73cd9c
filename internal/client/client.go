// Package client talks to a running reconciler's monitoring endpoints.
package client

import (
	"context"
	"time"
)

// MonitorClient reads the health surface of a reconciler instance.
type MonitorClient interface {
	Health(ctx context.Context) (*HealthReport, error)
	Ready(ctx context.Context) (*ReadyReport, error)
	Metrics(ctx context.Context) (string, error)
}

// HealthReport is the /health response body.
type HealthReport struct {
	Status             string     `json:"status"`
	UptimeSeconds      float64    `json:"uptime_seconds"`
	EventsProcessed    int64      `json:"eventsProcessed"`
	Errors             int64      `json:"errors"`
	LastEventID        string     `json:"lastEventId,omitempty"`
	LastEventProcessed *time.Time `json:"lastEventProcessed"`
	LastError          *string    `json:"lastError"`
	LastPoll           *time.Time `json:"lastPoll,omitempty"`

	// HTTPStatus is the response code; 503 accompanies a "degraded" status.
	HTTPStatus int `json:"-"`
}

// Healthy reports whether the instance considers itself healthy.
func (h *HealthReport) Healthy() bool {
	return h.HTTPStatus == 200 && h.Status == "healthy"
}

// ReadyReport is the /ready response body.
type ReadyReport struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}
