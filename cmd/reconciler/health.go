package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alfredjeanlab/reconciler/internal/client"
	"github.com/alfredjeanlab/reconciler/internal/ui"
	"github.com/spf13/cobra"
)

var healthURL string

func defaultHealthURL() string {
	if s := os.Getenv("RECONCILER_HEALTH_URL"); s != "" {
		return s
	}
	return "http://localhost:3001"
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of a running reconciler",
	GroupID: "service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		return checkHealth(ctx, client.NewHTTPClient(healthURL), cmd.OutOrStdout())
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthURL, "url", defaultHealthURL(), "base URL of the health server")
}

// checkHealth prints the health and readiness of an instance and returns an
// error when it is degraded or not ready.
func checkHealth(ctx context.Context, c client.MonitorClient, w io.Writer) error {
	h, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("checking health: %w", err)
	}
	r, err := c.Ready(ctx)
	if err != nil {
		return fmt.Errorf("checking readiness: %w", err)
	}

	if jsonOutput {
		if err := writeJSON(w, map[string]any{"health": h, "ready": r}); err != nil {
			return err
		}
	} else {
		printHealth(w, h, r)
	}

	if !h.Healthy() {
		return fmt.Errorf("unhealthy: %s", h.Status)
	}
	if !r.Ready {
		return fmt.Errorf("not ready: %s", r.Reason)
	}
	return nil
}

func printHealth(w io.Writer, h *client.HealthReport, r *client.ReadyReport) {
	fmt.Fprintf(w, "Health:      %s\n", ui.RenderStatus(h.Status, h.Healthy()))
	ready := "yes"
	if !r.Ready {
		ready = "no"
		if r.Reason != "" {
			ready += " (" + r.Reason + ")"
		}
	}
	fmt.Fprintf(w, "Ready:       %s\n", ui.RenderStatus(ready, r.Ready))
	fmt.Fprintf(w, "Uptime:      %s\n", (time.Duration(h.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(w, "Processed:   %d\n", h.EventsProcessed)
	fmt.Fprintf(w, "Errors:      %d\n", h.Errors)
	if h.LastEventID != "" {
		fmt.Fprintf(w, "Last Event:  %s\n", h.LastEventID)
	}
	if h.LastEventProcessed != nil {
		fmt.Fprintf(w, "Last Grant:  %s\n", h.LastEventProcessed.Format(time.DateTime))
	}
	if h.LastPoll != nil {
		fmt.Fprintf(w, "Last Poll:   %s\n", h.LastPoll.Format(time.DateTime))
	}
	if h.LastError != nil {
		fmt.Fprintf(w, "Last Error:  %s\n", ui.RenderMuted(*h.LastError))
	}
}
