package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alfredjeanlab/reconciler/internal/config"
	"github.com/alfredjeanlab/reconciler/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Tail grant outcomes from the event bus",
	GroupID: "inspect",
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		if natsURL == "" {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			natsURL = cfg.NATSURL
		}
		if natsURL == "" {
			return fmt.Errorf("%w: RECONCILER_NATS_URL", config.ErrMissing)
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchOutcomes(ctx, sub, events.TopicAll, cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().String("nats-url", "", "NATS server URL (default $RECONCILER_NATS_URL)")
}

// watchOutcomes prints every message on topic until ctx is cancelled.
func watchOutcomes(ctx context.Context, sub events.Subscriber, topic string, w io.Writer) error {
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if jsonOutput {
				fmt.Fprintf(w, "{\"topic\":%q,\"data\":%s}\n", msg.Topic, msg.Data)
				continue
			}
			fmt.Fprintln(w, describeMessage(msg))
		}
	}
}
