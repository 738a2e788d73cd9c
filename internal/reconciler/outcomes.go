package reconciler

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/reconciler/internal/events"
	"github.com/alfredjeanlab/reconciler/internal/model"
	"github.com/alfredjeanlab/reconciler/internal/store"
)

// recorder fans an attempt out to the event bus and the attempt ledger.
// Neither sink can fail the event: errors are logged and dropped.
type recorder struct {
	publisher events.Publisher
	ledger    store.Ledger
	logger    *slog.Logger
}

func (r *recorder) attempt(ctx context.Context, ev *model.PurchaseEvent, a *model.Attempt) {
	var topic string
	var payload any
	switch a.Outcome {
	case model.OutcomeGranted:
		topic, payload = events.TopicAccessGranted, events.AccessGranted{Event: ev, PolicyID: a.PolicyID, TxDigest: a.TxDigest}
	case model.OutcomeSkipped:
		topic, payload = events.TopicAccessSkipped, events.AccessSkipped{Event: ev, PolicyID: a.PolicyID, Reason: a.Reason}
	default:
		topic, payload = events.TopicEventFailed, events.EventFailed{Event: ev, Error: a.Error}
	}
	r.publish(ctx, topic, payload)

	if err := r.ledger.RecordAttempt(ctx, a); err != nil {
		r.logger.Warn("ledger write failed", "sequence", a.Sequence, "outcome", a.Outcome, "err", err)
	}
}

func (r *recorder) fetchFailed(ctx context.Context, eventType string, err error) {
	r.publish(ctx, events.TopicFetchFailed, events.FetchFailed{EventType: eventType, Error: err.Error()})
}

func (r *recorder) publish(ctx context.Context, topic string, payload any) {
	if err := r.publisher.Publish(ctx, topic, payload); err != nil {
		r.logger.Warn("publish failed", "topic", topic, "err", err)
	}
}
