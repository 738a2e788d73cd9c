package events

import (
	"context"

	"github.com/alfredjeanlab/reconciler/internal/model"
)

// Event topic constants
const (
	TopicAccessGranted = "reconciler.access.granted"
	TopicAccessSkipped = "reconciler.access.skipped"
	TopicEventFailed   = "reconciler.event.failed"
	TopicFetchFailed   = "reconciler.fetch.failed"

	// TopicAll matches every reconciler topic.
	TopicAll = "reconciler.>"
)

// Event types

type AccessGranted struct {
	Event    *model.PurchaseEvent `json:"event"`
	PolicyID model.Address        `json:"policy_id"`
	TxDigest string               `json:"tx_digest"`
}

type AccessSkipped struct {
	Event    *model.PurchaseEvent `json:"event"`
	PolicyID model.Address        `json:"policy_id,omitempty"`
	Reason   string               `json:"reason"`
}

type EventFailed struct {
	Event *model.PurchaseEvent `json:"event"`
	Error string               `json:"error"`
}

type FetchFailed struct {
	EventType string `json:"event_type"`
	Error     string `json:"error"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
