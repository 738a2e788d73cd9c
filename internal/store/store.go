// Package store defines the attempt ledger: one row per dispatched
// purchase event.
package store

import (
	"context"

	"github.com/alfredjeanlab/reconciler/internal/model"
)

// Ledger persists grant attempts.
type Ledger interface {
	// RecordAttempt stores a. An empty a.ID is filled in by the ledger.
	RecordAttempt(ctx context.Context, a *model.Attempt) error
	// ListAttempts returns attempts newest first. A zero Limit returns all rows.
	ListAttempts(ctx context.Context, filter model.AttemptFilter) ([]*model.Attempt, error)
	Close() error
}

// NopLedger discards attempts (used when no database is configured).
type NopLedger struct{}

var _ Ledger = NopLedger{}

func (NopLedger) RecordAttempt(context.Context, *model.Attempt) error { return nil }

func (NopLedger) ListAttempts(context.Context, model.AttemptFilter) ([]*model.Attempt, error) {
	return nil, nil
}

func (NopLedger) Close() error { return nil }
