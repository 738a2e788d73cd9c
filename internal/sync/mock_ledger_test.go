package sync

import (
	"context"
	"errors"
	"sync"

	"github.com/alfredjeanlab/reconciler/internal/model"
)

// mockLedger is an in-memory store.Ledger for tests.
type mockLedger struct {
	mu       sync.Mutex
	attempts []*model.Attempt
	listErr  error
}

func (m *mockLedger) RecordAttempt(_ context.Context, a *model.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *mockLedger) ListAttempts(_ context.Context, filter model.AttemptFilter) ([]*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*model.Attempt
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if filter.Outcome != "" && a.Outcome != filter.Outcome {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *mockLedger) Close() error { return nil }

var errListFailed = errors.New("list failed")
