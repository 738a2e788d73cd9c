package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/reconciler/internal/model"
	"github.com/alfredjeanlab/reconciler/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string         `json:"version"`
	Type         string         `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	AttemptCount int            `json:"attempt_count"`
	Outcomes     map[string]int `json:"outcomes"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// ExportJSONL writes every attempt in the ledger as JSONL to w, ordered by
// event sequence, and returns the number of attempts written.
func ExportJSONL(ctx context.Context, l store.Ledger, w io.Writer) (int, error) {
	attempts, err := l.ListAttempts(ctx, model.AttemptFilter{})
	if err != nil {
		return 0, fmt.Errorf("list attempts: %w", err)
	}

	sort.SliceStable(attempts, func(i, j int) bool {
		if attempts[i].Sequence != attempts[j].Sequence {
			return attempts[i].Sequence < attempts[j].Sequence
		}
		return attempts[i].CreatedAt.Before(attempts[j].CreatedAt)
	})

	outcomes := make(map[string]int)
	for _, a := range attempts {
		outcomes[string(a.Outcome)]++
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    now(),
		AttemptCount: len(attempts),
		Outcomes:     outcomes,
	}); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	for _, a := range attempts {
		if err := enc.Encode(record{Type: "attempt", Data: a}); err != nil {
			return 0, fmt.Errorf("write attempt %s: %w", a.ID, err)
		}
	}

	return len(attempts), nil
}
