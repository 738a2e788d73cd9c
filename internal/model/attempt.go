package model

import "time"

// Outcome is the result of dispatching one purchase event.
type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// IsValid checks whether the outcome is a known value.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeGranted, OutcomeSkipped, OutcomeFailed:
		return true
	}
	return false
}

// Skip reasons for events that need no mutation.
const (
	ReasonNoPolicy       = "no_policy"
	ReasonNotAllowlist   = "not_allowlist"
	ReasonAlreadyAllowed = "already_allowed"
)

// Attempt is a persisted record of one dispatch, written to the attempt
// ledger when one is configured.
type Attempt struct {
	ID           string    `json:"id"`
	Sequence     uint64    `json:"sequence"`
	PurchaseID   string    `json:"purchase_id"`
	ExperienceID string    `json:"experience_id"`
	Buyer        Address   `json:"buyer"`
	PolicyID     Address   `json:"policy_id,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	TxDigest     string    `json:"tx_digest,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttemptFilter narrows ListAttempts results.
type AttemptFilter struct {
	Outcome      Outcome
	ExperienceID string
	Limit        int
}
