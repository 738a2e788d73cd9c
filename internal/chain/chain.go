// Package chain defines the blockchain collaborator consumed by the
// reconciler and a JSON-RPC implementation of it.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/reconciler/internal/model"
)

// Order selects the direction of an event query.
type Order string

const (
	Ascending  Order = "ascending"
	Descending Order = "descending"
)

var (
	// ErrObjectNotFound is returned by GetObject when the object does not exist
	// or has been deleted.
	ErrObjectNotFound = errors.New("object not found")
	// ErrTransactionFailed is returned when a transaction executed but its
	// effects report failure.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrFinalityTimeout is returned when a transaction is not observed before
	// the wait deadline.
	ErrFinalityTimeout = errors.New("timed out waiting for transaction finality")
)

// Event is one emitted Move event with its parsed JSON payload.
type Event struct {
	Sequence    uint64          `json:"sequence"`
	TxDigest    string          `json:"tx_digest"`
	EventSeq    uint64          `json:"event_seq"`
	Type        string          `json:"type"`
	Sender      string          `json:"sender,omitempty"`
	TimestampMs uint64          `json:"timestamp_ms"`
	ParsedJSON  json.RawMessage `json:"parsed_json"`
}

// ID identifies the event across transactions: the digest of the emitting
// transaction and the event's index within it.
func (e Event) ID() string {
	return fmt.Sprintf("%s:%d", e.TxDigest, e.EventSeq)
}

// EventID is the node's event identifier. It is also the pagination cursor
// of an event query.
type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

// EventPage is one page of an event query. NextCursor resumes the query
// after the last event of the page.
type EventPage struct {
	Events      []Event
	NextCursor  *EventID
	HasNextPage bool
}

// MoveCall describes a single entry-function call transaction.
type MoveCall struct {
	Package       string
	Module        string
	Function      string
	TypeArguments []string
	Arguments     []any
	GasBudget     uint64
}

// Target returns the fully qualified function name.
func (c MoveCall) Target() string {
	return fmt.Sprintf("%s::%s::%s", c.Package, c.Module, c.Function)
}

// Confirmation is the finalized result of a transaction.
type Confirmation struct {
	Digest     string `json:"digest"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Checkpoint string `json:"checkpoint,omitempty"`
}

// Signer authorizes transactions. Implemented by signer.Keypair.
type Signer interface {
	Address() model.Address
	SignTransaction(txBytes []byte) (string, error)
}

// Client is the chain collaborator used by the reconciler.
type Client interface {
	// QueryEvents returns up to limit events of the given Move event type.
	QueryEvents(ctx context.Context, eventType string, limit int, order Order) ([]Event, error)
	// QueryEventsPage returns the page of up to limit events that follows
	// cursor, or the first page when cursor is nil.
	QueryEventsPage(ctx context.Context, eventType string, cursor *EventID, limit int, order Order) (*EventPage, error)
	// GetObject returns the current Move fields of an object.
	GetObject(ctx context.Context, objectID string) (map[string]any, error)
	// SignAndExecuteTransaction builds, signs and submits a call and returns
	// the transaction digest.
	SignAndExecuteTransaction(ctx context.Context, call MoveCall, signer Signer) (string, error)
	// WaitForTransaction blocks until the transaction is final.
	WaitForTransaction(ctx context.Context, digest string) (*Confirmation, error)
}

// EventType returns the fully qualified Move event type name.
func EventType(packageID, module, name string) string {
	return fmt.Sprintf("%s::%s::%s", packageID, module, name)
}
