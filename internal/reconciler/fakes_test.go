package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/reconciler/internal/chain"
	"github.com/alfredjeanlab/reconciler/internal/model"
)

const testPackage = "0x9a"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChain is an in-memory chain.Client. Successful add_to_allowlist calls
// mutate the stored policy object so replays observe the new state.
type fakeChain struct {
	mu           sync.Mutex
	purchases    []chain.Event
	policyEvents []chain.Event
	objects      map[string]map[string]any

	fetchErrs   []error // consumed one per purchase query
	policyErr   error
	objectErr   error
	submitErr   error
	waitErr     error
	fetches     int
	calls       []chain.MoveCall
	queryLimits []int
	policyPages int
	waitGate    chan struct{} // when set, WaitForTransaction blocks until closed
}

func newFakeChain() *fakeChain {
	return &fakeChain{objects: make(map[string]map[string]any)}
}

func (f *fakeChain) QueryEvents(ctx context.Context, eventType string, limit int, order chain.Order) ([]chain.Event, error) {
	page, err := f.QueryEventsPage(ctx, eventType, nil, limit, order)
	if err != nil {
		return nil, err
	}
	return page.Events, nil
}

// QueryEventsPage serves the stored events newest first, limit at a time.
// The cursor carries the offset of the next page.
func (f *fakeChain) QueryEventsPage(_ context.Context, eventType string, cursor *chain.EventID, limit int, order chain.Order) (*chain.EventPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order != chain.Descending {
		return nil, fmt.Errorf("unexpected order %s", order)
	}
	f.queryLimits = append(f.queryLimits, limit)

	var all []chain.Event
	switch {
	case strings.HasSuffix(eventType, "::access_policy::PolicyCreated"):
		if f.policyErr != nil {
			return nil, f.policyErr
		}
		f.policyPages++
		all = f.policyEvents
	case eventType == chain.EventType(testPackage, "marketplace", "ExperiencePurchased"):
		f.fetches++
		if len(f.fetchErrs) > 0 {
			err := f.fetchErrs[0]
			f.fetchErrs = f.fetchErrs[1:]
			return nil, err
		}
		all = f.purchases
	default:
		return nil, fmt.Errorf("unexpected event type %s", eventType)
	}

	start := 0
	if cursor != nil {
		n, err := strconv.Atoi(cursor.EventSeq)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %+v", cursor)
		}
		start = n
	}
	start = min(start, len(all))
	end := len(all)
	if limit > 0 {
		end = min(start+limit, len(all))
	}
	page := &chain.EventPage{
		Events:      append([]chain.Event(nil), all[start:end]...),
		HasNextPage: end < len(all),
	}
	if page.HasNextPage {
		page.NextCursor = &chain.EventID{TxDigest: "offset", EventSeq: strconv.Itoa(end)}
	}
	return page, nil
}

func (f *fakeChain) GetObject(_ context.Context, id string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objectErr != nil {
		return nil, f.objectErr
	}
	obj, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrObjectNotFound, id)
	}
	return obj, nil
}

func (f *fakeChain) SignAndExecuteTransaction(_ context.Context, call chain.MoveCall, s chain.Signer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := s.SignTransaction([]byte(call.Target())); err != nil {
		return "", err
	}
	f.calls = append(f.calls, call)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	policyID := call.Arguments[0].(string)
	buyer := call.Arguments[1].(string)
	obj := f.objects[policyID]
	list, _ := obj["allowlist"].([]any)
	obj["allowlist"] = append(list, buyer)
	return fmt.Sprintf("D%d", len(f.calls)), nil
}

func (f *fakeChain) WaitForTransaction(_ context.Context, digest string) (*chain.Confirmation, error) {
	if f.waitGate != nil {
		<-f.waitGate
	}
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &chain.Confirmation{Digest: digest, Status: "success"}, nil
}

func (f *fakeChain) moveCalls() []chain.MoveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.MoveCall(nil), f.calls...)
}

// addPolicy registers a PolicyCreated event and the policy object.
func (f *fakeChain) addPolicy(policyID, experienceID string, policyType int, allowlist ...string) {
	list := make([]any, 0, len(allowlist))
	for _, a := range allowlist {
		list = append(list, a)
	}
	f.objects[policyID] = map[string]any{
		"id":            map[string]any{"id": policyID},
		"experience_id": experienceID,
		"owner":         "0x0e",
		"policy_type":   json.Number(fmt.Sprint(policyType)),
		"allowlist":     list,
	}
	raw, _ := json.Marshal(map[string]string{"policy_id": policyID, "experience_id": experienceID})
	// Newest first, as the node returns them for a descending query.
	f.policyEvents = append([]chain.Event{{Type: "PolicyCreated", TxDigest: "C" + policyID, ParsedJSON: raw}}, f.policyEvents...)
}

func purchase(seq uint64, experienceID, buyer string) chain.Event {
	raw, _ := json.Marshal(map[string]string{
		"purchase_id":   fmt.Sprintf("0xp%d", seq),
		"experience_id": experienceID,
		"buyer":         buyer,
		"seller":        "0x5e",
		"price":         "1000",
	})
	return chain.Event{Sequence: seq, TxDigest: fmt.Sprintf("T%d", seq), TimestampMs: seq, ParsedJSON: raw}
}

// purchaseInTx is a purchase emitted by tx in the checkpoint at timestampMs.
// The sequence is derived as the RPC client derives it, so purchases from
// different transactions in one checkpoint share it.
func purchaseInTx(tx string, timestampMs, eventSeq uint64, experienceID, buyer string) chain.Event {
	raw, _ := json.Marshal(map[string]string{
		"purchase_id":   "0xp" + tx,
		"experience_id": experienceID,
		"buyer":         buyer,
		"seller":        "0x5e",
		"price":         "1000",
	})
	return chain.Event{
		Sequence:    timestampMs*1000 + eventSeq,
		TxDigest:    tx,
		EventSeq:    eventSeq,
		TimestampMs: timestampMs,
		ParsedJSON:  raw,
	}
}

// stubSigner satisfies chain.Signer without real keys.
type stubSigner struct{}

func (stubSigner) Address() model.Address { return "0xad" }

func (stubSigner) SignTransaction([]byte) (string, error) { return "sig", nil }

// capturePublisher records published topics.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

// captureLedger records attempts.
type captureLedger struct {
	mu       sync.Mutex
	attempts []*model.Attempt
	err      error
}

func (l *captureLedger) RecordAttempt(_ context.Context, a *model.Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *a
	l.attempts = append(l.attempts, &cp)
	return l.err
}

func (l *captureLedger) ListAttempts(context.Context, model.AttemptFilter) ([]*model.Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*model.Attempt(nil), l.attempts...), nil
}

func (l *captureLedger) Close() error { return nil }

func (l *captureLedger) recorded() []*model.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*model.Attempt(nil), l.attempts...)
}

// recordingSleep captures requested durations and cancels after max calls.
type recordingSleep struct {
	mu     sync.Mutex
	waits  []time.Duration
	max    int
	cancel context.CancelFunc
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	n := len(s.waits)
	s.mu.Unlock()
	if s.max > 0 && n >= s.max && s.cancel != nil {
		s.cancel()
	}
	return ctx.Err()
}

func (s *recordingSleep) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func mustAddr(t *testing.T, s string) model.Address {
	t.Helper()
	a, err := model.NormalizeAddress(s)
	if err != nil {
		t.Fatalf("NormalizeAddress(%q): %v", s, err)
	}
	return a
}
