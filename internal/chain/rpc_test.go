package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/reconciler/internal/model"
)

// fakeNode is a JSON-RPC handler that answers by method name and records
// every request it receives.
type fakeNode struct {
	mu       sync.Mutex
	calls    []rpcRequest
	handlers map[string]func(params []any) (any, *RPCError)
}

func newFakeNode() *fakeNode {
	return &fakeNode{handlers: make(map[string]func([]any) (any, *RPCError))}
}

func (n *fakeNode) on(method string, fn func(params []any) (any, *RPCError)) {
	n.handlers[method] = fn
}

func (n *fakeNode) methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	for i, c := range n.calls {
		out[i] = c.Method
	}
	return out
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls = append(n.calls, req)
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	fn, ok := n.handlers[req.Method]
	if !ok {
		resp["error"] = RPCError{Code: -32601, Message: "method not found"}
	} else if result, rpcErr := fn(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestRPC(t *testing.T, n *fakeNode, opts ...Option) *RPCClient {
	t.Helper()
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return NewRPCClient(srv.URL, opts...)
}

type stubSigner struct {
	signed [][]byte
}

func (s *stubSigner) Address() model.Address { return "0xadmin" }

func (s *stubSigner) SignTransaction(tx []byte) (string, error) {
	s.signed = append(s.signed, tx)
	return "c2ln", nil
}

func TestQueryEvents(t *testing.T) {
	n := newFakeNode()
	var gotParams []any
	n.on("suix_queryEvents", func(params []any) (any, *RPCError) {
		gotParams = params
		return map[string]any{
			"data": []map[string]any{
				{
					"id":          map[string]string{"txDigest": "D2", "eventSeq": "1"},
					"type":        "0xpkg::marketplace::ExperiencePurchased",
					"sender":      "0xb1",
					"parsedJson":  map[string]any{"experience_id": "E1"},
					"timestampMs": "1700000000001",
				},
				{
					"id":          map[string]string{"txDigest": "D1", "eventSeq": "0"},
					"type":        "0xpkg::marketplace::ExperiencePurchased",
					"parsedJson":  map[string]any{"experience_id": "E2"},
					"timestampMs": "1700000000000",
				},
			},
			"hasNextPage": false,
		}, nil
	})
	c := newTestRPC(t, n)

	events, err := c.QueryEvents(context.Background(), "0xpkg::marketplace::ExperiencePurchased", 50, Descending)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Sequence != 1700000000001*1000+1 {
		t.Errorf("Sequence = %d", events[0].Sequence)
	}
	if events[0].Sequence <= events[1].Sequence {
		t.Errorf("expected newer event to have larger sequence: %d <= %d", events[0].Sequence, events[1].Sequence)
	}
	if events[0].TxDigest != "D2" || events[0].Sender != "0xb1" {
		t.Errorf("event[0] = %+v", events[0])
	}

	if len(gotParams) != 4 {
		t.Fatalf("params = %v", gotParams)
	}
	filter, _ := gotParams[0].(map[string]any)
	if filter["MoveEventType"] != "0xpkg::marketplace::ExperiencePurchased" {
		t.Errorf("filter = %v", gotParams[0])
	}
	if gotParams[2] != float64(50) || gotParams[3] != true {
		t.Errorf("limit/descending = %v/%v", gotParams[2], gotParams[3])
	}
}

func TestQueryEvents_InvalidEventSeq(t *testing.T) {
	n := newFakeNode()
	n.on("suix_queryEvents", func([]any) (any, *RPCError) {
		return map[string]any{"data": []map[string]any{
			{"id": map[string]string{"txDigest": "D", "eventSeq": "x"}},
		}}, nil
	})
	c := newTestRPC(t, n)
	if _, err := c.QueryEvents(context.Background(), "t", 1, Descending); err == nil {
		t.Fatal("expected error for invalid eventSeq")
	}
}

func TestCall_RPCError(t *testing.T) {
	n := newFakeNode()
	n.on("suix_queryEvents", func([]any) (any, *RPCError) {
		return nil, &RPCError{Code: -32000, Message: "boom"}
	})
	c := newTestRPC(t, n)
	_, err := c.QueryEvents(context.Background(), "t", 1, Descending)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T (%v)", err, err)
	}
	if rpcErr.Code != -32000 || rpcErr.Method != "suix_queryEvents" {
		t.Errorf("rpcErr = %+v", rpcErr)
	}
}

func TestCall_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := NewRPCClient(srv.URL)
	if _, err := c.QueryEvents(context.Background(), "t", 1, Descending); err == nil {
		t.Fatal("expected error for HTTP 502")
	}
}

func TestCall_Unreachable(t *testing.T) {
	c := NewRPCClient("http://127.0.0.1:1", WithHTTPClient(&http.Client{Timeout: time.Second}))
	if _, err := c.GetObject(context.Background(), "0x1"); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestGetObject(t *testing.T) {
	n := newFakeNode()
	n.on("sui_getObject", func(params []any) (any, *RPCError) {
		if params[0] == "0xmissing" {
			return map[string]any{"error": map[string]string{"code": "notExists"}}, nil
		}
		return map[string]any{"data": map[string]any{
			"objectId": params[0],
			"content": map[string]any{
				"dataType": "moveObject",
				"type":     "0xpkg::access_policy::AccessPolicy",
				"fields": map[string]any{
					"policy_type": 1,
					"owner":       "0x5e",
					"allowlist":   []string{"0xaa"},
				},
			},
		}}, nil
	})
	c := newTestRPC(t, n)

	fields, err := c.GetObject(context.Background(), "0xp1")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if fields["owner"] != "0x5e" {
		t.Errorf("owner = %v", fields["owner"])
	}
	if n, ok := fields["policy_type"].(json.Number); !ok || n.String() != "1" {
		t.Errorf("policy_type = %#v, want json.Number(1)", fields["policy_type"])
	}

	_, err = c.GetObject(context.Background(), "0xmissing")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestSignAndExecuteTransaction(t *testing.T) {
	n := newFakeNode()
	txBytes := []byte("built-tx")
	var moveParams, execParams []any
	n.on("unsafe_moveCall", func(params []any) (any, *RPCError) {
		moveParams = params
		return map[string]string{"txBytes": base64.StdEncoding.EncodeToString(txBytes)}, nil
	})
	n.on("sui_executeTransactionBlock", func(params []any) (any, *RPCError) {
		execParams = params
		return map[string]any{"digest": "TX1", "effects": map[string]any{"status": map[string]string{"status": "success"}}}, nil
	})
	c := newTestRPC(t, n)
	s := &stubSigner{}

	digest, err := c.SignAndExecuteTransaction(context.Background(), MoveCall{
		Package:   "0xpkg",
		Module:    "access_policy",
		Function:  "add_to_allowlist",
		Arguments: []any{"0xp1", "0xb1"},
		GasBudget: 10_000_000,
	}, s)
	if err != nil {
		t.Fatalf("SignAndExecuteTransaction: %v", err)
	}
	if digest != "TX1" {
		t.Errorf("digest = %q, want TX1", digest)
	}
	if len(s.signed) != 1 || string(s.signed[0]) != "built-tx" {
		t.Errorf("signed = %q", s.signed)
	}
	if moveParams[0] != "0xadmin" || moveParams[1] != "0xpkg" || moveParams[3] != "add_to_allowlist" || moveParams[7] != "10000000" {
		t.Errorf("moveCall params = %v", moveParams)
	}
	sigs, _ := execParams[1].([]any)
	if len(sigs) != 1 || sigs[0] != "c2ln" {
		t.Errorf("signatures = %v", execParams[1])
	}
	if execParams[3] != "WaitForLocalExecution" {
		t.Errorf("request type = %v", execParams[3])
	}
}

func TestSignAndExecuteTransaction_BuildError(t *testing.T) {
	n := newFakeNode()
	n.on("unsafe_moveCall", func([]any) (any, *RPCError) {
		return nil, &RPCError{Code: -32602, Message: "insufficient gas"}
	})
	c := newTestRPC(t, n)
	s := &stubSigner{}
	if _, err := c.SignAndExecuteTransaction(context.Background(), MoveCall{Package: "0xpkg", Module: "m", Function: "f"}, s); err == nil {
		t.Fatal("expected build error")
	}
	if len(s.signed) != 0 {
		t.Error("signer must not be called when build fails")
	}
	for _, m := range n.methods() {
		if m == "sui_executeTransactionBlock" {
			t.Error("execute must not be called when build fails")
		}
	}
}

func TestWaitForTransaction_PollsUntilFound(t *testing.T) {
	n := newFakeNode()
	var mu sync.Mutex
	attempts := 0
	n.on("sui_getTransactionBlock", func([]any) (any, *RPCError) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil, &RPCError{Code: -32602, Message: "Could not find the referenced transaction"}
		}
		return map[string]any{
			"digest":     "TX1",
			"checkpoint": "1234",
			"effects":    map[string]any{"status": map[string]string{"status": "success"}},
		}, nil
	})
	c := newTestRPC(t, n, WithPollInterval(5*time.Millisecond))

	conf, err := c.WaitForTransaction(context.Background(), "TX1")
	if err != nil {
		t.Fatalf("WaitForTransaction: %v", err)
	}
	if conf.Status != "success" || conf.Checkpoint != "1234" {
		t.Errorf("confirmation = %+v", conf)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWaitForTransaction_Failure(t *testing.T) {
	n := newFakeNode()
	n.on("sui_getTransactionBlock", func([]any) (any, *RPCError) {
		return map[string]any{
			"digest":  "TX1",
			"effects": map[string]any{"status": map[string]string{"status": "failure", "error": "MoveAbort"}},
		}, nil
	})
	c := newTestRPC(t, n)

	conf, err := c.WaitForTransaction(context.Background(), "TX1")
	if !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("err = %v, want ErrTransactionFailed", err)
	}
	if conf == nil || conf.Error != "MoveAbort" {
		t.Errorf("confirmation = %+v", conf)
	}
}

func TestWaitForTransaction_Timeout(t *testing.T) {
	n := newFakeNode()
	n.on("sui_getTransactionBlock", func([]any) (any, *RPCError) {
		return nil, &RPCError{Code: -32602, Message: "not found"}
	})
	c := newTestRPC(t, n, WithWaitTimeout(30*time.Millisecond), WithPollInterval(5*time.Millisecond))

	_, err := c.WaitForTransaction(context.Background(), "TX1")
	if !errors.Is(err, ErrFinalityTimeout) {
		t.Fatalf("err = %v, want ErrFinalityTimeout", err)
	}
}

func TestMoveCall_Target(t *testing.T) {
	c := MoveCall{Package: "0xpkg", Module: "access_policy", Function: "add_to_allowlist"}
	if got := c.Target(); got != "0xpkg::access_policy::add_to_allowlist" {
		t.Errorf("Target() = %q", got)
	}
	if got := EventType("0xpkg", "marketplace", "ExperiencePurchased"); got != "0xpkg::marketplace::ExperiencePurchased" {
		t.Errorf("EventType() = %q", got)
	}
}

func TestQueryEventsPage_FollowsCursor(t *testing.T) {
	n := newFakeNode()
	var cursors []any
	n.on("suix_queryEvents", func(params []any) (any, *RPCError) {
		cursors = append(cursors, params[1])
		if params[1] == nil {
			return map[string]any{
				"data": []map[string]any{
					{"id": map[string]string{"txDigest": "D3", "eventSeq": "0"}, "timestampMs": "3"},
				},
				"nextCursor":  map[string]string{"txDigest": "D3", "eventSeq": "0"},
				"hasNextPage": true,
			}, nil
		}
		return map[string]any{
			"data": []map[string]any{
				{"id": map[string]string{"txDigest": "D2", "eventSeq": "0"}, "timestampMs": "2"},
			},
			"nextCursor":  map[string]string{"txDigest": "D2", "eventSeq": "0"},
			"hasNextPage": false,
		}, nil
	})
	c := newTestRPC(t, n)

	first, err := c.QueryEventsPage(context.Background(), "t", nil, 1, Descending)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if !first.HasNextPage || first.NextCursor == nil || first.NextCursor.TxDigest != "D3" {
		t.Fatalf("first page = %+v", first)
	}
	second, err := c.QueryEventsPage(context.Background(), "t", first.NextCursor, 1, Descending)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if second.HasNextPage || len(second.Events) != 1 || second.Events[0].TxDigest != "D2" {
		t.Fatalf("second page = %+v", second)
	}

	sent, _ := cursors[1].(map[string]any)
	if sent["txDigest"] != "D3" || sent["eventSeq"] != "0" {
		t.Errorf("cursor sent = %v", cursors[1])
	}
}

func TestEventID_DistinguishesSameCheckpoint(t *testing.T) {
	a := Event{Sequence: 1700000000000000, TxDigest: "TX_A", TimestampMs: 1700000000000}
	b := Event{Sequence: 1700000000000000, TxDigest: "TX_B", TimestampMs: 1700000000000}
	if a.ID() == b.ID() {
		t.Fatalf("IDs collide: %s", a.ID())
	}
	if got := (Event{TxDigest: "D", EventSeq: 2}).ID(); got != "D:2" {
		t.Errorf("ID() = %q", got)
	}
}
