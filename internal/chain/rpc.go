package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultWaitTimeout  = 60 * time.Second
	defaultPollInterval = time.Second
)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Method  string          `json:"-"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: %d %s", e.Method, e.Code, e.Message)
}

// RPCClient implements Client against a fullnode JSON-RPC endpoint.
type RPCClient struct {
	url          string
	httpClient   *http.Client
	waitTimeout  time.Duration
	pollInterval time.Duration
	nextID       atomic.Int64
}

var _ Client = (*RPCClient)(nil)

// Option configures an RPCClient.
type Option func(*RPCClient)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *RPCClient) { r.httpClient = c }
}

// WithWaitTimeout bounds WaitForTransaction.
func WithWaitTimeout(d time.Duration) Option {
	return func(r *RPCClient) { r.waitTimeout = d }
}

// WithPollInterval sets the delay between finality checks.
func WithPollInterval(d time.Duration) Option {
	return func(r *RPCClient) { r.pollInterval = d }
}

// NewRPCClient creates a client for the given fullnode URL.
func NewRPCClient(url string, opts ...Option) *RPCClient {
	c := &RPCClient{
		url:          strings.TrimRight(url, "/"),
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		waitTimeout:  defaultWaitTimeout,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint this client talks to.
func (c *RPCClient) URL() string { return c.url }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one JSON-RPC request and decodes its result into result.
func (c *RPCClient) call(ctx context.Context, method string, params []any, result any) error {
	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: performing request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", method, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rr rpcResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	if rr.Error != nil {
		rr.Error.Method = method
		return rr.Error
	}
	if result != nil {
		dec := json.NewDecoder(bytes.NewReader(rr.Result))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("%s: decoding result: %w", method, err)
		}
	}
	return nil
}

type rpcEvent struct {
	ID          EventID         `json:"id"`
	Type        string          `json:"type"`
	Sender      string          `json:"sender"`
	ParsedJSON  json.RawMessage `json:"parsedJson"`
	TimestampMs string          `json:"timestampMs"`
}

type eventPage struct {
	Data        []rpcEvent `json:"data"`
	NextCursor  *EventID   `json:"nextCursor"`
	HasNextPage bool       `json:"hasNextPage"`
}

// QueryEvents calls suix_queryEvents with a MoveEventType filter and returns
// the first page.
func (c *RPCClient) QueryEvents(ctx context.Context, eventType string, limit int, order Order) ([]Event, error) {
	page, err := c.QueryEventsPage(ctx, eventType, nil, limit, order)
	if err != nil {
		return nil, err
	}
	return page.Events, nil
}

// QueryEventsPage calls suix_queryEvents starting after cursor.
func (c *RPCClient) QueryEventsPage(ctx context.Context, eventType string, cursor *EventID, limit int, order Order) (*EventPage, error) {
	var page eventPage
	params := []any{
		map[string]string{"MoveEventType": eventType},
		cursor,
		limit,
		order == Descending,
	}
	if err := c.call(ctx, "suix_queryEvents", params, &page); err != nil {
		return nil, err
	}

	out := &EventPage{
		Events:      make([]Event, 0, len(page.Data)),
		NextCursor:  page.NextCursor,
		HasNextPage: page.HasNextPage,
	}
	for _, e := range page.Data {
		ev, err := convertEvent(e)
		if err != nil {
			return nil, err
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}

// convertEvent derives the event sequence from the checkpoint timestamp and
// the event's index within its transaction. Events from different
// transactions in one checkpoint can share a sequence; Event.ID tells them
// apart.
func convertEvent(e rpcEvent) (Event, error) {
	seq, err := strconv.ParseUint(e.ID.EventSeq, 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: invalid eventSeq %q", e.ID.TxDigest, e.ID.EventSeq)
	}
	var ts uint64
	if e.TimestampMs != "" {
		ts, err = strconv.ParseUint(e.TimestampMs, 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("event %s: invalid timestampMs %q", e.ID.TxDigest, e.TimestampMs)
		}
	}
	return Event{
		Sequence:    ts*1000 + seq,
		TxDigest:    e.ID.TxDigest,
		EventSeq:    seq,
		Type:        e.Type,
		Sender:      e.Sender,
		TimestampMs: ts,
		ParsedJSON:  e.ParsedJSON,
	}, nil
}

type objectResponse struct {
	Data *struct {
		ObjectID string `json:"objectId"`
		Content  *struct {
			DataType string         `json:"dataType"`
			Type     string         `json:"type"`
			Fields   map[string]any `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// GetObject calls sui_getObject and returns the object's Move fields.
func (c *RPCClient) GetObject(ctx context.Context, objectID string) (map[string]any, error) {
	var resp objectResponse
	params := []any{objectID, map[string]bool{"showContent": true, "showType": true}}
	if err := c.call(ctx, "sui_getObject", params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrObjectNotFound, objectID, resp.Error.Code)
	}
	if resp.Data == nil || resp.Data.Content == nil {
		return nil, fmt.Errorf("%w: %s has no content", ErrObjectNotFound, objectID)
	}
	if resp.Data.Content.DataType != "moveObject" {
		return nil, fmt.Errorf("object %s is a %s, not a move object", objectID, resp.Data.Content.DataType)
	}
	return resp.Data.Content.Fields, nil
}

type moveCallResponse struct {
	TxBytes string `json:"txBytes"`
}

type effectsStatus struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type txResponse struct {
	Digest     string `json:"digest"`
	Checkpoint string `json:"checkpoint"`
	Effects    *struct {
		Status effectsStatus `json:"status"`
	} `json:"effects"`
}

// SignAndExecuteTransaction has the node assemble the call with
// unsafe_moveCall, signs the returned bytes locally, and submits them with
// sui_executeTransactionBlock.
func (c *RPCClient) SignAndExecuteTransaction(ctx context.Context, call MoveCall, signer Signer) (string, error) {
	typeArgs := call.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	var built moveCallResponse
	params := []any{
		signer.Address().String(),
		call.Package,
		call.Module,
		call.Function,
		typeArgs,
		call.Arguments,
		nil,
		strconv.FormatUint(call.GasBudget, 10),
	}
	if err := c.call(ctx, "unsafe_moveCall", params, &built); err != nil {
		return "", fmt.Errorf("building %s: %w", call.Target(), err)
	}

	txBytes, err := base64.StdEncoding.DecodeString(built.TxBytes)
	if err != nil {
		return "", fmt.Errorf("decoding tx bytes: %w", err)
	}
	sig, err := signer.SignTransaction(txBytes)
	if err != nil {
		return "", fmt.Errorf("signing %s: %w", call.Target(), err)
	}

	var executed txResponse
	params = []any{
		built.TxBytes,
		[]string{sig},
		map[string]bool{"showEffects": true},
		"WaitForLocalExecution",
	}
	if err := c.call(ctx, "sui_executeTransactionBlock", params, &executed); err != nil {
		return "", fmt.Errorf("executing %s: %w", call.Target(), err)
	}
	if executed.Digest == "" {
		return "", fmt.Errorf("executing %s: empty digest", call.Target())
	}
	return executed.Digest, nil
}

// WaitForTransaction polls sui_getTransactionBlock until the transaction is
// found, then reports its effects status. A transaction that executed with a
// failure status returns ErrTransactionFailed alongside the confirmation.
func (c *RPCClient) WaitForTransaction(ctx context.Context, digest string) (*Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	params := []any{digest, map[string]bool{"showEffects": true}}
	for {
		var tx txResponse
		err := c.call(ctx, "sui_getTransactionBlock", params, &tx)
		if err == nil && tx.Effects != nil {
			conf := &Confirmation{
				Digest:     tx.Digest,
				Status:     tx.Effects.Status.Status,
				Error:      tx.Effects.Status.Error,
				Checkpoint: tx.Checkpoint,
			}
			if conf.Status != "success" {
				return conf, fmt.Errorf("%w: %s: %s", ErrTransactionFailed, digest, conf.Error)
			}
			return conf, nil
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if err != nil {
				return nil, fmt.Errorf("%w: %s: last error: %v", ErrFinalityTimeout, digest, err)
			}
			return nil, fmt.Errorf("%w: %s", ErrFinalityTimeout, digest)
		case <-timer.C:
		}
	}
}
