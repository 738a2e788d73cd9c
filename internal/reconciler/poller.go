package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/reconciler/internal/chain"
	"github.com/alfredjeanlab/reconciler/internal/health"
	"github.com/alfredjeanlab/reconciler/internal/model"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultBackoffInterval = 15 * time.Second
	DefaultEventLimit      = 50
)

// SleepFunc pauses for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PollerOptions configures a Poller. Zero values select the defaults.
type PollerOptions struct {
	PackageID       string
	EventLimit      int
	PollInterval    time.Duration
	BackoffInterval time.Duration
	Sleep           SleepFunc
}

// Poller fetches recent purchase events and dispatches each one exactly
// once per process, in ascending sequence order.
type Poller struct {
	client    chain.Client
	handler   Handler
	stats     *health.Stats
	rec       *recorder
	eventType string
	limit     int
	interval  time.Duration
	backoff   time.Duration
	sleep     SleepFunc
	logger    *slog.Logger

	mu     sync.Mutex
	cursor uint64
	// mark is the checkpoint timestamp of the newest dispatched event and
	// seen the ids already dispatched at that timestamp. Events in one
	// checkpoint share a timestamp, so the id set keeps them apart.
	mark uint64
	seen map[string]struct{}

	inFlight *chain.Event
}

func newPoller(client chain.Client, handler Handler, stats *health.Stats, rec *recorder, opts PollerOptions, logger *slog.Logger) *Poller {
	p := &Poller{
		client:    client,
		handler:   handler,
		stats:     stats,
		rec:       rec,
		eventType: chain.EventType(opts.PackageID, marketplaceModule, purchaseEvent),
		limit:     opts.EventLimit,
		interval:  opts.PollInterval,
		backoff:   opts.BackoffInterval,
		sleep:     opts.Sleep,
		logger:    logger,
		seen:      make(map[string]struct{}),
	}
	if p.limit <= 0 {
		p.limit = DefaultEventLimit
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.backoff <= 0 {
		p.backoff = DefaultBackoffInterval
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// Cursor returns the highest sequence dispatched so far, 0 before any.
func (p *Poller) Cursor() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Run polls until ctx is cancelled. A failed fetch is followed by the
// backoff interval instead of the normal one.
func (p *Poller) Run(ctx context.Context) {
	for ctx.Err() == nil {
		wait := p.interval
		if err := p.PollOnce(ctx); err != nil {
			wait = p.backoff
		}
		if err := p.sleep(ctx, wait); err != nil {
			return
		}
	}
}

// PollOnce fetches one window of events and dispatches the ones past the
// cursor. Only a fetch failure is returned; per-event failures are
// recorded and the cursor moves past them. RPCs already in flight are not
// cut short by cancellation of ctx, but no further events are dispatched
// once it is done.
func (p *Poller) PollOnce(ctx context.Context) error {
	rpcCtx := context.WithoutCancel(ctx)

	evs, err := p.client.QueryEvents(rpcCtx, p.eventType, p.limit, chain.Descending)
	if err != nil {
		p.stats.RecordError(fmt.Sprintf("fetch events: %v", err))
		p.logger.Error("fetching purchase events failed", "category", "transport", "backoff", p.backoff, "err", err)
		p.rec.fetchFailed(rpcCtx, p.eventType, err)
		return err
	}
	p.stats.RecordPoll()

	// Newest-first from the node; dispatch oldest-first whatever order arrives.
	slices.Reverse(evs)
	sort.SliceStable(evs, func(i, j int) bool {
		if evs[i].TimestampMs != evs[j].TimestampMs {
			return evs[i].TimestampMs < evs[j].TimestampMs
		}
		return evs[i].Sequence < evs[j].Sequence
	})

	for _, ev := range evs {
		if ctx.Err() != nil {
			return nil
		}
		if !p.pending(ev) {
			continue
		}
		p.setInFlight(&ev)
		p.dispatch(rpcCtx, ev)
		p.setInFlight(nil)
		p.advance(ev)
	}
	return nil
}

// InFlight returns the event being dispatched, if any.
func (p *Poller) InFlight() (chain.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight == nil {
		return chain.Event{}, false
	}
	return *p.inFlight, true
}

func (p *Poller) setInFlight(ev *chain.Event) {
	p.mu.Lock()
	p.inFlight = ev
	p.mu.Unlock()
}

// pending reports whether ev has not been dispatched yet: it is newer than
// the mark, or at the mark with an id not seen before.
func (p *Poller) pending(ev chain.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.TimestampMs != p.mark {
		return ev.TimestampMs > p.mark
	}
	_, done := p.seen[ev.ID()]
	return !done
}

// advance moves the cursor past ev whatever the outcome of its dispatch.
func (p *Poller) advance(ev chain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.TimestampMs > p.mark {
		p.mark = ev.TimestampMs
		clear(p.seen)
	}
	p.seen[ev.ID()] = struct{}{}
	if ev.Sequence > p.cursor {
		p.cursor = ev.Sequence
	}
}

func (p *Poller) dispatch(ctx context.Context, ev chain.Event) {
	purchase, err := model.ParsePurchaseEvent(ev.Sequence, ev.TxDigest, ev.ParsedJSON)
	if err != nil {
		p.failed(ctx, ev, nil, &model.Attempt{Sequence: ev.Sequence, Outcome: model.OutcomeFailed, Error: err.Error()}, err)
		return
	}

	a, err := p.handler.Grant(ctx, purchase)
	if a == nil {
		a = newAttempt(purchase).Attempt
	}
	if err != nil {
		if a.Error == "" {
			a.Error = err.Error()
		}
		a.Outcome = model.OutcomeFailed
		p.failed(ctx, ev, purchase, a, err)
		return
	}
	p.rec.attempt(ctx, purchase, a)
}

func (p *Poller) failed(ctx context.Context, ev chain.Event, purchase *model.PurchaseEvent, a *model.Attempt, err error) {
	p.stats.RecordError(fmt.Sprintf("event %d: %v", ev.Sequence, err))
	attrs := []any{"category", "event", "sequence", ev.Sequence, "tx", ev.TxDigest, "err", err}
	if purchase != nil {
		attrs = append(attrs, "purchase", purchase.PurchaseID)
	}
	p.logger.Error("handling purchase event failed", attrs...)
	p.rec.attempt(ctx, purchase, a)
}
