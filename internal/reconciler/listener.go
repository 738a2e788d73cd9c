package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/reconciler/internal/chain"
	"github.com/alfredjeanlab/reconciler/internal/events"
	"github.com/alfredjeanlab/reconciler/internal/health"
	"github.com/alfredjeanlab/reconciler/internal/model"
	"github.com/alfredjeanlab/reconciler/internal/signer"
	"github.com/alfredjeanlab/reconciler/internal/store"
)

// Options configures a Listener.
type Options struct {
	PackageID       string
	SecretKey       string
	EventLimit      int
	PollInterval    time.Duration
	BackoffInterval time.Duration
	GasBudget       uint64
	PolicyPageSize  int
	Health          health.Options

	// Optional collaborators. Nil selects a no-op implementation.
	Publisher events.Publisher
	Ledger    store.Ledger
	// Sleep replaces the loop's timer; tests use it to run without waiting.
	Sleep SleepFunc
	// Resolver replaces the chain-backed policy resolver.
	Resolver PolicyResolver
}

// Listener owns the reconciliation loop, its health monitor and the admin
// signing key.
type Listener struct {
	keypair *signer.Keypair
	stats   *health.Stats
	monitor *health.Monitor
	granter *Granter
	poller  *Poller
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	// loopDone is closed when the loop goroutine exits. Unlike done it
	// survives Stop.
	loopDone chan struct{}
	stopped  bool
}

// NewListener parses the admin key and wires the resolver, granter, poller
// and health monitor. A bad key is a fatal configuration error.
func NewListener(client chain.Client, opts Options, logger *slog.Logger) (*Listener, error) {
	if opts.PackageID == "" {
		return nil, fmt.Errorf("package id is required")
	}
	kp, err := signer.ParseSecretKey(opts.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("admin key: %w", err)
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = store.NopLedger{}
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewChainResolver(client, opts.PackageID, opts.PolicyPageSize, logger.With("component", "resolver"))
	}

	stats := health.NewStats()
	granter := NewGranter(resolver, client, kp, stats, GranterOptions{
		PackageID: opts.PackageID,
		GasBudget: opts.GasBudget,
	}, logger.With("component", "granter"))
	rec := &recorder{publisher: publisher, ledger: ledger, logger: logger.With("component", "recorder")}
	poller := newPoller(client, granter, stats, rec, PollerOptions{
		PackageID:       opts.PackageID,
		EventLimit:      opts.EventLimit,
		PollInterval:    opts.PollInterval,
		BackoffInterval: opts.BackoffInterval,
		Sleep:           opts.Sleep,
	}, logger.With("component", "poller"))

	return &Listener{
		keypair: kp,
		stats:   stats,
		monitor: health.NewMonitor(stats, opts.Health, logger.With("component", "health")),
		granter: granter,
		poller:  poller,
		logger:  logger,
	}, nil
}

// Address is the admin account that signs grants.
func (l *Listener) Address() model.Address { return l.keypair.Address() }

// Stats returns the counters shared with the health monitor.
func (l *Listener) Stats() *health.Stats { return l.stats }

// Monitor returns the health monitor.
func (l *Listener) Monitor() *health.Monitor { return l.monitor }

// Poller returns the event poller.
func (l *Listener) Poller() *Poller { return l.poller }

// Start launches the health monitor and the polling loop. Calling Start on
// a running listener logs a warning and does nothing.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.logger.Warn("listener already running")
		return nil
	}
	if l.stopped {
		return fmt.Errorf("listener stopped")
	}

	if err := l.monitor.Start(); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done, l.loopDone = cancel, done, done

	go func() {
		defer close(done)
		l.poller.Run(loopCtx)
	}()
	l.logger.Info("listener started", "admin", l.keypair.Address(), "event_type", l.poller.eventType)
	return nil
}

// Stop cancels the loop, waits for the current iteration to finish (or ctx
// to expire), then shuts the health monitor down.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.stopped = true
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("waiting for poll loop: %w", ctx.Err())
	}

	if err := l.monitor.Stop(ctx); err != nil && waitErr == nil {
		waitErr = err
	}
	l.logger.Info("listener stopped", "cursor", l.poller.Cursor())
	return waitErr
}

// Close zeroes the admin key. The listener cannot sign afterwards. If Stop
// gave up before the loop exited, the grant still in flight is logged as
// abandoned: an unsigned one fails, a submitted one is not confirmed.
func (l *Listener) Close() error {
	l.mu.Lock()
	done := l.loopDone
	l.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		default:
			attrs := []any{"cursor", l.poller.Cursor()}
			if ev, ok := l.poller.InFlight(); ok {
				attrs = append(attrs, "sequence", ev.Sequence, "tx", ev.TxDigest)
			}
			l.logger.Warn("closing admin key while a grant is in flight; abandoning it", attrs...)
		}
	}
	return l.keypair.Close()
}
