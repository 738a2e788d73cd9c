package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/reconciler/internal/chain"
	"github.com/alfredjeanlab/reconciler/internal/health"
	"github.com/alfredjeanlab/reconciler/internal/model"
)

// DefaultGasBudget is used when GranterOptions.GasBudget is zero.
const DefaultGasBudget = 10_000_000

// Handler processes one purchase event. A nil error means the event needed
// no further work; the returned attempt says whether access was granted or
// why it was skipped.
type Handler interface {
	Grant(ctx context.Context, ev *model.PurchaseEvent) (*model.Attempt, error)
}

// GranterOptions configures a Granter.
type GranterOptions struct {
	PackageID string
	GasBudget uint64
}

// Granter adds buyers to allowlist policies.
type Granter struct {
	resolver  PolicyResolver
	client    chain.Client
	signer    chain.Signer
	stats     *health.Stats
	packageID string
	gasBudget uint64
	logger    *slog.Logger
}

var _ Handler = (*Granter)(nil)

// NewGranter creates a Granter that signs with signer and reports successful
// grants to stats.
func NewGranter(resolver PolicyResolver, client chain.Client, signer chain.Signer, stats *health.Stats, opts GranterOptions, logger *slog.Logger) *Granter {
	gas := opts.GasBudget
	if gas == 0 {
		gas = DefaultGasBudget
	}
	return &Granter{
		resolver:  resolver,
		client:    client,
		signer:    signer,
		stats:     stats,
		packageID: opts.PackageID,
		gasBudget: gas,
		logger:    logger,
	}
}

// Grant brings the buyer's allowlist membership in line with the purchase.
// Re-running it for the same event is harmless: once the buyer is present
// the event is skipped. On error the returned attempt is still populated
// with whatever was known at the point of failure.
func (g *Granter) Grant(ctx context.Context, ev *model.PurchaseEvent) (*model.Attempt, error) {
	a := newAttempt(ev)
	log := g.logger.With("sequence", ev.Sequence, "purchase", ev.PurchaseID, "experience", ev.ExperienceID, "buyer", ev.Buyer)

	policy, err := g.resolver.Resolve(ctx, ev.ExperienceID)
	if err != nil {
		return a.fail(err), fmt.Errorf("resolve policy: %w", err)
	}
	if policy == nil {
		log.Info("no access policy for experience", "category", "skip", "reason", model.ReasonNoPolicy)
		return a.skip(model.ReasonNoPolicy), nil
	}
	a.PolicyID = policy.ID
	log = log.With("policy", policy.ID)

	if policy.PolicyType != model.PolicyAllowlist {
		log.Info("policy is not an allowlist", "category", "skip", "reason", model.ReasonNotAllowlist, "policy_type", policy.PolicyType)
		return a.skip(model.ReasonNotAllowlist), nil
	}
	if policy.Allows(ev.Buyer) {
		log.Info("buyer already on allowlist", "category", "skip", "reason", model.ReasonAlreadyAllowed)
		return a.skip(model.ReasonAlreadyAllowed), nil
	}

	call := chain.MoveCall{
		Package:   g.packageID,
		Module:    policyModule,
		Function:  addToAllowlistFunc,
		Arguments: []any{policy.ID.String(), ev.Buyer.String()},
		GasBudget: g.gasBudget,
	}
	digest, err := g.client.SignAndExecuteTransaction(ctx, call, g.signer)
	if err != nil {
		return a.fail(err), fmt.Errorf("submit %s: %w", call.Target(), err)
	}
	a.TxDigest = digest

	if _, err := g.client.WaitForTransaction(ctx, digest); err != nil {
		return a.fail(err), fmt.Errorf("confirm %s: %w", digest, err)
	}

	g.stats.RecordEvent(ev.PurchaseID)
	log.Info("access granted", "tx", digest)
	a.Outcome = model.OutcomeGranted
	return a.Attempt, nil
}

// attemptBuilder fills in a model.Attempt as Grant progresses.
type attemptBuilder struct {
	*model.Attempt
}

func newAttempt(ev *model.PurchaseEvent) attemptBuilder {
	a := &model.Attempt{Outcome: model.OutcomeFailed}
	if ev != nil {
		a.Sequence = ev.Sequence
		a.PurchaseID = ev.PurchaseID
		a.ExperienceID = ev.ExperienceID
		a.Buyer = ev.Buyer
	}
	return attemptBuilder{a}
}

func (b attemptBuilder) skip(reason string) *model.Attempt {
	b.Outcome = model.OutcomeSkipped
	b.Reason = reason
	return b.Attempt
}

func (b attemptBuilder) fail(err error) *model.Attempt {
	b.Outcome = model.OutcomeFailed
	b.Error = err.Error()
	return b.Attempt
}
