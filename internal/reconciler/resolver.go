// Package reconciler watches purchase events and grants buyers access by
// adding them to the allowlist of the experience's access policy.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/reconciler/internal/chain"
	"github.com/alfredjeanlab/reconciler/internal/model"
)

const (
	policyModule       = "access_policy"
	policyCreatedEvent = "PolicyCreated"
	addToAllowlistFunc = "add_to_allowlist"
	marketplaceModule  = "marketplace"
	purchaseEvent      = "ExperiencePurchased"
)

// DefaultPolicyPageSize is the number of PolicyCreated events requested per
// page while searching for an experience's policy.
const DefaultPolicyPageSize = 50

// PolicyResolver maps an experience to its access policy.
type PolicyResolver interface {
	// Resolve returns the live policy for experienceID, or nil when the
	// experience has none.
	Resolve(ctx context.Context, experienceID string) (*model.AccessPolicy, error)
}

// ChainResolver resolves policies from PolicyCreated events and the policy
// object's current fields. The event stream is paged newest first until a
// match is found or the stream ends. Nothing is cached.
type ChainResolver struct {
	client    chain.Client
	eventType string
	pageSize  int
	logger    *slog.Logger
}

var _ PolicyResolver = (*ChainResolver)(nil)

// NewChainResolver creates a resolver for policies published by packageID.
func NewChainResolver(client chain.Client, packageID string, pageSize int, logger *slog.Logger) *ChainResolver {
	if pageSize <= 0 {
		pageSize = DefaultPolicyPageSize
	}
	return &ChainResolver{
		client:    client,
		eventType: chain.EventType(packageID, policyModule, policyCreatedEvent),
		pageSize:  pageSize,
		logger:    logger,
	}
}

type policyCreated struct {
	PolicyID     string `json:"policy_id"`
	ExperienceID string `json:"experience_id"`
}

func (r *ChainResolver) Resolve(ctx context.Context, experienceID string) (*model.AccessPolicy, error) {
	policyID, err := r.findPolicyID(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	if policyID == "" {
		return nil, nil
	}

	fields, err := r.client.GetObject(ctx, policyID.String())
	if errors.Is(err, chain.ErrObjectNotFound) {
		r.logger.Info("policy object no longer exists", "policy", policyID, "experience", experienceID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", policyID, err)
	}

	policy, err := policyFromFields(policyID, fields)
	if err != nil {
		return nil, fmt.Errorf("decode policy %s: %w", policyID, err)
	}
	if policy.ExperienceID == "" {
		policy.ExperienceID = experienceID
	}
	return policy, nil
}

// findPolicyID returns the policy id of the newest PolicyCreated event for
// experienceID, or "" once every page has been read without a match.
func (r *ChainResolver) findPolicyID(ctx context.Context, experienceID string) (model.Address, error) {
	var cursor *chain.EventID
	for pages := 1; ; pages++ {
		page, err := r.client.QueryEventsPage(ctx, r.eventType, cursor, r.pageSize, chain.Descending)
		if err != nil {
			return "", fmt.Errorf("query policy events: %w", err)
		}
		for _, ev := range page.Events {
			var pc policyCreated
			if err := json.Unmarshal(ev.ParsedJSON, &pc); err != nil {
				r.logger.Warn("skipping malformed policy event", "tx", ev.TxDigest, "err", err)
				continue
			}
			if model.SameAddress(model.Address(pc.ExperienceID), model.Address(experienceID)) {
				return model.Address(pc.PolicyID), nil
			}
		}
		if !page.HasNextPage || page.NextCursor == nil {
			r.logger.Debug("no policy event for experience", "experience", experienceID, "pages", pages)
			return "", nil
		}
		if cursor != nil && *cursor == *page.NextCursor {
			return "", fmt.Errorf("query policy events: cursor %s:%s did not advance", cursor.TxDigest, cursor.EventSeq)
		}
		cursor = page.NextCursor
	}
}

// policyFromFields decodes the Move fields of an AccessPolicy object.
func policyFromFields(id model.Address, fields map[string]any) (*model.AccessPolicy, error) {
	pt, ok := fields["policy_type"]
	if !ok {
		return nil, fmt.Errorf("missing policy_type")
	}
	policyType, err := model.ParsePolicyType(pt)
	if err != nil {
		return nil, err
	}

	p := &model.AccessPolicy{ID: id, PolicyType: policyType}
	if s, ok := fields["experience_id"].(string); ok {
		p.ExperienceID = s
	}
	if s, ok := fields["owner"].(string); ok {
		p.Owner = model.Address(s)
	}
	allowlist, err := addressList(fields["allowlist"])
	if err != nil {
		return nil, fmt.Errorf("allowlist: %w", err)
	}
	p.Allowlist = allowlist
	return p, nil
}

// addressList accepts a plain vector of addresses or a VecSet, which the
// node renders as {"type": ..., "fields": {"contents": [...]}}.
func addressList(v any) ([]model.Address, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]model.Address, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected entry %v (%T)", item, item)
			}
			out = append(out, model.Address(s))
		}
		return out, nil
	case map[string]any:
		if inner, ok := x["fields"]; ok {
			return addressList(inner)
		}
		if contents, ok := x["contents"]; ok {
			return addressList(contents)
		}
		return nil, fmt.Errorf("unrecognized set layout")
	}
	return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
}
