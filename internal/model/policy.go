package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PolicyType identifies how an access policy authorizes readers.
type PolicyType string

const (
	PolicyPrivate      PolicyType = "private"
	PolicyAllowlist    PolicyType = "allowlist"
	PolicySubscription PolicyType = "subscription"
)

// String returns the string representation of the policy type.
func (p PolicyType) String() string {
	return string(p)
}

// IsValid checks whether the policy type is a known value.
func (p PolicyType) IsValid() bool {
	switch p {
	case PolicyPrivate, PolicyAllowlist, PolicySubscription:
		return true
	}
	return false
}

// ParsePolicyType accepts the on-chain u8 discriminant (0 private,
// 1 allowlist, 2 subscription) as a number or string, or the type name.
func ParsePolicyType(v any) (PolicyType, error) {
	switch x := v.(type) {
	case float64:
		return policyTypeFromCode(int(x))
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return "", fmt.Errorf("invalid policy type %q", x)
		}
		return policyTypeFromCode(int(n))
	case string:
		if n, err := strconv.Atoi(x); err == nil {
			return policyTypeFromCode(n)
		}
		p := PolicyType(strings.ToLower(strings.TrimSpace(x)))
		if !p.IsValid() {
			return "", fmt.Errorf("unknown policy type %q", x)
		}
		return p, nil
	}
	return "", fmt.Errorf("unsupported policy type value %v (%T)", v, v)
}

func policyTypeFromCode(n int) (PolicyType, error) {
	switch n {
	case 0:
		return PolicyPrivate, nil
	case 1:
		return PolicyAllowlist, nil
	case 2:
		return PolicySubscription, nil
	}
	return "", fmt.Errorf("unknown policy type code %d", n)
}

// AccessPolicy is the live state of one experience's access policy object.
type AccessPolicy struct {
	ID           Address    `json:"id"`
	ExperienceID string     `json:"experience_id"`
	PolicyType   PolicyType `json:"policy_type"`
	Owner        Address    `json:"owner"`
	Allowlist    []Address  `json:"allowlist"`
}

// Allows reports whether addr is already on the allowlist.
func (p *AccessPolicy) Allows(addr Address) bool {
	for _, a := range p.Allowlist {
		if SameAddress(a, addr) {
			return true
		}
	}
	return false
}
