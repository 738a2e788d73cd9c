package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PurchaseEvent is an observed "experience purchased" fact from the chain.
type PurchaseEvent struct {
	Sequence     uint64  `json:"sequence"`
	TxDigest     string  `json:"tx_digest,omitempty"`
	PurchaseID   string  `json:"purchase_id"`
	ExperienceID string  `json:"experience_id"`
	Buyer        Address `json:"buyer"`
	Seller       Address `json:"seller"`
	Price        uint64  `json:"price"`
}

// purchaseFields mirrors the parsed JSON of the on-chain event. Move u64
// values arrive as decimal strings.
type purchaseFields struct {
	PurchaseID   string          `json:"purchase_id"`
	ExperienceID string          `json:"experience_id"`
	Buyer        string          `json:"buyer"`
	Seller       string          `json:"seller"`
	Price        json.RawMessage `json:"price"`
}

// ParsePurchaseEvent decodes the parsed fields of a purchase event and
// validates them.
func ParsePurchaseEvent(sequence uint64, txDigest string, fields json.RawMessage) (*PurchaseEvent, error) {
	var f purchaseFields
	if err := json.Unmarshal(fields, &f); err != nil {
		return nil, fmt.Errorf("decode purchase event: %w", err)
	}

	var ve ValidationError
	ev := &PurchaseEvent{
		Sequence:     sequence,
		TxDigest:     txDigest,
		PurchaseID:   f.PurchaseID,
		ExperienceID: f.ExperienceID,
	}
	if strings.TrimSpace(f.ExperienceID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "experience_id", Message: "is required"})
	}
	buyer, err := NormalizeAddress(f.Buyer)
	if err != nil {
		ve.Errors = append(ve.Errors, FieldError{Field: "buyer", Message: err.Error()})
	}
	ev.Buyer = buyer
	if f.Seller != "" {
		seller, err := NormalizeAddress(f.Seller)
		if err != nil {
			ve.Errors = append(ve.Errors, FieldError{Field: "seller", Message: err.Error()})
		}
		ev.Seller = seller
	}
	if len(f.Price) > 0 {
		price, err := parseU64(f.Price)
		if err != nil {
			ve.Errors = append(ve.Errors, FieldError{Field: "price", Message: err.Error()})
		}
		ev.Price = price
	}

	if ve.HasErrors() {
		return nil, &ve
	}
	return ev, nil
}

// parseU64 accepts a JSON number or a decimal string.
func parseU64(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid u64 %s", raw)
	}
	return n, nil
}
