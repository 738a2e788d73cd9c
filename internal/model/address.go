package model

import (
	"fmt"
	"strings"
)

// addressHexLen is the number of hex digits in a full-width chain address.
const addressHexLen = 64

// Address is an on-chain account or object address in 0x-prefixed hex.
type Address string

// NormalizeAddress lowercases an address, adds the 0x prefix if missing and
// left-pads it to full width. Short forms such as "0x2" expand to the same
// value as their padded equivalent.
func NormalizeAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return "", fmt.Errorf("empty address")
	}
	if len(s) > addressHexLen {
		return "", fmt.Errorf("address %q longer than %d hex digits", s, addressHexLen)
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return "", fmt.Errorf("address %q contains non-hex character %q", s, r)
		}
	}
	return Address("0x" + strings.Repeat("0", addressHexLen-len(s)) + s), nil
}

// String returns the address as given.
func (a Address) String() string {
	return string(a)
}

// Normalized returns the canonical form of a, or the lowercased raw value if
// a is not valid hex.
func (a Address) Normalized() Address {
	n, err := NormalizeAddress(string(a))
	if err != nil {
		return Address(strings.ToLower(string(a)))
	}
	return n
}

// SameAddress reports whether a and b refer to the same address, ignoring
// case and zero padding.
func SameAddress(a, b Address) bool {
	return a.Normalized() == b.Normalized()
}
