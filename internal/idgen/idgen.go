// Package idgen generates identifiers for ledger rows.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// AttemptPrefix marks IDs of grant attempts.
const AttemptPrefix = "att-"

// Alphabet excludes look-alike characters so IDs survive copy/paste from logs.
const Alphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// Length is the number of random characters (excluding the prefix).
const Length = 12

// NewAttemptID returns a fresh attempt ID such as "att-k3m9x2p7qz4a".
func NewAttemptID() (string, error) {
	return WithPrefix(AttemptPrefix)
}

// WithPrefix returns a random ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	return prefix + id, nil
}
