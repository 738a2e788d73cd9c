package postgres

import (
	"database/sql"
	"fmt"

	"github.com/alfredjeanlab/reconciler/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanAttempt scans a single row into a model.Attempt.
// The row must contain columns in the order defined by attemptColumns.
func scanAttempt(row scannable) (*model.Attempt, error) {
	var (
		a        model.Attempt
		sequence int64
		buyer    string
		outcome  string
		policyID sql.NullString
		reason   sql.NullString
		txDigest sql.NullString
		errText  sql.NullString
	)

	err := row.Scan(
		&a.ID,
		&sequence,
		&a.PurchaseID,
		&a.ExperienceID,
		&buyer,
		&policyID,
		&outcome,
		&reason,
		&txDigest,
		&errText,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sequence < 0 {
		return nil, fmt.Errorf("attempt %s: negative sequence %d", a.ID, sequence)
	}

	a.Sequence = uint64(sequence)
	a.Buyer = model.Address(buyer)
	a.PolicyID = model.Address(policyID.String)
	a.Outcome = model.Outcome(outcome)
	a.Reason = reason.String
	a.TxDigest = txDigest.String
	a.Error = errText.String
	return &a, nil
}

// nullString converts an empty string to a NULL sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
