package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/alfredjeanlab/reconciler/internal/model"
)

// attemptColumns is the column list used for SELECT statements on the attempts table.
const attemptColumns = `id, sequence, purchase_id, experience_id, buyer,
	policy_id, outcome, reason, tx_digest, error, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryInsertAttempt(ctx context.Context, db executor, a *model.Attempt) error {
	if a.Sequence > math.MaxInt64 {
		return fmt.Errorf("sequence %d out of range", a.Sequence)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO attempts (
			id, sequence, purchase_id, experience_id, buyer,
			policy_id, outcome, reason, tx_digest, error, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)`,
		a.ID,
		int64(a.Sequence),
		a.PurchaseID,
		a.ExperienceID,
		string(a.Buyer),
		nullString(string(a.PolicyID)),
		string(a.Outcome),
		nullString(a.Reason),
		nullString(a.TxDigest),
		nullString(a.Error),
		a.CreatedAt,
	)
	return err
}

func queryListAttempts(ctx context.Context, db executor, filter model.AttemptFilter) ([]*model.Attempt, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Outcome != "" {
		whereClauses = append(whereClauses, "outcome = "+nextArg())
		args = append(args, string(filter.Outcome))
	}

	if filter.ExperienceID != "" {
		whereClauses = append(whereClauses, "experience_id = "+nextArg())
		args = append(args, filter.ExperienceID)
	}

	q := `SELECT ` + attemptColumns + ` FROM attempts`
	if len(whereClauses) > 0 {
		q += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	q += " ORDER BY created_at DESC, sequence DESC"
	if filter.Limit > 0 {
		q += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
