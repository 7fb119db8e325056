package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"rental-payments/internal/domain"
	"rental-payments/internal/domain/model"
	"rental-payments/internal/domain/ports/repository"
)

var _ repository.CreditRepository = (*creditRepo)(nil)

type creditRepo struct{ pool *pgxpool.Pool }

func NewCreditRepo(pool *pgxpool.Pool) *creditRepo {
	return &creditRepo{pool: pool}
}

// AddCredits upserts the balance row and increments it in one statement, so
// concurrent grants for the same subject serialize on the row.
func (r *creditRepo) AddCredits(ctx context.Context, tx repository.Tx, subjectID string, n int64) (int64, error) {
	if n <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO credit_balances (subject_id, credits, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (subject_id) DO UPDATE SET
  credits = credit_balances.credits + $2,
  updated_at = NOW()
RETURNING credits;`

	row, err := pickRow(ctx, r.pool, tx, q, subjectID, n)
	if err != nil {
		return 0, err
	}
	var balance int64
	if err := row.Scan(&balance); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return balance, nil
}

func (r *creditRepo) Balance(ctx context.Context, tx repository.Tx, subjectID string) (*model.CreditBalance, error) {
	const q = `SELECT subject_id, credits, updated_at FROM credit_balances WHERE subject_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, subjectID)
	if err != nil {
		return nil, err
	}
	b := &model.CreditBalance{}
	if err := row.Scan(&b.SubjectID, &b.Credits, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return b, nil
}
