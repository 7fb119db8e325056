package repository

import (
	"context"

	"rental-payments/internal/domain/model"
)

type CreditRepository interface {
	// AddCredits atomically increments a subject's balance by n (n > 0) and
	// returns the resulting balance.
	AddCredits(ctx context.Context, tx Tx, subjectID string, n int64) (int64, error)
	Balance(ctx context.Context, tx Tx, subjectID string) (*model.CreditBalance, error)
}
