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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, subject_id, subject_kind, plan_type, starts_at, expires_at, order_id, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (id) DO UPDATE SET
  plan_type=$4, starts_at=$5, expires_at=$6;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.SubjectID, s.SubjectKind, s.PlanType, s.StartsAt, s.ExpiresAt, s.OrderID, s.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindCurrent(ctx context.Context, tx repository.Tx, subjectID string, kind model.SubjectKind) (*model.Subscription, error) {
	const q = `SELECT id, subject_id, subject_kind, plan_type, starts_at, expires_at, order_id, created_at
  FROM subscriptions WHERE subject_id=$1 AND subject_kind=$2 ORDER BY expires_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, subjectID, kind)
	if err != nil {
		return nil, err
	}

	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.SubjectID, &s.SubjectKind, &s.PlanType, &s.StartsAt, &s.ExpiresAt, &s.OrderID, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}
