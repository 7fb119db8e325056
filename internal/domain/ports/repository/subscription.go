package repository

import (
	"context"

	"rental-payments/internal/domain/model"
)

type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	// FindCurrent returns the subscription with the latest expiry for a
	// subject, or ErrNotFound.
	FindCurrent(ctx context.Context, tx Tx, subjectID string, kind model.SubjectKind) (*model.Subscription, error)
}
