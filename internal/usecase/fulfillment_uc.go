// File: internal/usecase/fulfillment_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"rental-payments/internal/domain"
	"rental-payments/internal/domain/model"
	"rental-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ FulfillmentUseCase = (*fulfillmentUC)(nil)

// FulfillmentUseCase performs the domain grant for a verified, completed
// payment. It has no idempotency memory of its own: the caller guarantees
// at-most-once invocation per order via the fulfillment_status guard, and
// passes the transaction the guard runs in so a lost race rolls the grant
// back.
type FulfillmentUseCase interface {
	Fulfill(ctx context.Context, tx repository.Tx, orderID string, md model.PaymentMetadata, facts model.PaymentFacts) (*model.FulfillmentReceipt, error)
}

type fulfillmentUC struct {
	subs    repository.SubscriptionRepository
	credits repository.CreditRepository
	log     *zerolog.Logger
	now     func() time.Time
}

func NewFulfillmentUseCase(subs repository.SubscriptionRepository, credits repository.CreditRepository, logger *zerolog.Logger) *fulfillmentUC {
	return &fulfillmentUC{subs: subs, credits: credits, log: logger, now: time.Now}
}

func (uc *fulfillmentUC) Fulfill(ctx context.Context, tx repository.Tx, orderID string, md model.PaymentMetadata, facts model.PaymentFacts) (*model.FulfillmentReceipt, error) {
	receipt := &model.FulfillmentReceipt{
		ID:               ulid.Make().String(),
		OrderID:          orderID,
		Type:             md.Type,
		SubjectID:        md.SubjectID,
		ConfirmationCode: facts.ConfirmationCode,
		GrantedAt:        uc.now(),
	}

	switch md.Type {
	case model.PaymentTypeAgentSubscription, model.PaymentTypeUserSubscription:
		kind := model.SubjectKindAgent
		if md.Type == model.PaymentTypeUserSubscription {
			kind = model.SubjectKindUser
		}
		sub, err := uc.grantSubscription(ctx, tx, orderID, md, kind)
		if err != nil {
			return nil, err
		}
		receipt.PlanType = md.PlanType
		receipt.SubscriptionID = sub.ID
		receipt.PeriodStart = &sub.StartsAt
		receipt.PeriodEnd = &sub.ExpiresAt

	case model.PaymentTypeCreditPurchase:
		if md.Credits <= 0 {
			return nil, fmt.Errorf("credit purchase with %d credits: %w", md.Credits, domain.ErrInvalidArgument)
		}
		balance, err := uc.credits.AddCredits(ctx, tx, md.SubjectID, md.Credits)
		if err != nil {
			return nil, fmt.Errorf("add credits: %w", err)
		}
		receipt.Credits = md.Credits
		uc.log.Info().Str("order_id", orderID).Str("subject_id", md.SubjectID).
			Int64("credits", md.Credits).Int64("balance", balance).Msg("credits granted")

	default:
		return nil, fmt.Errorf("unknown payment type %q: %w", md.Type, domain.ErrInvalidArgument)
	}

	return receipt, nil
}

// grantSubscription starts a new period at the current expiry when one is
// still in the future, else now.
func (uc *fulfillmentUC) grantSubscription(ctx context.Context, tx repository.Tx, orderID string, md model.PaymentMetadata, kind model.SubjectKind) (*model.Subscription, error) {
	dur, err := model.PlanDuration(md.PlanType)
	if err != nil {
		return nil, fmt.Errorf("plan type %q: %w", md.PlanType, err)
	}

	now := uc.now()
	start := now
	if cur, err := uc.subs.FindCurrent(ctx, tx, md.SubjectID, kind); err == nil && cur.ExpiresAt.After(now) {
		start = cur.ExpiresAt
	}

	sub := &model.Subscription{
		ID:          uuid.NewString(),
		SubjectID:   md.SubjectID,
		SubjectKind: kind,
		PlanType:    md.PlanType,
		StartsAt:    start,
		ExpiresAt:   start.Add(dur),
		OrderID:     orderID,
		CreatedAt:   now,
	}
	if err := uc.subs.Save(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("save subscription: %w", err)
	}
	uc.log.Info().Str("order_id", orderID).Str("subject_id", md.SubjectID).
		Str("plan", md.PlanType).Time("expires_at", sub.ExpiresAt).Msg("subscription period granted")
	return sub, nil
}
