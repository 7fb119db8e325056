// File: internal/usecase/verification_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"rental-payments/internal/domain"
	"rental-payments/internal/domain/model"
	"rental-payments/internal/domain/ports/adapter"
	"rental-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ VerificationUseCase = (*verificationUC)(nil)

type VerifyOutcome string

const (
	// Payment confirmed and the grant was performed in this call.
	OutcomeFulfilled VerifyOutcome = "fulfilled"
	// A previous call already fulfilled this order; nothing was granted.
	OutcomeAlreadyProcessed VerifyOutcome = "already_processed"
	// The gateway has not confirmed the payment yet; callers should poll.
	OutcomeAwaitingConfirmation VerifyOutcome = "awaiting_confirmation"
	// Payment confirmed but the grant failed; safe to re-invoke later.
	OutcomeCompletedUnfulfilled VerifyOutcome = "completed_unfulfilled"
)

type VerifyResult struct {
	Outcome VerifyOutcome
	Payment *model.PendingPayment
	Receipt *model.FulfillmentReceipt
}

// VerificationUseCase is the single entry point for both the gateway IPN and
// the client poll. Safe to re-enter at any state and any number of times.
type VerificationUseCase interface {
	VerifyAndFulfill(ctx context.Context, trackingID, orderRef string) (*VerifyResult, error)
}

type verificationUC struct {
	payments  repository.PendingPaymentRepository
	gateway   adapter.PaymentGateway
	signer    adapter.MetadataSigner
	fulfiller FulfillmentUseCase
	tm        repository.TransactionManager
	tolerance float64
	log       *zerolog.Logger
	now       func() time.Time
}

func NewVerificationUseCase(
	payments repository.PendingPaymentRepository,
	gateway adapter.PaymentGateway,
	signer adapter.MetadataSigner,
	fulfiller FulfillmentUseCase,
	tm repository.TransactionManager,
	tolerance float64,
	logger *zerolog.Logger,
) *verificationUC {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	return &verificationUC{
		payments:  payments,
		gateway:   gateway,
		signer:    signer,
		fulfiller: fulfiller,
		tm:        tm,
		tolerance: tolerance,
		log:       logger,
		now:       time.Now,
	}
}

// errLostFulfillmentRace aborts the fulfillment transaction when another
// request claimed the order first; the rollback undoes our grant.
var errLostFulfillmentRace = errors.New("order already fulfilled by a concurrent request")

func (uc *verificationUC) VerifyAndFulfill(ctx context.Context, trackingID, orderRef string) (*VerifyResult, error) {
	if trackingID == "" && orderRef == "" {
		return nil, fmt.Errorf("tracking id or order reference required: %w", domain.ErrInvalidArgument)
	}

	p, err := uc.resolve(ctx, trackingID, orderRef)
	if err != nil {
		return nil, err
	}
	log := uc.log.With().Str("order_id", p.OrderID).Logger()

	// Fulfilled is terminal: short-circuit before touching gateway or
	// fulfillment so the endpoint is callable any number of times.
	if p.FulfillmentStatus == model.FulfillmentStatusFulfilled {
		return &VerifyResult{Outcome: OutcomeAlreadyProcessed, Payment: p, Receipt: p.Receipt}, nil
	}

	// Integrity check over stored metadata and stored signature only.
	if !uc.signer.Verify(p.Metadata, p.Signature) {
		log.Warn().Str("subject_id", p.Metadata.SubjectID).
			Str("type", string(p.Metadata.Type)).
			Msg("stored metadata does not match its signature; refusing to fulfill")
		return nil, domain.ErrSignatureInvalid
	}

	if p.Status != model.PaymentStatusCompleted {
		res, err := uc.reconcileWithGateway(ctx, &log, p, trackingID)
		if res != nil || err != nil {
			return res, err
		}
	}

	return uc.fulfillOnce(ctx, &log, p)
}

// resolve tries the gateway-issued tracking id first, then the merchant
// order reference.
func (uc *verificationUC) resolve(ctx context.Context, trackingID, orderRef string) (*model.PendingPayment, error) {
	if trackingID != "" {
		p, err := uc.payments.FindByTrackingID(ctx, nil, trackingID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if orderRef != "" {
		p, err := uc.payments.FindByOrderID(ctx, nil, orderRef)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrNotFound
}

// reconcileWithGateway asks the gateway for the live status and persists the
// pending -> completed transition. A nil, nil return means the payment is now
// completed and the caller should proceed to fulfillment.
//
// The gateway is only ever asked about the tracking id recorded on the
// payment row. A supplied id that resolved the record equals the stored one;
// any other supplied id is unverified and could belong to a different,
// already-completed payment of the same amount, so it must never be used to
// confirm this order.
func (uc *verificationUC) reconcileWithGateway(ctx context.Context, log *zerolog.Logger, p *model.PendingPayment, trackingID string) (*VerifyResult, error) {
	var tid string
	if p.OrderTrackingID != nil {
		tid = *p.OrderTrackingID
	}
	if trackingID != "" && trackingID != tid {
		log.Warn().Str("supplied_tracking_id", trackingID).
			Msg("supplied tracking id does not belong to this order; refusing")
		return nil, domain.ErrNotFound
	}
	if tid == "" {
		// The gateway never assigned a tracking id; there is nothing to ask
		// it about yet.
		return &VerifyResult{Outcome: OutcomeAwaitingConfirmation, Payment: p}, nil
	}

	snap, err := uc.gateway.TransactionStatus(ctx, tid)
	if err != nil {
		// Transient; the caller retries. Never report "failed" here: the
		// payment may still clear.
		return nil, err
	}

	if snap.State() != model.GatewayStateCompleted {
		log.Debug().Int("status_code", snap.StatusCode).Str("state", string(snap.State())).
			Msg("gateway has not confirmed the payment")
		return &VerifyResult{Outcome: OutcomeAwaitingConfirmation, Payment: p}, nil
	}

	if math.Abs(snap.Amount-p.Metadata.Amount) > uc.tolerance {
		log.Warn().Float64("expected", p.Metadata.Amount).Float64("reported", snap.Amount).
			Str("tracking_id", tid).
			Msg("gateway-reported amount disagrees with signed checkout amount")
		return nil, domain.ErrAmountMismatch
	}

	if _, err := uc.payments.MarkCompleted(ctx, nil, p.OrderID, snap, tid); err != nil {
		return nil, err
	}
	now := uc.now()
	p.Status = model.PaymentStatusCompleted
	p.GatewayStatus = snap
	p.CompletedAt = &now
	log.Info().Str("tracking_id", tid).Str("method", snap.PaymentMethod).
		Float64("amount", snap.Amount).Msg("payment completed")
	return nil, nil
}

// fulfillOnce performs the grant and the fulfilled-claim in one transaction.
// The conditional MarkFulfilled update is the exactly-once guarantee: the
// losing side of a race sees zero rows updated and its grant is rolled back.
func (uc *verificationUC) fulfillOnce(ctx context.Context, log *zerolog.Logger, p *model.PendingPayment) (*VerifyResult, error) {
	facts := model.PaymentFacts{Amount: p.Metadata.Amount, PaidAt: uc.now()}
	if p.GatewayStatus != nil {
		facts.Amount = p.GatewayStatus.Amount
		facts.PaymentMethod = p.GatewayStatus.PaymentMethod
		facts.ConfirmationCode = p.GatewayStatus.ConfirmationCode
	}
	if p.CompletedAt != nil {
		facts.PaidAt = *p.CompletedAt
	}

	var receipt *model.FulfillmentReceipt
	txErr := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		r, err := uc.fulfiller.Fulfill(ctx, tx, p.OrderID, p.Metadata, facts)
		if err != nil {
			return err
		}
		ok, err := uc.payments.MarkFulfilled(ctx, tx, p.OrderID, r)
		if err != nil {
			return err
		}
		if !ok {
			return errLostFulfillmentRace
		}
		receipt = r
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, errLostFulfillmentRace) {
			fresh, err := uc.payments.FindByOrderID(ctx, nil, p.OrderID)
			if err != nil {
				fresh = p
			}
			return &VerifyResult{Outcome: OutcomeAlreadyProcessed, Payment: fresh, Receipt: fresh.Receipt}, nil
		}
		// Payment is confirmed; acknowledge it. The grant is retried by
		// re-invoking the whole flow, never by re-granting here.
		log.Error().Err(txErr).Msg("fulfillment failed after completed payment")
		return &VerifyResult{Outcome: OutcomeCompletedUnfulfilled, Payment: p}, nil
	}

	now := uc.now()
	p.FulfillmentStatus = model.FulfillmentStatusFulfilled
	p.Receipt = receipt
	p.FulfilledAt = &now
	log.Info().Str("receipt_id", receipt.ID).Msg("order fulfilled")
	return &VerifyResult{Outcome: OutcomeFulfilled, Payment: p, Receipt: receipt}, nil
}
