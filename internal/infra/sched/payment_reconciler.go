package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"rental-payments/internal/domain"
	"rental-payments/internal/domain/ports/repository"
	"rental-payments/internal/usecase"
)

// PaymentReconciler periodically scans for stale pending payments and re-runs
// verification on them. This covers missed IPN deliveries and process crashes
// between gateway confirmation and fulfillment.
type PaymentReconciler struct {
	verifier   usecase.VerificationUseCase
	payments   repository.PendingPaymentRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to retry
	log        *zerolog.Logger
}

func NewPaymentReconciler(
	verifier usecase.VerificationUseCase,
	payments repository.PendingPaymentRepository,
	interval, staleAfter time.Duration,
	logger *zerolog.Logger,
) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	recLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		verifier:   verifier,
		payments:   payments,
		interval:   interval,
		staleAfter: staleAfter,
		log:        &recLog,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale pending payments failed")
		return
	}
	for _, p := range pending {
		if p.OrderTrackingID == nil || *p.OrderTrackingID == "" {
			// Checkout never reached the gateway; nothing to reconcile.
			continue
		}
		res, err := w.verifier.VerifyAndFulfill(ctx, *p.OrderTrackingID, p.OrderID)
		if err != nil {
			// Still pending at the gateway is the normal case here; anything
			// terminal needs eyes on it.
			if errors.Is(err, domain.ErrGatewayUnavailable) || errors.Is(err, domain.ErrGatewayAuth) {
				w.log.Warn().Err(err).Msg("gateway unreachable; stopping this pass")
				return
			}
			w.log.Error().Err(err).Str("order_id", p.OrderID).Msg("reconcile failed")
			continue
		}
		if res.Outcome == usecase.OutcomeFulfilled {
			w.log.Info().Str("order_id", p.OrderID).Msg("stale payment reconciled and fulfilled")
		}
	}
}
